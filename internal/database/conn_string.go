package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/exchange-ws/internal/config"
)

// ApplicationName is reported to the server so journal sessions show up in pg_stat_activity.
const ApplicationName = "exchange-ws"

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?%s",
		cfg.User,
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		q.Encode(),
	)
}
