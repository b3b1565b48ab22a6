// Package auth loads the API secret used to authenticate exchange sessions.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken is returned when neither an inline token nor a token file is configured.
var ErrNoToken = errors.New("api token is required")

// LoadToken resolves the API secret. An inline token wins over tokenPath;
// file contents are trimmed of surrounding whitespace.
func LoadToken(token, tokenPath string) (string, error) {
	if token = strings.TrimSpace(token); token != "" {
		return token, nil
	}
	if tokenPath == "" {
		return "", ErrNoToken
	}

	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token = strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", tokenPath)
	}
	return token, nil
}

// Mask returns a form of token safe to log: the last four characters only.
func Mask(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 4) + token[len(token)-4:]
}
