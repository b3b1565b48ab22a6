package connection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rickgao/exchange-ws/internal/model"
)

// Params are the channel-specific fields of a subscribe request
// (e.g. "symbol", "granularity").
type Params map[string]any

// credentialParams never take part in listener identity.
var credentialParams = map[string]struct{}{
	"token": {},
}

// Param is one field of a Key.
type Param struct {
	Name  string
	Value string
}

// Key identifies a Listener: a channel plus its parameters, sorted by name.
// Two keys are equal when their channels and parameter lists are equal,
// independent of the order the parameters were supplied in.
type Key struct {
	Channel model.Channel
	Params  []Param
}

// NewKey builds the key for channel and params. Nil values and credential
// fields are skipped.
func NewKey(channel model.Channel, params Params) Key {
	k := Key{Channel: channel}
	for name, v := range params {
		if _, skip := credentialParams[name]; skip || v == nil {
			continue
		}
		k.Params = append(k.Params, Param{Name: name, Value: fmt.Sprint(v)})
	}
	sort.Slice(k.Params, func(i, j int) bool {
		return k.Params[i].Name < k.Params[j].Name
	})
	return k
}

// String returns the canonical form, e.g. "prices?granularity=60&symbol=BTC-USD".
func (k Key) String() string {
	if len(k.Params) == 0 {
		return string(k.Channel)
	}
	var b strings.Builder
	b.WriteString(string(k.Channel))
	for i, p := range k.Params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// Equal reports whether k and o identify the same listener.
func (k Key) Equal(o Key) bool {
	if k.Channel != o.Channel || len(k.Params) != len(o.Params) {
		return false
	}
	for i := range k.Params {
		if k.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}

// Matches reports whether ev belongs to k: the channel must match and every
// key parameter the frame carries must have the same value. Parameters the
// frame omits are not checked; the server is trusted to tag frames precisely.
func (k Key) Matches(ev model.Event) bool {
	if ev.Channel != k.Channel {
		return false
	}
	for _, p := range k.Params {
		if v, ok := ev.Field(p.Name); ok && v != p.Value {
			return false
		}
	}
	return true
}
