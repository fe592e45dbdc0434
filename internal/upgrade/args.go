package upgrade

import (
	"fmt"
	"strconv"
	"strings"
)

// ArgForce makes Execute run an upgrade that already succeeded
const ArgForce = "force"

// Args are the key/value arguments of a run
type Args map[string]string

// ParseArgs parses "key=value" pairs. A bare "key" is stored with an empty value.
func ParseArgs(raw []string) (Args, error) {
	args := make(Args, len(raw))
	for _, a := range raw {
		key, value, _ := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid argument %q: missing key", a)
		}
		args[key] = value
	}
	return args, nil
}

// Has reports whether key was given
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Get returns the value of key
func (a Args) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// Bool is true for a bare key and for any value strconv.ParseBool accepts as true
func (a Args) Bool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Int returns the integer value of key, or def when key is missing
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return n, nil
}

// Strings splits a comma separated value, dropping empty entries
func (a Args) Strings(key string) []string {
	var out []string
	for _, s := range strings.Split(a[key], ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (a Args) clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
