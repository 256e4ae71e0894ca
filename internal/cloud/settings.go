package cloud

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings holds backend-specific connection options. The core passes them
// through untouched; each backend reads the keys it understands.
type Settings map[string]any

// String returns the value of key as a string, or "" when unset.
func (s Settings) String(key string) string {
	v, ok := s.lookup(key)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Int returns the value of key as an int, or def when unset or invalid.
func (s Settings) Int(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Duration returns the value of key as a duration. Strings are parsed with
// time.ParseDuration; bare numbers are seconds.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	}
	return def
}

// lookup is case-insensitive because viper lower-cases keys.
func (s Settings) lookup(key string) (any, bool) {
	if v, ok := s[key]; ok {
		return v, true
	}
	for k, v := range s {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
