// Package environment reads typed configuration values from environment
// variables.
//
// Values are looked up through a Source so that callers can layer a key
// prefix (e.g. "DAREON_") over the bare name and tests can substitute a map
// for the process environment. Malformed values never abort the process: the
// typed getters fall back to the supplied default and report nothing, while
// Required returns an error for the caller to surface.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Source resolves variable names against a lookup function, trying the
// prefixed name first and the bare name second.
type Source struct {
	prefix string
	lookup LookupFunc
}

// OS returns a Source over the process environment. When prefix is not empty
// "PORT" is first looked up as prefix+"PORT".
func OS(prefix string) Source {
	return Source{prefix: prefix, lookup: os.LookupEnv}
}

// Map returns a Source backed by a fixed map.
func Map(prefix string, vars map[string]string) Source {
	return Source{prefix: prefix, lookup: func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}}
}

// Lookup returns the first non-empty value among prefix+name and name.
func (s Source) Lookup(name string) (string, bool) {
	if s.lookup == nil {
		return "", false
	}
	if s.prefix != "" {
		if v, ok := s.lookup(s.prefix + name); ok && v != "" {
			return v, true
		}
	}
	if v, ok := s.lookup(name); ok && v != "" {
		return v, true
	}
	return "", false
}

// StringOr returns the value of name or defaultValue when unset.
func (s Source) StringOr(name, defaultValue string) string {
	if v, ok := s.Lookup(name); ok {
		return v
	}
	return defaultValue
}

// Required returns the value of name or an error naming the variable.
func (s Source) Required(name string) (string, error) {
	if v, ok := s.Lookup(name); ok {
		return v, nil
	}
	return "", fmt.Errorf("required environment variable %q is not set", s.prefix+name)
}

// BoolOr parses name with strconv.ParseBool.
func (s Source) BoolOr(name string, defaultValue bool) bool {
	v, ok := s.Lookup(name)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses name as a decimal integer.
func (s Source) IntOr(name string, defaultValue int) int {
	v, ok := s.Lookup(name)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses name as a time.Duration ("30s", "24h"). A bare integer or
// an integer with a "d" suffix is read as a number of days, so that
// JWT_COOKIE_EXPIRE=30 and JWT_EXPIRE=30d keep their historical meaning.
func (s Source) DurationOr(name string, defaultValue time.Duration) time.Duration {
	v, ok := s.Lookup(name)
	if !ok {
		return defaultValue
	}
	v = strings.TrimSpace(v)
	if days, err := strconv.Atoi(strings.TrimSuffix(v, "d")); err == nil {
		return time.Duration(days) * 24 * time.Hour
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr splits a comma-separated value, dropping empty elements.
func (s Source) StringSliceOr(name string, defaultValue []string) []string {
	v, ok := s.Lookup(name)
	if !ok {
		return defaultValue
	}
	var result []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
