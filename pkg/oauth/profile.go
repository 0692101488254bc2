package oauth

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Profile holds the raw attributes returned by the user-info endpoint.
// Numbers are kept as json.Number so large provider ids survive intact.
type Profile map[string]any

// String returns the attribute as a string. Numbers are formatted, other types report false.
func (p Profile) String(key string) (string, bool) {
	switch v := p[key].(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

// Bool interprets the attribute as a boolean assertion.
func (p Profile) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	case json.Number:
		n, err := v.Float64()
		return err == nil && n != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// ID returns the provider's user identifier.
func (p Profile) ID() string {
	s, _ := p.String("id")
	return s
}

// Email returns the profile email address.
func (p Profile) Email() string {
	s, _ := p.String("email")
	return s
}

// Has reports whether key is present with a non-null value.
func (p Profile) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}
