package identity

import (
	"maps"
	"strings"

	"github.com/dmitrymomot/oauth2client/pkg/oauth"
)

// Local field names used by the default mapping and Account.
const (
	FieldProviderID = "oauth2_id"
	FieldEmail      = "email"
	FieldName       = "name"
	FieldFirstName  = "first_name"
	FieldLastName   = "last_name"
	FieldAvatar     = "avatar"
)

// Attributes are local field values derived from a provider profile.
type Attributes map[string]any

// Mapping translates provider attribute names into local field names.
// It is immutable once constructed.
type Mapping struct {
	m map[string]string
}

// DefaultMapping returns the stock provider-to-local mapping.
func DefaultMapping() Mapping {
	return NewMapping(map[string]string{
		"id":         FieldProviderID,
		"email":      FieldEmail,
		"name":       FieldName,
		"first_name": FieldFirstName,
		"last_name":  FieldLastName,
		"avatar":     FieldAvatar,
	})
}

// NewMapping copies m. Empty keys and values are dropped.
func NewMapping(m map[string]string) Mapping {
	out := make(map[string]string, len(m))
	for k, v := range m {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return Mapping{m: out}
}

// Field returns the local field for a provider attribute.
func (m Mapping) Field(attr string) (string, bool) {
	f, ok := m.m[attr]
	return f, ok
}

// IDField is the local field holding the provider id.
func (m Mapping) IDField() string {
	if f, ok := m.m["id"]; ok {
		return f
	}
	return FieldProviderID
}

// EmailField is the local field holding the email address.
func (m Mapping) EmailField() string {
	if f, ok := m.m["email"]; ok {
		return f
	}
	return FieldEmail
}

// Len returns the number of mapped attributes.
func (m Mapping) Len() int {
	return len(m.m)
}

// Map returns a copy of the underlying table.
func (m Mapping) Map() map[string]string {
	return maps.Clone(m.m)
}

// Attributes projects profile onto local fields. Null values are skipped.
//
// A string "name" is split on its first space. The first part fills the field mapped
// from "first_name" and the remainder, if any, fills the field mapped from
// "last_name". Split values never replace names the provider sent directly: a
// profile with "first_name" keeps that value even when "name" disagrees, and only
// the missing half is derived from the split. Providers that send structured
// names therefore take precedence over the display name.
func (m Mapping) Attributes(profile oauth.Profile) Attributes {
	attrs := make(Attributes, len(m.m))
	for attr, field := range m.m {
		if v, ok := profile[attr]; ok && v != nil {
			attrs[field] = v
		}
	}

	name, ok := profile["name"].(string)
	if !ok {
		return attrs
	}

	first, last, hasLast := strings.Cut(name, " ")
	if f, ok := m.m["first_name"]; ok && !profile.Has("first_name") {
		attrs[f] = first
	}
	if f, ok := m.m["last_name"]; ok && hasLast && !profile.Has("last_name") {
		attrs[f] = last
	}

	return attrs
}
