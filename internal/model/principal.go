package model

import "strings"

// PrincipalID uniquely identifies an authenticated user across the system
type PrincipalID string

// Metadata keys understood by the identity engine
const (
	MetadataRole = "role"
	MetadataName = "name"
)

// Principal is the minimal identity issued by the authentication backend.
// It is treated as immutable for the lifetime of a session.
type Principal struct {
	ID       PrincipalID    `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataString returns a string hint from the metadata bag, or "" if absent
func (p *Principal) MetadataString(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	v, _ := p.Metadata[key].(string)
	return strings.TrimSpace(v)
}

// EmailLocalPart returns the portion of the email before the @
func (p *Principal) EmailLocalPart() string {
	if p == nil {
		return ""
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return strings.TrimSpace(local)
}

// Clone returns a copy that shares no mutable state with p
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	c.Metadata = cloneMap(p.Metadata)
	return &c
}

// cloneMap copies a JSON-like map, descending into nested maps and slices
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
