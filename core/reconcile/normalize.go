package reconcile

import "strings"

// Normalizer maps raw identities to their canonical form: trimmed,
// lower-cased, with the configured source prefix removed.
type Normalizer struct {
	// Prefix is a source-specific identity prefix, compared case-insensitively.
	Prefix string
}

// Normalize returns the canonical form of raw.
func (n Normalizer) Normalize(raw string) string {
	id := strings.ToLower(strings.TrimSpace(raw))
	if p := strings.ToLower(strings.TrimSpace(n.Prefix)); p != "" {
		id = strings.TrimPrefix(id, p)
	}
	return strings.TrimSpace(id)
}

// Render returns the stored form of a canonical identity.
func (n Normalizer) Render(id string) string {
	return n.Prefix + id
}
