package reconcile

import (
	"fmt"
	"strings"

	"record-sync/core/utils"
)

// Precedence selects the winning side when both stores hold different
// non-empty values for the same field.
type Precedence string

const (
	// PreferRelational takes the relational store's value.
	PreferRelational Precedence = "relational"
	// PreferFile takes the ledger's value.
	PreferFile Precedence = "file"
)

// ParsePrecedence parses a configured precedence. Empty means PreferRelational.
func ParsePrecedence(s string) (Precedence, error) {
	switch Precedence(strings.ToLower(strings.TrimSpace(s))) {
	case "", PreferRelational:
		return PreferRelational, nil
	case PreferFile:
		return PreferFile, nil
	default:
		return "", fmt.Errorf("unknown precedence %q (want relational or file)", s)
	}
}

// Resolver merges the two instances of an identity present in both stores.
type Resolver interface {
	Resolve(file, relational *Record) Record
}

// FieldMergeResolver resolves conflicts field by field.
type FieldMergeResolver struct {
	Precedence Precedence
}

// NewResolver returns a FieldMergeResolver with the given precedence.
func NewResolver(p Precedence) *FieldMergeResolver {
	if p == "" {
		p = PreferRelational
	}
	return &FieldMergeResolver{Precedence: p}
}

// Resolve merges file and relational into a synthesized record.
// Either side may be nil. Values are passed through unvalidated.
func (r *FieldMergeResolver) Resolve(file, relational *Record) Record {
	var out Record
	switch {
	case relational != nil:
		out.Identity = relational.Identity
		out.OccurredAt = relational.OccurredAt
	case file != nil:
		out.Identity = file.Identity
		out.OccurredAt = file.OccurredAt
	default:
		return out
	}
	if out.OccurredAt.IsZero() && file != nil {
		out.OccurredAt = file.OccurredAt
	}

	preferred, other := relational, file
	if r.Precedence == PreferFile {
		preferred, other = file, relational
	}

	out.Payload = make(Payload)
	for _, key := range unionKeys(preferred, other) {
		pv, pok := field(preferred, key)
		ov, ook := field(other, key)

		switch {
		case !utils.IsEmpty(pv):
			out.Payload[key] = pv
		case !utils.IsEmpty(ov):
			out.Payload[key] = ov
		case pok:
			out.Payload[key] = pv
		case ook:
			out.Payload[key] = ov
		}
	}

	out.Provenance = ProvenanceNone
	return out
}

// SameRecord reports whether two records carry the same occurrence time and
// payload. Numeric values compare after widening.
func SameRecord(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return false
	}
	if len(a.Payload) != len(b.Payload) {
		return false
	}
	for k, av := range a.Payload {
		bv, ok := b.Payload[k]
		if !ok || !utils.Equal(av, bv) {
			return false
		}
	}
	return true
}

func field(rec *Record, key string) (any, bool) {
	if rec == nil || rec.Payload == nil {
		return nil, false
	}
	v, ok := rec.Payload[key]
	return v, ok
}

func unionKeys(a, b *Record) []string {
	set := make(IdentitySet)
	for _, rec := range []*Record{a, b} {
		if rec == nil {
			continue
		}
		for k := range rec.Payload {
			set.Add(k)
		}
	}
	return set.Sorted()
}
