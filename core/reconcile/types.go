package reconcile

import (
	"sort"
	"time"
)

// Provenance identifies which store yielded a record instance during a run.
type Provenance string

const (
	// ProvenanceNone marks records synthesized by the resolver.
	ProvenanceNone Provenance = ""
	// ProvenanceFileStore marks records read from the ledger.
	ProvenanceFileStore Provenance = "file_store"
	// ProvenanceRelationalStore marks records read from the relational store.
	ProvenanceRelationalStore Provenance = "relational_store"
)

// Payload is the open, source-defined field mapping of a record.
// Values are strings, numbers or booleans.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the payload field names in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Record is the unit of reconciliation.
type Record struct {
	// Identity is the canonical, source-scoped unique key.
	Identity string `json:"identity"`

	// OccurredAt is when the represented event happened. It orders the ledger
	// and routes rows to relational partitions.
	OccurredAt time.Time `json:"occurred_at"`

	// Payload holds the source-defined fields.
	Payload Payload `json:"payload"`

	// Provenance is the store this instance was read from.
	Provenance Provenance `json:"-"`

	// IngestedAt is assigned by the relational store on write.
	// It is nil for ledger instances.
	IngestedAt *time.Time `json:"-"`
}

// Validate checks the two fields the engine requires.
func (r Record) Validate() error {
	if r.Identity == "" {
		return &RecordError{Identity: r.Identity, Reason: "empty identity"}
	}
	if r.OccurredAt.IsZero() {
		return &RecordError{Identity: r.Identity, Reason: "missing occurred_at"}
	}
	return nil
}

// IdentitySet is the set of identities observed in one store during one run.
type IdentitySet map[string]struct{}

// NewIdentitySet builds a set from ids.
func NewIdentitySet(ids ...string) IdentitySet {
	set := make(IdentitySet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Add inserts id into the set.
func (s IdentitySet) Add(id string) {
	s[id] = struct{}{}
}

// Has reports whether id is in the set.
func (s IdentitySet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identities in lexical order.
func (s IdentitySet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DifferenceResult partitions the combined identity space of a run.
// The three sets are pairwise disjoint and their union is left ∪ right.
type DifferenceResult struct {
	LeftOnly  IdentitySet
	RightOnly IdentitySet
	Both      IdentitySet
}

// Phase is a state of the sync executor.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAnalyzing          Phase = "analyzing"
	PhaseCopyingLeftToRight Phase = "copying_left_to_right"
	PhaseCopyingRightToLeft Phase = "copying_right_to_left"
	PhaseResolvingConflicts Phase = "resolving_conflicts"
	PhaseReporting          Phase = "reporting"
	PhaseDone               Phase = "done"
	PhaseFailed             Phase = "failed"
)

// SkippedItem records an identity that could not be reconciled in this run.
type SkippedItem struct {
	Identity string `json:"identity" yaml:"identity"`
	Phase    Phase  `json:"phase" yaml:"phase"`
	Reason   string `json:"reason" yaml:"reason"`
}

// Totals are the identity counts computed during Analyzing.
type Totals struct {
	Left      int `json:"left" yaml:"left"`
	Right     int `json:"right" yaml:"right"`
	LeftOnly  int `json:"leftOnly" yaml:"leftOnly"`
	RightOnly int `json:"rightOnly" yaml:"rightOnly"`
	Both      int `json:"both" yaml:"both"`
}

// Writes counts records copied by the two directional phases.
type Writes struct {
	ToRight int `json:"toRight" yaml:"toRight"`
	ToLeft  int `json:"toLeft" yaml:"toLeft"`
}

// Stats accumulates the counters of one run. It is owned by the executor and
// threaded through its phases; workers never mutate it directly.
type Stats struct {
	Source            string
	DryRun            bool
	Phase             Phase
	Totals            Totals
	Writes            Writes
	ConflictsResolved int
	Skipped           []SkippedItem
	Backup            *BackupHandle
	Started           time.Time
	Finished          time.Time
	Fatal             error
	Canceled          bool
}

// BackupHandle is the opaque artifact that drives a restore: a directory on
// disk plus one point-in-time export per store.
type BackupHandle struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id" yaml:"id"`

	// Source is the logical source that was snapshotted.
	Source string `json:"source" yaml:"source"`

	// Dir is the directory holding the exports and the manifest.
	Dir string `json:"dir" yaml:"dir"`

	// Artifacts maps a store name to its export file inside Dir.
	Artifacts map[string]string `json:"artifacts" yaml:"artifacts"`

	// Remote is the object storage prefix the artifacts were mirrored to, if any.
	Remote string `json:"remote,omitempty" yaml:"remote,omitempty"`

	// CreatedAt is the snapshot time.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
