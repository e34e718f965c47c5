package reconcile

import (
	"context"
	"io"
)

// Store defines the contract every record store adapter implements.
// The engine never touches a store except through this interface.
type Store interface {
	// Name returns a short, stable name for logs and backup artifacts.
	Name() string

	// Provenance returns the provenance stamped on records this store yields.
	Provenance() Provenance

	// Check verifies the store is reachable and provisioned for use.
	Check(ctx context.Context) error

	// LoadAll reads every record of the source.
	LoadAll(ctx context.Context, source string) ([]Record, error)

	// LoadIdentities returns the identity set of the source. It must be
	// consistent with LoadAll but should avoid materializing payloads.
	LoadIdentities(ctx context.Context, source string) (IdentitySet, error)

	// WriteBatch inserts records, ignoring identities that already exist.
	// The batch is applied entirely or not at all. It returns the number of
	// records newly persisted.
	WriteBatch(ctx context.Context, source string, records []Record) (int, error)

	// UpdateBatch overwrites the records of existing identities. The batch is
	// applied entirely or not at all.
	UpdateBatch(ctx context.Context, source string, records []Record) (int, error)

	// FetchByIdentities returns the records of the given identities.
	// Unknown identities are silently dropped.
	FetchByIdentities(ctx context.Context, source string, ids []string) ([]Record, error)
}

// Exporter is implemented by stores that can take and restore a point-in-time
// copy of a source.
type Exporter interface {
	Name() string
	Export(ctx context.Context, source string, w io.Writer) (int, error)
	Import(ctx context.Context, source string, r io.Reader) (int, error)
}
