package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"record-sync/core/reconcile"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	storeName     = "ledger"
	maxLineBytes  = 16 << 20
	lockRetryWait = 50 * time.Millisecond
)

// entry is the on-disk shape of a ledger line.
type entry struct {
	Identity   string            `json:"identity"`
	Source     string            `json:"source"`
	OccurredAt time.Time         `json:"occurred_at"`
	Payload    reconcile.Payload `json:"payload"`
}

// Store is the ledger adapter. It is safe for use by one writer per file at a
// time; cross-process exclusion is provided by the lock file.
type Store struct {
	dir         string
	norm        reconcile.Normalizer
	lockTimeout time.Duration
	log         *zap.Logger
}

// New creates a ledger store.
func New(cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := time.Duration(cfg.LockTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		dir:         cfg.Dir,
		norm:        reconcile.Normalizer{Prefix: cfg.IdentityPrefix},
		lockTimeout: timeout,
		log:         log.With(zap.String("store", storeName)),
	}
}

// Name implements reconcile.Store.
func (s *Store) Name() string { return storeName }

// Provenance implements reconcile.Store.
func (s *Store) Provenance() reconcile.Provenance { return reconcile.ProvenanceFileStore }

// Path returns the ledger file of source.
func (s *Store) Path(source string) string {
	return filepath.Join(s.dir, source+".jsonl")
}

// Check verifies the ledger directory exists.
func (s *Store) Check(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return reconcile.NewStoreError(storeName, "check", reconcile.ErrStoreUnavailable, err)
	}
	if !info.IsDir() {
		return reconcile.NewStoreError(storeName, "check", reconcile.ErrStoreUnavailable, fmt.Errorf("%s is not a directory", s.dir))
	}
	return nil
}

// LoadAll implements reconcile.Store.
func (s *Store) LoadAll(ctx context.Context, source string) ([]reconcile.Record, error) {
	if err := validSource(source); err != nil {
		return nil, reconcile.NewStoreError(storeName, "load", reconcile.ErrStoreRead, err)
	}
	records, _, err := s.read(source)
	return records, err
}

// LoadIdentities streams the ledger and keeps identities only. A line counts
// exactly when LoadAll would return it.
func (s *Store) LoadIdentities(ctx context.Context, source string) (reconcile.IdentitySet, error) {
	if err := validSource(source); err != nil {
		return nil, reconcile.NewStoreError(storeName, "load_identities", reconcile.ErrStoreRead, err)
	}

	f, err := s.open(source, "load_identities")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ids := make(reconcile.IdentitySet)
	sc := newScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := s.parse(line, source)
		if err != nil {
			continue
		}
		ids.Add(rec.Identity)

		if lineNo%10000 == 0 && ctx.Err() != nil {
			return nil, reconcile.NewStoreError(storeName, "load_identities", reconcile.ErrCanceled, ctx.Err())
		}
	}
	if err := sc.Err(); err != nil {
		return nil, reconcile.NewStoreError(storeName, "load_identities", reconcile.ErrStoreRead, err)
	}

	return ids, nil
}

// FetchByIdentities implements reconcile.Store.
func (s *Store) FetchByIdentities(ctx context.Context, source string, ids []string) ([]reconcile.Record, error) {
	if err := validSource(source); err != nil {
		return nil, reconcile.NewStoreError(storeName, "fetch", reconcile.ErrStoreRead, err)
	}
	records, _, err := s.read(source)
	if err != nil {
		return nil, err
	}

	want := reconcile.NewIdentitySet(ids...)
	out := make([]reconcile.Record, 0, len(ids))
	for _, rec := range records {
		if want.Has(rec.Identity) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// WriteBatch inserts records whose identity is not yet in the ledger.
func (s *Store) WriteBatch(ctx context.Context, source string, records []reconcile.Record) (int, error) {
	return s.mutate(ctx, source, "write", records, func(existing []reconcile.Record, index map[string]int, rec reconcile.Record) ([]reconcile.Record, bool) {
		if _, ok := index[rec.Identity]; ok {
			return existing, false
		}
		index[rec.Identity] = len(existing)
		return append(existing, rec), true
	})
}

// UpdateBatch overwrites the records of the given identities, inserting the
// ones that are missing.
func (s *Store) UpdateBatch(ctx context.Context, source string, records []reconcile.Record) (int, error) {
	return s.mutate(ctx, source, "update", records, func(existing []reconcile.Record, index map[string]int, rec reconcile.Record) ([]reconcile.Record, bool) {
		if i, ok := index[rec.Identity]; ok {
			existing[i] = rec
			return existing, true
		}
		index[rec.Identity] = len(existing)
		return append(existing, rec), true
	})
}

type mergeFunc func(existing []reconcile.Record, index map[string]int, rec reconcile.Record) ([]reconcile.Record, bool)

// mutate applies a batch under the file lock with a read-merge-sort-rewrite.
func (s *Store) mutate(ctx context.Context, source, op string, batch []reconcile.Record, merge mergeFunc) (int, error) {
	if err := validSource(source); err != nil {
		return 0, reconcile.NewStoreError(storeName, op, reconcile.ErrInvalidRecord, err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	for _, rec := range batch {
		if err := rec.Validate(); err != nil {
			return 0, reconcile.NewStoreError(storeName, op, reconcile.ErrInvalidRecord, err)
		}
	}

	unlock, err := s.lock(ctx, source, op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	existing, malformed, err := s.read(source)
	if err != nil {
		return 0, err
	}

	index := make(map[string]int, len(existing))
	for i, rec := range existing {
		index[rec.Identity] = i
	}

	// Batch identities are canonical already; only Render applies on write.
	changed := 0
	for _, rec := range batch {
		rec.OccurredAt = canonicalTime(rec.OccurredAt)
		rec.Provenance = reconcile.ProvenanceFileStore
		rec.IngestedAt = nil

		var ok bool
		if existing, ok = merge(existing, index, rec); ok {
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}

	sortRecords(existing)
	if err := s.rewrite(source, existing, malformed); err != nil {
		return 0, reconcile.NewStoreError(storeName, op, reconcile.ErrBatchWriteFailed, err)
	}

	s.log.Debug("Ledger rewritten",
		zap.String("source", source),
		zap.String("op", op),
		zap.Int("changed", changed),
		zap.Int("total", len(existing)),
	)
	return changed, nil
}

// lock acquires the exclusive write lock of source within the lock timeout.
func (s *Store) lock(ctx context.Context, source, op string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	fl := flock.New(s.Path(source) + ".lock")
	locked, err := fl.TryLockContext(lockCtx, lockRetryWait)
	if err != nil || !locked {
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, reconcile.NewStoreError(storeName, op, reconcile.ErrStoreUnavailable, fmt.Errorf("failed to lock %s: %w", s.Path(source), err))
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("Failed to release ledger lock", zap.String("source", source), zap.Error(err))
		}
	}, nil
}

func (s *Store) open(source, op string) (*os.File, error) {
	f, err := os.Open(s.Path(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, reconcile.NewStoreError(storeName, op, reconcile.ErrStoreUnavailable, fmt.Errorf("ledger file %s does not exist", s.Path(source)))
		}
		return nil, reconcile.NewStoreError(storeName, op, reconcile.ErrStoreUnavailable, err)
	}
	return f, nil
}

// read parses the ledger of source. Malformed lines are returned verbatim.
// A later line for an identity replaces an earlier one.
func (s *Store) read(source string) ([]reconcile.Record, [][]byte, error) {
	f, err := s.open(source, "read")
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var (
		records   []reconcile.Record
		malformed [][]byte
		index     = make(map[string]int)
	)

	sc := newScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		rec, err := s.parse(line, source)
		if err != nil {
			s.log.Warn("Skipping malformed ledger line",
				zap.String("source", source),
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			malformed = append(malformed, append([]byte(nil), line...))
			continue
		}

		if i, ok := index[rec.Identity]; ok {
			s.log.Warn("Duplicate ledger identity, keeping the later line",
				zap.String("source", source),
				zap.String("identity", rec.Identity),
				zap.Int("line", lineNo),
			)
			records[i] = rec
			continue
		}
		index[rec.Identity] = len(records)
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, reconcile.NewStoreError(storeName, "read", reconcile.ErrStoreRead, err)
	}

	return records, malformed, nil
}

func (s *Store) parse(line []byte, source string) (reconcile.Record, error) {
	var e entry
	if err := json.Unmarshal(line, &e); err != nil {
		return reconcile.Record{}, err
	}

	rec := reconcile.Record{
		Identity:   s.norm.Normalize(e.Identity),
		OccurredAt: canonicalTime(e.OccurredAt),
		Payload:    e.Payload,
		Provenance: reconcile.ProvenanceFileStore,
	}
	if err := rec.Validate(); err != nil {
		return reconcile.Record{}, err
	}
	return rec, nil
}

// rewrite replaces the ledger of source with records followed by the
// preserved malformed lines. The original is only replaced once the new
// content is fully written and synced.
func (s *Store) rewrite(source string, records []reconcile.Record, malformed [][]byte) (err error) {
	path := s.Path(source)

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		line, err := json.Marshal(entry{
			Identity:   s.norm.Render(rec.Identity),
			Source:     source,
			OccurredAt: rec.OccurredAt.UTC(),
			Payload:    rec.Payload,
		})
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", rec.Identity, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write temp file: %w", err)
		}
	}
	for _, line := range malformed {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write temp file: %w", err)
		}
	}

	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("failed to set temp file mode: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// Export copies the ledger of source verbatim to w and returns the number of
// non-blank lines copied.
func (s *Store) Export(ctx context.Context, source string, w io.Writer) (int, error) {
	if err := validSource(source); err != nil {
		return 0, reconcile.NewStoreError(storeName, "export", reconcile.ErrStoreRead, err)
	}

	unlock, err := s.lock(ctx, source, "export")
	if err != nil {
		return 0, err
	}
	defer unlock()

	f, err := s.open(source, "export")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := newScanner(f)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := w.Write(line); err != nil {
			return n, fmt.Errorf("failed to write export: %w", err)
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return n, fmt.Errorf("failed to write export: %w", err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, reconcile.NewStoreError(storeName, "export", reconcile.ErrStoreRead, err)
	}
	return n, nil
}

// Import replaces the ledger of source with the content of r.
func (s *Store) Import(ctx context.Context, source string, r io.Reader) (int, error) {
	if err := validSource(source); err != nil {
		return 0, reconcile.NewStoreError(storeName, "import", reconcile.ErrInvalidRecord, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, reconcile.NewStoreError(storeName, "import", reconcile.ErrStoreUnavailable, err)
	}

	unlock, err := s.lock(ctx, source, "import")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var lines [][]byte
	sc := newScanner(r)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return 0, reconcile.NewStoreError(storeName, "import", reconcile.ErrStoreRead, err)
	}

	if err := s.rewrite(source, nil, lines); err != nil {
		return 0, reconcile.NewStoreError(storeName, "import", reconcile.ErrBatchWriteFailed, err)
	}
	return len(lines), nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

func sortRecords(records []reconcile.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.Identity < b.Identity
	})
}

// canonicalTime matches the precision the relational store keeps.
func canonicalTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

func validSource(source string) error {
	if source == "" || strings.ContainsAny(source, `/\`) || strings.Contains(source, "..") {
		return fmt.Errorf("invalid source name %q", source)
	}
	return nil
}
