package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"
)

// RunGuard prevents concurrent runs against the same source. In-process
// triggers for a source are collapsed into the run already in flight, and an
// advisory file lock excludes other processes for the run's duration.
type RunGuard struct {
	dir string
	sf  singleflight.Group
}

// NewRunGuard creates a guard keeping its lock files in dir.
func NewRunGuard(dir string) *RunGuard {
	return &RunGuard{dir: dir}
}

// LockPath returns the lock file used for source.
func (g *RunGuard) LockPath(source string) string {
	return filepath.Join(g.dir, source+".run.lock")
}

// Mode is what a guarded call does to a source. Only calls in the same mode
// share an in-flight result.
type Mode string

const (
	ModeRun     Mode = "run"
	ModeDryRun  Mode = "dry-run"
	ModeRestore Mode = "restore"
)

// RunMode returns the mode of a reconciliation run.
func RunMode(dryRun bool) Mode {
	if dryRun {
		return ModeDryRun
	}
	return ModeRun
}

// Do runs fn while holding the run lock of source. Callers that arrive while a
// call for the same source and mode is in flight in this process share its
// result (shared is true). ErrRunInProgress is returned when the lock is held
// elsewhere: by another process, or by an in-flight call in another mode.
func (g *RunGuard) Do(ctx context.Context, source string, mode Mode, fn func(ctx context.Context) (*Report, error)) (report *Report, shared bool, err error) {
	v, err, shared := g.sf.Do(source+"\x00"+string(mode), func() (interface{}, error) {
		if err := os.MkdirAll(g.dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create lock dir: %w", err)
		}

		lock := flock.New(g.LockPath(source))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrRunInProgress, source)
		}
		defer func() { _ = lock.Unlock() }()

		return fn(ctx)
	})

	report, _ = v.(*Report)
	return report, shared, err
}
