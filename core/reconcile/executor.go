package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Backupper snapshots both stores of a source before destructive writes.
type Backupper interface {
	Snapshot(ctx context.Context, source string) (*BackupHandle, error)
}

// Executor drives one reconciliation run between the ledger (left) and the
// relational store (right).
type Executor struct {
	Left     Store
	Right    Store
	Resolver Resolver
	Backup   Backupper
	Options  Options

	log *zap.Logger
	now func() time.Time
}

// NewExecutor creates an executor. The resolver follows opts.Precedence.
func NewExecutor(left, right Store, opts Options, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		Left:     left,
		Right:    right,
		Resolver: NewResolver(opts.Precedence),
		Options:  opts,
		log:      log,
		now:      time.Now,
	}
}

// Run reconciles source. It always returns a report; the error is non-nil
// only when the run ends in the failed state.
func (e *Executor) Run(ctx context.Context, source string) (*Report, error) {
	stats := &Stats{
		Source:  source,
		DryRun:  e.Options.DryRun,
		Phase:   PhaseIdle,
		Started: e.now(),
	}
	log := e.log.With(zap.String("source", source), zap.Bool("dry_run", stats.DryRun))

	if err := e.Options.Validate(); err != nil {
		return e.fail(stats, log, err)
	}

	e.enter(stats, log, PhaseAnalyzing)
	diff, err := e.analyze(ctx, source, stats, log)
	if err != nil {
		return e.fail(stats, log, err)
	}

	if !stats.DryRun && e.Options.BackupEnabled && e.Backup != nil {
		handle, err := e.Backup.Snapshot(ctx, source)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrBackupFailed, err)
			if e.Options.BackupRequired {
				return e.fail(stats, log, err)
			}
			log.Warn("Backup failed, continuing without snapshot", zap.Error(err))
		} else {
			stats.Backup = handle
			log.Info("Backup created", zap.String("backup_id", handle.ID), zap.String("dir", handle.Dir))
		}
	}

	e.enter(stats, log, PhaseCopyingLeftToRight)
	if stats.DryRun {
		stats.Writes.ToRight = len(diff.LeftOnly)
	} else {
		stats.Writes.ToRight = e.copyPhase(ctx, stats, log, PhaseCopyingLeftToRight, e.Left, e.Right, diff.LeftOnly.Sorted())
	}

	e.enter(stats, log, PhaseCopyingRightToLeft)
	if stats.DryRun {
		stats.Writes.ToLeft = len(diff.RightOnly)
	} else {
		stats.Writes.ToLeft = e.copyPhase(ctx, stats, log, PhaseCopyingRightToLeft, e.Right, e.Left, diff.RightOnly.Sorted())
	}

	e.enter(stats, log, PhaseResolvingConflicts)
	stats.ConflictsResolved = e.resolvePhase(ctx, stats, log, diff.Both.Sorted())

	e.enter(stats, log, PhaseReporting)
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		stats.Canceled = true
	}
	stats.Finished = e.now()
	report := BuildReport(stats)

	e.enter(stats, log, PhaseDone)
	log.Info("Reconciliation finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("to_right", report.Writes.ToRight),
		zap.Int("to_left", report.Writes.ToLeft),
		zap.Int("conflicts_resolved", report.ConflictsResolved),
		zap.Int("skipped", report.Skipped),
	)
	return &report, nil
}

func (e *Executor) enter(stats *Stats, log *zap.Logger, phase Phase) {
	stats.Phase = phase
	log.Debug("Entering phase", zap.String("phase", string(phase)))
}

func (e *Executor) fail(stats *Stats, log *zap.Logger, err error) (*Report, error) {
	failedIn := stats.Phase
	stats.Fatal = err
	stats.Phase = PhaseFailed
	stats.Finished = e.now()
	log.Error("Reconciliation failed", zap.String("phase", string(failedIn)), zap.Error(err))

	report := BuildReport(stats)
	return &report, err
}

// analyze verifies both stores and partitions their identity space.
func (e *Executor) analyze(ctx context.Context, source string, stats *Stats, log *zap.Logger) (DifferenceResult, error) {
	var left, right IdentitySet

	for _, s := range []struct {
		store Store
		dst   *IdentitySet
	}{{e.Left, &left}, {e.Right, &right}} {
		store, dst := s.store, s.dst
		err := e.Options.Retry.Do(ctx, log, store.Name()+".check", func(ctx context.Context) error {
			return store.Check(ctx)
		})
		if err != nil {
			return DifferenceResult{}, err
		}

		err = e.Options.Retry.Do(ctx, log, store.Name()+".load_identities", func(ctx context.Context) error {
			ids, err := store.LoadIdentities(ctx, source)
			if err != nil {
				return err
			}
			*dst = ids
			return nil
		})
		if err != nil {
			return DifferenceResult{}, err
		}
	}

	diff := ComputeDifference(left, right)
	stats.Totals = Totals{
		Left:      len(left),
		Right:     len(right),
		LeftOnly:  len(diff.LeftOnly),
		RightOnly: len(diff.RightOnly),
		Both:      len(diff.Both),
	}
	log.Info("Analysis complete",
		zap.Int("left", stats.Totals.Left),
		zap.Int("right", stats.Totals.Right),
		zap.Int("left_only", stats.Totals.LeftOnly),
		zap.Int("right_only", stats.Totals.RightOnly),
		zap.Int("both", stats.Totals.Both),
	)
	return diff, nil
}

// copyPhase copies one-sided identities from one store to the other and
// returns the number of records written.
func (e *Executor) copyPhase(ctx context.Context, stats *Stats, log *zap.Logger, phase Phase, from, to Store, ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	workers := 1
	if to.Provenance() == ProvenanceRelationalStore {
		workers = e.Options.Workers
	}

	batches := chunk(ids, e.Options.BatchSize)
	results := runBatches(ctx, log, phase, batches, workers, func(ctx context.Context, idx int, ids []string) batchResult {
		return e.copyBatch(ctx, log.With(zap.String("phase", string(phase)), zap.Int("batch", idx)), stats.Source, phase, from, to, ids)
	})

	written := 0
	for _, r := range results {
		written += r.written
		stats.Skipped = append(stats.Skipped, r.skipped...)
	}
	return written
}

func (e *Executor) copyBatch(ctx context.Context, log *zap.Logger, source string, phase Phase, from, to Store, ids []string) batchResult {
	var res batchResult

	var records []Record
	err := e.Options.Retry.Do(ctx, log, from.Name()+".fetch", func(ctx context.Context) error {
		var err error
		records, err = from.FetchByIdentities(ctx, source, ids)
		return err
	})
	if err != nil {
		log.Error("Batch fetch failed, skipping", zap.Int("size", len(ids)), zap.Error(err))
		res.skip(phase, err.Error(), ids...)
		return res
	}

	found := make(IdentitySet, len(records))
	valid := make([]Record, 0, len(records))
	for _, rec := range records {
		found.Add(rec.Identity)
		if err := rec.Validate(); err != nil {
			log.Warn("Invalid record excluded from batch", zap.String("identity", rec.Identity), zap.Error(err))
			res.skip(phase, err.Error(), rec.Identity)
			continue
		}
		valid = append(valid, rec)
	}
	for _, id := range ids {
		if !found.Has(id) {
			res.skip(phase, "missing from "+from.Name(), id)
		}
	}
	if len(valid) == 0 {
		return res
	}

	err = e.Options.Retry.Do(ctx, log, to.Name()+".write", func(ctx context.Context) error {
		n, err := to.WriteBatch(ctx, source, valid)
		if err != nil {
			return err
		}
		res.written = n
		return nil
	})
	if err != nil {
		log.Error("Batch write failed after retries, skipping", zap.Int("size", len(valid)), zap.Error(err))
		for _, rec := range valid {
			res.skip(phase, err.Error(), rec.Identity)
		}
		return res
	}

	log.Debug("Batch committed", zap.Int("written", res.written))
	return res
}

// resolvePhase merges the identities present on both sides and writes the
// resolution back where it differs. It returns the number of identities
// whose resolution changed at least one store (projected in dry-run).
func (e *Executor) resolvePhase(ctx context.Context, stats *Stats, log *zap.Logger, ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	batches := chunk(ids, e.Options.BatchSize)
	results := runBatches(ctx, log, PhaseResolvingConflicts, batches, 1, func(ctx context.Context, idx int, ids []string) batchResult {
		return e.resolveBatch(ctx, log.With(zap.String("phase", string(PhaseResolvingConflicts)), zap.Int("batch", idx)), stats.Source, ids, stats.DryRun)
	})

	resolved := 0
	for _, r := range results {
		resolved += r.resolved
		stats.Skipped = append(stats.Skipped, r.skipped...)
	}
	return resolved
}

func (e *Executor) resolveBatch(ctx context.Context, log *zap.Logger, source string, ids []string, dryRun bool) batchResult {
	const phase = PhaseResolvingConflicts
	var res batchResult

	left, err := e.fetchIndexed(ctx, log, e.Left, source, ids)
	if err != nil {
		res.skip(phase, err.Error(), ids...)
		return res
	}
	right, err := e.fetchIndexed(ctx, log, e.Right, source, ids)
	if err != nil {
		res.skip(phase, err.Error(), ids...)
		return res
	}

	var toLeft, toRight []Record
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		l, lok := left[id]
		r, rok := right[id]
		if !lok || !rok {
			res.skip(phase, "missing from store during resolution", id)
			continue
		}

		resolved := e.Resolver.Resolve(&l, &r)
		leftDiffers := !SameRecord(&resolved, &l)
		rightDiffers := !SameRecord(&resolved, &r)
		if !leftDiffers && !rightDiffers {
			continue
		}
		if err := resolved.Validate(); err != nil {
			log.Warn("Resolved record is invalid", zap.String("identity", id), zap.Error(err))
			res.skip(phase, fmt.Sprintf("%v: %v", ErrIdentityConflictUnresolved, err), id)
			continue
		}

		if leftDiffers {
			toLeft = append(toLeft, resolved)
		}
		if rightDiffers {
			toRight = append(toRight, resolved)
		}
		pending = append(pending, id)
	}

	if dryRun {
		res.resolved = len(pending)
		return res
	}

	failed := make(map[string]string)
	for _, w := range []struct {
		store   Store
		records []Record
	}{{e.Left, toLeft}, {e.Right, toRight}} {
		if len(w.records) == 0 {
			continue
		}
		store, records := w.store, w.records
		err := e.Options.Retry.Do(ctx, log, store.Name()+".update", func(ctx context.Context) error {
			_, err := store.UpdateBatch(ctx, source, records)
			return err
		})
		if err != nil {
			log.Error("Conflict write-back failed after retries", zap.String("store", store.Name()), zap.Error(err))
			for _, rec := range records {
				if _, seen := failed[rec.Identity]; !seen {
					failed[rec.Identity] = err.Error()
				}
			}
		}
	}

	for _, id := range pending {
		if reason, ok := failed[id]; ok {
			res.skip(phase, reason, id)
			continue
		}
		res.resolved++
	}
	return res
}

func (e *Executor) fetchIndexed(ctx context.Context, log *zap.Logger, store Store, source string, ids []string) (map[string]Record, error) {
	var records []Record
	err := e.Options.Retry.Do(ctx, log, store.Name()+".fetch", func(ctx context.Context) error {
		var err error
		records, err = store.FetchByIdentities(ctx, source, ids)
		return err
	})
	if err != nil {
		log.Error("Conflict fetch failed, skipping batch", zap.String("store", store.Name()), zap.Error(err))
		return nil, err
	}

	index := make(map[string]Record, len(records))
	for _, rec := range records {
		index[rec.Identity] = rec
	}
	return index, nil
}
