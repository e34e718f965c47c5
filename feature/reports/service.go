package reports

import (
	"context"

	"record-sync/core/metrics"
	"record-sync/core/reconcile"

	"go.uber.org/zap"
)

// Service runs reconciliations and keeps their reports.
type Service struct {
	left    reconcile.Store
	right   reconcile.Store
	backup  reconcile.Backupper
	opts    reconcile.Options
	guard   *reconcile.RunGuard
	reports *Store
	logger  *zap.Logger
}

// NewService creates a reconciliation service. backup may be nil.
func NewService(left, right reconcile.Store, backup reconcile.Backupper, opts reconcile.Options, guard *reconcile.RunGuard, reports *Store, logger *zap.Logger) *Service {
	return &Service{
		left:    left,
		right:   right,
		backup:  backup,
		opts:    opts,
		guard:   guard,
		reports: reports,
		logger:  logger,
	}
}

// Options returns the default run options of the service.
func (s *Service) Options() reconcile.Options {
	return s.opts
}

// Reconcile runs source under the run guard, then persists and records the
// report. Triggers arriving while the same source is running in the same mode
// share that run's report (shared is true); a trigger in the other mode gets
// reconcile.ErrRunInProgress. A failed run returns its report together with
// the error.
func (s *Service) Reconcile(ctx context.Context, source string, dryRun bool) (report *reconcile.Report, shared bool, err error) {
	return s.guard.Do(ctx, source, reconcile.RunMode(dryRun), func(ctx context.Context) (*reconcile.Report, error) {
		opts := s.opts
		opts.DryRun = dryRun

		exec := reconcile.NewExecutor(s.left, s.right, opts, s.logger)
		exec.Backup = s.backup

		report, runErr := exec.Run(ctx, source)
		if report == nil {
			return nil, runErr
		}

		metrics.Observe(report)
		if path, err := s.reports.Save(report); err != nil {
			s.logger.Warn("Failed to persist report", zap.String("source", source), zap.Error(err))
		} else {
			s.logger.Info("Report saved", zap.String("source", source), zap.String("path", path))
		}
		return report, runErr
	})
}

// Latest returns the newest report of source.
func (s *Service) Latest(source string) (*reconcile.Report, error) {
	return s.reports.Latest(source)
}

// List returns the persisted reports of source, or of every source when empty.
func (s *Service) List(source string) ([]Entry, error) {
	return s.reports.List(source)
}
