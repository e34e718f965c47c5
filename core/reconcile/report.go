package reconcile

import "time"

// Outcome summarizes how a run ended.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeCompletedWithSkips Outcome = "completedWithSkips"
	OutcomeFailed             Outcome = "failed"
)

// Report is the persisted summary of a run.
type Report struct {
	Timestamp         time.Time     `json:"timestamp" yaml:"timestamp"`
	Source            string        `json:"source" yaml:"source"`
	DryRun            bool          `json:"dryRun" yaml:"dryRun"`
	Totals            Totals        `json:"totals" yaml:"totals"`
	Writes            Writes        `json:"writes" yaml:"writes"`
	ConflictsResolved int           `json:"conflictsResolved" yaml:"conflictsResolved"`
	Skipped           int           `json:"skipped" yaml:"skipped"`
	SkippedIdentities []SkippedItem `json:"skippedIdentities" yaml:"skippedIdentities"`
	ElapsedSeconds    float64       `json:"elapsedSeconds" yaml:"elapsedSeconds"`
	Outcome           Outcome       `json:"outcome" yaml:"outcome"`
	Backup            *BackupHandle `json:"backup,omitempty" yaml:"backup,omitempty"`
	Error             string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// BuildReport aggregates the terminal stats of a run. It has no side effects.
func BuildReport(stats *Stats) Report {
	skipped := make([]SkippedItem, len(stats.Skipped))
	copy(skipped, stats.Skipped)

	r := Report{
		Timestamp:         stats.Finished.UTC(),
		Source:            stats.Source,
		DryRun:            stats.DryRun,
		Totals:            stats.Totals,
		Writes:            stats.Writes,
		ConflictsResolved: stats.ConflictsResolved,
		Skipped:           len(skipped),
		SkippedIdentities: skipped,
		Backup:            stats.Backup,
	}

	if !stats.Started.IsZero() && stats.Finished.After(stats.Started) {
		r.ElapsedSeconds = stats.Finished.Sub(stats.Started).Seconds()
	}

	switch {
	case stats.Fatal != nil:
		r.Outcome = OutcomeFailed
		r.Error = stats.Fatal.Error()
	case len(skipped) > 0:
		r.Outcome = OutcomeCompletedWithSkips
	default:
		r.Outcome = OutcomeCompleted
	}
	if stats.Fatal == nil && stats.Canceled {
		r.Error = ErrCanceled.Error()
	}

	return r
}
