package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, payload Payload) Record {
	return Record{Identity: id, OccurredAt: testAt, Payload: payload}
}

func testOptions() Options {
	return Options{
		BatchSize: 2,
		Workers:   2,
		Retry:     RetryPolicy{Attempts: 3},
	}
}

type stubBackup struct {
	calls int
	err   error
}

func (b *stubBackup) Snapshot(ctx context.Context, source string) (*BackupHandle, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &BackupHandle{ID: "snap-1", Source: source, Dir: "backups/" + source}, nil
}

func newTestExecutor(left, right *memStore, opts Options) *Executor {
	return NewExecutor(left, right, opts, zap.NewNop())
}

func TestExecutor_DisjointStores(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", Payload{"v": 1}), rec("b", Payload{"v": 2}))
	right := newMemStore("relational", ProvenanceRelationalStore, rec("c", Payload{"v": 3}), rec("d", Payload{"v": 4}))

	report, err := newTestExecutor(left, right, testOptions()).Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, Writes{ToRight: 2, ToLeft: 2}, report.Writes)
	assert.Equal(t, Totals{Left: 2, Right: 2, LeftOnly: 2, RightOnly: 2, Both: 0}, report.Totals)
	assert.Equal(t, 0, report.ConflictsResolved)
	assert.Equal(t, 4, left.size())
	assert.Equal(t, 4, right.size())
}

func TestExecutor_ResolvesConflicts(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", Payload{"title": "", "score": 5}))
	right := newMemStore("relational", ProvenanceRelationalStore, rec("a", Payload{"title": "Hello", "score": 7}))

	report, err := newTestExecutor(left, right, testOptions()).Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConflictsResolved)
	assert.Equal(t, Writes{}, report.Writes)

	got, ok := left.get("a")
	require.True(t, ok)
	assert.Equal(t, Payload{"title": "Hello", "score": 7}, got.Payload)
	assert.Equal(t, 1, left.updateCalls)
	assert.Equal(t, 0, right.updateCalls, "relational side already matched the resolution")
}

func TestExecutor_EqualRecordsUntouched(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", Payload{"score": 7.0}))
	right := newMemStore("relational", ProvenanceRelationalStore, rec("a", Payload{"score": 7}))

	report, err := newTestExecutor(left, right, testOptions()).Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, 0, report.ConflictsResolved)
	assert.Equal(t, 0, left.updateCalls)
	assert.Equal(t, 0, right.updateCalls)
}

func TestExecutor_DryRun(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil), rec("c", Payload{"t": "x"}))
	right := newMemStore("relational", ProvenanceRelationalStore, rec("b", nil), rec("c", Payload{"t": "y"}))
	backup := &stubBackup{}

	opts := testOptions()
	opts.DryRun = true
	opts.BackupEnabled = true
	exec := newTestExecutor(left, right, opts)
	exec.Backup = backup

	report, err := exec.Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, Writes{ToRight: 1, ToLeft: 1}, report.Writes)
	assert.Equal(t, 1, report.ConflictsResolved)
	assert.Equal(t, 0, backup.calls, "dry run must not snapshot")

	assert.Equal(t, 2, left.size())
	assert.Equal(t, 2, right.size())
	assert.Zero(t, left.writeCalls+left.updateCalls+right.writeCalls+right.updateCalls)
}

func TestExecutor_Idempotent(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", Payload{"t": "x"}), rec("c", Payload{"t": ""}))
	right := newMemStore("relational", ProvenanceRelationalStore, rec("b", nil), rec("c", Payload{"t": "y"}))
	exec := newTestExecutor(left, right, testOptions())

	_, err := exec.Run(context.Background(), "reddit")
	require.NoError(t, err)

	second, err := exec.Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, Writes{}, second.Writes)
	assert.Equal(t, 0, second.ConflictsResolved)
	assert.Equal(t, OutcomeCompleted, second.Outcome)
	assert.Equal(t, Totals{Left: 3, Right: 3, Both: 3}, second.Totals)
}

func TestExecutor_RetriesTransientWriteFailures(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil), rec("b", nil))
	right := newMemStore("relational", ProvenanceRelationalStore)
	right.failWrites = 2

	opts := testOptions()
	opts.Workers = 1
	report, err := newTestExecutor(left, right, opts).Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Writes.ToRight)
	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, 3, right.writeCalls)
}

func TestExecutor_SkipsAfterRetriesExhausted(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil), rec("b", nil), rec("c", nil))
	right := newMemStore("relational", ProvenanceRelationalStore, rec("z", nil))
	right.failWrites = -1

	opts := testOptions()
	opts.Retry.Attempts = 2
	report, err := newTestExecutor(left, right, opts).Run(context.Background(), "reddit")
	require.NoError(t, err, "a failing batch must not fail the run")

	assert.Equal(t, OutcomeCompletedWithSkips, report.Outcome)
	assert.Equal(t, 0, report.Writes.ToRight)
	assert.Equal(t, 1, report.Writes.ToLeft)
	assert.Equal(t, 3, report.Skipped)
	// two batches ({a,b} and {c}), three attempts each
	assert.Equal(t, 6, right.writeCalls)

	var ids []string
	for _, s := range report.SkippedIdentities {
		ids = append(ids, s.Identity)
		assert.Equal(t, PhaseCopyingLeftToRight, s.Phase)
		assert.Contains(t, s.Reason, ErrBatchWriteFailed.Error())
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestExecutor_SkipsInvalidRecords(t *testing.T) {
	bad := Record{Identity: "bad", Payload: Payload{"t": "no timestamp"}}
	left := newMemStore("ledger", ProvenanceFileStore, rec("good", nil), bad)
	right := newMemStore("relational", ProvenanceRelationalStore)

	report, err := newTestExecutor(left, right, testOptions()).Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Writes.ToRight)
	require.Len(t, report.SkippedIdentities, 1)
	assert.Equal(t, "bad", report.SkippedIdentities[0].Identity)
	_, ok := right.get("bad")
	assert.False(t, ok)
}

func TestExecutor_UnresolvableConflict(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, Record{Identity: "a", Payload: Payload{"t": "x"}})
	right := newMemStore("relational", ProvenanceRelationalStore, Record{Identity: "a", Payload: Payload{"t": "y"}})

	report, err := newTestExecutor(left, right, testOptions()).Run(context.Background(), "reddit")
	require.NoError(t, err)

	require.Len(t, report.SkippedIdentities, 1)
	assert.Contains(t, report.SkippedIdentities[0].Reason, ErrIdentityConflictUnresolved.Error())
	assert.Equal(t, 0, report.ConflictsResolved)
	assert.Equal(t, 0, left.updateCalls+right.updateCalls)
}

func TestExecutor_StoreUnavailableFails(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil))
	right := newMemStore("relational", ProvenanceRelationalStore)
	right.checkErr = NewStoreError("relational", "check", ErrStoreUnavailable, errors.New("connection refused"))

	report, err := newTestExecutor(left, right, testOptions()).Run(context.Background(), "reddit")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	require.NotNil(t, report)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Contains(t, report.Error, "store unavailable")
	assert.Equal(t, 0, right.writeCalls)
}

func TestExecutor_Backup(t *testing.T) {
	t.Run("TakenBeforeWrites", func(t *testing.T) {
		left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil))
		right := newMemStore("relational", ProvenanceRelationalStore)
		backup := &stubBackup{}

		opts := testOptions()
		opts.BackupEnabled, opts.BackupRequired = true, true
		exec := newTestExecutor(left, right, opts)
		exec.Backup = backup

		report, err := exec.Run(context.Background(), "reddit")
		require.NoError(t, err)
		assert.Equal(t, 1, backup.calls)
		require.NotNil(t, report.Backup)
		assert.Equal(t, "snap-1", report.Backup.ID)
	})

	t.Run("RequiredFailureIsFatal", func(t *testing.T) {
		left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil))
		right := newMemStore("relational", ProvenanceRelationalStore)

		opts := testOptions()
		opts.BackupEnabled, opts.BackupRequired = true, true
		exec := newTestExecutor(left, right, opts)
		exec.Backup = &stubBackup{err: errors.New("disk full")}

		report, err := exec.Run(context.Background(), "reddit")
		assert.ErrorIs(t, err, ErrBackupFailed)
		assert.Equal(t, OutcomeFailed, report.Outcome)
		assert.Equal(t, 0, right.size())
	})

	t.Run("OptionalFailureContinues", func(t *testing.T) {
		left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil))
		right := newMemStore("relational", ProvenanceRelationalStore)

		opts := testOptions()
		opts.BackupEnabled = true
		exec := newTestExecutor(left, right, opts)
		exec.Backup = &stubBackup{err: errors.New("disk full")}

		report, err := exec.Run(context.Background(), "reddit")
		require.NoError(t, err)
		assert.Nil(t, report.Backup)
		assert.Equal(t, 1, right.size())
	})
}

func TestExecutor_CancellationAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	left := newMemStore("ledger", ProvenanceFileStore, rec("a", nil), rec("b", nil), rec("c", nil))
	right := newMemStore("relational", ProvenanceRelationalStore)
	right.afterWrite = cancel

	opts := testOptions()
	opts.BatchSize = 1
	opts.Workers = 1
	report, err := newTestExecutor(left, right, opts).Run(ctx, "reddit")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Writes.ToRight)
	assert.Equal(t, 1, right.size(), "committed batch stays committed")
	assert.Equal(t, ErrCanceled.Error(), report.Error)

	var ids []string
	for _, s := range report.SkippedIdentities {
		assert.Equal(t, ErrCanceled.Error(), s.Reason)
		ids = append(ids, s.Identity)
	}
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestExecutor_ParallelRelationalBatches(t *testing.T) {
	var recs []Record
	for i := 0; i < 40; i++ {
		recs = append(recs, rec(fmt.Sprintf("id-%02d", i), Payload{"n": i}))
	}
	left := newMemStore("ledger", ProvenanceFileStore, recs...)
	right := newMemStore("relational", ProvenanceRelationalStore)

	opts := testOptions()
	opts.BatchSize = 3
	opts.Workers = 4
	report, err := newTestExecutor(left, right, opts).Run(context.Background(), "reddit")
	require.NoError(t, err)

	assert.Equal(t, 40, report.Writes.ToRight)
	assert.Equal(t, 40, right.size())
	assert.Equal(t, 14, right.writeCalls)
}

func TestExecutor_InvalidOptions(t *testing.T) {
	left := newMemStore("ledger", ProvenanceFileStore)
	right := newMemStore("relational", ProvenanceRelationalStore)

	opts := testOptions()
	opts.BatchSize = 0
	report, err := newTestExecutor(left, right, opts).Run(context.Background(), "reddit")
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
}
