package recordstore

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"record-sync/core/database"
	"record-sync/core/reconcile"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T, cfg Config) (*Store, *gorm.DB) {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)

	table := cfg.Table
	if table == "" {
		table = "records"
	}
	require.NoError(t, db.Table(table).AutoMigrate(&Row{}))

	return New(db, cfg, zap.NewNop()), db
}

// setupMockDB creates a mock GORM DB for testing.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func at(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC)
}

func TestStore_Check(t *testing.T) {
	t.Run("Provisioned", func(t *testing.T) {
		s, _ := setupSQLite(t, Config{})
		assert.Equal(t, "records", s.Table())
		assert.NoError(t, s.Check(context.Background()))
	})

	t.Run("MissingTable", func(t *testing.T) {
		s, _ := setupSQLite(t, Config{})
		s.table = "nope"
		err := s.Check(context.Background())
		assert.ErrorIs(t, err, reconcile.ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("MissingColumn", func(t *testing.T) {
		s, db := setupSQLite(t, Config{Table: "partial"})
		assert.Equal(t, "partial", s.Table())
		require.NoError(t, db.Exec("ALTER TABLE partial DROP COLUMN ingested_at").Error)
		err := s.Check(context.Background())
		assert.ErrorIs(t, err, reconcile.ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "ingested_at")
	})
}

func TestStore_WriteAndLoad(t *testing.T) {
	s, _ := setupSQLite(t, Config{IdentityPrefix: "t3_", InsertChunk: 2, ReadChunk: 2})
	ctx := context.Background()

	records := []reconcile.Record{
		{Identity: "aaa", OccurredAt: at(10), Payload: reconcile.Payload{"title": "first", "score": 3}},
		{Identity: "bbb", OccurredAt: at(11), Payload: reconcile.Payload{"title": "second"}},
		{Identity: "ccc", OccurredAt: at(12)},
	}

	n, err := s.WriteBatch(ctx, "reddit", records)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.WriteBatch(ctx, "reddit", records)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-submitting a batch is a no-op")

	_, err = s.WriteBatch(ctx, "hn", []reconcile.Record{{Identity: "aaa", OccurredAt: at(1)}})
	require.NoError(t, err, "uniqueness is scoped by source")

	ids, err := s.LoadIdentities(ctx, "reddit")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, ids.Sorted())

	all, err := s.LoadAll(ctx, "reddit")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "aaa", all[0].Identity)
	assert.Equal(t, at(10), all[0].OccurredAt)
	assert.Equal(t, reconcile.Payload{"title": "first", "score": 3.0}, all[0].Payload)
	assert.Equal(t, reconcile.ProvenanceRelationalStore, all[0].Provenance)
	require.NotNil(t, all[0].IngestedAt)

	var stored Row
	require.NoError(t, s.db.Table("records").Where("source = ? AND identity = ?", "reddit", "t3_aaa").First(&stored).Error)
	assert.Equal(t, "t3_aaa", stored.Identity, "stored identity carries the prefix")
}

func TestStore_FetchByIdentities(t *testing.T) {
	s, _ := setupSQLite(t, Config{ReadChunk: 1})
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, "reddit", []reconcile.Record{
		{Identity: "a", OccurredAt: at(1)},
		{Identity: "b", OccurredAt: at(2)},
	})
	require.NoError(t, err)

	got, err := s.FetchByIdentities(ctx, "reddit", []string{"a", "missing", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = s.FetchByIdentities(ctx, "hn", []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_UpdateBatch(t *testing.T) {
	s, _ := setupSQLite(t, Config{})
	ctx := context.Background()

	_, err := s.WriteBatch(ctx, "reddit", []reconcile.Record{
		{Identity: "a", OccurredAt: at(1), Payload: reconcile.Payload{"title": ""}},
	})
	require.NoError(t, err)

	n, err := s.UpdateBatch(ctx, "reddit", []reconcile.Record{
		{Identity: "a", OccurredAt: at(2), Payload: reconcile.Payload{"title": "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.FetchByIdentities(ctx, "reddit", []string{"a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, at(2), got[0].OccurredAt)
	assert.Equal(t, "Hello", got[0].Payload["title"])

	ids, err := s.LoadIdentities(ctx, "reddit")
	require.NoError(t, err)
	assert.Len(t, ids, 1, "update never duplicates an identity")
}

func TestStore_NonCanonicalStoredIdentities(t *testing.T) {
	s, db := setupSQLite(t, Config{IdentityPrefix: "t3_"})
	ctx := context.Background()

	for i, identity := range []string{"abc", "T3_DEF"} {
		require.NoError(t, db.Table("records").Create(&Row{
			Source:     "reddit",
			Identity:   identity,
			OccurredAt: at(i + 1),
			Payload:    `{"title":"old"}`,
			IngestedAt: at(i + 1),
		}).Error)
	}

	ids, err := s.LoadIdentities(ctx, "reddit")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"abc", "def"}, ids.Sorted())

	got, err := s.FetchByIdentities(ctx, "reddit", []string{"abc", "def"})
	require.NoError(t, err)
	assert.Len(t, got, 2, "rows stored without the canonical prefix are fetched")

	n, err := s.UpdateBatch(ctx, "reddit", []reconcile.Record{
		{Identity: "def", OccurredAt: at(5), Payload: reconcile.Payload{"title": "new"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inserted, err := s.WriteBatch(ctx, "reddit", []reconcile.Record{{Identity: "abc", OccurredAt: at(1)}})
	require.NoError(t, err)
	assert.Zero(t, inserted, "existing row is matched by its stored form")

	var rows []Row
	require.NoError(t, db.Table("records").Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "abc", rows[0].Identity)
	assert.Equal(t, "T3_DEF", rows[1].Identity)
	assert.JSONEq(t, `{"title":"new"}`, rows[1].Payload)

	t.Run("UnindexedSourceStreamsFirst", func(t *testing.T) {
		fresh := New(db, Config{IdentityPrefix: "t3_"}, zap.NewNop())
		got, err := fresh.FetchByIdentities(ctx, "reddit", []string{"def"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "def", got[0].Identity)
	})

	t.Run("CanonicalIdentityIsNotNormalizedAgain", func(t *testing.T) {
		_, err := s.WriteBatch(ctx, "hn", []reconcile.Record{{Identity: "t3_x", OccurredAt: at(1)}})
		require.NoError(t, err)

		var row Row
		require.NoError(t, db.Table("records").Where("source = ?", "hn").First(&row).Error)
		assert.Equal(t, "t3_t3_x", row.Identity)
	})
}

func TestStore_WriteBatchRollsBack(t *testing.T) {
	s, db := setupSQLite(t, Config{InsertChunk: 1})

	calls := 0
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_second", func(tx *gorm.DB) {
		calls++
		if calls == 2 {
			_ = tx.AddError(errors.New("constraint violated"))
		}
	}))

	_, err := s.WriteBatch(context.Background(), "reddit", []reconcile.Record{
		{Identity: "a", OccurredAt: at(1)},
		{Identity: "b", OccurredAt: at(2)},
		{Identity: "c", OccurredAt: at(3)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrBatchWriteFailed)

	var count int64
	require.NoError(t, db.Table("records").Count(&count).Error)
	assert.Equal(t, int64(0), count, "no row of a failed batch survives")
}

func TestStore_MalformedPayload(t *testing.T) {
	s, db := setupSQLite(t, Config{})
	ctx := context.Background()

	require.NoError(t, db.Table("records").Create(&Row{
		Source:     "reddit",
		Identity:   "broken",
		OccurredAt: at(1),
		Payload:    "{not json",
		IngestedAt: at(1),
	}).Error)

	all, err := s.LoadAll(ctx, "reddit")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].Payload)

	ids, err := s.LoadIdentities(ctx, "reddit")
	require.NoError(t, err)
	assert.True(t, ids.Has("broken"))
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	s, _ := setupSQLite(t, Config{})
	_, err := s.WriteBatch(context.Background(), "reddit", []reconcile.Record{{Identity: "a"}})
	assert.ErrorIs(t, err, reconcile.ErrInvalidRecord)
}

func TestStore_ExportImport(t *testing.T) {
	s, db := setupSQLite(t, Config{})
	ctx := context.Background()

	var recs []reconcile.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, reconcile.Record{Identity: fmt.Sprintf("id-%d", i), OccurredAt: at(i + 1), Payload: reconcile.Payload{"n": i}})
	}
	_, err := s.WriteBatch(ctx, "reddit", recs)
	require.NoError(t, err)
	_, err = s.WriteBatch(ctx, "hn", recs[:1])
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := s.Export(ctx, "reddit", &buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = s.WriteBatch(ctx, "reddit", []reconcile.Record{{Identity: "late", OccurredAt: at(9)}})
	require.NoError(t, err)
	_, err = s.UpdateBatch(ctx, "reddit", []reconcile.Record{{Identity: "id-0", OccurredAt: at(1), Payload: reconcile.Payload{"n": 99}}})
	require.NoError(t, err)

	n, err = s.Import(ctx, "reddit", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	ids, err := s.LoadIdentities(ctx, "reddit")
	require.NoError(t, err)
	assert.Equal(t, []string{"id-0", "id-1", "id-2", "id-3", "id-4"}, ids.Sorted())

	got, err := s.FetchByIdentities(ctx, "reddit", []string{"id-0"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Payload["n"])

	var hn int64
	require.NoError(t, db.Table("records").Where("source = ?", "hn").Count(&hn).Error)
	assert.Equal(t, int64(1), hn, "import only touches its own source")
}

func TestStore_SQLShape(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, Config{Table: "records"}, zap.NewNop())

	t.Run("InsertIgnoresDuplicates", func(t *testing.T) {
		mock.ExpectQuery("SELECT .*`identity`.* FROM `records` WHERE source = \\?").
			WillReturnRows(sqlmock.NewRows([]string{"id", "identity", "occurred_at"}))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `records` .* ON DUPLICATE KEY UPDATE").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		n, err := s.WriteBatch(context.Background(), "reddit", []reconcile.Record{{Identity: "a", OccurredAt: at(1)}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateOverwritesPayload", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `records` .* ON DUPLICATE KEY UPDATE `occurred_at`=VALUES\\(`occurred_at`\\),`payload`=VALUES\\(`payload`\\)").
			WillReturnResult(sqlmock.NewResult(1, 2))
		mock.ExpectCommit()

		n, err := s.UpdateBatch(context.Background(), "reddit", []reconcile.Record{{Identity: "a", OccurredAt: at(1)}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `records`").WillReturnError(errors.New("deadlock found"))
		mock.ExpectRollback()

		_, err := s.WriteBatch(context.Background(), "reddit", []reconcile.Record{{Identity: "a", OccurredAt: at(1)}})
		assert.ErrorIs(t, err, reconcile.ErrBatchWriteFailed)
		assert.True(t, reconcile.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FetchFiltersBySource", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "source", "identity", "occurred_at", "payload", "ingested_at"}).
			AddRow(1, "reddit", "a", at(1), `{"title":"x"}`, at(2))
		mock.ExpectQuery("SELECT \\* FROM `records` WHERE source = \\? AND identity IN \\(\\?,\\?\\) ORDER BY id").
			WithArgs("reddit", "a", "b").
			WillReturnRows(rows)

		got, err := s.FetchByIdentities(context.Background(), "reddit", []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "x", got[0].Payload["title"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Classify(t *testing.T) {
	s := New(nil, Config{}, zap.NewNop())

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"BadConn", fmt.Errorf("exec: %w", driver.ErrBadConn), reconcile.ErrStoreUnavailable},
		{"Deadline", context.DeadlineExceeded, reconcile.ErrStoreUnavailable},
		{"Canceled", context.Canceled, reconcile.ErrCanceled},
		{"Other", errors.New("duplicate entry"), reconcile.ErrBatchWriteFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.classify("write", reconcile.ErrBatchWriteFailed, tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
