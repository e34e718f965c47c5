package recordstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"record-sync/core/database"
	"record-sync/core/reconcile"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const storeName = "relational"

var conflictColumns = []clause.Column{{Name: "source"}, {Name: "identity"}}

// Store is the relational adapter. It is safe for concurrent use.
type Store struct {
	db          *gorm.DB
	table       string
	norm        reconcile.Normalizer
	insertChunk int
	readChunk   int
	ids         *identityIndex
	log         *zap.Logger
	now         func() time.Time
}

// New creates a relational store on db.
func New(db *gorm.DB, cfg Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	table := cfg.Table
	if table == "" {
		table = "records"
	}
	insertChunk := cfg.InsertChunk
	if insertChunk <= 0 {
		insertChunk = 50
	}
	readChunk := cfg.ReadChunk
	if readChunk <= 0 {
		readChunk = 1000
	}
	return &Store{
		db:          db,
		table:       table,
		norm:        reconcile.Normalizer{Prefix: cfg.IdentityPrefix},
		insertChunk: insertChunk,
		readChunk:   readChunk,
		ids:         newIdentityIndex(),
		log:         log.With(zap.String("store", storeName)),
		now:         time.Now,
	}
}

// Name implements reconcile.Store.
func (s *Store) Name() string { return storeName }

// Provenance implements reconcile.Store.
func (s *Store) Provenance() reconcile.Provenance { return reconcile.ProvenanceRelationalStore }

// Table returns the table the store reads and writes.
func (s *Store) Table() string { return s.table }

// Check pings the database and verifies the table is provisioned.
func (s *Store) Check(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return reconcile.NewStoreError(storeName, "check", reconcile.ErrStoreUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return reconcile.NewStoreError(storeName, "check", reconcile.ErrStoreUnavailable, err)
	}
	if err := database.RequireColumns(s.db.WithContext(ctx), s.table, RequiredColumns); err != nil {
		return reconcile.NewStoreError(storeName, "check", reconcile.ErrStoreUnavailable, err)
	}
	return nil
}

// LoadAll streams every row of source in primary key order.
func (s *Store) LoadAll(ctx context.Context, source string) ([]reconcile.Record, error) {
	var (
		out     []reconcile.Record
		rows    []Row
		builder = newIndexBuilder()
	)
	res := s.db.WithContext(ctx).
		Table(s.table).
		Where("source = ?", source).
		FindInBatches(&rows, s.readChunk, func(tx *gorm.DB, batch int) error {
			for _, row := range rows {
				builder.add(s.norm.Normalize(row.Identity), row.Identity)
				if rec, ok := s.toRecord(row); ok {
					out = append(out, rec)
				}
			}
			return nil
		})
	if res.Error != nil {
		return nil, s.classify("load", reconcile.ErrStoreRead, res.Error)
	}
	s.installIndex(source, builder)
	return out, nil
}

// LoadIdentities streams the identity column of source.
func (s *Store) LoadIdentities(ctx context.Context, source string) (reconcile.IdentitySet, error) {
	ids := make(reconcile.IdentitySet)
	builder := newIndexBuilder()
	var rows []identityRow
	res := s.db.WithContext(ctx).
		Table(s.table).
		Select("id", "identity", "occurred_at").
		Where("source = ?", source).
		FindInBatches(&rows, s.readChunk, func(tx *gorm.DB, batch int) error {
			for _, row := range rows {
				id := s.norm.Normalize(row.Identity)
				builder.add(id, row.Identity)
				if id == "" || row.OccurredAt.IsZero() {
					continue
				}
				ids.Add(id)
			}
			return nil
		})
	if res.Error != nil {
		return nil, s.classify("load_identities", reconcile.ErrStoreRead, res.Error)
	}
	s.installIndex(source, builder)
	return ids, nil
}

// FetchByIdentities implements reconcile.Store. Identities are matched by
// their stored form, so rows written in a non-canonical form are found.
func (s *Store) FetchByIdentities(ctx context.Context, source string, ids []string) ([]reconcile.Record, error) {
	forms, err := s.storedForms(ctx, source, ids)
	if err != nil {
		return nil, err
	}

	out := make([]reconcile.Record, 0, len(ids))
	seen := make(reconcile.IdentitySet, len(ids))
	for start := 0; start < len(ids); start += s.readChunk {
		end := min(start+s.readChunk, len(ids))

		stored := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			stored = append(stored, forms[id])
		}

		var rows []Row
		err := s.db.WithContext(ctx).
			Table(s.table).
			Where("source = ? AND identity IN ?", source, stored).
			Order("id").
			Find(&rows).Error
		if err != nil {
			return nil, s.classify("fetch", reconcile.ErrStoreRead, err)
		}
		for _, row := range rows {
			rec, ok := s.toRecord(row)
			if !ok || seen.Has(rec.Identity) {
				continue
			}
			if _, wanted := forms[rec.Identity]; !wanted {
				continue
			}
			seen.Add(rec.Identity)
			out = append(out, rec)
		}
	}
	return out, nil
}

// WriteBatch inserts records in one transaction, ignoring identities that
// already exist. It returns the number of rows inserted.
func (s *Store) WriteBatch(ctx context.Context, source string, records []reconcile.Record) (int, error) {
	if err := validateAll(records); err != nil {
		return 0, reconcile.NewStoreError(storeName, "write", reconcile.ErrInvalidRecord, err)
	}
	forms, err := s.storedForms(ctx, source, identities(records))
	if err != nil {
		return 0, err
	}
	rows, err := s.toRows(source, records, forms)
	if err != nil {
		return 0, reconcile.NewStoreError(storeName, "write", reconcile.ErrInvalidRecord, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += s.insertChunk {
			chunk := rows[start:min(start+s.insertChunk, len(rows))]
			res := tx.Table(s.table).
				Clauses(clause.OnConflict{Columns: conflictColumns, DoNothing: true}).
				Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
			inserted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, s.classify("write", reconcile.ErrBatchWriteFailed, err)
	}
	s.ids.remember(source, forms)

	s.log.Debug("Batch inserted", zap.String("source", source), zap.Int("rows", len(rows)), zap.Int64("inserted", inserted))
	return int(inserted), nil
}

// UpdateBatch overwrites occurred_at and payload of the given identities in
// one transaction, inserting the ones that are missing.
func (s *Store) UpdateBatch(ctx context.Context, source string, records []reconcile.Record) (int, error) {
	if err := validateAll(records); err != nil {
		return 0, reconcile.NewStoreError(storeName, "update", reconcile.ErrInvalidRecord, err)
	}
	forms, err := s.storedForms(ctx, source, identities(records))
	if err != nil {
		return 0, err
	}
	rows, err := s.toRows(source, records, forms)
	if err != nil {
		return 0, reconcile.NewStoreError(storeName, "update", reconcile.ErrInvalidRecord, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(rows); start += s.insertChunk {
			chunk := rows[start:min(start+s.insertChunk, len(rows))]
			res := tx.Table(s.table).
				Clauses(clause.OnConflict{
					Columns:   conflictColumns,
					DoUpdates: clause.AssignmentColumns([]string{"occurred_at", "payload"}),
				}).
				Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.classify("update", reconcile.ErrBatchWriteFailed, err)
	}
	s.ids.remember(source, forms)
	return len(rows), nil
}

// storedForms resolves canonical ids to the identities stored for source,
// streaming the source once when it was never indexed.
func (s *Store) storedForms(ctx context.Context, source string, ids []string) (map[string]string, error) {
	if forms, ok := s.ids.lookup(source, ids, s.norm.Render); ok {
		return forms, nil
	}
	if _, err := s.LoadIdentities(ctx, source); err != nil {
		return nil, err
	}
	forms, _ := s.ids.lookup(source, ids, s.norm.Render)
	return forms, nil
}

func (s *Store) installIndex(source string, b *indexBuilder) {
	if len(b.duplicates) > 0 {
		s.log.Warn("Rows share a canonical identity, using the oldest",
			zap.String("source", source),
			zap.Strings("stored", b.duplicates),
		)
	}
	s.ids.replace(source, b.stored)
}

func validateAll(records []reconcile.Record) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func identities(records []reconcile.Record) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.Identity
	}
	return ids
}

// toRows converts canonical records into rows keyed by their stored identity.
func (s *Store) toRows(source string, records []reconcile.Record, forms map[string]string) ([]Row, error) {
	ingested := s.now().UTC().Truncate(time.Microsecond)
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		identity, ok := forms[rec.Identity]
		if !ok {
			identity = s.norm.Render(rec.Identity)
		}
		payload := []byte("{}")
		if rec.Payload != nil {
			var err error
			if payload, err = json.Marshal(rec.Payload); err != nil {
				return nil, fmt.Errorf("failed to encode payload of %s: %w", rec.Identity, err)
			}
		}
		rows = append(rows, Row{
			Source:     source,
			Identity:   identity,
			OccurredAt: rec.OccurredAt.UTC().Truncate(time.Microsecond),
			Payload:    string(payload),
			IngestedAt: ingested,
		})
	}
	return rows, nil
}

// toRecord converts a row. A payload that is not valid JSON is logged and the
// record surfaces with an empty payload so LoadAll stays consistent with
// LoadIdentities.
func (s *Store) toRecord(row Row) (reconcile.Record, bool) {
	rec := reconcile.Record{
		Identity:   s.norm.Normalize(row.Identity),
		OccurredAt: row.OccurredAt.UTC().Truncate(time.Microsecond),
		Provenance: reconcile.ProvenanceRelationalStore,
	}
	if rec.Validate() != nil {
		return rec, false
	}
	if !row.IngestedAt.IsZero() {
		ingested := row.IngestedAt.UTC()
		rec.IngestedAt = &ingested
	}

	if row.Payload != "" {
		var payload reconcile.Payload
		if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
			s.log.Warn("Row has malformed payload",
				zap.String("source", row.Source),
				zap.String("identity", row.Identity),
				zap.Error(err),
			)
		} else {
			rec.Payload = payload
		}
	}
	return rec, true
}

// classify maps a database error onto the error taxonomy.
func (s *Store) classify(op string, kind, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = reconcile.ErrCanceled
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		kind = reconcile.ErrStoreUnavailable
	}
	return reconcile.NewStoreError(storeName, op, kind, err)
}
