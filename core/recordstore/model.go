package recordstore

import "time"

// Row is the relational representation of a record. The table is provisioned
// externally, partitioned by occurred_at, with UNIQUE(source, identity).
type Row struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Source     string    `gorm:"column:source;size:64;not null;uniqueIndex:idx_source_identity,priority:1"`
	Identity   string    `gorm:"column:identity;size:191;not null;uniqueIndex:idx_source_identity,priority:2"`
	OccurredAt time.Time `gorm:"column:occurred_at;precision:6;not null;index"`
	Payload    string    `gorm:"column:payload;type:text"`
	IngestedAt time.Time `gorm:"column:ingested_at;precision:6;not null"`
}

// identityRow is the projection used to stream the identity space.
type identityRow struct {
	ID         uint64    `gorm:"column:id;primaryKey"`
	Identity   string    `gorm:"column:identity"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

// RequiredColumns lists the columns Check verifies.
var RequiredColumns = []string{"id", "source", "identity", "occurred_at", "payload", "ingested_at"}
