package recordstore

// Config holds configuration for the relational record store.
type Config struct {
	// Table is the provisioned table holding every logical source.
	Table string `mapstructure:"table" default:"records"`
	// IdentityPrefix is stripped from identities on load and prepended on write.
	IdentityPrefix string `mapstructure:"identity_prefix" default:""`
	// InsertChunk is the number of rows per INSERT statement inside a batch.
	InsertChunk int `mapstructure:"insert_chunk" default:"50"`
	// ReadChunk is the number of rows per page when streaming a source.
	ReadChunk int `mapstructure:"read_chunk" default:"1000"`
}
