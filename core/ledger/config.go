package ledger

// Config holds configuration for the JSON Lines ledger.
type Config struct {
	// Dir holds one <source>.jsonl file per logical source.
	Dir string `mapstructure:"dir" default:"data/ledger"`
	// IdentityPrefix is stripped from identities on load and prepended on write.
	IdentityPrefix string `mapstructure:"identity_prefix" default:""`
	// LockTimeoutSeconds bounds the wait for the per-file write lock.
	LockTimeoutSeconds int `mapstructure:"lock_timeout_seconds" default:"10"`
}
