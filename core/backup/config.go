package backup

// Config holds configuration for pre-run snapshots.
type Config struct {
	// Enabled takes a snapshot before the first destructive write of a run.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Required fails the run when the snapshot cannot be taken.
	Required bool `mapstructure:"required" default:"true"`
	// Dir is where snapshot directories are written.
	Dir string `mapstructure:"dir" default:"data/backups"`
	// Upload mirrors every snapshot to object storage.
	Upload bool `mapstructure:"upload" default:"false"`
	// Prefix is the object key prefix of mirrored snapshots.
	Prefix string `mapstructure:"prefix" default:"backups"`
	// Keep is the number of snapshots retained per source. Zero keeps all.
	Keep int `mapstructure:"keep" default:"10"`
}
