package reconcile

import (
	"fmt"
	"time"
)

// Config holds the sync section of the configuration.
type Config struct {
	// BatchSize is the number of identities per write batch.
	BatchSize int `mapstructure:"batch_size" default:"100"`
	// RetryCount is the number of retries per failed batch.
	RetryCount int `mapstructure:"retry_count" default:"3"`
	// BaseBackoffMS is the first retry delay in milliseconds.
	BaseBackoffMS int `mapstructure:"base_backoff_ms" default:"200"`
	// MaxBackoffMS caps the retry delay in milliseconds.
	MaxBackoffMS int `mapstructure:"max_backoff_ms" default:"5000"`
	// Workers bounds concurrent relational batch writes.
	Workers int `mapstructure:"workers" default:"4"`
	// Precedence selects the winning store on field conflicts (relational, file).
	Precedence string `mapstructure:"precedence" default:"relational"`
	// DryRun computes the run without writing.
	DryRun bool `mapstructure:"dry_run" default:"false"`
	// LockDir holds the per-source run locks.
	LockDir string `mapstructure:"lock_dir" default:"data/locks"`
}

// Options are the validated run options of an Executor.
type Options struct {
	BatchSize      int
	Workers        int
	Retry          RetryPolicy
	Precedence     Precedence
	DryRun         bool
	BackupEnabled  bool
	BackupRequired bool
}

// Options converts the configuration into run options.
func (c Config) Options() (Options, error) {
	p, err := ParsePrecedence(c.Precedence)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		BatchSize:  c.BatchSize,
		Workers:    c.Workers,
		Precedence: p,
		DryRun:     c.DryRun,
		Retry: RetryPolicy{
			Attempts:    c.RetryCount,
			BaseBackoff: time.Duration(c.BaseBackoffMS) * time.Millisecond,
			MaxBackoff:  time.Duration(c.MaxBackoffMS) * time.Millisecond,
		},
		BackupEnabled:  true,
		BackupRequired: true,
	}
	return opts, opts.Validate()
}

// Validate checks option bounds.
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	}
	if o.Retry.Attempts < 0 {
		return fmt.Errorf("retry count must not be negative, got %d", o.Retry.Attempts)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	return nil
}
