// Package config provides configuration management for record-sync.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file. Defaults come from the `default` struct tags of each
// section and are registered through reflection, so every key can be
// overridden by an environment variable (SYNC_BATCH_SIZE -> sync.batch_size).
//
// # Configuration Structure
//
//   - Server: HTTP server settings (port, API key, reports dir, allowed sources)
//   - Database: MySQL or SQLite connection details
//   - Records: relational table, identity prefix, chunk sizes
//   - Ledger: ledger directory, identity prefix, lock timeout
//   - Sync: batch size, retries, backoff, workers, precedence, dry run, lock dir
//   - Backup: snapshot dir, required/enabled flags, upload, retention
//   - Storage: S3/MinIO credentials and bucket for mirrored backups
//   - Log: level, format and optional rotating file
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Sync.BatchSize)
package config
