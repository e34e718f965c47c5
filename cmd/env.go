package cmd

import (
	"context"
	"fmt"

	"record-sync/core/backup"
	"record-sync/core/config"
	"record-sync/core/database"
	"record-sync/core/ledger"
	"record-sync/core/logger"
	"record-sync/core/reconcile"
	"record-sync/core/recordstore"
	"record-sync/core/storage"
	"record-sync/feature/reports"

	"go.uber.org/zap"
)

// env is the wiring shared by every command that touches the stores.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	ledger  *ledger.Store
	records *recordstore.Store
	backups *backup.Manager
	guard   *reconcile.RunGuard
}

// setupEnv loads the configuration and connects both stores. Object storage
// is only contacted when backups are mirrored.
func setupEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	e := &env{
		cfg:     cfg,
		log:     l,
		ledger:  ledger.New(cfg.Ledger, l),
		records: recordstore.New(db, cfg.Records, l),
		guard:   reconcile.NewRunGuard(cfg.Sync.LockDir),
	}
	e.backups = backup.New(cfg.Backup, []reconcile.Exporter{e.ledger, e.records}, l)

	if cfg.Backup.Upload {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
			return nil, fmt.Errorf("failed to prepare backup bucket: %w", err)
		}
		e.backups.WithRemote(client, cfg.Storage.Bucket)
	}

	return e, nil
}

// service builds the reconciliation service for opts.
func (e *env) service(opts reconcile.Options) *reports.Service {
	var backupper reconcile.Backupper
	if e.cfg.Backup.Enabled {
		backupper = e.backups
	}
	return reports.NewService(e.ledger, e.records, backupper, opts, e.guard,
		reports.NewStore(e.cfg.Server.ReportsDir), e.log)
}

// options merges the backup section into the sync run options.
func (e *env) options() (reconcile.Options, error) {
	opts, err := e.cfg.Sync.Options()
	if err != nil {
		return opts, err
	}
	opts.BackupEnabled = e.cfg.Backup.Enabled
	opts.BackupRequired = e.cfg.Backup.Required
	return opts, nil
}
