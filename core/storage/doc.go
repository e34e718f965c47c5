// Package storage provides an abstraction layer for the object storage that
// mirrors backup snapshots off the host.
//
// It wraps the MinIO Go client behind the Client interface, which works against
// both AWS S3 and self-hosted MinIO, and can be mocked in tests (core/storage/mocks).
//
// # Helpers
//
//   - EnsureBucket: creates the backup bucket on first use.
//   - UploadFile / DownloadFile: move a single artifact between disk and the bucket.
//   - ListKeys: lists the artifacts under a backup prefix.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	err = storage.UploadFile(ctx, client, cfg.Storage.Bucket, "backups/reddit/manifest.json", path)
package storage
