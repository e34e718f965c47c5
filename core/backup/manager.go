package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"record-sync/core/reconcile"
	"record-sync/core/storage"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ManifestFile marks a complete snapshot directory.
const ManifestFile = "manifest.json"

// Manifest is the on-disk description of a snapshot.
type Manifest struct {
	reconcile.BackupHandle
	Counts map[string]int `json:"counts"`
}

// Manager snapshots and restores the stores of a source.
type Manager struct {
	dir    string
	stores []reconcile.Exporter
	keep   int
	log    *zap.Logger

	client storage.Client
	bucket string
	prefix string

	now   func() time.Time
	newID func() string
}

// New creates a manager writing snapshots of stores under cfg.Dir.
func New(cfg Config, stores []reconcile.Exporter, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		dir:    cfg.Dir,
		stores: stores,
		keep:   cfg.Keep,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithRemote mirrors snapshots to bucket through client.
func (m *Manager) WithRemote(client storage.Client, bucket string) *Manager {
	m.client = client
	m.bucket = bucket
	return m
}

// Snapshot exports every store of source into a new snapshot directory.
func (m *Manager) Snapshot(ctx context.Context, source string) (*reconcile.BackupHandle, error) {
	id := m.newID()
	created := m.now().UTC()
	name := fmt.Sprintf("%s-%s-%s", source, created.Format("20060102T150405Z"), shortID(id))
	dir := filepath.Join(m.dir, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}

	manifest := Manifest{
		BackupHandle: reconcile.BackupHandle{
			ID:        id,
			Source:    source,
			Dir:       dir,
			Artifacts: make(map[string]string, len(m.stores)),
			CreatedAt: created,
		},
		Counts: make(map[string]int, len(m.stores)),
	}

	for _, store := range m.stores {
		file := store.Name() + ".jsonl"
		n, err := exportTo(ctx, store, source, filepath.Join(dir, file))
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to export %s: %w", store.Name(), err)
		}
		manifest.Artifacts[store.Name()] = file
		manifest.Counts[store.Name()] = n
	}

	if err := writeManifest(dir, &manifest); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	handle := manifest.BackupHandle
	if m.client != nil {
		remote, err := m.upload(ctx, &manifest, name)
		if err != nil {
			m.log.Warn("Failed to mirror backup to object storage", zap.String("backup_id", id), zap.Error(err))
		} else {
			handle.Remote = remote
		}
	}

	m.log.Info("Snapshot written",
		zap.String("source", source),
		zap.String("backup_id", id),
		zap.String("dir", dir),
		zap.Any("counts", manifest.Counts),
	)

	if err := m.prune(ctx, source); err != nil {
		m.log.Warn("Failed to prune old backups", zap.String("source", source), zap.Error(err))
	}
	return &handle, nil
}

// Restore imports every artifact of handle back into its store.
func (m *Manager) Restore(ctx context.Context, handle *reconcile.BackupHandle) error {
	if handle == nil {
		return errors.New("no backup handle")
	}

	for _, store := range m.stores {
		file, ok := handle.Artifacts[store.Name()]
		if !ok {
			return fmt.Errorf("backup %s has no artifact for %s", handle.ID, store.Name())
		}

		f, err := os.Open(filepath.Join(handle.Dir, file))
		if err != nil {
			return fmt.Errorf("failed to open artifact: %w", err)
		}
		n, err := store.Import(ctx, handle.Source, bufio.NewReader(f))
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", store.Name(), err)
		}

		m.log.Info("Store restored",
			zap.String("store", store.Name()),
			zap.String("source", handle.Source),
			zap.String("backup_id", handle.ID),
			zap.Int("records", n),
		)
	}
	return nil
}

// Open loads the handle of the snapshot in dir.
func Open(dir string) (*reconcile.BackupHandle, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	handle := manifest.BackupHandle
	handle.Dir = dir
	return &handle, nil
}

// List returns the complete snapshots of source, oldest first.
func (m *Manager) List(source string) ([]*reconcile.BackupHandle, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var handles []*reconcile.BackupHandle
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), source+"-") {
			continue
		}
		handle, err := Open(filepath.Join(m.dir, e.Name()))
		if err != nil || handle.Source != source {
			continue
		}
		handles = append(handles, handle)
	}

	sort.SliceStable(handles, func(i, j int) bool {
		return handles[i].CreatedAt.Before(handles[j].CreatedAt)
	})
	return handles, nil
}

// Fetch downloads a mirrored snapshot under remote into the backup dir.
func (m *Manager) Fetch(ctx context.Context, remote string) (*reconcile.BackupHandle, error) {
	if m.client == nil {
		return nil, errors.New("object storage is not configured")
	}

	remote = strings.TrimSuffix(remote, "/") + "/"
	keys, err := storage.ListKeys(ctx, m.client, m.bucket, remote)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no backup found under %s", remote)
	}

	dir := filepath.Join(m.dir, path.Base(strings.TrimSuffix(remote, "/")))
	for _, key := range keys {
		if err := storage.DownloadFile(ctx, m.client, m.bucket, key, filepath.Join(dir, path.Base(key))); err != nil {
			return nil, err
		}
	}
	return Open(dir)
}

func (m *Manager) upload(ctx context.Context, manifest *Manifest, name string) (string, error) {
	if err := storage.EnsureBucket(ctx, m.client, m.bucket, ""); err != nil {
		return "", err
	}

	remote := path.Join(m.prefix, manifest.Source, name) + "/"
	files := make([]string, 0, len(manifest.Artifacts)+1)
	for _, file := range manifest.Artifacts {
		files = append(files, file)
	}
	sort.Strings(files)
	// manifest last, so a listed manifest implies a complete upload
	files = append(files, ManifestFile)

	for _, file := range files {
		if err := storage.UploadFile(ctx, m.client, m.bucket, remote+file, filepath.Join(manifest.Dir, file)); err != nil {
			return "", err
		}
	}
	return remote, nil
}

// prune removes the oldest snapshots of source beyond the retention count.
func (m *Manager) prune(ctx context.Context, source string) error {
	if m.keep <= 0 {
		return nil
	}
	handles, err := m.List(source)
	if err != nil {
		return err
	}
	if len(handles) <= m.keep {
		return nil
	}

	for _, h := range handles[:len(handles)-m.keep] {
		if err := os.RemoveAll(h.Dir); err != nil {
			return err
		}
		if m.client != nil {
			remote := path.Join(m.prefix, source, filepath.Base(h.Dir)) + "/"
			keys, err := storage.ListKeys(ctx, m.client, m.bucket, remote)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
					return err
				}
			}
		}
		m.log.Debug("Pruned backup", zap.String("source", source), zap.String("backup_id", h.ID))
	}
	return nil
}

func exportTo(ctx context.Context, store reconcile.Exporter, source, file string) (int, error) {
	f, err := os.Create(file)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)
	n, err := store.Export(ctx, source, w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func writeManifest(dir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
