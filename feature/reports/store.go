package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"record-sync/core/reconcile"
)

// fileLayout names report files so lexical order is chronological.
const fileLayout = "20060102T150405.000000000Z"

// ErrNotFound is returned when a source has no persisted report.
var ErrNotFound = errors.New("report not found")

// Entry describes one persisted report.
type Entry struct {
	Source  string            `json:"source"`
	File    string            `json:"file"`
	Outcome reconcile.Outcome `json:"outcome"`
	DryRun  bool              `json:"dryRun"`
}

// Store persists run reports as JSON files under <dir>/<source>/.
type Store struct {
	dir string
}

// NewStore creates a report store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes report and returns the file path.
func (s *Store) Save(report *reconcile.Report) (string, error) {
	if report == nil {
		return "", errors.New("nil report")
	}
	if !validSource(report.Source) {
		return "", fmt.Errorf("invalid source %q", report.Source)
	}

	dir := filepath.Join(s.dir, report.Source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	target := filepath.Join(dir, report.Timestamp.UTC().Format(fileLayout)+".json")
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to store report: %w", err)
	}
	return target, nil
}

// List returns every persisted report, grouped by source and newest first
// within a source. An empty source lists all sources.
func (s *Store) List(source string) ([]Entry, error) {
	sources, err := s.sources(source)
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	for _, src := range sources {
		files, err := s.files(src)
		if err != nil {
			return nil, err
		}
		for i := len(files) - 1; i >= 0; i-- {
			report, err := s.read(src, files[i])
			if err != nil {
				continue
			}
			entries = append(entries, Entry{
				Source:  src,
				File:    files[i],
				Outcome: report.Outcome,
				DryRun:  report.DryRun,
			})
		}
	}
	return entries, nil
}

// Latest returns the newest report of source.
func (s *Store) Latest(source string) (*reconcile.Report, error) {
	if !validSource(source) {
		return nil, ErrNotFound
	}
	files, err := s.files(source)
	if err != nil {
		return nil, err
	}
	for i := len(files) - 1; i >= 0; i-- {
		if report, err := s.read(source, files[i]); err == nil {
			return report, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) sources(source string) ([]string, error) {
	if source != "" {
		if !validSource(source) {
			return nil, nil
		}
		return []string{source}, nil
	}

	dirs, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	var out []string
	for _, d := range dirs {
		if d.IsDir() {
			out = append(out, d.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// files returns the report files of source in chronological order.
func (s *Store) files(source string) ([]string, error) {
	dirEntries, err := os.ReadDir(filepath.Join(s.dir, source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	var files []string
	for _, e := range dirEntries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) read(source, file string) (*reconcile.Report, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, source, file))
	if err != nil {
		return nil, err
	}
	var report reconcile.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func validSource(source string) bool {
	return source != "" && source != "." && source != ".." && !strings.ContainsAny(source, `/\`)
}
