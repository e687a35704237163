package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
	"github.com/BTreeMap/RobotChat/internal/util"
)

// Constants for file store configuration
const (
	// DefaultDirPermissions defines the default permissions for store directories
	DefaultDirPermissions = 0755
	// DefaultFilePermissions defines the permissions of submission files
	DefaultFilePermissions = 0644
	// DefaultSubmissionsDir is used when no directory is configured
	DefaultSubmissionsDir = "submissions"

	submissionPrefix = "contact-"
	submissionSuffix = ".json"
)

// FileStore writes one pretty-printed JSON file per submission.
// Concurrent saves never touch the same file.
type FileStore struct {
	dir string
}

// NewFileStore creates the store directory if needed.
func NewFileStore(opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultSubmissionsDir
	}
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("FileStore: failed to create directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create submissions directory: %w", err)
	}
	slog.Debug("FileStore: directory verified/created", "dir", dir)
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory records are written to.
func (s *FileStore) Dir() string { return s.dir }

// Save writes rec to a temporary file and renames it into place, so readers never
// observe a partial record. It returns the file name.
func (s *FileStore) Save(ctx context.Context, rec models.SubmissionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	name := submissionFileName(rec.Timestamp)
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+submissionPrefix+"*")
	if err != nil {
		slog.Error("FileStore.Save: create temp failed", "dir", s.dir, "error", err)
		return "", fmt.Errorf("failed to create submission file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write submission file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync submission file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close submission file: %w", err)
	}
	if err := os.Chmod(tmpName, DefaultFilePermissions); err != nil {
		slog.Warn("FileStore.Save: chmod failed", "file", tmpName, "error", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		slog.Error("FileStore.Save: rename failed", "file", name, "error", err)
		return "", fmt.Errorf("failed to store submission file: %w", err)
	}

	slog.Debug("FileStore.Save succeeded", "file", name)
	return name, nil
}

// List reads every submission file in the directory, oldest first.
func (s *FileStore) List(ctx context.Context) ([]models.SubmissionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read submissions directory: %w", err)
	}
	var records []models.SubmissionRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, submissionPrefix) || !strings.HasSuffix(name, submissionSuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var rec models.SubmissionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			slog.Warn("FileStore.List: skipping unreadable file", "file", name, "error", err)
			continue
		}
		records = append(records, rec)
	}
	sortByTimestamp(records)
	return records, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// submissionFileName builds contact-<timestamp>-<hex>.json with the timestamp made safe
// for every filesystem. The random suffix keeps same-instant submissions apart.
func submissionFileName(ts time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-", "+", "_").Replace(ts.UTC().Format(time.RFC3339Nano))
	return submissionPrefix + stamp + "-" + util.GenerateRandomHex(8) + submissionSuffix
}
