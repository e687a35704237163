// Package store provides storage backends for RobotChat submission records.
//
// The default backend writes one JSON file per submission. SQLite, PostgreSQL, S3 and an
// in-memory store are selected through the DSN passed to Open.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// Backend names returned by DetectDSNType.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite3"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// SubmissionStore persists completed contact-form submissions.
type SubmissionStore interface {
	// Save durably stores rec and returns an identifier of the stored artifact
	// (file name, row id or object key).
	Save(ctx context.Context, rec models.SubmissionRecord) (string, error)
	// List returns every stored record, oldest first.
	List(ctx context.Context) ([]models.SubmissionRecord, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN       string // sqlite path, postgres DSN, s3://bucket/prefix or "memory"
	Dir       string // directory of the file store
	AWSRegion string
	AWSKey    string
	AWSSecret string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN selects the backend by DSN. An empty DSN selects the file store.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return WithDSN(dsn)
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return WithDSN(dsn)
}

// WithDir sets the directory used by the file store.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// WithAWS sets the region and static credentials of the S3 store. Empty credentials
// fall back to the default AWS credential chain.
func WithAWS(region, accessKey, secretKey string) Option {
	return func(o *Opts) {
		o.AWSRegion = region
		o.AWSKey = accessKey
		o.AWSSecret = secretKey
	}
}

// DetectDSNType classifies a DSN as one of the backend names.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return BackendFile
	case dsn == "memory" || dsn == ":memory:":
		return BackendMemory
	case strings.HasPrefix(dsn, "s3://"):
		return BackendS3
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return BackendPostgres
	default:
		return BackendSQLite
	}
}

// Open creates the backend selected by the options.
func Open(ctx context.Context, opts ...Option) (SubmissionStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	kind := DetectDSNType(cfg.DSN)
	slog.Debug("store.Open: selecting backend", "backend", kind, "dir", cfg.Dir)

	switch kind {
	case BackendFile:
		return NewFileStore(opts...)
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendS3:
		return NewS3Store(ctx, opts...)
	case BackendPostgres:
		return NewPostgresStore(opts...)
	case BackendSQLite:
		return NewSQLiteStore(opts...)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", kind)
	}
}

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records []models.SubmissionRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Save appends a copy of rec.
func (s *InMemoryStore) Save(ctx context.Context, rec models.SubmissionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, cloneRecord(rec))
	return fmt.Sprintf("memory:%d", len(s.records)), nil
}

// List returns copies of every record, oldest first.
func (s *InMemoryStore) List(ctx context.Context) ([]models.SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SubmissionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	return out, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

func cloneRecord(r models.SubmissionRecord) models.SubmissionRecord {
	data := make(map[string]string, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	r.Data = data
	return r
}

func sortByTimestamp(records []models.SubmissionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
