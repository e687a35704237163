package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	_ "embed"

	"github.com/BTreeMap/RobotChat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps submissions in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the submissions database file named by the DSN, creating its
// directory and schema as needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, ErrDSNNotSet
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DSN), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("creating submissions database directory: %w", err)
	}
	db, err := openDB("sqlite3", cfg.DSN, sqliteMigrations)
	if err != nil {
		return nil, err
	}
	slog.Debug("NewSQLiteStore: submissions database ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// Save inserts rec and returns the row id.
func (s *SQLiteStore) Save(ctx context.Context, rec models.SubmissionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO submissions (submitted_at, client_ip, data) VALUES (?, ?, ?)`,
		rec.Timestamp.UTC(), rec.ClientIP, string(data))
	if err != nil {
		slog.Error("SQLiteStore Save failed", "error", err)
		return "", fmt.Errorf("failed to insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read submission id: %w", err)
	}
	slog.Debug("SQLiteStore Save succeeded", "id", id)
	return strconv.FormatInt(id, 10), nil
}

// List returns every submission ordered by submission time.
func (s *SQLiteStore) List(ctx context.Context) ([]models.SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT submitted_at, client_ip, data FROM submissions ORDER BY submitted_at, id`)
	if err != nil {
		slog.Error("SQLiteStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
