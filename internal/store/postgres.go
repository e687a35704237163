package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "embed"

	"github.com/BTreeMap/RobotChat/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool limits
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps submissions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the DSN and ensures the submissions table exists.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, ErrDSNNotSet
	}
	db, err := openDB("postgres", cfg.DSN, postgresMigrations, func(db *sql.DB) {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("NewPostgresStore: submissions table ready")
	return &PostgresStore{db: db}, nil
}

// Save inserts rec and returns the row id.
func (s *PostgresStore) Save(ctx context.Context, rec models.SubmissionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission data: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO submissions (submitted_at, client_ip, data) VALUES ($1, $2, $3) RETURNING id`,
		rec.Timestamp.UTC(), rec.ClientIP, string(data)).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore Save failed", "error", err)
		return "", fmt.Errorf("failed to insert submission: %w", err)
	}
	slog.Debug("PostgresStore Save succeeded", "id", id)
	return strconv.FormatInt(id, 10), nil
}

// List returns every submission ordered by submission time.
func (s *PostgresStore) List(ctx context.Context) ([]models.SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT submitted_at, client_ip, data FROM submissions ORDER BY submitted_at, id`)
	if err != nil {
		slog.Error("PostgresStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
