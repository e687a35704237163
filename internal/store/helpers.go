package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// ErrDSNNotSet is returned by database-backed stores opened without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// openDB opens driver at dsn, verifies the connection and applies the schema.
func openDB(driver, dsn, migrations string, tune ...func(*sql.DB)) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s submissions database: %w", driver, err)
	}
	for _, fn := range tune {
		fn(db)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		slog.Error("openDB: ping failed", "driver", driver, "error", err)
		return nil, fmt.Errorf("connecting to %s submissions database: %w", driver, err)
	}
	if _, err := db.Exec(migrations); err != nil {
		db.Close()
		slog.Error("openDB: schema migration failed", "driver", driver, "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// scanSubmissions reads (submitted_at, client_ip, data) rows.
func scanSubmissions(rows *sql.Rows) ([]models.SubmissionRecord, error) {
	var records []models.SubmissionRecord
	for rows.Next() {
		var (
			ts   time.Time
			ip   string
			data []byte
		)
		if err := rows.Scan(&ts, &ip, &data); err != nil {
			return nil, fmt.Errorf("failed to scan submission row: %w", err)
		}
		rec := models.SubmissionRecord{Timestamp: ts, ClientIP: ip}
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to decode submission data: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	return records, nil
}
