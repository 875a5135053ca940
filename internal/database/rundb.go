package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/lightscan/internal/model"
)

// DBFileName is the database file within the data directory.
const DBFileName = "lightscan.db"

// RunDB provides SQLite-based storage for run results.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw prevents creating a new file; mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	-- Runs store complete results as JSON plus columns for listing
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		requested_url TEXT NOT NULL,
		final_url TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		overall_score REAL,
		pass_count INTEGER NOT NULL DEFAULT 0,
		average_count INTEGER NOT NULL DEFAULT 0,
		fail_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		version TEXT,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_requested_url ON runs(requested_url);
	CREATE INDEX IF NOT EXISTS idx_runs_final_url ON runs(final_url);
	CREATE INDEX IF NOT EXISTS idx_runs_fetched_at ON runs(fetched_at);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run result. Saving a run ID twice replaces the earlier
// row.
func (rdb *RunDB) SaveRun(ctx context.Context, run *model.RunResult) error {
	resultJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	summary := model.NewSummary(run)
	var overall sql.NullFloat64
	if run.Scores.Overall != nil {
		overall = sql.NullFloat64{Float64: *run.Scores.Overall, Valid: true}
	}

	query := `
	INSERT INTO runs (run_id, requested_url, final_url, fetched_at, overall_score,
		pass_count, average_count, fail_count, error_count, version, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		requested_url = excluded.requested_url,
		final_url = excluded.final_url,
		fetched_at = excluded.fetched_at,
		overall_score = excluded.overall_score,
		pass_count = excluded.pass_count,
		average_count = excluded.average_count,
		fail_count = excluded.fail_count,
		error_count = excluded.error_count,
		version = excluded.version,
		result_json = excluded.result_json
	`

	_, err = rdb.db.ExecContext(ctx, query,
		run.ID,
		run.RequestedURL,
		run.FinalURL,
		run.FetchedAt.UTC().Format(time.RFC3339Nano),
		overall,
		summary.PassCount,
		summary.AverageCount,
		summary.FailCount,
		summary.ErrorCount,
		run.Version,
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetLatestRun retrieves the most recent run for url, matched against both
// the requested and the final URL. It returns nil when there is none.
func (rdb *RunDB) GetLatestRun(ctx context.Context, url string) (*model.RunResult, error) {
	query := `
	SELECT result_json FROM runs
	WHERE requested_url = ? OR final_url = ?
	ORDER BY fetched_at DESC, id DESC
	LIMIT 1
	`
	return rdb.queryRun(ctx, query, url, url)
}

// GetRunByID retrieves a run by its run ID. It returns nil when there is
// none.
func (rdb *RunDB) GetRunByID(ctx context.Context, runID string) (*model.RunResult, error) {
	query := `
	SELECT result_json FROM runs
	WHERE run_id = ?
	`
	return rdb.queryRun(ctx, query, runID)
}

func (rdb *RunDB) queryRun(ctx context.Context, query string, args ...any) (*model.RunResult, error) {
	var resultJSON string
	err := rdb.db.QueryRowContext(ctx, query, args...).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.RunResult
	if err := json.Unmarshal([]byte(resultJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}

	return &run, nil
}

// ListAuditedURLs returns every requested URL with at least one stored run.
func (rdb *RunDB) ListAuditedURLs(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT requested_url FROM runs
	ORDER BY requested_url
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, rows.Err()
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying run history without loading the full result.
type RunMetadata struct {
	// ID is the row identifier in the database.
	ID int64

	// RunID is the run's own identifier.
	RunID string

	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// FetchedAt is when the run was performed.
	FetchedAt time.Time

	// Overall is the overall score, nil when nothing was scored.
	Overall *float64

	// Rating counts.
	PassCount    int
	AverageCount int
	FailCount    int
	ErrorCount   int
}

// GetRunHistoryWithMetadata retrieves run metadata for url, newest first.
func (rdb *RunDB) GetRunHistoryWithMetadata(ctx context.Context, url string) ([]RunMetadata, error) {
	query := `
	SELECT id, run_id, requested_url, final_url, fetched_at, overall_score,
		pass_count, average_count, fail_count, error_count
	FROM runs
	WHERE requested_url = ? OR final_url = ?
	ORDER BY fetched_at DESC, id DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query, url, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var fetchedAt string
		var overall sql.NullFloat64

		if err := rows.Scan(&meta.ID, &meta.RunID, &meta.URL, &meta.FinalURL, &fetchedAt, &overall,
			&meta.PassCount, &meta.AverageCount, &meta.FailCount, &meta.ErrorCount); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.FetchedAt = parseTimestamp(fetchedAt)
		if overall.Valid {
			meta.Overall = &overall.Float64
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,      // Format written by SaveRun
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
