package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one finished gallery.
type Entry struct {
	ID           int64
	RequestID    string
	Adapter      string
	Title        string
	SourceURL    string
	Workspace    string
	Items        int
	Failed       int
	StallRetries int
	Resumed      bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration is the wall time spent on the gallery in the final run.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store is the history journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the journal at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an entry and returns it with its id set.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO galleries (
            request_id, adapter, title, source_url, workspace,
            items, failed, stall_retries, resumed, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID,
		e.Adapter,
		e.Title,
		e.SourceURL,
		e.Workspace,
		e.Items,
		e.Failed,
		e.StallRetries,
		boolToInt(e.Resumed),
		e.StartedAt.UTC().Format(time.RFC3339Nano),
		e.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert history entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("last insert id: %w", err)
	}
	e.ID = id
	return e, nil
}

const entryColumns = "id, request_id, adapter, title, source_url, workspace, items, failed, stall_retries, resumed, started_at, finished_at"

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM galleries ORDER BY finished_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes entries finished before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM galleries WHERE finished_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e          Entry
		resumed    int
		startedRaw string
		finishRaw  string
	)
	if err := scanner.Scan(
		&e.ID,
		&e.RequestID,
		&e.Adapter,
		&e.Title,
		&e.SourceURL,
		&e.Workspace,
		&e.Items,
		&e.Failed,
		&e.StallRetries,
		&resumed,
		&startedRaw,
		&finishRaw,
	); err != nil {
		return Entry{}, fmt.Errorf("scan history entry: %w", err)
	}
	e.Resumed = resumed != 0
	e.StartedAt = parseTime(startedRaw)
	e.FinishedAt = parseTime(finishRaw)
	return e, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
