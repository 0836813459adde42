package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "open ledger database").
			WithContext("path", dbPath).Build()
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "initialize ledger schema").Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_project ON events(project);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store. A zero timestamp means now.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if e.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryStorage, "marshal event metadata").Build()
		}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	payload := []byte(e.Payload)
	if payload == nil {
		payload = []byte("null")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (project, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		e.Project, e.Type, ts.UnixMilli(), payload, metadataJSON,
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStorage, "append ledger event").
			WithContext("project_id", e.Project).Build()
	}
	return nil
}

// ByProject retrieves all events for a project.
func (s *SQLiteStore) ByProject(ctx context.Context, project string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, project, event_type, timestamp, payload, metadata FROM events WHERE project = ? ORDER BY id",
		project,
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "query ledger events").
			WithContext("project_id", project).Build()
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// Prune deletes events recorded before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", before.UnixMilli())
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryStorage, "prune ledger events").Build()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryStorage, "prune ledger events").Build()
	}
	return n, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var ts int64
		var payload, metadataJSON []byte

		if err := rows.Scan(&e.ID, &e.Project, &e.Type, &ts, &payload, &metadataJSON); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "scan ledger event").Build()
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Payload = payload

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "unmarshal event metadata").Build()
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStorage, "iterate ledger rows").Build()
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
