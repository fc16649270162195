package collector

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pagepulse/pagepulse-go/pkg/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Storage persists ingested telemetry in SQLite
type Storage struct {
	db *sql.DB
}

// NewStorage opens (or creates) the collector database
func NewStorage(path string) (*Storage, error) {
	// WAL + busy timeout so concurrent ingests don't hit "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id          INTEGER PRIMARY KEY,
	  project_id  TEXT    NOT NULL,
	  session_id  TEXT,
	  type        TEXT    NOT NULL CHECK (type IN ('pageview','click','form','custom','error')),
	  name        TEXT,
	  ts          INTEGER NOT NULL,
	  url         TEXT,
	  data_json   TEXT    NOT NULL CHECK (json_valid(data_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts      ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);

	CREATE TABLE IF NOT EXISTS interaction_batches(
	  id                  INTEGER PRIMARY KEY,
	  project_id          TEXT    NOT NULL,
	  session_id          TEXT    NOT NULL,
	  url                 TEXT,
	  site                TEXT,
	  hostname            TEXT,
	  environment         TEXT,
	  window_start        INTEGER NOT NULL,
	  window_end          INTEGER NOT NULL,
	  coordinate_count    INTEGER NOT NULL,
	  pointer_json        TEXT,
	  screenshot_filename TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_batches_session ON interaction_batches(session_id);

	CREATE TABLE IF NOT EXISTS sessions(
	  session_id   TEXT PRIMARY KEY,
	  project_id   TEXT,
	  anonymous_id TEXT,
	  started_at   INTEGER NOT NULL,
	  ended_at     INTEGER,
	  duration_ms  INTEGER,
	  page_views   INTEGER,
	  interactions INTEGER
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

// ValidateEvent checks the fields the schema constrains
func (s *Storage) ValidateEvent(event models.DiscreteEvent) error {
	if !models.ValidEventTypes[event.Type] {
		return fmt.Errorf("invalid event type: %q", event.Type)
	}
	if event.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

// InsertEvents stores a batch of discrete events in one transaction
func (s *Storage) InsertEvents(projectID string, events []models.DiscreteEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO events(project_id, session_id, type, name, ts, url, data_json)
		VALUES(?,?,?,?,?,?,json(?))`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		if err := s.ValidateEvent(event); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}
		data := event.Data
		if data == nil {
			data = map[string]any{}
		}
		dataJSON, err := json.Marshal(data)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		if _, err := stmt.Exec(projectID, event.SessionID, string(event.Type), event.Name,
			event.Timestamp, event.URL, string(dataJSON)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// InsertBatch stores one interaction batch row
func (s *Storage) InsertBatch(projectID string, batch *models.Batch, screenshotFilename string) error {
	var pointerJSON []byte
	var err error
	if len(batch.Coordinates) > 0 {
		pointerJSON, err = json.Marshal(batch.Coordinates)
		if err != nil {
			return fmt.Errorf("failed to marshal pointer data: %w", err)
		}
	}

	_, err = s.db.Exec(`INSERT INTO interaction_batches(
		project_id, session_id, url, site, hostname, environment,
		window_start, window_end, coordinate_count, pointer_json, screenshot_filename)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		projectID, batch.SessionID, batch.URL, batch.Site, batch.Hostname, batch.Environment,
		batch.WindowStart, batch.WindowEnd, len(batch.Coordinates), string(pointerJSON), screenshotFilename)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// StartSession records a session start
func (s *Storage) StartSession(projectID string, req models.SessionStartRequest, startedAt int64) error {
	_, err := s.db.Exec(`INSERT INTO sessions(session_id, project_id, anonymous_id, started_at)
		VALUES(?,?,?,?)
		ON CONFLICT(session_id) DO NOTHING`,
		req.SessionID, projectID, req.User.AnonymousID, startedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession records session aggregates
func (s *Storage) EndSession(req models.SessionEndRequest, endedAt int64) error {
	_, err := s.db.Exec(`UPDATE sessions
		SET ended_at = ?, duration_ms = ?, page_views = ?, interactions = ?
		WHERE session_id = ?`,
		endedAt, req.Duration, req.PageViews, req.Interactions, req.SessionID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events for a session ("" for all)
func (s *Storage) CountEvents(sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM events`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountBatches returns the number of stored interaction batches
func (s *Storage) CountBatches(sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM interaction_batches`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
