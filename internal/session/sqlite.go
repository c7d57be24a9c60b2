package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aictl/agentcore/internal/provider"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record has the requested ID.
var ErrNotFound = errors.New("snapshot not found")

const createTableSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    project_root  TEXT NOT NULL DEFAULT '',
    active_files  INTEGER DEFAULT 0,
    message_count INTEGER DEFAULT 0,
    snapshot      TEXT NOT NULL,
    messages      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.local/share/agentcore/snapshots.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "agentcore", "snapshots.db"), nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(rec *Record) error {
	if rec.Snapshot == nil {
		return fmt.Errorf("save snapshot: record has no snapshot")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	snapJSON, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	msgJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO snapshots
			(id, session_id, created_at, project_root, active_files, message_count, snapshot, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SessionID,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.Snapshot.ProjectRoot,
		len(rec.Snapshot.ActiveFiles),
		len(rec.Messages),
		string(snapJSON),
		string(msgJSON),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(id string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, created_at, snapshot, messages
		FROM snapshots WHERE id = ?`, id)

	var rec Record
	var createdAt, snapJSON, msgJSON string
	err := row.Scan(&rec.ID, &rec.SessionID, &createdAt, &snapJSON, &msgJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	rec.Snapshot = &Snapshot{}
	if err := json.Unmarshal([]byte(snapJSON), rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	var msgs []provider.Message
	if err := json.Unmarshal([]byte(msgJSON), &msgs); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	rec.Messages = msgs

	return &rec, nil
}

func (s *SQLiteStore) List() ([]RecordInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, created_at, project_root, message_count, active_files
		FROM snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []RecordInfo
	for rows.Next() {
		var info RecordInfo
		var createdAt string
		if err := rows.Scan(&info.ID, &info.SessionID, &createdAt, &info.ProjectRoot, &info.Messages, &info.ActiveFiles); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
