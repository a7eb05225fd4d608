// Package sqlite implements store.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pointdeck/pointdeck-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_states (
	room_id     TEXT PRIMARY KEY,
	state       BLOB NOT NULL,
	secret_hash TEXT NOT NULL,
	expires_at  INTEGER NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRoom inserts a new room record.
func (s *SQLiteStore) CreateRoom(ctx context.Context, rec *store.RoomRecord) error {
	query := `
		INSERT INTO room_states (room_id, state, secret_hash, expires_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, rec.RoomID, rec.State, rec.SecretHash, rec.ExpiresAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room record by id.
func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (*store.RoomRecord, error) {
	query := `
		SELECT room_id, state, secret_hash, expires_at
		FROM room_states
		WHERE room_id = ?
	`
	rec := &store.RoomRecord{}
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(&rec.RoomID, &rec.State, &rec.SecretHash, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	rec.ExpiresAt = time.UnixMilli(expiresAt)
	return rec, nil
}

// SaveState overwrites the state blob for a room.
func (s *SQLiteStore) SaveState(ctx context.Context, roomID string, state []byte) error {
	query := `UPDATE room_states SET state = ? WHERE room_id = ?`
	res, err := s.db.ExecContext(ctx, query, state, roomID)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteRoom erases all durable data for a room.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_states WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// ListRoomIDs returns the ids of all persisted rooms.
func (s *SQLiteStore) ListRoomIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_id FROM room_states ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select room ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room ids: %w", err)
	}
	return ids, nil
}
