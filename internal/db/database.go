package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrCapacity is returned when the persisted room ceiling is reached.
	ErrCapacity = errors.New("server at capacity")

	// ErrIDGeneration is returned when a unique room id could not be
	// generated within the retry budget.
	ErrIDGeneration = errors.New("unable to generate unique room id")
)

const (
	// MaxRooms caps how many rooms may exist in the store at once.
	MaxRooms = 100

	roomIDLength  = 8
	idGenAttempts = 10
)

type Database struct {
	db       *sql.DB
	maxRooms int
}

type Room struct {
	RoomID    string    `json:"roomId"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL for concurrent readers while the hub writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &Database{db: db, maxRooms: MaxRooms}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		language TEXT NOT NULL DEFAULT 'python',
		code_content TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_updated_at ON rooms(updated_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// newRoomID returns a short random identifier, e.g. "3f2a9c1b".
func newRoomID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:roomIDLength]
}

// CreateRoom inserts a new room with a generated id. It fails with
// ErrCapacity once MaxRooms rooms exist and with ErrIDGeneration if no
// unused id is found within the retry budget.
func (d *Database) CreateRoom(language string) (*Room, error) {
	count, err := d.CountRooms()
	if err != nil {
		return nil, fmt.Errorf("count rooms: %w", err)
	}
	if count >= d.maxRooms {
		return nil, ErrCapacity
	}

	roomID := newRoomID()
	for attempt := 0; ; attempt++ {
		existing, err := d.GetRoom(roomID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			break
		}
		if attempt >= idGenAttempts {
			return nil, ErrIDGeneration
		}
		roomID = newRoomID()
	}

	_, err = d.db.Exec(
		"INSERT INTO rooms (room_id, language) VALUES (?, ?)",
		roomID, language,
	)
	if err != nil {
		return nil, err
	}

	return d.GetRoom(roomID)
}

// GetRoom returns the room or nil if it does not exist.
func (d *Database) GetRoom(roomID string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT room_id, language, code_content, created_at, updated_at FROM rooms WHERE room_id = ?",
		roomID,
	)

	var room Room
	err := row.Scan(&room.RoomID, &room.Language, &room.Code, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateRoomCode overwrites the saved code buffer for a room. Unknown
// rooms are a no-op.
func (d *Database) UpdateRoomCode(roomID, code string) error {
	_, err := d.db.Exec(
		"UPDATE rooms SET code_content = ?, updated_at = CURRENT_TIMESTAMP WHERE room_id = ?",
		code, roomID,
	)
	return err
}

func (d *Database) DeleteRoom(roomID string) error {
	_, err := d.db.Exec("DELETE FROM rooms WHERE room_id = ?", roomID)
	return err
}

func (d *Database) CountRooms() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&count)
	return count, err
}

// Stats returns persisted totals for the stats endpoint.
func (d *Database) Stats() (map[string]any, error) {
	stats := make(map[string]any)

	roomCount, err := d.CountRooms()
	if err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var withCode int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms WHERE code_content != ''").Scan(&withCode); err != nil {
		return nil, err
	}
	stats["rooms_with_code"] = withCode

	return stats, nil
}
