package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mhollis/netatmo-publisher/internal/models"
)

// SQLiteStore implements Store on a local SQLite file so published values
// survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS published_states (
		key TEXT PRIMARY KEY,
		value REAL NOT NULL,
		ack INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Read implements Store.Read. Returns false, nil when the key is absent.
func (s *SQLiteStore) Read(ctx context.Context, key string) (models.PublishedState, bool, error) {
	var (
		value float64
		ack   int
		ts    int64
	)
	row := s.db.QueryRowContext(ctx, `SELECT value, ack, timestamp FROM published_states WHERE key = ?`, key)
	if err := row.Scan(&value, &ack, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PublishedState{}, false, nil
		}
		return models.PublishedState{}, false, err
	}
	return models.PublishedState{
		Value:     value,
		Ack:       ack != 0,
		Timestamp: time.Unix(0, ts).UTC(),
	}, true, nil
}

// Write implements Store.Write with an upsert.
func (s *SQLiteStore) Write(ctx context.Context, key string, st models.PublishedState) error {
	ack := 0
	if st.Ack {
		ack = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO published_states (key, value, ack, timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, ack = excluded.ack, timestamp = excluded.timestamp`,
		key, st.Value, ack, st.Timestamp.UnixNano())
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
