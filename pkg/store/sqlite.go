package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
)

// SQLite stores one base64-encoded snapshot row per room.
type SQLite struct {
	database *sql.DB
}

// NewSQLite ensures the rooms table exists and returns the store.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS rooms (
    	id text not null primary key,
        content text not null
		)`,
	); err != nil {
		return nil, fmt.Errorf("failed to create rooms table: %w", err)
	}
	return &SQLite{database: db}, nil
}

func (s *SQLite) Get(ctx context.Context, room string) ([]byte, error) {
	var rawContent string
	if err := s.database.QueryRowContext(
		ctx, `SELECT content FROM rooms WHERE id = ?`, room,
	).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return raw, nil
}

func (s *SQLite) Put(ctx context.Context, room string, snapshot []byte) error {
	if _, err := s.database.ExecContext(
		ctx,
		`INSERT INTO rooms (id, content) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content`,
		room,
		base64.StdEncoding.EncodeToString(snapshot),
	); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}
