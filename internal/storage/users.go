package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/romkiosk/internal/models"
)

// InsertUser registers a session key, updating its state when the key is
// already known. Returns the row as stored.
func (db *DB) InsertUser(ctx context.Context, key, state string) (models.UserRow, error) {
	if key == "" {
		return models.UserRow{}, fmt.Errorf("key is required")
	}
	var (
		u       models.UserRow
		created timestamp
	)
	err := db.conn.queryRow(ctx, `
		INSERT INTO users (key, state, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET state = excluded.state
		RETURNING id, key, state, created_at`,
		key, state, db.timeArg(time.Now()),
	).Scan(&u.ID, &u.Key, &u.State, &created)
	if err != nil {
		return models.UserRow{}, fmt.Errorf("inserting user: %w", err)
	}
	u.CreatedAt = created.Time
	return u, nil
}

// QueryUsers returns all registered sessions, newest first.
func (db *DB) QueryUsers(ctx context.Context) ([]models.UserRow, error) {
	rs, err := db.conn.query(ctx, `SELECT id, key, state, created_at FROM users ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rs.Close()

	out := []models.UserRow{}
	for rs.Next() {
		var (
			u       models.UserRow
			created timestamp
		)
		if err := rs.Scan(&u.ID, &u.Key, &u.State, &created); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.CreatedAt = created.Time
		out = append(out, u)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return out, nil
}
