package storage

import (
	"context"

	"github.com/claude/romkiosk/internal/models"
)

// LocalPersister stores session results in the kiosk's own database.
type LocalPersister struct {
	DB *DB
}

// SaveResult inserts the row, discarding the new id.
func (p LocalPersister) SaveResult(ctx context.Context, row models.ResultRow) error {
	_, err := p.DB.InsertResult(ctx, row)
	return err
}

// RegisterUser records the session key.
func (p LocalPersister) RegisterUser(ctx context.Context, key, state string) error {
	_, err := p.DB.InsertUser(ctx, key, state)
	return err
}
