package upload

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB tracks which local results have been uploaded so a re-run does
// not send them twice.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS uploaded_results (
		source      TEXT    NOT NULL,
		result_id   INTEGER NOT NULL,
		remote_id   INTEGER NOT NULL,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source, result_id)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// LastUploaded returns the highest local result id uploaded from source,
// or 0 when nothing was.
func (s *StateDB) LastUploaded(source string) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(result_id) FROM uploaded_results WHERE source = ?`, source,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// IsUploaded reports whether a local result was already sent.
func (s *StateDB) IsUploaded(source string, resultID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM uploaded_results WHERE source = ? AND result_id = ?`,
		source, resultID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkUploaded records that a result was stored remotely under remoteID.
func (s *StateDB) MarkUploaded(source string, resultID, remoteID int64) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO uploaded_results (source, result_id, remote_id) VALUES (?, ?, ?)`,
		source, resultID, remoteID,
	)
	return err
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}
