package snapshots

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository stores encoded snapshots in SQLite. Rows are append-only; the
// newest row is the authoritative checkpoint.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a snapshot repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "snapshots").Logger(),
	}
}

// Init creates the snapshots table if it does not exist.
func (r *Repository) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			version     INTEGER NOT NULL,
			generation  INTEGER NOT NULL,
			created_at  INTEGER NOT NULL,
			payload     BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

// Save persists a snapshot and returns its row id.
func (r *Repository) Save(ctx context.Context, s *Snapshot) (int64, error) {
	payload, err := s.Encode()
	if err != nil {
		return 0, err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (version, generation, created_at, payload)
		VALUES (?, ?, ?, ?)
	`, s.Version, s.Generation, s.CreatedAt.Unix(), payload)
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}

	r.log.Info().
		Int64("id", id).
		Int("generation", s.Generation).
		Int("candidates", len(s.Candidates)).
		Msg("Snapshot saved")
	return id, nil
}

// Latest returns the most recent snapshot, or nil if none exist.
func (r *Repository) Latest(ctx context.Context) (*Snapshot, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots ORDER BY id DESC LIMIT 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return Decode(payload)
}

// Prune deletes all but the newest keep snapshots. Used by the scheduled
// checkpoint job to bound database growth.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	if deleted > 0 {
		r.log.Debug().Int64("deleted", deleted).Int("keep", keep).Msg("Pruned old snapshots")
	}
	return deleted, nil
}

// Count returns the number of stored snapshots.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}
