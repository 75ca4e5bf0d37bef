package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the snapshot database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db %q: %w", path, err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing handle and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		building_set_hash   TEXT PRIMARY KEY,
		snapshot_id         TEXT NOT NULL,
		taken_at            DATETIME NOT NULL,
		overall_score       REAL NOT NULL,
		active_violations   INTEGER NOT NULL,
		pending_inspections INTEGER NOT NULL,
		resolved_this_month INTEGER NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, buildingSetHash string) (*Record, error) {
	query := `
		SELECT snapshot_id, building_set_hash, taken_at, overall_score,
		       active_violations, pending_inspections, resolved_this_month
		FROM snapshots
		WHERE building_set_hash = ?
	`
	var r Record
	var takenAt string
	err := s.db.QueryRowContext(ctx, query, buildingSetHash).Scan(
		&r.SnapshotID, &r.BuildingSetHash, &takenAt, &r.OverallScore,
		&r.ActiveViolations, &r.PendingInspections, &r.ResolvedThisMonth,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", buildingSetHash, err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, takenAt); perr == nil {
		r.TakenAt = t
	}
	return &r, nil
}

// Save implements Store, replacing any previous record for the set.
func (s *SQLiteStore) Save(ctx context.Context, r Record) error {
	query := `
		INSERT INTO snapshots
			(building_set_hash, snapshot_id, taken_at, overall_score,
			 active_violations, pending_inspections, resolved_this_month)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(building_set_hash) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			taken_at = excluded.taken_at,
			overall_score = excluded.overall_score,
			active_violations = excluded.active_violations,
			pending_inspections = excluded.pending_inspections,
			resolved_this_month = excluded.resolved_this_month
	`
	_, err := s.db.ExecContext(ctx, query,
		r.BuildingSetHash, r.SnapshotID, r.TakenAt.Format(time.RFC3339Nano), r.OverallScore,
		r.ActiveViolations, r.PendingInspections, r.ResolvedThisMonth,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", r.BuildingSetHash, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
