package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store manages the PostgreSQL connection for the run ledger.
type Store struct {
	conn *pgx.Conn
}

// FrameRecord is the per-frame outcome of a run.
type FrameRecord struct {
	Index    int
	Score    float64
	Kept     bool
	Position int // Place in the forward output, -1 when discarded
}

// Run is one reconstruction of one source video.
type Run struct {
	ID              string
	VideoID         string
	VideoPath       string
	FrameCount      int
	KeptCount       int
	Q1, Q3          float64
	Threshold       float64
	Bins            int
	FenceMultiplier float64
	Seed            string
	TieBreak        string
	Sequence        []int // Forward output as original indices
	ForwardPath     string
	ReversePath     string
	Chosen          string // "forward", "reverse" or empty until picked
	CreatedAt       time.Time

	Frames []FrameRecord
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the ledger tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS reconstruction_runs (
			id UUID PRIMARY KEY,
			video_id TEXT REFERENCES video_metadata(id) ON DELETE CASCADE,
			frame_count INT NOT NULL,
			kept_count INT NOT NULL,
			q1 DOUBLE PRECISION NOT NULL,
			q3 DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			bins INT NOT NULL,
			fence_multiplier DOUBLE PRECISION NOT NULL,
			seed TEXT NOT NULL,
			tie_break TEXT NOT NULL,
			sequence INT[] NOT NULL,
			forward_path TEXT NOT NULL,
			reverse_path TEXT NOT NULL,
			chosen TEXT CHECK (chosen IN ('forward', 'reverse')),
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS run_frames (
			run_id UUID REFERENCES reconstruction_runs(id) ON DELETE CASCADE,
			original_index INT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			kept BOOLEAN NOT NULL,
			position INT,
			PRIMARY KEY (run_id, original_index)
		);
		CREATE INDEX IF NOT EXISTS reconstruction_runs_video_id_idx ON reconstruction_runs (video_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

// RecordRun stores a run and its per-frame records in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO reconstruction_runs (id, video_id, frame_count, kept_count, q1, q3, threshold,
			bins, fence_multiplier, seed, tie_break, sequence, forward_path, reverse_path)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, run.ID, run.VideoID, run.FrameCount, run.KeptCount, run.Q1, run.Q3, run.Threshold,
		run.Bins, run.FenceMultiplier, run.Seed, run.TieBreak, run.Sequence, run.ForwardPath, run.ReversePath)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, f := range run.Frames {
		var pos *int
		if f.Position >= 0 {
			p := f.Position
			pos = &p
		}
		batch.Queue(`
			INSERT INTO run_frames (run_id, original_index, score, kept, position)
			VALUES ($1::uuid, $2, $3, $4, $5)
		`, run.ID, f.Index, f.Score, f.Kept, pos)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert frames: %w", err)
	}

	return tx.Commit(ctx)
}

const runColumns = `
	r.id::text, r.video_id, v.path, r.frame_count, r.kept_count, r.q1, r.q3, r.threshold,
	r.bins, r.fence_multiplier, r.seed, r.tie_break, r.sequence, r.forward_path, r.reverse_path,
	COALESCE(r.chosen, ''), r.created_at`

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.VideoID, &r.VideoPath, &r.FrameCount, &r.KeptCount, &r.Q1, &r.Q3, &r.Threshold,
		&r.Bins, &r.FenceMultiplier, &r.Seed, &r.TieBreak, &r.Sequence, &r.ForwardPath, &r.ReversePath,
		&r.Chosen, &r.CreatedAt)
	return r, err
}

// ListRuns returns every run, newest first, without per-frame records.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+runColumns+`
		FROM reconstruction_runs r JOIN video_metadata v ON v.id = r.video_id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a run and its per-frame records.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.conn.QueryRow(ctx, `SELECT `+runColumns+`
		FROM reconstruction_runs r JOIN video_metadata v ON v.id = r.video_id
		WHERE r.id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT original_index, score, kept, COALESCE(position, -1)
		FROM run_frames WHERE run_id = $1::uuid ORDER BY original_index`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var f FrameRecord
		if err := rows.Scan(&f.Index, &f.Score, &f.Kept, &f.Position); err != nil {
			return Run{}, err
		}
		r.Frames = append(r.Frames, f)
	}
	return r, rows.Err()
}

// ChooseOrientation records which candidate video a reviewer accepted.
func (s *Store) ChooseOrientation(ctx context.Context, id, orientation string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE reconstruction_runs SET chosen = $1 WHERE id = $2::uuid", orientation, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS run_frames CASCADE;
		DROP TABLE IF EXISTS reconstruction_runs CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
