// Package storage implements a SQLite log of training runs and their
// episodes
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Run describes a training run
type Run struct {
	ID        uuid.UUID
	Started   time.Time
	Finished  time.Time // Zero while the run is in progress
	Command   string
	Seed      uint64
	Timesteps int
	ModelPath string
}

// Episode describes a finished episode of a run
type Episode struct {
	N       int
	Return  float64
	Length  int
	EndType string
}

// RunLog stores runs and episodes in a SQLite database
type RunLog struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewRunLog returns a new RunLog stored at path. Init must be called
// before the RunLog is used.
func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// Init opens the database and creates its tables if needed
func (r *RunLog) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return errors.New("init: sqlite path is required")
	}
	if r.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("init: %w", err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("init: %w", err)
	}

	r.db = db
	return nil
}

// StartRun records a new run. Recording a run with an existing ID
// replaces it.
func (r *RunLog) StartRun(ctx context.Context, run Run) error {
	db, err := r.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, started, command, seed, timesteps, model_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started = excluded.started,
			command = excluded.command,
			seed = excluded.seed,
			timesteps = excluded.timesteps,
			model_path = excluded.model_path,
			finished = NULL
	`, run.ID.String(), run.Started.UTC().Format(time.RFC3339Nano),
		run.Command, int64(run.Seed), run.Timesteps, run.ModelPath)
	if err != nil {
		return fmt.Errorf("startRun: %w", err)
	}
	return nil
}

// FinishRun records the end of a run
func (r *RunLog) FinishRun(ctx context.Context, id uuid.UUID,
	finished time.Time) error {
	db, err := r.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `UPDATE runs SET finished = ? WHERE id = ?`,
		finished.UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return fmt.Errorf("finishRun: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishRun: no run %v", id)
	}
	return nil
}

// AddEpisode records a finished episode of a run
func (r *RunLog) AddEpisode(ctx context.Context, runID uuid.UUID,
	ep Episode) error {
	db, err := r.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO episodes (run_id, n, "return", length, end_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, n) DO UPDATE SET
			"return" = excluded."return",
			length = excluded.length,
			end_type = excluded.end_type
	`, runID.String(), ep.N, ep.Return, ep.Length, ep.EndType)
	if err != nil {
		return fmt.Errorf("addEpisode: %w", err)
	}
	return nil
}

// GetRun returns the run with the given ID and whether it exists
func (r *RunLog) GetRun(ctx context.Context, id uuid.UUID) (Run, bool,
	error) {
	db, err := r.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var (
		started  string
		finished sql.NullString
		seed     int64
		run      = Run{ID: id}
	)
	err = db.QueryRowContext(ctx, `
		SELECT started, finished, command, seed, timesteps, model_path
		FROM runs WHERE id = ?
	`, id.String()).Scan(&started, &finished, &run.Command, &seed,
		&run.Timesteps, &run.ModelPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("getRun: %w", err)
	}
	run.Seed = uint64(seed)

	if run.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, false, fmt.Errorf("getRun: started: %w", err)
	}
	if finished.Valid {
		if run.Finished, err = time.Parse(time.RFC3339Nano,
			finished.String); err != nil {
			return Run{}, false, fmt.Errorf("getRun: finished: %w", err)
		}
	}
	return run, true, nil
}

// Episodes returns the episodes of a run in order
func (r *RunLog) Episodes(ctx context.Context, runID uuid.UUID) ([]Episode,
	error) {
	db, err := r.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT n, "return", length, end_type FROM episodes
		WHERE run_id = ? ORDER BY n
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.N, &ep.Return, &ep.Length,
			&ep.EndType); err != nil {
			return nil, fmt.Errorf("episodes: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("episodes: %w", err)
	}
	return episodes, nil
}

// Close closes the database
func (r *RunLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *RunLog) getDB() (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return nil, errors.New("run log is not initialized")
	}
	return r.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started TEXT NOT NULL,
			finished TEXT,
			command TEXT NOT NULL,
			seed INTEGER NOT NULL,
			timesteps INTEGER NOT NULL,
			model_path TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS episodes (
			run_id TEXT NOT NULL REFERENCES runs(id),
			n INTEGER NOT NULL,
			"return" REAL NOT NULL,
			length INTEGER NOT NULL,
			end_type TEXT NOT NULL,
			PRIMARY KEY (run_id, n)
		);
	`)
	return err
}
