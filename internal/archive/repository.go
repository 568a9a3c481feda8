package archive

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ensureSchema(db); err != nil {
		db.Close()

		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "ensure_schema",
			Error: err.Error(),
		})
	}

	return &sqliteRepository{db: db}, nil
}

// Store writes the session row and all its samples in one transaction, so a
// half-archived session can never appear in the ledger.
func (r *sqliteRepository) Store(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					logger.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	cfg := s.Config
	if _, err := tx.ExecContext(ctx, insertSessionSQL,
		s.ID,
		s.Started.Unix(),
		s.Ended.Unix(),
		s.StoppedBy,
		s.Identity,
		cfg.Voltage,
		cfg.Current,
		string(cfg.Mode),
		cfg.Threshold,
		string(cfg.Direction),
		cfg.Interval.Milliseconds(),
		cfg.Cell.Anode,
		cfg.Cell.Cathode,
		cfg.Cell.Electrolyte,
		cfg.Cell.Molarity,
		cfg.Notes,
		len(s.Samples),
	); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSampleSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for i, sm := range s.Samples {
		if _, err := stmt.ExecContext(ctx,
			s.ID,
			i,
			sm.Timestamp.UnixNano(),
			int64(sm.Elapsed),
			sm.Voltage,
			sm.Current,
		); err != nil {
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	logger.Debug().
		Str("session_id", s.ID).
		Int("samples", len(s.Samples)).
		Msg("Session archived")

	return nil
}

func (r *sqliteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	if limit < 1 {
		limit = 1
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, started_at, ended_at, stopped_by, mode,
               voltage_set, current_set, sample_count, notes
        FROM sessions
        ORDER BY started_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			started int64
			ended   int64
		)

		if err := rows.Scan(&e.ID, &started, &ended, &e.StoppedBy, &e.Mode,
			&e.Voltage, &e.Current, &e.SampleCount, &e.Notes); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}

		e.Started = time.Unix(started, 0)
		e.Ended = time.Unix(ended, 0)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return entries, nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errFactory := errors.New()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}
