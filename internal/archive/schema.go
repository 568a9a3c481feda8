package archive

import (
	"database/sql"

	"codeberg.org/voltaic/psuctl/internal/errors"
	"codeberg.org/voltaic/psuctl/internal/logger"
)

const (
	SchemaVersion = 1

	// Set points are stored as voltage_set/current_set and measurements as
	// volts/amps; "current" by itself is an SQL keyword.
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id              TEXT PRIMARY KEY,
	       started_at      INTEGER NOT NULL,
	       ended_at        INTEGER NOT NULL,
	       stopped_by      TEXT NOT NULL,
	       instrument      TEXT NOT NULL,
	       voltage_set     REAL NOT NULL,
	       current_set     REAL NOT NULL,
	       mode            TEXT NOT NULL,
	       threshold       REAL NOT NULL,
	       stop_condition  TEXT NOT NULL,
	       interval_ms     INTEGER NOT NULL,
	       anode           TEXT NOT NULL,
	       cathode         TEXT NOT NULL,
	       electrolyte     TEXT NOT NULL,
	       molarity        REAL NOT NULL,
	       notes           TEXT NOT NULL,
	       sample_count    INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS session_samples (
	       session_id  TEXT NOT NULL REFERENCES sessions(id),
	       position    INTEGER NOT NULL,
	       taken_at    INTEGER NOT NULL,
	       elapsed_ns  INTEGER NOT NULL,
	       volts       REAL NOT NULL,
	       amps        REAL NOT NULL,
	       PRIMARY KEY (session_id, position)
	   );`

	insertSessionSQL = `
    INSERT INTO sessions (
        id, started_at, ended_at, stopped_by, instrument,
        voltage_set, current_set, mode, threshold, stop_condition, interval_ms,
        anode, cathode, electrolyte, molarity, notes, sample_count
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertSampleSQL = `
    INSERT INTO session_samples (
        session_id, position, taken_at, elapsed_ns, volts, amps
    ) VALUES (?, ?, ?, ?, ?, ?)`
)

// ensureSchema brings a fresh database to the current version and accepts a
// matching one. Any other version belongs to a different release: session
// data is never migrated in place or dropped, the operator has to move the
// file aside.
func ensureSchema(db *sql.DB) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	switch version {
	case 0:
		return initSchema(db)
	case SchemaVersion:
		return nil
	}

	errFactory := errors.New()

	return errFactory.WithData(ErrSchemaMismatch, struct {
		Found    int
		Expected int
	}{
		Found:    version,
		Expected: SchemaVersion,
	})
}

func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	logger.Debug().Msg("Creating archive schema...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
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

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Debug().Int("version", SchemaVersion).Msg("Archive schema initialized")

	return nil
}

// schemaVersion returns the latest recorded version, 0 for a fresh database.
func schemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
