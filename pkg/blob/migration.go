package blob

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// CurrentSchemaVersion is the schema version this package writes
const CurrentSchemaVersion = 2

// MigrationFunc performs one schema migration
type MigrationFunc func(tx *sql.Tx) error

// Migration is a single schema migration
type Migration struct {
	Version     int
	Description string
	Up          MigrationFunc
}

var migrations = []Migration{
	{Version: 1, Description: "blob table with version tracking", Up: migration1Up},
	{Version: 2, Description: "erasure-coded shard table", Up: migration2Up},
}

// GetSchemaVersion returns the schema version of db, 0 for a new database
func GetSchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_version ORDER BY ROWID DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// RunMigrations applies pending migrations. An existing database file is
// copied to a timestamped backup first.
func RunMigrations(db *sql.DB, dbPath string, log *slog.Logger) error {
	current, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if current == CurrentSchemaVersion {
		return nil
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d) - please upgrade software",
			current, CurrentSchemaVersion)
	}

	var backupPath string
	if current > 0 {
		backupPath, err = createBackup(dbPath)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		log.Info("created database backup", "path", backupPath)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Info("running migration", "version", m.Version, "description", m.Description)

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w (backup: %q)", m.Version, err, backupPath)
		}
		_, err = tx.Exec(`INSERT INTO schema_version (version, applied_at, comment) VALUES (?, ?, ?)`,
			m.Version, time.Now().Unix(), m.Description)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// ValidateSchema checks that the schema is current and complete
func ValidateSchema(db *sql.DB) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if version != CurrentSchemaVersion {
		return fmt.Errorf("schema version %d, want %d", version, CurrentSchemaVersion)
	}

	for _, table := range []string{"schema_version", "blobs", "shards"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("required table missing: %s", table)
		}
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
	}
	return nil
}

func createBackup(dbPath string) (string, error) {
	backupPath := fmt.Sprintf("%s.backup_%s", dbPath, time.Now().Format("20060102_150405"))

	data, err := os.ReadFile(dbPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", err
	}
	return backupPath, nil
}

// ========================================
// Migration Definitions
// ========================================

// migration1Up stores blobs whole
func migration1Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at INTEGER NOT NULL,
			comment TEXT
		);
		CREATE TABLE IF NOT EXISTS blobs (
			blob_id BLOB PRIMARY KEY,
			data BLOB,
			size INTEGER NOT NULL,
			stored_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_blobs_stored_at ON blobs(stored_at);
	`)
	return err
}

// migration2Up moves blob content into erasure-coded shards. Blobs stored
// whole by v1 are re-encoded.
func migration2Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		ALTER TABLE blobs ADD COLUMN shard_size INTEGER NOT NULL DEFAULT 0;
		CREATE TABLE IF NOT EXISTS shards (
			blob_id BLOB NOT NULL,
			shard_index INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (blob_id, shard_index)
		);
	`)
	if err != nil {
		return err
	}

	rows, err := tx.Query(`SELECT blob_id, data FROM blobs WHERE data IS NOT NULL`)
	if err != nil {
		return err
	}
	type legacy struct{ id, data []byte }
	var pending []legacy
	for rows.Next() {
		var l legacy
		if err := rows.Scan(&l.id, &l.data); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	enc, err := NewErasureEncoder()
	if err != nil {
		return err
	}
	for _, l := range pending {
		encoded, err := enc.Encode(l.data)
		if err != nil {
			return fmt.Errorf("re-encode blob %x: %w", l.id, err)
		}
		if err := insertShards(tx, l.id, encoded); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE blobs SET data = NULL, shard_size = ? WHERE blob_id = ?`, encoded.ShardSize, l.id); err != nil {
			return err
		}
	}
	return nil
}

func insertShards(tx *sql.Tx, id []byte, encoded *EncodedData) error {
	for i, shard := range encoded.Shards {
		if shard == nil {
			continue
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO shards (blob_id, shard_index, data) VALUES (?, ?, ?)`, id, i, shard)
		if err != nil {
			return fmt.Errorf("failed to store shard %d: %w", i, err)
		}
	}
	return nil
}
