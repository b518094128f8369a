// Package blob stores encrypted file and thumbnail blobs, addressed by
// the BLAKE2b-derived blob id of their content, and fetches them over HTTP.
package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// MaxBlobSize bounds a stored blob: the largest file plus the secretbox tag
const MaxBlobSize = protocol.MaxFileSize + 16

var (
	ErrNotFound     = errors.New("blob not found")
	ErrEmptyBlob    = errors.New("cannot store empty blob")
	ErrBlobTooLarge = errors.New("blob too large")
	ErrCorruptBlob  = errors.New("blob content does not match its id")
)

// Store keeps blobs erasure coded in SQLite
type Store struct {
	db      *sql.DB
	path    string
	encoder *ErasureEncoder
	log     *slog.Logger
}

// Stats summarizes the store
type Stats struct {
	Blobs      int
	TotalBytes int64
}

// Open opens (or creates) the blob store in dataDir
func Open(dataDir string, log *slog.Logger) (*Store, error) {
	log = logger.OrDefault(log)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "blobs.db")

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := RunMigrations(db, dbPath, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := ValidateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	enc, err := NewErasureEncoder()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: dbPath, encoder: enc, log: log}, nil
}

// Put stores an encrypted blob and returns its id. Storing the same
// content twice is a no-op.
func (s *Store) Put(ctx context.Context, data []byte) (protocol.BlobID, error) {
	if len(data) == 0 {
		return protocol.BlobID{}, ErrEmptyBlob
	}
	if len(data) > MaxBlobSize {
		return protocol.BlobID{}, ErrBlobTooLarge
	}

	id := crypto.BlobIDFor(data)
	encoded, err := s.encoder.Encode(data)
	if err != nil {
		return id, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return id, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO blobs (blob_id, size, shard_size, stored_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(blob_id) DO NOTHING`,
		id[:], len(data), encoded.ShardSize, time.Now().Unix())
	if err != nil {
		return id, fmt.Errorf("failed to store blob: %w", err)
	}
	if err := insertShards(tx, id[:], encoded); err != nil {
		return id, err
	}
	if err := tx.Commit(); err != nil {
		return id, err
	}

	s.log.Debug("stored blob", "blob", id, "size", len(data))
	return id, nil
}

// Get reconstructs a blob from its shards and verifies it against its id
func (s *Store) Get(ctx context.Context, id protocol.BlobID) ([]byte, error) {
	encoded, err := s.loadShards(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := s.encoder.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", id, err)
	}
	if !crypto.VerifyBlobID(data, id) {
		return nil, fmt.Errorf("%w: %s", ErrCorruptBlob, id)
	}
	return data, nil
}

// Fetch implements codec.BlobFetcher on the local store
func (s *Store) Fetch(ctx context.Context, id protocol.BlobID) ([]byte, error) {
	return s.Get(ctx, id)
}

// Health reports how many shards of a blob are left
func (s *Store) Health(ctx context.Context, id protocol.BlobID) (Health, int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shards WHERE blob_id = ?`, id[:]).Scan(&n)
	if err != nil {
		return HealthLost, 0, err
	}
	if n == 0 {
		if _, err := s.loadMeta(ctx, id); err != nil {
			return HealthLost, 0, err
		}
	}
	return HealthFor(n), n, nil
}

// Repair rebuilds missing shards of a blob. It returns the number of
// shards written.
func (s *Store) Repair(ctx context.Context, id protocol.BlobID) (int, error) {
	encoded, err := s.loadShards(ctx, id)
	if err != nil {
		return 0, err
	}
	missing := TotalShards - encoded.Available()
	if missing == 0 {
		return 0, nil
	}

	if err := s.encoder.Reconstruct(encoded); err != nil {
		return 0, fmt.Errorf("blob %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := insertShards(tx, id[:], encoded); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.log.Info("repaired blob", "blob", id, "shards", missing)
	return missing, nil
}

// Delete removes a blob
func (s *Store) Delete(ctx context.Context, id protocol.BlobID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE blob_id = ?`, id[:])
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM shards WHERE blob_id = ?`, id[:])
	return err
}

// Cleanup removes blobs stored before maxAge ago
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old blobs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shards WHERE blob_id NOT IN (SELECT blob_id FROM blobs)`); err != nil {
		return 0, fmt.Errorf("failed to cleanup shards: %w", err)
	}

	n, err := res.RowsAffected()
	return int(n), err
}

// Stats returns storage statistics
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM blobs`).Scan(&st.Blobs, &st.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage stats: %w", err)
	}
	return &st, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type blobMeta struct {
	size      int
	shardSize int
}

func (s *Store) loadMeta(ctx context.Context, id protocol.BlobID) (*blobMeta, error) {
	var m blobMeta
	err := s.db.QueryRowContext(ctx, `SELECT size, shard_size FROM blobs WHERE blob_id = ?`, id[:]).Scan(&m.size, &m.shardSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return &m, nil
}

func (s *Store) loadShards(ctx context.Context, id protocol.BlobID) (*EncodedData, error) {
	meta, err := s.loadMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT shard_index, data FROM shards WHERE blob_id = ?`, id[:])
	if err != nil {
		return nil, fmt.Errorf("failed to read shards: %w", err)
	}
	defer rows.Close()

	encoded := &EncodedData{
		Shards:       make([][]byte, TotalShards),
		ShardSize:    meta.shardSize,
		OriginalSize: meta.size,
	}
	for rows.Next() {
		var idx int
		var data []byte
		if err := rows.Scan(&idx, &data); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= TotalShards || len(data) != meta.shardSize {
			s.log.Warn("skipping damaged shard", "blob", id, "shard", idx)
			continue
		}
		encoded.Shards[idx] = data
	}
	return encoded, rows.Err()
}
