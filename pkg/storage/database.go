// Package storage is the SQLite-backed entity store of the client: ballots,
// file messages, contacts and conversations.
package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/entity"
)

var (
	ErrNotFound          = entity.ErrNotFound
	ErrAlreadyExists     = entity.ErrAlreadyExists
	ErrInvalidPassphrase = errors.New("invalid passphrase")
)

const (
	saltSize = 16

	// passphraseCheck is encrypted into the meta table so a wrong
	// passphrase fails on open instead of on first read
	passphraseCheck = "zentalk-client"
)

// DB manages the encrypted local entity store. Blob keys and thumbnails
// are encrypted at rest with a key derived from the user passphrase.
type DB struct {
	db            *sql.DB
	encryptionKey []byte
	ballotLocks   *keyedMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the database at dbPath
func Open(dbPath string, passphrase string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer and UpdateBallot holds a
	// transaction across read and write
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	sdb := &DB{
		db:          db,
		ballotLocks: newKeyedMutex(),
	}

	if err := sdb.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := sdb.unlock(passphrase); err != nil {
		db.Close()
		return nil, err
	}

	return sdb, nil
}

// unlock derives the storage key. The salt and the passphrase check are
// created on first open.
func (db *DB) unlock(passphrase string) error {
	var salt, check []byte
	err := db.db.QueryRow(`SELECT value FROM meta WHERE key = 'salt'`).Scan(&salt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
		db.encryptionKey = crypto.DeriveStorageKey(passphrase, salt)

		check, err = crypto.AESEncrypt([]byte(passphraseCheck), db.encryptionKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt passphrase check: %w", err)
		}
		_, err = db.db.Exec(`INSERT INTO meta (key, value) VALUES ('salt', ?), ('check', ?)`, salt, check)
		if err != nil {
			return fmt.Errorf("failed to store salt: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read salt: %w", err)
	}

	db.encryptionKey = crypto.DeriveStorageKey(passphrase, salt)
	if err := db.db.QueryRow(`SELECT value FROM meta WHERE key = 'check'`).Scan(&check); err != nil {
		return fmt.Errorf("failed to read passphrase check: %w", err)
	}
	plain, err := crypto.AESDecrypt(check, db.encryptionKey)
	if err != nil || !bytes.Equal(plain, []byte(passphraseCheck)) {
		return ErrInvalidPassphrase
	}
	return nil
}

// initSchema creates database tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);

	-- Contacts table
	CREATE TABLE IF NOT EXISTS contacts (
		identity TEXT PRIMARY KEY,
		nickname TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL,
		is_blocked INTEGER NOT NULL DEFAULT 0
	);

	-- Conversations table. Direct conversations set contact_identity,
	-- group conversations set group_creator and group_id.
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		contact_identity TEXT,
		group_creator TEXT,
		group_id BLOB,
		created_at INTEGER NOT NULL
	);

	-- Ballots table
	CREATE TABLE IF NOT EXISTS ballots (
		creator TEXT NOT NULL,
		ballot_id BLOB NOT NULL,
		conversation_id TEXT NOT NULL,
		title TEXT NOT NULL,
		state INTEGER NOT NULL,
		assessment INTEGER NOT NULL,
		display_mode INTEGER NOT NULL,
		visibility INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		modified_at INTEGER NOT NULL,
		PRIMARY KEY (creator, ballot_id)
	);

	CREATE TABLE IF NOT EXISTS ballot_choices (
		creator TEXT NOT NULL,
		ballot_id BLOB NOT NULL,
		choice_id INTEGER NOT NULL,
		sort_order INTEGER NOT NULL,
		label TEXT NOT NULL,
		PRIMARY KEY (creator, ballot_id, choice_id),
		FOREIGN KEY (creator, ballot_id) REFERENCES ballots(creator, ballot_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ballot_votes (
		creator TEXT NOT NULL,
		ballot_id BLOB NOT NULL,
		choice_id INTEGER NOT NULL,
		participant TEXT NOT NULL,
		value INTEGER NOT NULL,
		voted_at INTEGER NOT NULL,
		PRIMARY KEY (creator, ballot_id, choice_id, participant),
		FOREIGN KEY (creator, ballot_id) REFERENCES ballots(creator, ballot_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ballot_participants (
		creator TEXT NOT NULL,
		ballot_id BLOB NOT NULL,
		position INTEGER NOT NULL,
		participant TEXT NOT NULL,
		PRIMARY KEY (creator, ballot_id, participant),
		FOREIGN KEY (creator, ballot_id) REFERENCES ballots(creator, ballot_id) ON DELETE CASCADE
	);

	-- File messages table. blob_key and thumbnail are encrypted at rest.
	CREATE TABLE IF NOT EXISTS file_messages (
		conversation_id TEXT NOT NULL,
		message_id BLOB NOT NULL,
		sender TEXT NOT NULL DEFAULT '',
		blob_id BLOB NOT NULL,
		thumbnail_blob_id BLOB,
		blob_key BLOB NOT NULL,
		mime_type TEXT NOT NULL,
		thumbnail_mime TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		correlation_id TEXT NOT NULL DEFAULT '',
		rendering INTEGER NOT NULL,
		meta_duration REAL NOT NULL DEFAULT 0,
		meta_width INTEGER NOT NULL DEFAULT 0,
		meta_height INTEGER NOT NULL DEFAULT 0,
		meta_animated INTEGER NOT NULL DEFAULT 0,
		thumbnail BLOB,
		is_own INTEGER NOT NULL,
		date INTEGER NOT NULL,
		state INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, message_id)
	);

	-- Indexes for performance
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_contact ON conversations(contact_identity) WHERE contact_identity IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_group ON conversations(group_creator, group_id) WHERE group_creator IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_ballots_conversation ON ballots(conversation_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_file_messages_date ON file_messages(conversation_id, date DESC);
	`

	_, err := db.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.db.Close()
}

// inTx runs fn in a transaction, committing when it returns nil
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
