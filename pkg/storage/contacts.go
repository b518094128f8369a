package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// ===== CONTACT OPERATIONS =====

// SaveContact adds or updates a contact
func (db *DB) SaveContact(ctx context.Context, contact *entity.Contact) error {
	if !contact.Identity.Valid() {
		return fmt.Errorf("invalid contact identity %q", contact.Identity)
	}

	query := `
		INSERT INTO contacts (identity, nickname, added_at, is_blocked)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			nickname = excluded.nickname,
			is_blocked = excluded.is_blocked
	`

	_, err := db.db.ExecContext(ctx, query,
		contact.Identity.String(),
		contact.Nickname,
		time.Now().UnixMilli(),
		boolToInt(contact.Blocked),
	)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

// FindContact retrieves a contact by identity
func (db *DB) FindContact(ctx context.Context, identity protocol.Identity) (*entity.Contact, error) {
	query := `SELECT identity, nickname, is_blocked FROM contacts WHERE identity = ?`

	contact, err := scanContact(db.db.QueryRowContext(ctx, query, identity.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// GetAllContacts retrieves all contacts
func (db *DB) GetAllContacts(ctx context.Context) ([]*entity.Contact, error) {
	query := `SELECT identity, nickname, is_blocked FROM contacts ORDER BY identity ASC`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*entity.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// BlockContact blocks a contact. Messages from blocked contacts are dropped.
func (db *DB) BlockContact(ctx context.Context, identity protocol.Identity) error {
	return db.setBlocked(ctx, identity, true)
}

// UnblockContact unblocks a contact
func (db *DB) UnblockContact(ctx context.Context, identity protocol.Identity) error {
	return db.setBlocked(ctx, identity, false)
}

func (db *DB) setBlocked(ctx context.Context, identity protocol.Identity, blocked bool) error {
	res, err := db.db.ExecContext(ctx, `UPDATE contacts SET is_blocked = ? WHERE identity = ?`, boolToInt(blocked), identity.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContact removes a contact
func (db *DB) DeleteContact(ctx context.Context, identity protocol.Identity) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM contacts WHERE identity = ?`, identity.String())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*entity.Contact, error) {
	var identity string
	var blocked int
	var contact entity.Contact

	if err := row.Scan(&identity, &contact.Nickname, &blocked); err != nil {
		return nil, err
	}

	id, err := protocol.ParseIdentity(identity)
	if err != nil {
		return nil, fmt.Errorf("corrupt contact row: %w", err)
	}
	contact.Identity = id
	contact.Blocked = intToBool(blocked)
	return &contact, nil
}
