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

// ===== CONVERSATION OPERATIONS =====

const conversationColumns = `id, contact_identity, group_creator, group_id`

// SaveConversation stores a conversation. Saving an existing id is a no-op.
func (db *DB) SaveConversation(ctx context.Context, conv *entity.Conversation) error {
	var contact, creator sql.NullString
	var groupID []byte
	if conv.IsGroup() {
		creator = sql.NullString{String: conv.Group.Creator.String(), Valid: true}
		groupID = conv.Group.ID[:]
	} else {
		contact = sql.NullString{String: conv.Contact.String(), Valid: true}
	}

	query := `
		INSERT INTO conversations (id, contact_identity, group_creator, group_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := db.db.ExecContext(ctx, query, conv.ID, contact, creator, groupID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// FindConversation retrieves a conversation by id
func (db *DB) FindConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return db.findConversation(ctx, query, id)
}

// FindDirectConversation retrieves the 1:1 conversation with a contact
func (db *DB) FindDirectConversation(ctx context.Context, contact protocol.Identity) (*entity.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE contact_identity = ?`
	return db.findConversation(ctx, query, contact.String())
}

// FindGroupConversation retrieves the conversation of a group route
func (db *DB) FindGroupConversation(ctx context.Context, route protocol.GroupRoute) (*entity.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE group_creator = ? AND group_id = ?`
	return db.findConversation(ctx, query, route.Creator.String(), route.ID[:])
}

func (db *DB) findConversation(ctx context.Context, query string, args ...any) (*entity.Conversation, error) {
	conv, err := scanConversation(db.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversations retrieves all conversations, newest first
func (db *DB) GetConversations(ctx context.Context) ([]*entity.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations ORDER BY created_at DESC, id ASC`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*entity.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func scanConversation(row rowScanner) (*entity.Conversation, error) {
	var conv entity.Conversation
	var contact, creator sql.NullString
	var groupID []byte

	if err := row.Scan(&conv.ID, &contact, &creator, &groupID); err != nil {
		return nil, err
	}

	if creator.Valid {
		var route protocol.GroupRoute
		id, err := protocol.ParseIdentity(creator.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt conversation %s: %w", conv.ID, err)
		}
		route.Creator = id
		if err := scanID(route.ID[:], groupID, "group id"); err != nil {
			return nil, err
		}
		conv.Group = &route
		return &conv, nil
	}

	id, err := protocol.ParseIdentity(contact.String)
	if err != nil {
		return nil, fmt.Errorf("corrupt conversation %s: %w", conv.ID, err)
	}
	conv.Contact = id
	return &conv, nil
}
