package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// ===== FILE MESSAGE OPERATIONS =====

const fileColumns = `
	conversation_id, message_id, sender, blob_id, thumbnail_blob_id,
	blob_key, mime_type, thumbnail_mime, size, filename, caption,
	correlation_id, rendering, meta_duration, meta_width, meta_height,
	meta_animated, thumbnail, is_own, date, state`

// FindFileMessage retrieves a file message of a conversation
func (db *DB) FindFileMessage(ctx context.Context, conversationID string, id protocol.MessageID) (*entity.FileMessage, error) {
	query := `SELECT ` + fileColumns + ` FROM file_messages WHERE conversation_id = ? AND message_id = ?`

	f, err := db.scanFileMessage(db.db.QueryRowContext(ctx, query, conversationID, id[:]))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFileMessage stores a new file message. ErrAlreadyExists when the
// message id is taken in the conversation.
func (db *DB) CreateFileMessage(ctx context.Context, f *entity.FileMessage) error {
	return db.writeFileMessage(ctx, f, "")
}

// SaveFileMessage inserts or replaces a file message
func (db *DB) SaveFileMessage(ctx context.Context, f *entity.FileMessage) error {
	return db.writeFileMessage(ctx, f, `
		ON CONFLICT(conversation_id, message_id) DO UPDATE SET
			sender = excluded.sender,
			blob_id = excluded.blob_id,
			thumbnail_blob_id = excluded.thumbnail_blob_id,
			blob_key = excluded.blob_key,
			mime_type = excluded.mime_type,
			thumbnail_mime = excluded.thumbnail_mime,
			size = excluded.size,
			filename = excluded.filename,
			caption = excluded.caption,
			correlation_id = excluded.correlation_id,
			rendering = excluded.rendering,
			meta_duration = excluded.meta_duration,
			meta_width = excluded.meta_width,
			meta_height = excluded.meta_height,
			meta_animated = excluded.meta_animated,
			thumbnail = excluded.thumbnail,
			is_own = excluded.is_own,
			date = excluded.date,
			state = excluded.state`)
}

// GetConversationFiles retrieves file messages of a conversation, newest first
func (db *DB) GetConversationFiles(ctx context.Context, conversationID string, limit, offset int) ([]*entity.FileMessage, error) {
	query := `SELECT ` + fileColumns + `
		FROM file_messages
		WHERE conversation_id = ?
		ORDER BY date DESC
		LIMIT ? OFFSET ?`

	rows, err := db.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*entity.FileMessage
	for rows.Next() {
		f, err := db.scanFileMessage(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateDownloadState moves a file message to a new download state
func (db *DB) UpdateDownloadState(ctx context.Context, conversationID string, id protocol.MessageID, state entity.DownloadState) error {
	res, err := db.db.ExecContext(ctx,
		`UPDATE file_messages SET state = ? WHERE conversation_id = ? AND message_id = ?`,
		state, conversationID, id[:])
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) writeFileMessage(ctx context.Context, f *entity.FileMessage, onConflict string) error {
	encryptedKey, err := crypto.AESEncrypt(f.Key[:], db.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt blob key: %w", err)
	}

	var encryptedThumbnail []byte
	if len(f.Thumbnail) > 0 {
		encryptedThumbnail, err = crypto.AESEncrypt(f.Thumbnail, db.encryptionKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt thumbnail: %w", err)
		}
	}

	var thumbnailBlobID []byte
	if f.HasThumbnail() {
		thumbnailBlobID = f.ThumbnailBlobID[:]
	}

	query := `INSERT INTO file_messages (` + fileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)` + onConflict

	_, err = db.db.ExecContext(ctx, query,
		f.ConversationID,
		f.MessageID[:],
		identityText(f.Sender),
		f.BlobID[:],
		thumbnailBlobID,
		encryptedKey,
		f.MIMEType,
		f.ThumbnailMIME,
		f.Size,
		f.Filename,
		f.Caption,
		f.CorrelationID,
		f.Rendering,
		f.Metadata.Duration,
		f.Metadata.Width,
		f.Metadata.Height,
		boolToInt(f.Metadata.Animated),
		encryptedThumbnail,
		boolToInt(f.IsOwn),
		toMillis(f.Date),
		f.State,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if onConflict == "" && errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to save file message: %w", err)
	}
	return nil
}

func (db *DB) scanFileMessage(row rowScanner) (*entity.FileMessage, error) {
	var f entity.FileMessage
	var messageID, blobID, thumbnailBlobID, encryptedKey, encryptedThumbnail []byte
	var sender string
	var animated, isOwn int
	var date int64

	err := row.Scan(
		&f.ConversationID,
		&messageID,
		&sender,
		&blobID,
		&thumbnailBlobID,
		&encryptedKey,
		&f.MIMEType,
		&f.ThumbnailMIME,
		&f.Size,
		&f.Filename,
		&f.Caption,
		&f.CorrelationID,
		&f.Rendering,
		&f.Metadata.Duration,
		&f.Metadata.Width,
		&f.Metadata.Height,
		&animated,
		&encryptedThumbnail,
		&isOwn,
		&date,
		&f.State,
	)
	if err != nil {
		return nil, err
	}

	if err := scanID(f.MessageID[:], messageID, "message id"); err != nil {
		return nil, err
	}
	if err := scanID(f.BlobID[:], blobID, "blob id"); err != nil {
		return nil, err
	}
	if err := scanID(f.ThumbnailBlobID[:], thumbnailBlobID, "thumbnail blob id"); err != nil {
		return nil, err
	}
	if f.Sender, err = parseIdentity(sender); err != nil {
		return nil, fmt.Errorf("corrupt file message sender: %w", err)
	}

	key, err := crypto.AESDecrypt(encryptedKey, db.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob key: %w", err)
	}
	if err := scanID(f.Key[:], key, "blob key"); err != nil {
		return nil, err
	}

	if len(encryptedThumbnail) > 0 {
		f.Thumbnail, err = crypto.AESDecrypt(encryptedThumbnail, db.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt thumbnail: %w", err)
		}
	}

	f.Metadata.Animated = intToBool(animated)
	f.IsOwn = intToBool(isOwn)
	f.Date = fromMillis(date)
	return &f, nil
}
