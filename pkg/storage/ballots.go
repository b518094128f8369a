package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// ===== BALLOT OPERATIONS =====

// FindBallot retrieves a ballot with its choices, participants and votes
func (db *DB) FindBallot(ctx context.Context, key entity.BallotKey) (*entity.Ballot, error) {
	return loadBallot(ctx, db.db, key)
}

// CreateBallot stores a new ballot. ErrAlreadyExists when the key is taken.
func (db *DB) CreateBallot(ctx context.Context, b *entity.Ballot) error {
	unlock := db.ballotLocks.Lock(b.Key.String())
	defer unlock()

	return db.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM ballots WHERE creator = ? AND ballot_id = ?`,
			b.Key.Creator.String(), b.Key.ID[:]).Scan(&one)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return writeBallot(ctx, tx, b)
	})
}

// SaveBallot inserts or replaces a ballot
func (db *DB) SaveBallot(ctx context.Context, b *entity.Ballot) error {
	unlock := db.ballotLocks.Lock(b.Key.String())
	defer unlock()

	return db.inTx(ctx, func(tx *sql.Tx) error {
		return writeBallot(ctx, tx, b)
	})
}

// UpdateBallot runs a read-modify-write on one ballot. Updates of the same
// ballot are serialized; fn sees a private copy and the result is written
// only when fn reports a change.
func (db *DB) UpdateBallot(ctx context.Context, key entity.BallotKey, fn func(b *entity.Ballot) (bool, error)) (bool, error) {
	unlock := db.ballotLocks.Lock(key.String())
	defer unlock()

	changed := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		b, err := loadBallot(ctx, tx, key)
		if err != nil {
			return err
		}

		changed, err = fn(b)
		if err != nil || !changed {
			return err
		}
		if b.Key != key {
			return fmt.Errorf("ballot key changed during update")
		}
		return writeBallot(ctx, tx, b)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// GetConversationBallots lists the ballots of a conversation, newest first
func (db *DB) GetConversationBallots(ctx context.Context, conversationID string) ([]*entity.Ballot, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT creator, ballot_id FROM ballots WHERE conversation_id = ? ORDER BY created_at DESC`, conversationID)
	if err != nil {
		return nil, err
	}

	var keys []entity.BallotKey
	for rows.Next() {
		var creator string
		var id []byte
		if err := rows.Scan(&creator, &id); err != nil {
			rows.Close()
			return nil, err
		}
		key, err := ballotKey(creator, id)
		if err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ballots := make([]*entity.Ballot, 0, len(keys))
	for _, key := range keys {
		b, err := db.FindBallot(ctx, key)
		if err != nil {
			return nil, err
		}
		ballots = append(ballots, b)
	}
	return ballots, nil
}

func ballotKey(creator string, id []byte) (entity.BallotKey, error) {
	var key entity.BallotKey
	c, err := protocol.ParseIdentity(creator)
	if err != nil {
		return key, fmt.Errorf("corrupt ballot row: %w", err)
	}
	key.Creator = c
	if err := scanID(key.ID[:], id, "ballot id"); err != nil {
		return key, err
	}
	return key, nil
}

func loadBallot(ctx context.Context, q querier, key entity.BallotKey) (*entity.Ballot, error) {
	creator, id := key.Creator.String(), key.ID[:]

	query := `
		SELECT conversation_id, title, state, assessment, display_mode,
		       visibility, created_at, modified_at
		FROM ballots WHERE creator = ? AND ballot_id = ?
	`

	b := &entity.Ballot{Key: key}
	var createdAt, modifiedAt int64
	err := q.QueryRowContext(ctx, query, creator, id).Scan(
		&b.ConversationID,
		&b.Title,
		&b.State,
		&b.Assessment,
		&b.DisplayMode,
		&b.Visibility,
		&createdAt,
		&modifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	b.ModifiedAt = fromMillis(modifiedAt)

	if err := loadChoices(ctx, q, b); err != nil {
		return nil, err
	}
	if err := loadParticipants(ctx, q, b); err != nil {
		return nil, err
	}
	if err := loadVotes(ctx, q, b); err != nil {
		return nil, err
	}
	return b, nil
}

func loadChoices(ctx context.Context, q querier, b *entity.Ballot) error {
	rows, err := q.QueryContext(ctx,
		`SELECT choice_id, sort_order, label FROM ballot_choices WHERE creator = ? AND ballot_id = ? ORDER BY sort_order, choice_id`,
		b.Key.Creator.String(), b.Key.ID[:])
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c entity.Choice
		if err := rows.Scan(&c.ID, &c.Order, &c.Label); err != nil {
			return err
		}
		b.Choices = append(b.Choices, c)
	}
	return rows.Err()
}

func loadParticipants(ctx context.Context, q querier, b *entity.Ballot) error {
	rows, err := q.QueryContext(ctx,
		`SELECT participant FROM ballot_participants WHERE creator = ? AND ballot_id = ? ORDER BY position`,
		b.Key.Creator.String(), b.Key.ID[:])
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err
		}
		id, err := protocol.ParseIdentity(s)
		if err != nil {
			return fmt.Errorf("corrupt participant of ballot %s: %w", b.Key, err)
		}
		b.Participants = append(b.Participants, id)
	}
	return rows.Err()
}

func loadVotes(ctx context.Context, q querier, b *entity.Ballot) error {
	rows, err := q.QueryContext(ctx,
		`SELECT choice_id, participant, value, voted_at FROM ballot_votes WHERE creator = ? AND ballot_id = ? ORDER BY voted_at, participant, choice_id`,
		b.Key.Creator.String(), b.Key.ID[:])
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var v entity.Vote
		var participant string
		var value int
		var at int64
		if err := rows.Scan(&v.ChoiceID, &participant, &value, &at); err != nil {
			return err
		}
		id, err := protocol.ParseIdentity(participant)
		if err != nil {
			return fmt.Errorf("corrupt vote of ballot %s: %w", b.Key, err)
		}
		v.Participant = id
		v.Value = intToBool(value)
		v.At = fromMillis(at)
		b.Votes = append(b.Votes, v)
	}
	return rows.Err()
}

// writeBallot upserts the ballot row and replaces its child rows
func writeBallot(ctx context.Context, tx *sql.Tx, b *entity.Ballot) error {
	creator, id := b.Key.Creator.String(), b.Key.ID[:]

	query := `
		INSERT INTO ballots (
			creator, ballot_id, conversation_id, title, state, assessment,
			display_mode, visibility, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(creator, ballot_id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			title = excluded.title,
			state = excluded.state,
			assessment = excluded.assessment,
			display_mode = excluded.display_mode,
			visibility = excluded.visibility,
			modified_at = excluded.modified_at
	`

	_, err := tx.ExecContext(ctx, query,
		creator, id, b.ConversationID, b.Title,
		b.State, b.Assessment, b.DisplayMode, b.Visibility,
		toMillis(b.CreatedAt), toMillis(b.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save ballot: %w", err)
	}

	for _, table := range []string{"ballot_choices", "ballot_participants", "ballot_votes"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE creator = ? AND ballot_id = ?`, creator, id); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, c := range b.Choices {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ballot_choices (creator, ballot_id, choice_id, sort_order, label) VALUES (?, ?, ?, ?, ?)`,
			creator, id, c.ID, c.Order, c.Label)
		if err != nil {
			return fmt.Errorf("failed to save choice %d: %w", c.ID, err)
		}
	}

	for i, p := range b.Participants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ballot_participants (creator, ballot_id, position, participant) VALUES (?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			creator, id, i, p.String())
		if err != nil {
			return fmt.Errorf("failed to save participant: %w", err)
		}
	}

	for _, v := range b.Votes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ballot_votes (creator, ballot_id, choice_id, participant, value, voted_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(creator, ballot_id, choice_id, participant) DO UPDATE SET
				value = excluded.value,
				voted_at = excluded.voted_at`,
			creator, id, v.ChoiceID, v.Participant.String(), boolToInt(v.Value), toMillis(v.At))
		if err != nil {
			return fmt.Errorf("failed to save vote: %w", err)
		}
	}

	return nil
}
