package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var errNoRows = errors.New("no rows affected")

// AppendMessage stores a message at the end of a conversation's log and
// bumps the conversation's updated_at. The conversation must exist.
func (s *Store) AppendMessage(ctx context.Context, conversationID int64, role Role, text string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid message role %q", role)
	}
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	now := s.timestamp()
	err = inTx(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errNoRows
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, type, text, created_at) VALUES (?, ?, ?, ?)`,
			conversationID, string(role), text, now,
		)
		return err
	})
	if errors.Is(err, errNoRows) {
		return fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return &StoreError{Op: "append message", Err: err}
	}

	s.log.Debug("saved message", "conversation_id", conversationID, "type", role)
	return nil
}

// GetMessages returns a conversation's messages in insertion order. An
// unknown conversation yields an empty slice.
func (s *Store) GetMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, conversation_id, type, text, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, &StoreError{Op: "get messages", Err: err}
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Text, &createdAt); err != nil {
			return nil, &StoreError{Op: "get messages", Err: err}
		}
		m.Role = Role(role)
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "get messages", Err: err}
	}
	return out, nil
}
