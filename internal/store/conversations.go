package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Create inserts a conversation with an empty context and returns its id.
func (s *Store) Create(ctx context.Context, personaID, personaName string) (int64, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}

	now := s.timestamp()
	res, err := db.ExecContext(ctx,
		`INSERT INTO conversations (persona, persona_name, context, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		personaID, personaName, now, now,
	)
	if err != nil {
		return 0, &StoreError{Op: "create", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StoreError{Op: "create", Err: err}
	}

	s.log.Debug("created conversation", "id", id, "persona", personaID)
	return id, nil
}

// Get returns one conversation, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Conversation, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	var c Conversation
	var createdAt, updatedAt string
	err = db.QueryRowContext(ctx,
		`SELECT id, persona, persona_name, context, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.PersonaID, &c.PersonaName, &c.Context, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// SetContext overwrites the free-text context and bumps updated_at.
func (s *Store) SetContext(ctx context.Context, id int64, text string) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx,
		`UPDATE conversations SET context = ?, updated_at = ? WHERE id = ?`, text, s.timestamp(), id,
	)
	if err != nil {
		return &StoreError{Op: "set context", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StoreError{Op: "set context", Err: err}
	}
	if n == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetContext returns the stored context, or "" when there is none.
func (s *Store) GetContext(ctx context.Context, id int64) (string, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	var text string
	err = db.QueryRowContext(ctx, `SELECT context FROM conversations WHERE id = ?`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &StoreError{Op: "get context", Err: err}
	}
	return text, nil
}

// ListAll returns one summary per conversation, most recently active first.
func (s *Store) ListAll(ctx context.Context) ([]Summary, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.persona, c.persona_name, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count,
			(SELECT text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.id LIMIT 1) AS first_message
		FROM conversations c
		ORDER BY julianday(c.updated_at) DESC, c.id DESC
	`)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var createdAt, updatedAt string
		var first sql.NullString
		if err := rows.Scan(&sum.ID, &sum.PersonaID, &sum.PersonaName, &createdAt, &updatedAt, &sum.MessageCount, &first); err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}
		sum.CreatedAt = parseTime(createdAt)
		sum.UpdatedAt = parseTime(updatedAt)
		sum.FirstMessage = preview(first.String)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}
	return out, nil
}

// Delete removes a conversation and every message it owns. Unknown ids are
// not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	err = inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}

	s.log.Debug("deleted conversation", "id", id)
	return nil
}

// ClearAll removes every message and then every conversation.
func (s *Store) ClearAll(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	err = inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM conversations`)
		return err
	})
	if err != nil {
		return &StoreError{Op: "clear", Err: err}
	}

	s.log.Info("cleared all conversations")
	return nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLength {
		return text
	}
	return string(r[:PreviewLength]) + "..."
}
