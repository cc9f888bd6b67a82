// Package store provides SQLite-based persistence for baiting conversations.
//
// Two tables are kept: conversations, and the messages each one owns.
// Message order is the insertion order given by the AUTOINCREMENT row id;
// timestamps are informational only.
//
// A Store is constructed with New and opened lazily on first use; Open may be
// called any number of times. The database file survives restarts, so
// reopening the same path yields the same conversations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/stringalong/internal/logger"
)

// ErrNotFound is returned when an operation needs a conversation that does not exist.
var ErrNotFound = errors.New("conversation not found")

// StoreError wraps an underlying database failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Role tags who wrote a message. The persisted values are kept compatible
// with databases written by earlier versions.
type Role string

const (
	// RoleIncoming marks a message received from the scammer.
	RoleIncoming Role = "scammer"
	// RoleGenerated marks a reply produced in character.
	RoleGenerated Role = "victim"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleIncoming || r == RoleGenerated
}

// Conversation is a persisted conversation row.
type Conversation struct {
	ID          int64     `json:"id"`
	PersonaID   string    `json:"persona"`
	PersonaName string    `json:"personaName"`
	Context     string    `json:"context"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Message is one immutable entry of a conversation log.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Role           Role      `json:"type"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary is the listing view of a conversation.
type Summary struct {
	ID           int64     `json:"id"`
	PersonaID    string    `json:"persona"`
	PersonaName  string    `json:"personaName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	FirstMessage string    `json:"firstMessage"`
}

// PreviewLength bounds Summary.FirstMessage, in characters, before the ellipsis.
const PreviewLength = 50

// timeLayout is fixed width. Listing still orders through julianday() because
// databases written by earlier versions hold "YYYY-MM-DD HH:MM:SS" values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the conversation store.
type Store struct {
	path string
	now  func() time.Time
	log  *slog.Logger

	once    sync.Once
	db      *sql.DB
	openErr error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store for the database file at path. Nothing is touched on
// disk until Open or the first operation.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		now:  time.Now,
		log:  logger.For("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the database file, its parent directory and the schema if
// needed, and migrates older layouts. Only the first call does any work;
// later calls return the first result. Cancellation of ctx does not abort
// the open, since its result is kept for the life of the Store.
func (s *Store) Open(ctx context.Context) error {
	s.once.Do(func() {
		s.openErr = s.open(context.WithoutCancel(ctx))
	})
	return s.openErr
}

func (s *Store) open(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &StoreError{Op: "open", Err: fmt.Errorf("creating database directory: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", "file:"+s.path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)")
	if err != nil {
		return &StoreError{Op: "open", Err: err}
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return &StoreError{Op: "open", Err: fmt.Errorf("creating schema: %w", err)}
	}
	if err := s.migrate(ctx, db); err != nil {
		db.Close()
		return &StoreError{Op: "open", Err: fmt.Errorf("running migrations: %w", err)}
	}

	s.db = db
	s.log.Info("sqlite conversation store initialized", "path", s.path)
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			persona TEXT NOT NULL,
			persona_name TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, id);
	`)
	return err
}

// migrate brings databases written before the context column existed up to
// date. Existing rows get an empty context.
func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM pragma_table_info('conversations') WHERE name = 'context'`).Scan(&exists)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("probing context column: %w", err)
	}

	if _, err := db.ExecContext(ctx, `ALTER TABLE conversations ADD COLUMN context TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("adding context column to conversations: %w", err)
	}
	s.log.Info("applied migration", "column", "context", "table", "conversations")
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.log.Info("closing sqlite conversation store")
	return s.db.Close()
}

func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// parseTime accepts the current layout plus what older databases and the
// driver may hand back.
func parseTime(v string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
