// Package session binds one live chat session to a stored conversation.
//
// A session starts with no conversation. The first message creates one in the
// store and the session becomes active; loading a stored conversation does
// the same. Starting over drops the in-memory log but never deletes stored
// rows. At most one turn is in flight per session, and a reply that comes
// back after the session moved on to another conversation is discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/logger"
	"github.com/comigor/stringalong/internal/persona"
	"github.com/comigor/stringalong/internal/store"
)

// State is the session FSM state.
type State string

const (
	StateNoConversation State = "NoConversation"
	StateActive         State = "Active"
)

// Trigger is a session FSM trigger.
type Trigger string

const (
	TriggerStart Trigger = "Start"
	TriggerLoad  Trigger = "Load"
	TriggerReset Trigger = "Reset"
)

const (
	// FailureReply is shown in place of a reply when the backend call fails.
	FailureReply = "Oh goodness, my internet is being so slow today! Can you say that again?"
	// EmptyReply stands in for a backend answer that carried no text.
	EmptyReply = "Oh my... my computer froze up again. What were you saying, dear?"
)

var (
	ErrBusy          = errors.New("a message is already being answered")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrPersonaLocked = errors.New("persona cannot change once a conversation has started")
)

// ConversationStore is the part of the store a session needs.
type ConversationStore interface {
	Create(ctx context.Context, personaID, personaName string) (int64, error)
	Get(ctx context.Context, id int64) (*store.Conversation, error)
	AppendMessage(ctx context.Context, conversationID int64, role store.Role, text string) error
	GetMessages(ctx context.Context, conversationID int64) ([]store.Message, error)
	SetContext(ctx context.Context, id int64, text string) error
	ListAll(ctx context.Context) ([]store.Summary, error)
	Delete(ctx context.Context, id int64) error
}

// Dispatcher sends a request to the backend named by providerID.
type Dispatcher interface {
	Dispatch(ctx context.Context, providerID string, req llm.Request) (string, error)
}

// Entry is one message of the in-memory log.
type Entry struct {
	Role store.Role `json:"type"`
	Text string     `json:"text"`
}

// TurnResult describes how a turn ended.
type TurnResult struct {
	ConversationID int64
	Reply          string
	// Err is the backend or store failure absorbed by the turn, if any.
	Err error
	// Discarded is set when the reply arrived after the session had moved
	// to another conversation and was dropped.
	Discarded bool
}

// Session is a single user's view of one conversation at a time.
type Session struct {
	id         string
	store      ConversationStore
	dispatcher Dispatcher
	log        *slog.Logger
	now        func() time.Time

	mu             sync.Mutex
	fsm            *stateless.StateMachine
	persona        persona.Persona
	provider       string
	conversationID int64
	messages       []Entry
	context        string
	busy           bool
	lastErr        error
}

// New returns a session with the default persona and no conversation.
func New(st ConversationStore, d Dispatcher) *Session {
	id := uuid.NewString()
	s := &Session{
		id:         id,
		store:      st,
		dispatcher: d,
		log:        logger.For("session").With("session_id", id),
		now:        time.Now,
		persona:    persona.Default(),
		messages:   []Entry{},
	}
	s.fsm = s.newFSM()
	return s
}

func (s *Session) newFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateNoConversation)

	fsm.Configure(StateNoConversation).
		Permit(TriggerStart, StateActive).
		Permit(TriggerLoad, StateActive).
		Ignore(TriggerReset).
		OnEntry(func(ctx context.Context, args ...any) error {
			s.log.Debug("FSM: Entering NoConversation")
			return nil
		})

	fsm.Configure(StateActive).
		Permit(TriggerReset, StateNoConversation).
		PermitReentry(TriggerLoad).
		OnEntry(func(ctx context.Context, args ...any) error {
			s.log.Debug("FSM: Entering Active", "conversation_id", s.conversationID)
			return nil
		})

	return fsm
}

func (s *Session) fire(ctx context.Context, trigger Trigger) {
	if err := s.fsm.FireCtx(ctx, trigger); err != nil {
		s.log.Warn("FSM fire error", "trigger", trigger, "error", err)
	}
}

func (s *Session) stateLocked() State {
	return s.fsm.MustState().(State)
}

// Send runs one turn: it records the incoming message, asks the selected
// backend for an in-character reply and records that reply. Backend and
// store failures do not fail the turn; they end up in TurnResult.Err and Err.
// The returned error is only set when the turn was rejected outright.
func (s *Session) Send(ctx context.Context, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return TurnResult{}, ErrBusy
	}
	s.lastErr = nil

	if s.stateLocked() == StateNoConversation {
		if err := s.startLocked(ctx); err != nil {
			s.lastErr = err
			s.mu.Unlock()
			return TurnResult{}, err
		}
	}

	convID := s.conversationID
	prior := append([]Entry(nil), s.messages...)
	s.messages = append(s.messages, Entry{Role: store.RoleIncoming, Text: text})

	var storeErr error
	if err := s.store.AppendMessage(ctx, convID, store.RoleIncoming, text); err != nil {
		s.log.Error("Failed to save incoming message", "conversation_id", convID, "error", err)
		storeErr = err
	}

	req := llm.Request{
		SystemPrompt: persona.SystemPrompt(s.persona, s.context),
		History:      buildHistory(prior, text),
	}
	provider := s.provider
	s.busy = true
	s.mu.Unlock()

	s.log.Info("Dispatching turn", "conversation_id", convID, "provider", provider, "history", len(req.History))
	reply, err := s.dispatcher.Dispatch(ctx, provider, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false

	// Only the bound conversation decides staleness; reloading it keeps the reply.
	if s.conversationID != convID {
		s.log.Warn("Discarding stale reply", "conversation_id", convID, "current_conversation_id", s.conversationID)
		return TurnResult{ConversationID: convID, Reply: reply, Err: err, Discarded: true}, nil
	}

	if err != nil {
		s.log.Warn("Backend call failed", "conversation_id", convID, "provider", provider, "error", err)
		s.lastErr = err
		s.messages = append(s.messages, Entry{Role: store.RoleGenerated, Text: FailureReply})
		return TurnResult{ConversationID: convID, Reply: FailureReply, Err: err}, nil
	}

	if reply == "" {
		reply = EmptyReply
	}
	s.messages = append(s.messages, Entry{Role: store.RoleGenerated, Text: reply})
	if err := s.store.AppendMessage(ctx, convID, store.RoleGenerated, reply); err != nil {
		s.log.Error("Failed to save reply", "conversation_id", convID, "error", err)
		storeErr = errors.Join(storeErr, err)
	}
	s.lastErr = storeErr
	return TurnResult{ConversationID: convID, Reply: reply, Err: storeErr}, nil
}

// startLocked creates the stored conversation for the first turn.
func (s *Session) startLocked(ctx context.Context) error {
	id, err := s.store.Create(ctx, s.persona.ID, s.persona.Name)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}
	s.conversationID = id
	if strings.TrimSpace(s.context) != "" {
		if err := s.store.SetContext(ctx, id, s.context); err != nil {
			s.log.Error("Failed to save context", "conversation_id", id, "error", err)
		}
	}
	s.fire(ctx, TriggerStart)
	s.log.Info("Started conversation", "conversation_id", id, "persona", s.persona.ID)
	return nil
}

// buildHistory maps the log onto backend turns and appends the new message.
func buildHistory(prior []Entry, incoming string) []llm.Turn {
	turns := make([]llm.Turn, 0, len(prior)+1)
	for _, e := range prior {
		role := llm.RoleAssistant
		if e.Role == store.RoleIncoming {
			role = llm.RoleUser
		}
		turns = append(turns, llm.Turn{Role: role, Content: e.Text})
	}
	return append(turns, llm.Turn{Role: llm.RoleUser, Content: incoming})
}

// Load replaces the in-memory state with a stored conversation.
func (s *Session) Load(ctx context.Context, id int64) error {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := s.store.GetMessages(ctx, id)
	if err != nil {
		return err
	}

	p, err := persona.Lookup(conv.PersonaID)
	if err != nil {
		s.log.Warn("Stored conversation uses an unknown persona, using default", "conversation_id", id, "persona", conv.PersonaID)
		p = persona.Default()
	}

	entries := make([]Entry, len(msgs))
	for i, m := range msgs {
		entries[i] = Entry{Role: m.Role, Text: m.Text}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = conv.ID
	s.persona = p
	s.messages = entries
	s.context = conv.Context
	s.lastErr = nil
	s.fire(ctx, TriggerLoad)
	s.log.Info("Loaded conversation", "conversation_id", id, "messages", len(entries))
	return nil
}

// Reset starts over: the log and context are dropped and the next message
// creates a new conversation. Nothing is deleted from the store.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(ctx)
}

func (s *Session) resetLocked(ctx context.Context) {
	s.conversationID = 0
	s.messages = []Entry{}
	s.context = ""
	s.lastErr = nil
	s.fire(ctx, TriggerReset)
}

// Delete removes a stored conversation. When it is the one this session is
// bound to, the session is reset as well.
func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == id {
		s.resetLocked(ctx)
	}
	return nil
}

// List returns the stored conversations, most recently active first.
func (s *Session) List(ctx context.Context) ([]store.Summary, error) {
	return s.store.ListAll(ctx)
}

// SetContext replaces the free-text context. It is saved right away when a
// conversation is active, otherwise with the first message.
func (s *Session) SetContext(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = text
	if s.stateLocked() != StateActive {
		return nil
	}
	return s.store.SetContext(ctx, s.conversationID, text)
}

// SelectPersona picks the persona for the next conversation.
func (s *Session) SelectPersona(id string) error {
	p, err := persona.Lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() == StateActive {
		return ErrPersonaLocked
	}
	s.persona = p
	return nil
}

// SelectProvider sets the backend used by later turns and returns the one
// dispatch will actually use.
func (s *Session) SelectProvider(id string) llm.ProviderID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = id
	return llm.ParseProviderID(id)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) ConversationID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) Persona() persona.Persona {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persona
}

func (s *Session) Provider() llm.ProviderID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return llm.ParseProviderID(s.provider)
}

func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// Messages returns a copy of the in-memory log.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry{}, s.messages...)
}

// Err returns the failure recorded by the last turn, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Busy reports whether a turn is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Transcript renders the in-memory log as plain text, one block per message.
// It returns "" when the log is empty.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "StringAlong Conversation Export\nPersona: %s, %d\nDate: %s\n%s\n\n",
		s.persona.Name, s.persona.Age, s.now().Format(time.DateTime), strings.Repeat("=", 50))
	for i, m := range s.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		sender := "SCAMMER"
		if m.Role == store.RoleGenerated {
			sender = strings.ToUpper(s.persona.Name)
		}
		fmt.Fprintf(&b, "[%s]\n%s\n", sender, m.Text)
	}
	return b.String()
}
