package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comigor/stringalong/internal/config"
	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/persona"
	"github.com/comigor/stringalong/internal/store"
)

// mockDispatcher records every request and answers through DispatchFunc.
type mockDispatcher struct {
	DispatchFunc func(ctx context.Context, providerID string, req llm.Request) (string, error)
	calls        []llm.Request
	providers    []string
}

func (m *mockDispatcher) Dispatch(ctx context.Context, providerID string, req llm.Request) (string, error) {
	m.calls = append(m.calls, req)
	m.providers = append(m.providers, providerID)
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, providerID, req)
	}
	return "", nil
}

func replying(text string) *mockDispatcher {
	return &mockDispatcher{
		DispatchFunc: func(ctx context.Context, providerID string, req llm.Request) (string, error) {
			return text, nil
		},
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestSend_FirstTurnCreatesConversation(t *testing.T) {
	st := setupTestStore(t)
	d := replying("Oh my, what link dear?")
	s := New(st, d)
	ctx := context.Background()

	assert.Equal(t, StateNoConversation, s.State())
	res, err := s.Send(ctx, "  Hi grandma, click this link  ")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.False(t, res.Discarded)
	assert.Equal(t, "Oh my, what link dear?", res.Reply)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, res.ConversationID, s.ConversationID())

	list, err := st.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ethel Mae", list[0].PersonaName)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.True(t, strings.HasPrefix(list[0].FirstMessage, "Hi grandma, click this link"))

	stored, err := st.GetMessages(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, store.RoleIncoming, stored[0].Role)
	assert.Equal(t, store.RoleGenerated, stored[1].Role)

	require.Len(t, d.calls, 1)
	assert.Equal(t, []llm.Turn{{Role: llm.RoleUser, Content: "Hi grandma, click this link"}}, d.calls[0].History)
	assert.Contains(t, d.calls[0].SystemPrompt, "You are Ethel Mae, age 78.")
}

func TestSend_SecondTurnCarriesHistory(t *testing.T) {
	st := setupTestStore(t)
	replies := []string{"WHO IS THIS", "my grandson tommy handles the computer"}
	d := &mockDispatcher{}
	d.DispatchFunc = func(ctx context.Context, providerID string, req llm.Request) (string, error) {
		return replies[len(d.calls)-1], nil
	}
	s := New(st, d)
	ctx := context.Background()

	first, err := s.Send(ctx, "Your account is locked")
	require.NoError(t, err)
	second, err := s.Send(ctx, "Send me the code")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	require.Len(t, d.calls, 2)
	assert.Equal(t, []llm.Turn{
		{Role: llm.RoleUser, Content: "Your account is locked"},
		{Role: llm.RoleAssistant, Content: "WHO IS THIS"},
		{Role: llm.RoleUser, Content: "Send me the code"},
	}, d.calls[1].History)

	assert.Equal(t, []Entry{
		{Role: store.RoleIncoming, Text: "Your account is locked"},
		{Role: store.RoleGenerated, Text: "WHO IS THIS"},
		{Role: store.RoleIncoming, Text: "Send me the code"},
		{Role: store.RoleGenerated, Text: "my grandson tommy handles the computer"},
	}, s.Messages())
}

func TestSend_MissingCredentialKeepsOnlyIncoming(t *testing.T) {
	st := setupTestStore(t)
	router := llm.NewRouterFromConfig(config.ProvidersConfig{}, nil)
	s := New(st, router)
	ctx := context.Background()

	res, err := s.Send(ctx, "Hello, this is the IRS")
	require.NoError(t, err)

	var cfgErr *llm.ConfigurationError
	require.True(t, errors.As(res.Err, &cfgErr))
	assert.Equal(t, "ANTHROPIC_API_KEY", cfgErr.Missing)
	assert.True(t, errors.As(s.Err(), &cfgErr))
	assert.Equal(t, FailureReply, res.Reply)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Entry{Role: store.RoleGenerated, Text: FailureReply}, msgs[1])

	stored, err := st.GetMessages(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, store.RoleIncoming, stored[0].Role)
	assert.Equal(t, "Hello, this is the IRS", stored[0].Text)
}

func TestSend_EmptyReplyUsesPlaceholder(t *testing.T) {
	st := setupTestStore(t)
	s := New(st, replying(""))

	res, err := s.Send(context.Background(), "hello?")
	require.NoError(t, err)
	assert.NoError(t, res.Err)
	assert.Equal(t, EmptyReply, res.Reply)

	stored, err := st.GetMessages(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, EmptyReply, stored[1].Text)
}

func TestSend_RejectsBlankMessage(t *testing.T) {
	st := setupTestStore(t)
	d := replying("x")
	s := New(st, d)

	_, err := s.Send(context.Background(), "   \n")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, d.calls)
	assert.Equal(t, StateNoConversation, s.State())
}

func TestSend_ContextReachesPromptAndStore(t *testing.T) {
	st := setupTestStore(t)
	d := replying("ok dear")
	s := New(st, d)
	ctx := context.Background()

	require.NoError(t, s.SetContext(ctx, "Grandson Tommy lives in Ohio"))
	res, err := s.Send(ctx, "Hi grandma")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(d.calls[0].SystemPrompt, "Grandson Tommy lives in Ohio"))
	got, err := st.GetContext(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Grandson Tommy lives in Ohio", got)

	require.NoError(t, s.SetContext(ctx, "Cat named Whiskers"))
	got, err = st.GetContext(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Cat named Whiskers", got)
}

func TestSend_BusyAndStaleReply(t *testing.T) {
	st := setupTestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	d := &mockDispatcher{
		DispatchFunc: func(ctx context.Context, providerID string, req llm.Request) (string, error) {
			close(started)
			<-release
			return "too late", nil
		},
	}
	s := New(st, d)
	ctx := context.Background()

	type outcome struct {
		res TurnResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Send(ctx, "first")
		done <- outcome{res, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch never started")
	}
	assert.True(t, s.Busy())

	_, err := s.Send(ctx, "second")
	assert.ErrorIs(t, err, ErrBusy)

	s.Reset(ctx)
	close(release)

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("turn never finished")
	}
	require.NoError(t, out.err)
	assert.True(t, out.res.Discarded)
	assert.False(t, s.Busy())
	assert.Empty(t, s.Messages())
	assert.Equal(t, StateNoConversation, s.State())

	stored, err := st.GetMessages(ctx, out.res.ConversationID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "stale reply must not be saved")
	assert.Equal(t, "first", stored[0].Text)
}

func TestLoad(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	id, err := st.Create(ctx, "paranoid_prepper", "Dale")
	require.NoError(t, err)
	require.NoError(t, st.AppendMessage(ctx, id, store.RoleIncoming, "Your package is held"))
	require.NoError(t, st.AppendMessage(ctx, id, store.RoleGenerated, "WHO SENT YOU"))
	require.NoError(t, st.SetContext(ctx, id, "lives off grid"))

	d := replying("I don't trust the mail")
	s := New(st, d)
	require.NoError(t, s.Load(ctx, id))

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, id, s.ConversationID())
	assert.Equal(t, "paranoid_prepper", s.Persona().ID)
	assert.Equal(t, "lives off grid", s.Context())
	require.Len(t, s.Messages(), 2)

	_, err = s.Send(ctx, "Pay the fee")
	require.NoError(t, err)
	require.Len(t, d.calls, 1)
	assert.Len(t, d.calls[0].History, 3)
	assert.Contains(t, d.calls[0].SystemPrompt, "lives off grid")

	stored, err := st.GetMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestLoad_Unknown(t *testing.T) {
	s := New(setupTestStore(t), replying("x"))
	err := s.Load(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, StateNoConversation, s.State())
}

func TestReset_KeepsStoredConversation(t *testing.T) {
	st := setupTestStore(t)
	s := New(st, replying("hm?"))
	ctx := context.Background()

	first, err := s.Send(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, s.SetContext(ctx, "note"))
	s.Reset(ctx)

	assert.Equal(t, StateNoConversation, s.State())
	assert.Zero(t, s.ConversationID())
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.Context())

	list, err := st.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	second, err := s.Send(ctx, "hello again")
	require.NoError(t, err)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
}

func TestSelectPersona(t *testing.T) {
	s := New(setupTestStore(t), replying("hey!!"))
	ctx := context.Background()

	assert.ErrorIs(t, s.SelectPersona("nobody"), persona.ErrUnknownPersona)
	require.NoError(t, s.SelectPersona("eager_but_clueless"))
	assert.Equal(t, "Kevin", s.Persona().Name)

	_, err := s.Send(ctx, "hi")
	require.NoError(t, err)
	assert.ErrorIs(t, s.SelectPersona("confused_elderly"), ErrPersonaLocked)

	s.Reset(ctx)
	assert.NoError(t, s.SelectPersona("confused_elderly"))
}

func TestSelectProvider(t *testing.T) {
	d := replying("ok")
	s := New(setupTestStore(t), d)

	assert.Equal(t, llm.ProviderAnthropic, s.Provider())
	assert.Equal(t, llm.ProviderOllama, s.SelectProvider("ollama"))
	assert.Equal(t, llm.ProviderAnthropic, s.SelectProvider("gemini"))

	s.SelectProvider("openai")
	_, err := s.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, d.providers)
}

func TestDelete(t *testing.T) {
	st := setupTestStore(t)
	s := New(st, replying("ok"))
	ctx := context.Background()

	other, err := st.Create(ctx, "confused_elderly", "Ethel Mae")
	require.NoError(t, err)
	res, err := s.Send(ctx, "hi")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, other))
	assert.Equal(t, StateActive, s.State())

	require.NoError(t, s.Delete(ctx, res.ConversationID))
	assert.Equal(t, StateNoConversation, s.State())
	assert.Empty(t, s.Messages())

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTranscript(t *testing.T) {
	s := New(setupTestStore(t), replying("WHAT LINK"))
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	assert.Empty(t, s.Transcript())
	_, err := s.Send(context.Background(), "click the link")
	require.NoError(t, err)

	want := "StringAlong Conversation Export\n" +
		"Persona: Ethel Mae, 78\n" +
		"Date: 2024-05-01 09:30:00\n" +
		strings.Repeat("=", 50) + "\n\n" +
		"[SCAMMER]\nclick the link\n" +
		"\n" +
		"[ETHEL MAE]\nWHAT LINK\n"
	assert.Equal(t, want, s.Transcript())
}

func TestSend_ReloadingSameConversationKeepsReply(t *testing.T) {
	st := setupTestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	d := &mockDispatcher{}
	d.DispatchFunc = func(ctx context.Context, providerID string, req llm.Request) (string, error) {
		if len(d.calls) == 1 {
			return "first reply", nil
		}
		close(started)
		<-release
		return "second reply", nil
	}
	s := New(st, d)
	ctx := context.Background()

	first, err := s.Send(ctx, "hello")
	require.NoError(t, err)
	convID := first.ConversationID

	done := make(chan TurnResult, 1)
	go func() {
		res, err := s.Send(ctx, "are you there?")
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch never started")
	}
	require.NoError(t, s.Load(ctx, convID))
	close(release)

	var res TurnResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("turn never finished")
	}
	assert.False(t, res.Discarded)
	assert.Equal(t, "second reply", res.Reply)

	stored, err := st.GetMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, store.RoleGenerated, stored[3].Role)
	assert.Equal(t, "second reply", stored[3].Text)

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "second reply", msgs[3].Text)
}
