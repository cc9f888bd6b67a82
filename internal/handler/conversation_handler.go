package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/comigor/stringalong/internal/persona"
	"github.com/comigor/stringalong/internal/session"
	"github.com/comigor/stringalong/internal/store"
)

// ConversationStore is the part of the store the conversation endpoints use.
// Turns go through a session, so it includes everything a session needs.
type ConversationStore interface {
	session.ConversationStore
	GetContext(ctx context.Context, id int64) (string, error)
	ClearAll(ctx context.Context) error
}

// ConversationHandler serves the stored conversations and runs turns on them.
type ConversationHandler struct {
	store      ConversationStore
	dispatcher Dispatcher

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(st ConversationStore, d Dispatcher) *ConversationHandler {
	return &ConversationHandler{store: st, dispatcher: d, inflight: map[int64]struct{}{}}
}

// CreateRequest is the body of POST /api/conversations.
type CreateRequest struct {
	Persona string `json:"persona"`
	Context string `json:"context"`
}

// TurnRequest is the body of POST /api/conversations/:id/messages.
type TurnRequest struct {
	Message  string `json:"message"`
	Provider string `json:"provider"`
}

type contextBody struct {
	Context string `json:"context"`
}

func conversationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return 0, false
	}
	return id, true
}

func storeFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// List returns every conversation summary, most recently active first.
func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// Messages returns one conversation's messages in order.
func (h *ConversationHandler) Messages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	msgs, err := h.store.GetMessages(c.Request.Context(), id)
	if err != nil {
		storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetContext returns a conversation's free-text context.
func (h *ConversationHandler) GetContext(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	text, err := h.store.GetContext(c.Request.Context(), id)
	if err != nil {
		storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, contextBody{Context: text})
}

// PutContext overwrites a conversation's context.
func (h *ConversationHandler) PutContext(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var body contextBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.store.SetContext(c.Request.Context(), id, body.Context); err != nil {
		storeFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Delete removes one conversation. Unknown ids succeed.
func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		storeFailure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearAll removes every conversation.
func (h *ConversationHandler) ClearAll(c *gin.Context) {
	if err := h.store.ClearAll(c.Request.Context()); err != nil {
		storeFailure(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Create starts an empty conversation for a persona; an empty persona picks
// the default one.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	p := persona.Default()
	if req.Persona != "" {
		var err error
		if p, err = persona.Lookup(req.Persona); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	id, err := h.store.Create(ctx, p.ID, p.Name)
	if err != nil {
		storeFailure(c, err)
		return
	}
	if strings.TrimSpace(req.Context) != "" {
		if err := h.store.SetContext(ctx, id, req.Context); err != nil {
			storeFailure(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "persona": p.ID, "personaName": p.Name})
}

// Turn records an incoming message on a stored conversation and answers it
// in character. Backend failures still record the turn and come back as 200
// with the fallback reply and an error field.
func (h *ConversationHandler) Turn(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": session.ErrEmptyMessage.Error()})
		return
	}

	if !h.acquire(id) {
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrBusy.Error()})
		return
	}
	defer h.release(id)

	ctx := c.Request.Context()
	s := session.New(h.store, h.dispatcher)
	s.SelectProvider(req.Provider)
	if err := s.Load(ctx, id); err != nil {
		storeFailure(c, err)
		return
	}

	res, err := s.Send(ctx, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		storeFailure(c, err)
		return
	}

	body := gin.H{"conversationId": res.ConversationID, "reply": res.Reply}
	if res.Err != nil {
		_ = c.Error(res.Err)
		body["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// acquire marks a conversation as answering; one turn per conversation at a time.
func (h *ConversationHandler) acquire(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[id]; busy {
		return false
	}
	h.inflight[id] = struct{}{}
	return true
}

func (h *ConversationHandler) release(id int64) {
	h.mu.Lock()
	delete(h.inflight, id)
	h.mu.Unlock()
}
