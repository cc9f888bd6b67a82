// Package handler exposes the relay and the conversation store over HTTP.
// Conversations can be created and answered turn by turn here as well as
// from the terminal client.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/persona"
)

// NoResponseReply is returned by the chat endpoint when the backend answered
// without text.
const NoResponseReply = "Sorry, I didn't get a response. Can you try again?"

// Dispatcher relays a request to the backend named by providerID.
type Dispatcher interface {
	Dispatch(ctx context.Context, providerID string, req llm.Request) (string, error)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	System   string     `json:"system"`
	Messages []llm.Turn `json:"messages"`
	Provider string     `json:"provider"`
}

// ChatHandler relays prompts to a backend and lists what is available.
type ChatHandler struct {
	dispatcher Dispatcher
	discovery  llm.Discovery
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(d Dispatcher, discovery llm.Discovery) *ChatHandler {
	return &ChatHandler{dispatcher: d, discovery: discovery}
}

// Chat sends the prompt and history to the requested backend and returns the
// reply as {content}. Backend failures are reported as 500 {error}.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	content, err := h.dispatcher.Dispatch(c.Request.Context(), req.Provider, llm.Request{
		SystemPrompt: req.System,
		History:      req.Messages,
	})
	if err != nil {
		_ = c.Error(err)
		msg := err.Error()
		if msg == "" {
			msg = "Failed to connect to AI API"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	if content == "" {
		content = NoResponseReply
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

// Providers returns the selection list and its default.
func (h *ChatHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, h.discovery)
}

// Personas returns the persona catalog.
func (h *ChatHandler) Personas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"personas": persona.All(), "default": persona.DefaultID})
}
