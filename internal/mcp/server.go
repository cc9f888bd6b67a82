// Package mcp exposes one chat session as a set of MCP tools, so an MCP
// client can drive a conversation the same way the terminal client does.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/stringalong/internal/llm"
	"github.com/comigor/stringalong/internal/logger"
	"github.com/comigor/stringalong/internal/persona"
	"github.com/comigor/stringalong/internal/session"
)

const (
	serverName    = "stringalong"
	serverVersion = "0.1.0"
)

// Tools holds the handlers for every tool. They all act on the same session.
type Tools struct {
	session   *session.Session
	discovery llm.Discovery
	log       *slog.Logger
}

// NewTools binds the tool handlers to s.
func NewTools(s *session.Session, discovery llm.Discovery) *Tools {
	return &Tools{
		session:   s,
		discovery: discovery,
		log:       logger.For("mcp"),
	}
}

// NewServer builds an MCP server with every tool registered.
func NewServer(t *Tools) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(gomcp.NewTool("list_personas",
		gomcp.WithDescription("List the personas a conversation can be played as."),
	), t.ListPersonas)

	s.AddTool(gomcp.NewTool("list_providers",
		gomcp.WithDescription("List the language-model backends that are configured, and the default one."),
	), t.ListProviders)

	s.AddTool(gomcp.NewTool("select_persona",
		gomcp.WithDescription("Choose the persona for the next conversation. Not allowed while a conversation is active."),
		gomcp.WithString("persona", gomcp.Required(), gomcp.Description("Persona id, e.g. confused_elderly")),
	), t.SelectPersona)

	s.AddTool(gomcp.NewTool("select_provider",
		gomcp.WithDescription("Choose the backend that answers the next messages."),
		gomcp.WithString("provider", gomcp.Required(), gomcp.Description("anthropic, openai or ollama")),
	), t.SelectProvider)

	s.AddTool(gomcp.NewTool("send_message",
		gomcp.WithDescription("Relay a message received from the scammer and get the persona's reply."),
		gomcp.WithString("message", gomcp.Required(), gomcp.Description("The scammer's message")),
	), t.SendMessage)

	s.AddTool(gomcp.NewTool("set_context",
		gomcp.WithDescription("Replace the free-text facts the persona weaves into later replies."),
		gomcp.WithString("context", gomcp.Required(), gomcp.Description("Context text; empty clears it")),
	), t.SetContext)

	s.AddTool(gomcp.NewTool("new_conversation",
		gomcp.WithDescription("Start over. The current conversation stays saved."),
	), t.NewConversation)

	s.AddTool(gomcp.NewTool("list_conversations",
		gomcp.WithDescription("List saved conversations, most recently active first."),
	), t.ListConversations)

	s.AddTool(gomcp.NewTool("load_conversation",
		gomcp.WithDescription("Continue a saved conversation."),
		gomcp.WithNumber("id", gomcp.Required(), gomcp.Description("Conversation id")),
	), t.LoadConversation)

	s.AddTool(gomcp.NewTool("delete_conversation",
		gomcp.WithDescription("Delete a saved conversation and all of its messages."),
		gomcp.WithNumber("id", gomcp.Required(), gomcp.Description("Conversation id")),
	), t.DeleteConversation)

	return s
}

// Serve runs the server over stdin/stdout until the client goes away.
func Serve(t *Tools) error {
	return server.ServeStdio(NewServer(t))
}

func jsonResult(v any) (*gomcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return gomcp.NewToolResultText(string(b)), nil
}

func stringArg(req gomcp.CallToolRequest, name string) (string, bool) {
	v, ok := req.GetArguments()[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func idArg(req gomcp.CallToolRequest) (int64, error) {
	switch v := req.GetArguments()["id"].(type) {
	case float64:
		// JSON numbers arrive as float64; 1.9 must not quietly become 1.
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("argument %q must be a whole number", "id")
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, fmt.Errorf("missing required argument %q", "id")
	default:
		return 0, fmt.Errorf("argument %q must be a number", "id")
	}
}

func (t *Tools) ListPersonas(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"personas": persona.All(),
		"selected": t.session.Persona().ID,
	})
}

func (t *Tools) ListProviders(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"providers": t.discovery.Providers,
		"default":   t.discovery.Default,
		"selected":  t.session.Provider(),
	})
}

func (t *Tools) SelectPersona(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	id, ok := stringArg(req, "persona")
	if !ok {
		return gomcp.NewToolResultError("missing required argument \"persona\""), nil
	}
	if err := t.session.SelectPersona(id); err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	p := t.session.Persona()
	return gomcp.NewToolResultText(fmt.Sprintf("Selected %s (%d).", p.Name, p.Age)), nil
}

func (t *Tools) SelectProvider(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	id, ok := stringArg(req, "provider")
	if !ok {
		return gomcp.NewToolResultError("missing required argument \"provider\""), nil
	}
	resolved := t.session.SelectProvider(id)
	return gomcp.NewToolResultText(fmt.Sprintf("Using %s.", resolved)), nil
}

type sendResult struct {
	ConversationID int64  `json:"conversationId"`
	Reply          string `json:"reply"`
	Error          string `json:"error,omitempty"`
	Discarded      bool   `json:"discarded,omitempty"`
}

func (t *Tools) SendMessage(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	msg, ok := stringArg(req, "message")
	if !ok {
		return gomcp.NewToolResultError("missing required argument \"message\""), nil
	}
	res, err := t.session.Send(ctx, msg)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}

	out := sendResult{ConversationID: res.ConversationID, Reply: res.Reply, Discarded: res.Discarded}
	if res.Err != nil {
		t.log.Warn("turn finished with an error", "conversation_id", res.ConversationID, "error", res.Err)
		out.Error = res.Err.Error()
	}
	return jsonResult(out)
}

func (t *Tools) SetContext(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	text, ok := stringArg(req, "context")
	if !ok {
		return gomcp.NewToolResultError("missing required argument \"context\""), nil
	}
	if err := t.session.SetContext(ctx, text); err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	return gomcp.NewToolResultText("Context updated."), nil
}

func (t *Tools) NewConversation(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	t.session.Reset(ctx)
	return gomcp.NewToolResultText("Started a new conversation."), nil
}

func (t *Tools) ListConversations(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	list, err := t.session.List(ctx)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"conversations": list})
}

func (t *Tools) LoadConversation(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	id, err := idArg(req)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	if err := t.session.Load(ctx, id); err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"conversationId": id,
		"persona":        t.session.Persona().ID,
		"context":        t.session.Context(),
		"messages":       t.session.Messages(),
	})
}

func (t *Tools) DeleteConversation(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	id, err := idArg(req)
	if err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	if err := t.session.Delete(ctx, id); err != nil {
		return gomcp.NewToolResultError(err.Error()), nil
	}
	return gomcp.NewToolResultText(fmt.Sprintf("Deleted conversation %d.", id)), nil
}
