package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/samlabs/sam-gateway/internal/api"
	"github.com/samlabs/sam-gateway/internal/archive"
	"github.com/samlabs/sam-gateway/internal/chat"
	"github.com/samlabs/sam-gateway/internal/store"
	"github.com/samlabs/sam-gateway/internal/widget"
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	controller *chat.Controller
	store      *store.Store
	backend    *api.Client
	widget     *widget.Hub
	archiver   *archive.Archiver
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(ctrl *chat.Controller, st *store.Store, backend *api.Client, hub *widget.Hub, arch *archive.Archiver) *CommandHandler {
	return &CommandHandler{
		controller: ctrl,
		store:      st,
		backend:    backend,
		widget:     hub,
		archiver:   arch,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "chat/text",
// "session/identity").
func (h *CommandHandler) Handle(ctx context.Context, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "chat":
		h.handleChat(ctx, action, cmd, send)
	case "session":
		h.handleSession(ctx, action, cmd, send)
	case "widget":
		h.handleWidget(action, cmd, send)
	case "platform":
		h.handlePlatform(ctx, action, cmd, send)
	case "archive":
		h.handleArchive(ctx, action, cmd, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleChat routes chat/* commands. Turns run asynchronously: their
// progress reaches the page through state and toast pushes, and the
// command result only acknowledges completion.
func (h *CommandHandler) handleChat(ctx context.Context, action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "interact":
		HandleActionAsync(cmd, send, func() (any, error) {
			h.controller.Interact(ctx)
			return nil, nil
		})
	case "text":
		var data ChatTextRequest
		if !DecodeAndValidate(cmd, send, &data) {
			return
		}
		HandleActionAsync(cmd, send, func() (any, error) {
			h.controller.SubmitText(ctx, data.Text)
			return nil, nil
		})
	default:
		slog.Warn("unknown chat action", "action", action)
	}
}

// handleSession routes session/* commands.
func (h *CommandHandler) handleSession(ctx context.Context, action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "identity":
		HandleCommand(h, cmd, send, func(data *IdentityRequest) error {
			return h.controller.SetIdentity(ctx, data.Platform, data.AccountID, nil)
		})
	case "intro":
		HandleCommand(h, cmd, send, func(data *IntroRequest) error {
			h.store.SetIntroSeen(data.Seen)
			return nil
		})
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleWidget routes widget/* commands from the page.
func (h *CommandHandler) handleWidget(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "volume-result":
		HandleCommand(h, cmd, send, func(data *WidgetVolumeResultRequest) error {
			h.widget.Resolve(data.ID, data.Volume)
			return nil
		})
	default:
		slog.Warn("unknown widget action", "action", action)
	}
}

// handlePlatform routes platform/* commands. Both actions proxy the
// backend and run asynchronously to keep the reader loop responsive.
func (h *CommandHandler) handlePlatform(ctx context.Context, action string, cmd WSCommand, send chan<- any) {
	var data PlatformRequest
	if !DecodeAndValidate(cmd, send, &data) {
		return
	}

	switch action {
	case "login":
		HandleActionAsync(cmd, send, func() (any, error) {
			authURL, err := h.backend.AuthURL(ctx, data.Platform)
			if err != nil {
				return nil, err
			}
			return map[string]string{"auth_url": authURL}, nil
		})
	case "status":
		HandleActionAsync(cmd, send, func() (any, error) {
			return h.backend.PlatformStatus(ctx, data.Platform, data.AccountID)
		})
	default:
		slog.Warn("unknown platform action", "action", action)
	}
}

// handleArchive routes archive/* commands.
func (h *CommandHandler) handleArchive(ctx context.Context, action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.archiver.Test(ctx)
		})
	default:
		slog.Warn("unknown archive action", "action", action)
	}
}

// handleStatus routes status/* commands.
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// State is pushed automatically; explicit get triggers an
		// immediate update via triggerStatusUpdate.
		slog.Debug("status/get received, state update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
