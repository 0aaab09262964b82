package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/chatbook/libs/httpx"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/conversation"
)

const maxMessageLength = 4000

type Conversation interface {
	Handle(ctx context.Context, sessionID, userID, text string) (conversation.Reply, error)
}

type ChatHandler struct {
	sessions SessionManager
	convo    Conversation
	logger   *slog.Logger
}

func NewChatHandler(sessions SessionManager, convo Conversation, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, convo: convo, logger: logger}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatMetadata struct {
	Intent *string `json:"intent"`
	Error  string  `json:"error,omitempty"`
}

type chatResponse struct {
	Message   string       `json:"message"`
	Metadata  chatMetadata `json:"metadata"`
	SessionID string       `json:"session_id"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s, ok := authenticate(w, r, h.sessions)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		httpx.WriteError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(req.Message) > maxMessageLength {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "message too long")
		return
	}
	if req.SessionID != "" && req.SessionID != s.ID {
		httpx.WriteError(w, http.StatusForbidden, "token does not belong to this session")
		return
	}

	out, err := h.convo.Handle(r.Context(), s.ID, s.UserID, req.Message)
	if errors.Is(err, conversation.ErrSessionBusy) {
		httpx.WriteError(w, http.StatusConflict, "previous message is still being processed")
		return
	}
	if err != nil {
		h.logger.Error("chat turn failed", "session_id", s.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "chat unavailable")
		return
	}

	resp := chatResponse{Message: out.Message, SessionID: s.ID, Metadata: chatMetadata{Error: out.Error}}
	if out.Intent != "" {
		intent := out.Intent
		resp.Metadata.Intent = &intent
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
