package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/chatbook/libs/httpx"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/session"
)

// UserIDHeader carries the identity asserted by the upstream auth boundary.
const UserIDHeader = "X-User-Id"

type SessionManager interface {
	Issue(ctx context.Context, userID string) (string, session.Session, error)
	Validate(ctx context.Context, token string) (session.Session, error)
	End(ctx context.Context, sessionID string) error
}

type HistoryForgetter interface {
	Forget(ctx context.Context, sessionID string) error
}

type SessionHandler struct {
	sessions SessionManager
	history  HistoryForgetter
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionManager, history HistoryForgetter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, history: history, logger: logger}
}

type createSessionResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	token, s, err := h.sessions.Issue(r.Context(), userID)
	if err != nil {
		h.logger.Error("issue session failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createSessionResponse{
		Token:     token,
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s, ok := authenticate(w, r, h.sessions)
	if !ok {
		return
	}
	if err := h.sessions.End(r.Context(), s.ID); err != nil {
		h.logger.Error("end session failed", "session_id", s.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	if err := h.history.Forget(r.Context(), s.ID); err != nil {
		h.logger.Warn("drop chat history failed", "session_id", s.ID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// authenticate validates the bearer capability token and writes the error response itself.
func authenticate(w http.ResponseWriter, r *http.Request, sessions SessionManager) (session.Session, bool) {
	token := httpx.BearerToken(r)
	if token == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token")
		return session.Session{}, false
	}
	s, err := sessions.Validate(r.Context(), token)
	switch {
	case errors.Is(err, session.ErrExpired):
		httpx.WriteError(w, http.StatusUnauthorized, "session expired")
		return session.Session{}, false
	case errors.Is(err, session.ErrInvalid):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
		return session.Session{}, false
	case err != nil:
		httpx.WriteError(w, http.StatusServiceUnavailable, "session store unavailable")
		return session.Session{}, false
	}
	return s, true
}
