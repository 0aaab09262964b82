package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/conversation"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/session"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/tools"
)

var now = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

// bookingModel books once, then confirms.
type bookingModel struct{}

func (bookingModel) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	last := req.History[len(req.History)-1]
	if last.Role == llm.RoleTool {
		return llm.Completion{Text: "Booked."}, nil
	}
	return llm.Completion{ToolCall: &llm.ToolCall{
		Name: tools.BookAppointment,
		Args: map[string]any{"date": "2024-03-15", "time": "14:00"},
	}}, nil
}

type testServer struct {
	mux      *http.ServeMux
	sessions *session.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cal, err := calendar.New("09:00", "17:00",
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, 30)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	clock := func() time.Time { return now }
	engine := availability.NewEngine(storage.NewMemoryStore(), cal, logger, availability.WithClock(clock))
	sessions, err := session.NewManager(session.NewMemoryStore(clock), "secret", 30*time.Minute, clock)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	orch := conversation.NewOrchestrator(bookingModel{}, tools.NewRegistry(engine, logger),
		conversation.NewMemoryHistory(40), conversation.NewMemoryLeaser(), cal, logger, conversation.Config{},
		conversation.WithClock(clock))

	sessionHandler := NewSessionHandler(sessions, orch, logger)
	chatHandler := NewChatHandler(sessions, orch, logger)
	bookingHandler := NewBookingHandler(engine, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions", sessionHandler.Create)
	mux.HandleFunc("/api/v1/sessions/end", sessionHandler.End)
	mux.HandleFunc("/api/v1/chat", chatHandler.Chat)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	return &testServer{mux: mux, sessions: sessions}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rw := httptest.NewRecorder()
	s.mux.ServeHTTP(rw, req)
	return rw
}

func (s *testServer) createSession(t *testing.T, user string) createSessionResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set(UserIDHeader, user)
	rw := s.do(req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rw.Code, rw.Body.String())
	}
	var out createSessionResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func chatRequestFor(token, sessionID, msg string) *http.Request {
	body, _ := json.Marshal(chatRequest{Message: msg, SessionID: sessionID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestChatFlow(t *testing.T) {
	s := newTestServer(t)
	sess := s.createSession(t, "alice")

	rw := s.do(chatRequestFor(sess.Token, sess.SessionID, "book friday 2pm"))
	if rw.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rw.Code, rw.Body.String())
	}
	var resp struct {
		Message  string `json:"message"`
		Metadata struct {
			Intent *string `json:"intent"`
		} `json:"metadata"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Booked." || resp.Metadata.Intent == nil || *resp.Metadata.Intent != tools.BookAppointment || resp.SessionID != sess.SessionID {
		t.Fatalf("unexpected response %s", rw.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=scheduled", nil)
	req.Header.Set(UserIDHeader, "alice")
	rw = s.do(req)
	var list struct {
		Items []listAppointmentItem `json:"items"`
	}
	_ = json.Unmarshal(rw.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.Items[0].StartTime != "14:00" {
		t.Fatalf("unexpected list %s", rw.Body.String())
	}

	rw = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=2024-03-15&duration_minutes=30", nil))
	var slots struct {
		Slots []slotItem `json:"slots"`
	}
	_ = json.Unmarshal(rw.Body.Bytes(), &slots)
	if len(slots.Slots) != 15 {
		t.Fatalf("expected 15 free slots, got %d", len(slots.Slots))
	}
	for _, sl := range slots.Slots {
		if sl.StartTime == "2024-03-15T14:00:00Z" {
			t.Fatal("booked slot is still listed")
		}
	}
}

func TestChatRejectsBadTokens(t *testing.T) {
	s := newTestServer(t)
	sess := s.createSession(t, "alice")

	if rw := s.do(chatRequestFor("garbage", sess.SessionID, "hi")); rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rw.Code)
	}
	if rw := s.do(chatRequestFor(sess.Token, "another-session", "hi")); rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched session, got %d", rw.Code)
	}
	if rw := s.do(chatRequestFor(sess.Token, sess.SessionID, "   ")); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rw.Code)
	}

	end := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/end", nil)
	end.Header.Set("Authorization", "Bearer "+sess.Token)
	if rw := s.do(end); rw.Code != http.StatusNoContent {
		t.Fatalf("end session: %d", rw.Code)
	}
	if rw := s.do(chatRequestFor(sess.Token, sess.SessionID, "hi")); rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after end, got %d", rw.Code)
	}
}

func TestCreateSessionRequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	rw := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}
}

func TestSlotsValidation(t *testing.T) {
	s := newTestServer(t)
	for _, q := range []string{"date=tomorrow", "date=2024-03-15&duration_minutes=0", "date=2024-03-15&duration_minutes=abc"} {
		rw := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?"+q, nil))
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rw.Code)
		}
	}
	rw := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=2024-03-16", nil))
	if rw.Code != http.StatusOK || !bytes.Contains(rw.Body.Bytes(), []byte(`"slots":[]`)) {
		t.Fatalf("expected empty slots on closed day, got %d %s", rw.Code, rw.Body.String())
	}
}
