package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ragline/ragline/internal/engine"
	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/prompt"
)

// stubProcessor returns a canned answer or error.
type stubProcessor struct {
	answer engine.Answer
	err    error

	gotSessionID string
	gotMessage   string
}

func (s *stubProcessor) Process(_ context.Context, sessionID, message string) (engine.Answer, error) {
	s.gotSessionID = sessionID
	s.gotMessage = message
	if s.err != nil {
		return engine.Answer{}, s.err
	}
	return s.answer, nil
}

func newTestServer(t *testing.T, p Processor) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Processor: p, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

func postChat(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func TestChatSuccess(t *testing.T) {
	t.Parallel()

	p := &stubProcessor{answer: engine.Answer{Text: "the answer", Cached: true}}
	srv := newTestServer(t, p)

	rec := postChat(t, srv, `{"sessionId":"abc","query":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Response != "the answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.SessionID != "abc" {
		t.Errorf("sessionId = %q", resp.SessionID)
	}
	if !resp.Cached {
		t.Error("cached flag lost")
	}
	if p.gotSessionID != "abc" || p.gotMessage != "hello" {
		t.Errorf("processor got %q/%q", p.gotSessionID, p.gotMessage)
	}
}

func TestChatGeneratesSessionID(t *testing.T) {
	t.Parallel()

	p := &stubProcessor{answer: engine.Answer{Text: "hi"}}
	srv := newTestServer(t, p)

	rec := postChat(t, srv, `{"query":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("no session ID generated")
	}
	if resp.SessionID != p.gotSessionID {
		t.Error("returned session ID differs from the one processed")
	}
}

func TestChatErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "message too large",
			err:        fmt.Errorf("assembling: %w", prompt.ErrMessageTooLarge),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   CodeMessageTooLarge,
		},
		{
			name:       "completion unavailable",
			err:        fmt.Errorf("%w: after 3 retries", llm.ErrCompletionUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeCompletionUnavailable,
		},
		{
			name:       "empty message",
			err:        engine.ErrEmptyMessage,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "unexpected failure",
			err:        errors.New("pgx: something awful"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, &stubProcessor{err: tt.err})
			rec := postChat(t, srv, `{"sessionId":"s","query":"q"}`)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeError(t, rec); resp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestChatMalformedJSON(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubProcessor{})
	rec := postChat(t, srv, `{"query":`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != CodeInvalidRequest {
		t.Errorf("code = %q", resp.Error.Code)
	}
}

func TestChatEmptyQuery(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubProcessor{})
	rec := postChat(t, srv, `{"sessionId":"s","query":"  "}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatOversizedBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubProcessor{})
	body := fmt.Sprintf(`{"query":%q}`, strings.Repeat("x", maxRequestBody+1))
	rec := postChat(t, srv, body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubProcessor{})
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, panickingProcessor{})

	rec := postChat(t, srv, `{"sessionId":"s","query":"q"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panickingProcessor struct{}

func (panickingProcessor) Process(context.Context, string, string) (engine.Answer, error) {
	panic("handler exploded")
}
