package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/engine"
	"github.com/ragline/ragline/internal/llm"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/prompt"
)

// maxRequestBody bounds the chat request body size.
const maxRequestBody = 1 << 20 // 1 MiB

// Processor handles one chat turn. Satisfied by *engine.Engine.
type Processor interface {
	Process(ctx context.Context, sessionID, message string) (engine.Answer, error)
}

// ChatRequest is the POST /api/chat payload. SessionID is optional; a
// fresh session is created when it is empty.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

// ChatResponse is the successful reply.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
	Cached    bool   `json:"cached"`
}

// Chat handles the chat endpoint.
type Chat struct {
	processor Processor
	logger    log.Logger
}

// NewChat creates the chat handler.
func NewChat(p Processor, logger log.Logger) *Chat {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Chat{processor: p, logger: logger}
}

// ServeHTTP processes one chat request.
func (h *Chat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeMessageTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed JSON body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "query must not be empty")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	answer, err := h.processor.Process(r.Context(), sessionID, req.Query)
	if err != nil {
		h.writeProcessError(w, r, sessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  answer.Text,
		SessionID: sessionID,
		Cached:    answer.Cached,
	})
}

func (h *Chat) writeProcessError(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	switch {
	case errors.Is(err, prompt.ErrMessageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, CodeMessageTooLarge, "message exceeds the context budget")
	case errors.Is(err, llm.ErrCompletionUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeCompletionUnavailable, "completion provider unavailable, try again later")
	case errors.Is(err, engine.ErrEmptyMessage), errors.Is(err, engine.ErrEmptySessionID):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; status is best effort.
		writeError(w, http.StatusServiceUnavailable, CodeInternal, "request canceled")
	default:
		h.logger.Error("chat request failed",
			"session_id", sessionID,
			"path", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
