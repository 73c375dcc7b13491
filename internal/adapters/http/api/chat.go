package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/finsight/internal/domain/model"
	"github.com/okian/finsight/pkg/logger"
)

// ChatDependencies defines what the chat handlers need.
type ChatDependencies interface {
	NewSession(ctx context.Context) (model.Session, error)
	Send(ctx context.Context, sessionID, message string) (model.Turn, error)
	Session(ctx context.Context, sessionID string) (model.Session, error)
}

// ChatHandler serves the conversational retriever.
type ChatHandler struct {
	deps ChatDependencies
	log  logger.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" validate:"required"`
}

type chatResponse struct {
	SessionID string       `json:"session_id"`
	Reply     string       `json:"reply"`
	Turns     []model.Turn `json:"turns"`
}

// HandleMessage handles POST /chat/messages. A request without session_id
// starts a new session with a generated id; an unseen session_id starts one
// under that id.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat_message"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req chatRequest
	if err := decode(w, r, op, &req); err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}

	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		s, err := h.deps.NewSession(r.Context())
		if err != nil {
			fail(r.Context(), h.log, w, op, err)
			return
		}
		id = s.ID
	}

	reply, err := h.deps.Send(r.Context(), id, req.Message)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	s, err := h.deps.Session(r.Context(), id)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: id, Reply: reply.Content, Turns: s.Turns})
}

// HandleSession handles GET /chat/sessions/{id} requests.
func (h *ChatHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.chat_session"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	s, err := h.deps.Session(r.Context(), id)
	if err != nil {
		fail(r.Context(), h.log, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
