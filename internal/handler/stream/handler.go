package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miluhq/milu/internal/model/message"
	"github.com/miluhq/milu/internal/service/conversation"
	"github.com/miluhq/milu/pkg/utils"
)

// Handler streams the tokens of a generating assistant message via
// Server-Sent Events.
type Handler struct {
	conv *conversation.Service
}

// New creates the stream handler.
func New(conv *conversation.Service) *Handler {
	return &Handler{conv: conv}
}

// RegisterRoutes mounts the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{messageID}", h.handleStream)
}

// StreamResponse is one chunk on the token stream.
type StreamResponse struct {
	Event     string `json:"event"`
	MessageID string `json:"messageId,omitempty"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "messageID")
	ctx := r.Context()

	msg, err := h.conv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "message not found")
			return
		}
		log.Printf("[stream] failed to load message=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	utils.SetupSSEHeaders(w)

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		MessageID: id,
		Status:    statusOf(msg),
	})

	tokens, live := h.conv.Subscribe(ctx, id)
	if live {
		for token := range tokens {
			h.sendSSE(w, flusher, StreamResponse{
				Event:     "delta",
				MessageID: id,
				Content:   token,
			})
		}
		if ctx.Err() != nil {
			log.Printf("[stream] client went away for message=%s", id)
			return
		}

		// Re-read to pick up the final content and status.
		msg, err = h.conv.Get(ctx, id)
		if err != nil {
			h.sendSSE(w, flusher, StreamResponse{Event: "error", MessageID: id, Error: fmt.Sprintf("failed to reload message: %v", err)})
			return
		}
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		MessageID: id,
		Content:   contentOf(msg),
		Status:    statusOf(msg),
	})
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		MessageID: id,
		Finished:  true,
	})

	log.Printf("[stream] completed stream for message=%s", id)
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		log.Printf("failed to marshal SSE response: %v", err)
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func statusOf(msg message.Message) string {
	if msg.Status == nil {
		return ""
	}
	return *msg.Status
}

func contentOf(msg message.Message) string {
	if msg.Content == nil {
		return ""
	}
	return *msg.Content
}
