package stream

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/miluhq/milu/internal/model/message"
	"github.com/miluhq/milu/internal/service/conversation"
	"github.com/miluhq/milu/pkg/utils"
)

// SocketHandler pushes the same token feed as the SSE endpoint over a
// websocket, for clients that keep a long-lived connection.
type SocketHandler struct {
	conv     *conversation.Service
	upgrader websocket.Upgrader
}

// NewSocket creates the websocket handler.
func NewSocket(conv *conversation.Service) *SocketHandler {
	return &SocketHandler{
		conv: conv,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route.
func (h *SocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{messageID}", h.handleSocket)
}

func (h *SocketHandler) handleSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	ctx := r.Context()

	msg, err := h.conv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "message not found")
			return
		}
		log.Printf("[ws] failed to load message=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for message=%s: %v", id, err)
		return
	}
	defer conn.Close()

	writeFrame := func(resp StreamResponse) bool {
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[ws] write failed for message=%s: %v", id, err)
			return false
		}
		return true
	}

	if !writeFrame(StreamResponse{Event: "start", MessageID: id, Status: statusOf(msg)}) {
		return
	}

	tokens, live := h.conv.Subscribe(ctx, id)
	if live {
		for token := range tokens {
			if !writeFrame(StreamResponse{Event: "delta", MessageID: id, Content: token}) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		msg, err = h.conv.Get(ctx, id)
		if err != nil {
			writeFrame(StreamResponse{Event: "error", MessageID: id, Error: err.Error()})
			return
		}
	}

	if !writeFrame(StreamResponse{Event: "message", MessageID: id, Content: contentOf(msg), Status: statusOf(msg)}) {
		return
	}
	writeFrame(StreamResponse{Event: "end", MessageID: id, Finished: true})
}
