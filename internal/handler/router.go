package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/miluhq/milu/internal/handler/messages"
	"github.com/miluhq/milu/internal/handler/stream"
	"github.com/miluhq/milu/internal/middleware"
	"github.com/miluhq/milu/internal/service/conversation"
)

// NewRouter wires HTTP routes to the conversation service.
func NewRouter(conv *conversation.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	messagesHandler := messages.New(conv)
	streamHandler := stream.New(conv)
	socketHandler := stream.NewSocket(conv)

	r.Route("/api", func(api chi.Router) {
		messagesHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		socketHandler.RegisterRoutes(api)
	})

	return r
}
