package messages

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/miluhq/milu/internal/model/message"
	"github.com/miluhq/milu/internal/service/conversation"
	"github.com/miluhq/milu/pkg/utils"
)

// Handler exposes the message tree over REST.
type Handler struct {
	conv *conversation.Service
}

// New creates the messages handler.
func New(conv *conversation.Service) *Handler {
	return &Handler{conv: conv}
}

// RegisterRoutes mounts the message routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleAppend)
	r.Get("/messages", h.handleListRoots)
	r.Get("/messages/{messageID}", h.handleGet)
	r.Patch("/messages/{messageID}", h.handleUpdate)
	r.Delete("/messages/{messageID}", h.handleDelete)
	r.Get("/messages/{messageID}/children", h.handleListChildren)
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role       string  `json:"role"`
		Content    *string `json:"content"`
		ParentID   *string `json:"parentId"`
		ExternalID *string `json:"externalId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opt := conversation.AppendOption{
		Role:       payload.Role,
		Content:    payload.Content,
		ExternalID: payload.ExternalID,
	}

	msg, err := h.conv.Append(r.Context(), payload.ParentID, opt)
	if err != nil {
		if errors.Is(err, message.ErrConstraint) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[messages] append failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to append message")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	msg, err := h.conv.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "message not found")
			return
		}
		log.Printf("[messages] get failed for id=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	utils.RespondJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	var payload struct {
		Content    *string `json:"content"`
		Status     *string `json:"status"`
		ExternalID *string `json:"externalId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := message.UpdateInput{
		Content:    payload.Content,
		Status:     payload.Status,
		ExternalID: payload.ExternalID,
	}

	msg, err := h.conv.Update(r.Context(), id, in)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "message not found")
			return
		}
		log.Printf("[messages] update failed for id=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to update message")
		return
	}

	utils.RespondJSON(w, http.StatusOK, msg)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	err := h.conv.Delete(r.Context(), id)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusNoContent, nil)
	case errors.Is(err, message.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, message.ErrConstraint):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[messages] delete failed for id=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete message")
	}
}

func (h *Handler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	children, err := h.conv.Children(r.Context(), id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "message not found")
			return
		}
		log.Printf("[messages] list children failed for id=%s: %v", id, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list children")
		return
	}

	utils.RespondJSON(w, http.StatusOK, children)
}

func (h *Handler) handleListRoots(w http.ResponseWriter, r *http.Request) {
	roots, err := h.conv.Roots(r.Context())
	if err != nil {
		log.Printf("[messages] list roots failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, roots)
}
