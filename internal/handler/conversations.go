package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/middleware"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

// ConversationHandler handles roster and conversation endpoints.
type ConversationHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(eng *engine.Engine, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{engine: eng, logger: log}
}

// ListUsers handles GET /api/v1/users
func (h *ConversationHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": snap.Users,
	})
}

// SetPresence handles PUT /api/v1/users/{id}/presence
func (h *ConversationHandler) SetPresence(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetPresence(userID, req.Online); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	writeJSON(w, http.StatusOK, model.ListConversationsResponse{
		Conversations: snap.Conversations,
		TotalUnread:   snap.TotalUnread,
	})
}

// activateRequest selects the active conversation; an empty peer id clears
// the selection.
type activateRequest struct {
	PeerID string `json:"peer_id"`
}

// Activate handles PUT /api/v1/conversations/active
func (h *ConversationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetActiveConversation(req.PeerID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkRead handles POST /api/v1/conversations/{peerID}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	if err := middleware.ValidateUserID(peerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.MarkConversationRead(peerID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetTyping handles PUT /api/v1/typing — toggles the caller's typing flag.
func (h *ConversationHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	var req model.TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}

	if err := h.engine.SetTyping(userID, req.Typing); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
