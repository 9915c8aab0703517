package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbus-im/nimbus/internal/delivery"
	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/middleware"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	engine *engine.Engine
	agent  delivery.Agent
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(eng *engine.Engine, agent delivery.Agent, log *logger.Logger) *MessageHandler {
	return &MessageHandler{engine: eng, agent: agent, logger: log}
}

// List handles GET /api/v1/conversations/{peerID}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	if err := middleware.ValidateUserID(peerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.engine.MessagesWith(peerID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}

// Send handles POST /api/v1/conversations/{peerID}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	if err := middleware.ValidateUserID(peerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageBody(req.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.engine.SendMessage(peerID, req.Body)
	if err != nil {
		writeAppError(w, err)
		return
	}

	// Sending ends the caller's typing indicator, then hands the message to
	// the delivery agent for receipts and the peer's reply.
	if id, ok := middleware.GetIdentity(r.Context()); ok {
		_ = h.engine.SetTyping(id.ID, false)
	}
	h.agent.MessageSent(msg)

	writeJSON(w, http.StatusCreated, msg)
}
