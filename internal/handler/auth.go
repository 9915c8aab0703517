// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/nimbus-im/nimbus/internal/auth"
	"github.com/nimbus-im/nimbus/internal/bootstrap"
	"github.com/nimbus-im/nimbus/internal/delivery"
	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/internal/model"
	"github.com/nimbus-im/nimbus/pkg/logger"
)

// AuthHandler handles session endpoints.
type AuthHandler struct {
	authenticator *auth.Authenticator
	engine        *engine.Engine
	seeder        *bootstrap.Seeder
	sessions      *auth.SessionStore
	agent         delivery.Agent
	logger        *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(
	authenticator *auth.Authenticator,
	eng *engine.Engine,
	seeder *bootstrap.Seeder,
	sessions *auth.SessionStore,
	agent delivery.Agent,
	log *logger.Logger,
) *AuthHandler {
	return &AuthHandler{
		authenticator: authenticator,
		engine:        eng,
		seeder:        seeder,
		sessions:      sessions,
		agent:         agent,
		logger:        log,
	}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := h.authenticator.Login(req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.openSession(w, identity)
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := h.authenticator.Register(req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.openSession(w, identity)
}

func (h *AuthHandler) openSession(w http.ResponseWriter, identity model.Identity) {
	if err := h.engine.Login(identity); err != nil {
		writeAppError(w, err)
		return
	}

	if err := h.sessions.Save(auth.SessionState{Identity: &identity, Authenticated: true}); err != nil {
		h.logger.Warn("failed to persist session", zap.Error(err))
	}

	if err := h.seeder.Run(); err != nil {
		h.logger.Error("failed to seed mock data", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to initialize session data")
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{Identity: identity})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.agent.Shutdown()
	h.engine.Logout()
	if err := h.sessions.Clear(); err != nil {
		h.logger.Warn("failed to clear persisted session", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.engine.CurrentIdentity()
	if !ok {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, model.LoginResponse{Identity: identity})
}
