package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/logging"
	"ledger-sync-service/internal/session"
)

type SessionHandler struct {
	sessions session.Store
	logger   logrus.FieldLogger
}

func NewSessionHandler(sessions session.Store, logger logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

type SessionResponse struct {
	Token string `json:"token"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	token, err := h.sessions.Create(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		logging.LogError(h.logger, "handlers", "CreateSession", "failed to create session", nil, err)
		respondWithError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondWithJSON(w, http.StatusCreated, SessionResponse{Token: token})
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Revoke(r.Context(), r.Header.Get(sessionHeader)); err != nil {
		logging.LogError(h.logger, "handlers", "RevokeSession", "failed to revoke session", nil, err)
		respondWithError(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
