package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/logging"
	"ledger-sync-service/internal/session"
)

const (
	sessionHeader = "X-Session-Token"
	// apiKeyPrincipal names callers that authenticated with the API key.
	apiKeyPrincipal = "sync-api-key"
)

type principalKey struct{}

// PrincipalFrom returns who made the request, if it was authenticated.
func PrincipalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

type authenticator struct {
	apiKeyValue string
	sessions    session.Store
	logger      logrus.FieldLogger
}

func newAuthenticator(apiKey string, sessions session.Store, logger logrus.FieldLogger) *authenticator {
	return &authenticator{apiKeyValue: apiKey, sessions: sessions, logger: logger}
}

func (a *authenticator) bearerMatches(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" || a.apiKeyValue == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.apiKeyValue)) == 1
}

func (a *authenticator) sessionPrincipal(r *http.Request) (string, bool, error) {
	token := r.Header.Get(sessionHeader)
	if token == "" || a.sessions == nil {
		return "", false, nil
	}
	return a.sessions.Validate(r.Context(), token)
}

func withPrincipal(r *http.Request, principal string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalKey{}, principal))
}

func (a *authenticator) apiKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.bearerMatches(r) {
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, withPrincipal(r, apiKeyPrincipal))
	})
}

func (a *authenticator) sessionOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok, err := a.sessionPrincipal(r)
		if err != nil {
			logging.LogError(a.logger, "handlers", "sessionOnly", "session lookup failed", nil, err)
			respondWithError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, withPrincipal(r, principal))
	})
}

func (a *authenticator) apiKeyOrSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.bearerMatches(r) {
			next.ServeHTTP(w, withPrincipal(r, apiKeyPrincipal))
			return
		}
		a.sessionOnly(next).ServeHTTP(w, r)
	})
}
