package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/services"
	"ledger-sync-service/internal/session"
)

type Dependencies struct {
	Ingestion  *services.IngestionService
	Cleanup    *services.CleanupService
	SyncStatus *services.SyncStatusService
	Sessions   session.Store
	APIKey     string
	Metrics    http.Handler
	Logger     logrus.FieldLogger
}

func SetupRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(deps.Logger))

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	auth := newAuthenticator(deps.APIKey, deps.Sessions, deps.Logger)

	syncHandler := NewSyncHandler(deps.Ingestion, deps.Cleanup, deps.SyncStatus, deps.Logger)
	syncRoutes := api.PathPrefix("/sync").Subrouter()
	syncRoutes.Use(auth.apiKeyOrSession)
	syncRoutes.HandleFunc("/receive", syncHandler.Receive).Methods(http.MethodPost)
	syncRoutes.HandleFunc("/cleanup", syncHandler.Cleanup).Methods(http.MethodPost)
	syncRoutes.HandleFunc("/webhook", syncHandler.ReportStatus).Methods(http.MethodPost)
	syncRoutes.HandleFunc("/webhook", syncHandler.GetStatus).Methods(http.MethodGet)
	syncRoutes.HandleFunc("/imports", syncHandler.ListImports).Methods(http.MethodGet)

	sessionHandler := NewSessionHandler(deps.Sessions, deps.Logger)
	api.Handle("/sessions", auth.apiKey(http.HandlerFunc(sessionHandler.Create))).Methods(http.MethodPost)
	api.Handle("/sessions", auth.sessionOnly(http.HandlerFunc(sessionHandler.Revoke))).Methods(http.MethodDelete)

	return router
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
	}
	respondWithJSON(w, http.StatusOK, response)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
