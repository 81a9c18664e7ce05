package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/locking"
	"ledger-sync-service/internal/logging"
	"ledger-sync-service/internal/models"
	"ledger-sync-service/internal/services"
	"ledger-sync-service/internal/snapshot"
)

// Snapshots carry a whole customer file; anything past this is refused.
const maxSnapshotBytes = 32 << 20

type SyncHandler struct {
	ingestion  *services.IngestionService
	cleanup    *services.CleanupService
	syncStatus *services.SyncStatusService
	validate   *validator.Validate
	logger     logrus.FieldLogger
}

func NewSyncHandler(
	ingestion *services.IngestionService,
	cleanup *services.CleanupService,
	syncStatus *services.SyncStatusService,
	logger logrus.FieldLogger,
) *SyncHandler {
	return &SyncHandler{
		ingestion:  ingestion,
		cleanup:    cleanup,
		syncStatus: syncStatus,
		validate:   validator.New(),
		logger:     logger,
	}
}

func (h *SyncHandler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := snapshot.Decode(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		respondWithValidation(w, err)
		return
	}

	result, err := h.ingestion.Ingest(r.Context(), raw)
	if err != nil {
		var verr *snapshot.ValidationError
		var txErr *services.TransactionError
		switch {
		case errors.As(err, &verr):
			respondWithValidation(w, err)
		case errors.Is(err, locking.ErrLocked):
			respondWithError(w, http.StatusConflict, err.Error())
		case errors.As(err, &txErr):
			respondWithError(w, http.StatusInternalServerError, txErr.Error())
		default:
			logging.LogError(h.logger, "handlers", "Receive", "ingestion failed", nil, err)
			respondWithError(w, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

type CleanupRequest struct {
	ActiveFileIDs []string `json:"activeFileIds" validate:"required"`
}

type CleanupResponse struct {
	Success          bool  `json:"success"`
	CustomersRemoved int64 `json:"customersRemoved"`
	ActiveFiles      int   `json:"activeFiles"`
}

func (h *SyncHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var request CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(request); err != nil {
		respondWithError(w, http.StatusBadRequest, "activeFileIds must be an array")
		return
	}

	removed, err := h.cleanup.RemoveInactive(r.Context(), request.ActiveFileIDs)
	if errors.Is(err, services.ErrNoActiveFiles) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logging.LogError(h.logger, "handlers", "Cleanup", "cleanup failed", len(request.ActiveFileIDs), err)
		respondWithError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	respondWithJSON(w, http.StatusOK, CleanupResponse{
		Success:          true,
		CustomersRemoved: removed,
		ActiveFiles:      len(request.ActiveFileIDs),
	})
}

func (h *SyncHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	var report services.StatusReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(report); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.syncStatus.Report(r.Context(), report)
	if errors.Is(err, services.ErrUnknownSyncState) || errors.Is(err, services.ErrInvalidReportTime) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logging.LogError(h.logger, "handlers", "ReportStatus", "failed to store sync status", report.State, err)
		respondWithError(w, http.StatusInternalServerError, "failed to store sync status")
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncStatus.Current(r.Context())
	if err != nil {
		logging.LogError(h.logger, "handlers", "GetStatus", "failed to read sync status", nil, err)
		respondWithError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *SyncHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	entries, err := h.syncStatus.Imports(r.Context())
	if err != nil {
		logging.LogError(h.logger, "handlers", "ListImports", "failed to list imports", nil, err)
		respondWithError(w, http.StatusInternalServerError, "failed to list imports")
		return
	}
	views := make([]ImportEntryView, len(entries))
	for i, e := range entries {
		views[i] = newImportEntryView(e)
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "imports retrieved",
		Data:    views,
	})
}

type ImportEntryView struct {
	FileName     string     `json:"fileName"`
	FileID       *string    `json:"fileId"`
	LastModified *time.Time `json:"lastModified"`
	LastSync     *time.Time `json:"lastSync"`
	RowCount     int        `json:"rowCount"`
	Success      bool       `json:"success"`
	ErrorMessage *string    `json:"errorMessage"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func newImportEntryView(e *models.ImportControlEntry) ImportEntryView {
	v := ImportEntryView{
		FileName:  e.FileName,
		RowCount:  e.RowCount,
		Success:   e.Success,
		UpdatedAt: e.UpdatedAt,
	}
	if e.FileID.Valid {
		v.FileID = &e.FileID.String
	}
	if e.LastModified.Valid {
		v.LastModified = &e.LastModified.Time
	}
	if e.LastSync.Valid {
		v.LastSync = &e.LastSync.Time
	}
	if e.ErrorMessage.Valid {
		v.ErrorMessage = &e.ErrorMessage.String
	}
	return v
}
