package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/models"
	"ledger-sync-service/internal/repositories"
	"ledger-sync-service/internal/snapshot"
)

// StatusReport is what the spreadsheet scheduler posts while it runs.
type StatusReport struct {
	State           string `json:"state" validate:"required,oneof=completed in_progress no_data"`
	FilesUpdated    int    `json:"filesUpdated" validate:"min=0"`
	FilesSkipped    int    `json:"filesSkipped" validate:"min=0"`
	TotalFiles      int    `json:"totalFiles" validate:"min=0"`
	Percent         int    `json:"percent" validate:"min=0,max=100"`
	DurationSeconds int    `json:"durationSeconds" validate:"min=0"`
	Errors          int    `json:"errors" validate:"min=0"`
	Success         bool   `json:"success"`
	// Timestamp is when the scheduler produced the report; empty means now.
	Timestamp string `json:"timestamp,omitempty"`
	// Error is the scheduler's own failure text for an unsuccessful run.
	Error string `json:"error,omitempty"`
}

type SyncStatusService struct {
	store  repositories.Store
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewSyncStatusService(store repositories.Store, logger logrus.FieldLogger) *SyncStatusService {
	return &SyncStatusService{store: store, logger: logger, now: time.Now}
}

// Report stores the scheduler's progress. A completed report overwrites
// every counter; an in-progress report only moves the progress counters.
func (s *SyncStatusService) Report(ctx context.Context, report StatusReport) (*models.SyncStatus, error) {
	reportedAt := s.now()
	if report.Timestamp != "" {
		t, err := snapshot.ParseDate(report.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReportTime, err)
		}
		reportedAt = t
	}

	var status *models.SyncStatus
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repositories.Repositories) error {
		current, err := repos.SyncStatus.Get(ctx, models.SyncStatusID)
		if errors.Is(err, repositories.ErrNotFound) {
			current = &models.SyncStatus{ID: models.SyncStatusID}
		} else if err != nil {
			return err
		}

		switch report.State {
		case models.SyncStateCompleted:
			current.FilesUpdated = report.FilesUpdated
			current.FilesSkipped = report.FilesSkipped
			current.TotalFiles = report.TotalFiles
			current.Percent = 100
			current.DurationSeconds = report.DurationSeconds
			current.Errors = report.Errors
			current.Success = report.Success
			current.Message = completedMessage(report)
		case models.SyncStateInProgress:
			current.FilesUpdated = report.FilesUpdated
			current.TotalFiles = report.TotalFiles
			current.Percent = report.Percent
			current.Success = false
			current.Message = fmt.Sprintf("processing %d/%d (%d%%)",
				report.FilesUpdated, report.TotalFiles, report.Percent)
		case models.SyncStateNoData:
			current.Message = "no sync data"
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSyncState, report.State)
		}
		current.State = report.State
		current.LastUpdate = reportedAt

		if err := repos.SyncStatus.Upsert(ctx, current); err != nil {
			return err
		}
		status = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store sync status: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"state":   status.State,
		"percent": status.Percent,
	}).Debug("sync status updated")
	return status, nil
}

func completedMessage(report StatusReport) string {
	if report.Success {
		return fmt.Sprintf("sync completed: %d updated, %d skipped, %d errors",
			report.FilesUpdated, report.FilesSkipped, report.Errors)
	}
	reason := report.Error
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("sync failed after %d updated, %d errors: %s",
		report.FilesUpdated, report.Errors, reason)
}

// Current returns the stored status, or a no_data status when the
// scheduler has never reported.
func (s *SyncStatusService) Current(ctx context.Context) (*models.SyncStatus, error) {
	status, err := s.store.Repositories().SyncStatus.Get(ctx, models.SyncStatusID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.SyncStatus{
			ID:      models.SyncStatusID,
			State:   models.SyncStateNoData,
			Message: "no sync data",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync status: %w", err)
	}
	return status, nil
}

// Imports lists the import control ledger.
func (s *SyncStatusService) Imports(ctx context.Context) ([]*models.ImportControlEntry, error) {
	entries, err := s.store.Repositories().ImportControl.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	return entries, nil
}
