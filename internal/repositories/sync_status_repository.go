package repositories

import (
	"context"
	"database/sql"
	"errors"

	"ledger-sync-service/internal/models"
)

type syncStatusRepository struct {
	db dbtx
}

func (r *syncStatusRepository) Upsert(ctx context.Context, s *models.SyncStatus) error {
	query := `
		INSERT INTO sync_status (
			id, state, last_update, files_updated, files_skipped, total_files,
			percent, duration_seconds, errors, success, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state),
			last_update = VALUES(last_update),
			files_updated = VALUES(files_updated),
			files_skipped = VALUES(files_skipped),
			total_files = VALUES(total_files),
			percent = VALUES(percent),
			duration_seconds = VALUES(duration_seconds),
			errors = VALUES(errors),
			success = VALUES(success),
			message = VALUES(message)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.State,
		s.LastUpdate,
		s.FilesUpdated,
		s.FilesSkipped,
		s.TotalFiles,
		s.Percent,
		s.DurationSeconds,
		s.Errors,
		s.Success,
		s.Message,
	)
	return err
}

func (r *syncStatusRepository) Get(ctx context.Context, id string) (*models.SyncStatus, error) {
	s := &models.SyncStatus{}
	query := `
		SELECT id, state, last_update, files_updated, files_skipped, total_files,
		       percent, duration_seconds, errors, success, message
		FROM sync_status
		WHERE id = ?
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.State,
		&s.LastUpdate,
		&s.FilesUpdated,
		&s.FilesSkipped,
		&s.TotalFiles,
		&s.Percent,
		&s.DurationSeconds,
		&s.Errors,
		&s.Success,
		&s.Message,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
