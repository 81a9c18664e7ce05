package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ledger-sync-service/internal/models"
)

type importControlRepository struct {
	db dbtx
}

func (r *importControlRepository) RecordSuccess(ctx context.Context, e *models.ImportControlEntry) error {
	query := `
		INSERT INTO import_control (
			file_name, file_id, last_modified, last_sync,
			row_count, success, error_message
		) VALUES (?, ?, ?, ?, ?, TRUE, NULL)
		ON DUPLICATE KEY UPDATE
			file_id = VALUES(file_id),
			last_modified = VALUES(last_modified),
			last_sync = VALUES(last_sync),
			row_count = VALUES(row_count),
			success = TRUE,
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		e.FileName,
		e.FileID,
		e.LastModified,
		e.LastSync,
		e.RowCount,
	)
	return err
}

func (r *importControlRepository) RecordFailure(ctx context.Context, fileName string, message string, at time.Time) error {
	query := `
		INSERT INTO import_control (
			file_name, success, error_message, updated_at
		) VALUES (?, FALSE, ?, ?)
		ON DUPLICATE KEY UPDATE
			success = FALSE,
			error_message = VALUES(error_message),
			updated_at = VALUES(updated_at)
	`
	_, err := r.db.ExecContext(ctx, query, fileName, message, at)
	return err
}

const importControlColumns = `
	file_name, file_id, last_modified, last_sync,
	row_count, success, error_message, updated_at`

func (r *importControlRepository) Get(ctx context.Context, fileName string) (*models.ImportControlEntry, error) {
	e := &models.ImportControlEntry{}
	query := `SELECT ` + importControlColumns + ` FROM import_control WHERE file_name = ?`
	err := r.db.QueryRowContext(ctx, query, fileName).Scan(
		&e.FileName,
		&e.FileID,
		&e.LastModified,
		&e.LastSync,
		&e.RowCount,
		&e.Success,
		&e.ErrorMessage,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *importControlRepository) List(ctx context.Context) ([]*models.ImportControlEntry, error) {
	query := `SELECT ` + importControlColumns + ` FROM import_control ORDER BY file_name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ImportControlEntry
	for rows.Next() {
		e := &models.ImportControlEntry{}
		err := rows.Scan(
			&e.FileName,
			&e.FileID,
			&e.LastModified,
			&e.LastSync,
			&e.RowCount,
			&e.Success,
			&e.ErrorMessage,
			&e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
