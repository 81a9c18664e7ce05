package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"ledger-sync-service/internal/models"
)

type customerRepository struct {
	db dbtx
}

func (r *customerRepository) UpsertByFileID(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (
			id, file_id, name, outstanding_balance, last_modified
		) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			outstanding_balance = VALUES(outstanding_balance),
			last_modified = VALUES(last_modified),
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(),
		c.FileID,
		c.Name,
		c.OutstandingBalance,
		c.LastModified,
	)
	if err != nil {
		return err
	}

	// The generated id is only used on insert; read back the one that won.
	return r.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE file_id = ?`, c.FileID).Scan(&c.ID)
}

func (r *customerRepository) GetByFileID(ctx context.Context, fileID string) (*models.Customer, error) {
	c := &models.Customer{}
	query := `
		SELECT id, file_id, name, outstanding_balance, last_modified,
		       created_at, updated_at
		FROM customers
		WHERE file_id = ?
	`
	err := r.db.QueryRowContext(ctx, query, fileID).Scan(
		&c.ID,
		&c.FileID,
		&c.Name,
		&c.OutstandingBalance,
		&c.LastModified,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *customerRepository) List(ctx context.Context) ([]*models.Customer, error) {
	query := `
		SELECT id, file_id, name, outstanding_balance, last_modified,
		       created_at, updated_at
		FROM customers
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c := &models.Customer{}
		err := rows.Scan(
			&c.ID,
			&c.FileID,
			&c.Name,
			&c.OutstandingBalance,
			&c.LastModified,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// DeleteNotIn relies on ON DELETE CASCADE for the customer's child rows.
func (r *customerRepository) DeleteNotIn(ctx context.Context, fileIDs []string) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, errors.New("refusing to delete customers without an active file list")
	}

	args := make([]any, len(fileIDs))
	for i, id := range fileIDs {
		args[i] = id
	}
	query := `DELETE FROM customers WHERE file_id NOT IN (` + inPlaceholders(len(fileIDs)) + `)`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
