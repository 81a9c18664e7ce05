package repositories

import (
	"context"
	"time"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
)

type saleRepository struct {
	db dbtx
}

func (r *saleRepository) ImportTimestampsByDay(ctx context.Context, customerID string) (map[calendar.Day]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sale_date, imported_at FROM sales WHERE customer_id = ?`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	timestamps := make(map[calendar.Day]time.Time)
	for rows.Next() {
		var saleDate, importedAt time.Time
		if err := rows.Scan(&saleDate, &importedAt); err != nil {
			return nil, err
		}
		timestamps[calendar.Of(saleDate)] = importedAt
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return timestamps, nil
}

func (r *saleRepository) DeleteForCustomer(ctx context.Context, customerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_id = ?`, customerID)
	return err
}

func (r *saleRepository) InsertBatch(ctx context.Context, sales []*models.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	head := `
		INSERT INTO sales (
			customer_id, sale_date, total, imported_at, sequence_in_day
		)`
	return bulkInsert(ctx, r.db, head, 5, len(sales), func(i int) []any {
		s := sales[i]
		return []any{
			s.CustomerID,
			s.SaleDate.Time(),
			s.Total,
			s.ImportedAt,
			s.SequenceInDay,
		}
	})
}

func (r *saleRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Sale, error) {
	query := `
		SELECT id, customer_id, sale_date, total, imported_at, sequence_in_day
		FROM sales
		WHERE customer_id = ?
		ORDER BY sale_date DESC, sequence_in_day DESC
	`
	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		s := &models.Sale{}
		var saleDate time.Time
		err := rows.Scan(
			&s.ID,
			&s.CustomerID,
			&saleDate,
			&s.Total,
			&s.ImportedAt,
			&s.SequenceInDay,
		)
		if err != nil {
			return nil, err
		}
		s.SaleDate = calendar.Of(saleDate)
		sales = append(sales, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}
