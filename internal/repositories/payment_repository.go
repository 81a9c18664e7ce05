package repositories

import (
	"context"

	"ledger-sync-service/internal/models"
)

type paymentRepository struct {
	db dbtx
}

func (r *paymentRepository) DeleteForCustomer(ctx context.Context, customerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE customer_id = ?`, customerID)
	return err
}

func (r *paymentRepository) InsertBatch(ctx context.Context, payments []*models.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	head := `
		INSERT INTO payments (
			customer_id, payment_date, amount, payment_type_tag,
			imported_at, sequence_in_day
		)`
	return bulkInsert(ctx, r.db, head, 6, len(payments), func(i int) []any {
		p := payments[i]
		return []any{
			p.CustomerID,
			p.PaymentDate,
			p.Amount,
			p.PaymentTypeTag,
			p.ImportedAt,
			p.SequenceInDay,
		}
	})
}

func (r *paymentRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Payment, error) {
	query := `
		SELECT id, customer_id, payment_date, amount, payment_type_tag,
		       imported_at, sequence_in_day
		FROM payments
		WHERE customer_id = ?
		ORDER BY payment_date DESC, sequence_in_day DESC
	`
	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p := &models.Payment{}
		err := rows.Scan(
			&p.ID,
			&p.CustomerID,
			&p.PaymentDate,
			&p.Amount,
			&p.PaymentTypeTag,
			&p.ImportedAt,
			&p.SequenceInDay,
		)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}
