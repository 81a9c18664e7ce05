package repositories

import (
	"context"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
)

type consolidatedRecordRepository struct {
	db dbtx
}

func (r *consolidatedRecordRepository) ReplaceForCustomer(ctx context.Context, customerID string, rows []models.ConsolidatedRow) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM consolidated_records WHERE customer_id = ?`, customerID); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	head := `
		INSERT INTO consolidated_records (
			customer_id, source_position, payment_date, disbursement,
			balance_snapshot, payment_type_tag, source_sheet, source_row
		)`
	return bulkInsert(ctx, r.db, head, 8, len(rows), func(i int) []any {
		row := rows[i]
		return []any{
			customerID,
			i,
			row.PaymentDate,
			row.Disbursement,
			row.BalanceSnapshot,
			row.PaymentTypeTag,
			row.SourceSheet,
			row.SourceRow,
		}
	})
}

const recordColumns = `
	id, customer_id, source_position, payment_date, disbursement,
	balance_snapshot, payment_type_tag, source_sheet, source_row`

func (r *consolidatedRecordRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.ConsolidatedRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM consolidated_records
		WHERE customer_id = ?
		ORDER BY source_position`
	return r.query(ctx, query, customerID)
}

func (r *consolidatedRecordRepository) ListPaymentCandidates(ctx context.Context, customerID string, cutoff calendar.Day) ([]*models.ConsolidatedRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM consolidated_records
		WHERE customer_id = ?
		AND payment_date IS NOT NULL
		AND disbursement > 0
		AND payment_date >= ?
		ORDER BY payment_date DESC, source_position ASC`
	return r.query(ctx, query, customerID, cutoff.Time())
}

func (r *consolidatedRecordRepository) query(ctx context.Context, query string, args ...any) ([]*models.ConsolidatedRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ConsolidatedRecord
	for rows.Next() {
		rec := &models.ConsolidatedRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.CustomerID,
			&rec.Position,
			&rec.PaymentDate,
			&rec.Disbursement,
			&rec.BalanceSnapshot,
			&rec.PaymentTypeTag,
			&rec.SourceSheet,
			&rec.SourceRow,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
