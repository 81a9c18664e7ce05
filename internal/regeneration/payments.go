package regeneration

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
)

// PaymentEligible reports whether a consolidated record produces a
// Payment: it needs a payment date on or after the cutoff and a positive
// disbursement. The SQL store applies the same predicate in its query.
func PaymentEligible(r *models.ConsolidatedRecord, cutoff calendar.Day) bool {
	if !r.PaymentDate.Valid {
		return false
	}
	if !r.Disbursement.GreaterThan(decimal.Zero) {
		return false
	}
	return !r.PaymentDate.Time.Before(cutoff.Time())
}

// SortPaymentCandidates orders records by payment date, newest first, then
// by their position in the source file.
func SortPaymentCandidates(records []*models.ConsolidatedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].PaymentDate.Time, records[j].PaymentDate.Time
		if !a.Equal(b) {
			return a.After(b)
		}
		return records[i].Position < records[j].Position
	})
}

// BuildPayments derives the Payments of a customer from its eligible
// records, which must already be in candidate order (see
// SortPaymentCandidates). Records are grouped by UTC day and numbered in
// reverse within each day.
func BuildPayments(customerID string, records []*models.ConsolidatedRecord, importedAt time.Time) []*models.Payment {
	groups := groupByDay(records, func(r *models.ConsolidatedRecord) calendar.Day {
		return calendar.Of(r.PaymentDate.Time)
	})

	payments := make([]*models.Payment, 0, len(records))
	for _, group := range groups {
		n := len(group)
		for i, r := range group {
			payments = append(payments, &models.Payment{
				CustomerID:     customerID,
				PaymentDate:    r.PaymentDate.Time,
				Amount:         r.Disbursement,
				PaymentTypeTag: r.PaymentTypeTag,
				ImportedAt:     importedAt,
				SequenceInDay:  sequenceInDay(n, i),
			})
		}
	}
	return payments
}
