package regeneration

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
)

// DailySale is the total of all sale lines of one day.
type DailySale struct {
	Day   calendar.Day
	Total decimal.Decimal
}

// AggregateSales sums the sale lines dated on or after cutoff by UTC day.
// The result is ordered newest day first.
func AggregateSales(rows []models.SaleRow, cutoff calendar.Day) []DailySale {
	totals := make(map[calendar.Day]decimal.Decimal)
	for _, row := range rows {
		if row.SaleDate.Before(cutoff.Time()) {
			continue
		}
		day := calendar.Of(row.SaleDate)
		totals[day] = totals[day].Add(row.TotalAmount)
	}

	days := make([]DailySale, 0, len(totals))
	for day, total := range totals {
		days = append(days, DailySale{Day: day, Total: total})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day.After(days[j].Day) })
	return days
}

// BuildSales turns daily totals into Sales. A day that already had a Sale
// keeps its previous import timestamp; new days get fallback. Sequence
// numbers follow the same reverse rule as payments, which yields 1 for
// every day while sales are aggregated per day.
func BuildSales(customerID string, days []DailySale, existing map[calendar.Day]time.Time, fallback time.Time) []*models.Sale {
	groups := groupByDay(days, func(d DailySale) calendar.Day { return d.Day })

	sales := make([]*models.Sale, 0, len(days))
	for _, group := range groups {
		n := len(group)
		for i, d := range group {
			importedAt, ok := existing[d.Day]
			if !ok {
				importedAt = fallback
			}
			sales = append(sales, &models.Sale{
				CustomerID:    customerID,
				SaleDate:      d.Day,
				Total:         d.Total,
				ImportedAt:    importedAt,
				SequenceInDay: sequenceInDay(n, i),
			})
		}
	}
	return sales
}
