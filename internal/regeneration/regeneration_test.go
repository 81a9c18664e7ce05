package regeneration

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
)

var cutoff = calendar.MustParse("2025-10-01")

func record(pos int, date string, amount int64) *models.ConsolidatedRecord {
	r := &models.ConsolidatedRecord{
		Position:     pos,
		Disbursement: decimal.NewFromInt(amount),
	}
	if date != "" {
		t, err := time.Parse(time.RFC3339, date)
		if err != nil {
			panic(err)
		}
		r.PaymentDate = sql.NullTime{Time: t, Valid: true}
	}
	return r
}

func TestPaymentEligible(t *testing.T) {
	tests := []struct {
		name string
		rec  *models.ConsolidatedRecord
		want bool
	}{
		{"dated positive after cutoff", record(0, "2025-10-05T00:00:00Z", 100), true},
		{"exactly on cutoff", record(0, "2025-10-01T00:00:00Z", 100), true},
		{"before cutoff", record(0, "2025-09-30T23:59:59Z", 100), false},
		{"null date", record(0, "", 100), false},
		{"zero disbursement", record(0, "2025-10-05T00:00:00Z", 0), false},
		{"negative disbursement", record(0, "2025-10-05T00:00:00Z", -10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PaymentEligible(tt.rec, cutoff); got != tt.want {
				t.Errorf("PaymentEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildPaymentsReverseSequence(t *testing.T) {
	records := []*models.ConsolidatedRecord{
		record(0, "2025-10-05T00:00:00Z", 100),
		record(1, "2025-10-05T00:00:00Z", 200),
	}
	SortPaymentCandidates(records)

	payments := BuildPayments("c1", records, time.Now())
	if len(payments) != 2 {
		t.Fatalf("len(payments) = %d, want 2", len(payments))
	}
	if payments[0].Amount.IntPart() != 100 || payments[0].SequenceInDay != 2 {
		t.Errorf("first in source order = %s #%d, want 100 #2", payments[0].Amount, payments[0].SequenceInDay)
	}
	if payments[1].Amount.IntPart() != 200 || payments[1].SequenceInDay != 1 {
		t.Errorf("second in source order = %s #%d, want 200 #1", payments[1].Amount, payments[1].SequenceInDay)
	}
}

func TestBuildPaymentsSequenceContiguousPerDay(t *testing.T) {
	records := []*models.ConsolidatedRecord{
		record(0, "2025-10-05T09:00:00Z", 10),
		record(1, "2025-10-06T00:00:00Z", 20),
		record(2, "2025-10-05T18:00:00Z", 30),
		record(3, "2025-10-05T09:00:00Z", 40),
		record(4, "2025-10-07T00:00:00Z", 50),
		record(5, "2025-10-06T00:00:00Z", 60),
	}
	SortPaymentCandidates(records)
	payments := BuildPayments("c1", records, time.Now())

	seqs := make(map[calendar.Day][]int)
	for _, p := range payments {
		day := calendar.Of(p.PaymentDate)
		seqs[day] = append(seqs[day], p.SequenceInDay)
	}

	want := map[string]int{"2025-10-05": 3, "2025-10-06": 2, "2025-10-07": 1}
	for day, n := range want {
		got := seqs[calendar.MustParse(day)]
		if len(got) != n {
			t.Fatalf("%s: %d payments, want %d", day, len(got), n)
		}
		seen := make(map[int]bool)
		for _, s := range got {
			if s < 1 || s > n || seen[s] {
				t.Errorf("%s: sequence numbers %v are not a permutation of 1..%d", day, got, n)
			}
			seen[s] = true
		}
	}

	// Within 2025-10-05 the 18:00 row sorts first, then the two 09:00 rows in source order.
	var day5 []*models.Payment
	for _, p := range payments {
		if calendar.Of(p.PaymentDate) == calendar.MustParse("2025-10-05") {
			day5 = append(day5, p)
		}
	}
	if day5[0].Amount.IntPart() != 30 || day5[0].SequenceInDay != 3 {
		t.Errorf("latest payment of the day = %s #%d, want 30 #3", day5[0].Amount, day5[0].SequenceInDay)
	}
	if day5[2].Amount.IntPart() != 40 || day5[2].SequenceInDay != 1 {
		t.Errorf("last processed payment = %s #%d, want 40 #1", day5[2].Amount, day5[2].SequenceInDay)
	}
}

func TestBuildPaymentsEmpty(t *testing.T) {
	if got := BuildPayments("c1", nil, time.Now()); len(got) != 0 {
		t.Errorf("BuildPayments(nil) = %v", got)
	}
}

func TestAggregateSales(t *testing.T) {
	day := func(s string) time.Time { return calendar.MustParse(s).Time() }
	rows := []models.SaleRow{
		{SaleDate: day("2025-10-03"), TotalAmount: decimal.NewFromInt(50)},
		{SaleDate: day("2025-10-03").Add(15 * time.Hour), TotalAmount: decimal.NewFromInt(70)},
		{SaleDate: day("2025-10-04"), TotalAmount: decimal.RequireFromString("10.25")},
		{SaleDate: day("2025-09-30"), TotalAmount: decimal.NewFromInt(999)},
	}

	got := AggregateSales(rows, cutoff)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Day.String() != "2025-10-04" || got[0].Total.String() != "10.25" {
		t.Errorf("got[0] = %v %s", got[0].Day, got[0].Total)
	}
	if got[1].Day.String() != "2025-10-03" || !got[1].Total.Equal(decimal.NewFromInt(120)) {
		t.Errorf("got[1] = %v %s, want 2025-10-03 120", got[1].Day, got[1].Total)
	}
}

func TestBuildSalesPreservesExistingTimestamps(t *testing.T) {
	old := time.Date(2025, 10, 3, 20, 0, 0, 0, time.UTC)
	now := time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	days := []DailySale{
		{Day: calendar.MustParse("2025-10-04"), Total: decimal.NewFromInt(10)},
		{Day: calendar.MustParse("2025-10-03"), Total: decimal.NewFromInt(120)},
	}
	existing := map[calendar.Day]time.Time{calendar.MustParse("2025-10-03"): old}

	sales := BuildSales("c1", days, existing, now)
	if len(sales) != 2 {
		t.Fatalf("len = %d", len(sales))
	}
	if !sales[0].ImportedAt.Equal(now) {
		t.Errorf("new day ImportedAt = %v, want %v", sales[0].ImportedAt, now)
	}
	if !sales[1].ImportedAt.Equal(old) {
		t.Errorf("existing day ImportedAt = %v, want %v", sales[1].ImportedAt, old)
	}
	for _, s := range sales {
		if s.SequenceInDay != 1 {
			t.Errorf("%v sequence = %d, want 1", s.SaleDate, s.SequenceInDay)
		}
	}
}

func TestBuildSalesNumbersRepeatedDaysInReverse(t *testing.T) {
	d := calendar.MustParse("2025-10-03")
	days := []DailySale{
		{Day: d, Total: decimal.NewFromInt(1)},
		{Day: d, Total: decimal.NewFromInt(2)},
		{Day: d, Total: decimal.NewFromInt(3)},
	}
	sales := BuildSales("c1", days, nil, time.Now())
	for i, want := range []int{3, 2, 1} {
		if sales[i].SequenceInDay != want {
			t.Errorf("sales[%d].SequenceInDay = %d, want %d", i, sales[i].SequenceInDay, want)
		}
	}
}
