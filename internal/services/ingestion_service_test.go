package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/locking"
	"ledger-sync-service/internal/logging"
	"ledger-sync-service/internal/metrics"
	"ledger-sync-service/internal/models"
	"ledger-sync-service/internal/repositories"
	"ledger-sync-service/internal/repositories/memory"
	"ledger-sync-service/internal/snapshot"
)

const anaSnapshot = `{
	"fileId": "file-ana",
	"fileName": "Ana",
	"modifiedAt": "2025-11-04T10:00:00Z",
	"outstandingBalance": 700,
	"consolidatedRows": [
		{"paymentDate": "2025-10-05T00:00:00Z", "disbursement": 100, "balanceSnapshot": 900, "paymentTypeTag": "Empleado"},
		{"paymentDate": "2025-10-05T00:00:00Z", "disbursement": 200, "balanceSnapshot": 700},
		{"paymentDate": "2025-09-30T00:00:00Z", "disbursement": 50, "balanceSnapshot": 1000},
		{"paymentDate": "2025-10-07T00:00:00Z", "disbursement": 0, "balanceSnapshot": 700},
		{"paymentDate": null, "disbursement": 10, "balanceSnapshot": 700}
	],
	"saleRows": [
		{"saleDate": "2025-10-03", "totalAmount": 50},
		{"saleDate": "2025-10-03T15:00:00Z", "totalAmount": 70},
		{"saleDate": "2025-09-29", "totalAmount": 999}
	]
}`

var testNow = time.Date(2025, 11, 5, 8, 0, 0, 0, time.UTC)

func decodeSnapshot(t *testing.T, payload string) snapshot.RawSnapshot {
	t.Helper()
	raw, err := snapshot.Decode(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return raw
}

func newTestService(store repositories.Store, locker locking.Locker, txTimeout time.Duration) (*IngestionService, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	svc := NewIngestionService(store, snapshot.NewValidator(), locker, m, logging.Discard(), IngestionConfig{
		PaymentsCutoff: calendar.New(2025, time.October, 1),
		SalesCutoff:    calendar.New(2025, time.October, 1),
		TxTimeout:      txTimeout,
	})
	svc.now = func() time.Time { return testNow }
	return svc, m
}

func TestIngestRegeneratesEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, m := newTestService(store, locking.NoopLocker{}, time.Second)

	res, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !res.Success || res.ConsolidatedRowCount != 5 || res.SaleRowCount != 3 {
		t.Errorf("result = %+v", res)
	}

	repos := store.Repositories()
	customer, err := repos.Customers.GetByFileID(ctx, "file-ana")
	if err != nil {
		t.Fatal(err)
	}
	if customer.ID != res.CustomerID || customer.Name != "Ana" || !customer.OutstandingBalance.Equal(decimal.NewFromInt(700)) {
		t.Errorf("customer = %+v", customer)
	}

	records, _ := repos.Records.ListByCustomer(ctx, customer.ID)
	if len(records) != 5 {
		t.Errorf("records = %d, want 5", len(records))
	}

	payments, _ := repos.Payments.ListByCustomer(ctx, customer.ID)
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
	seq := map[string]int{}
	for _, p := range payments {
		seq[p.Amount.String()] = p.SequenceInDay
		if !p.ImportedAt.Equal(testNow) {
			t.Errorf("payment imported at %v, want %v", p.ImportedAt, testNow)
		}
	}
	if seq["100"] != 2 || seq["200"] != 1 {
		t.Errorf("sequence by amount = %v, want 100:2 200:1", seq)
	}

	sales, _ := repos.Sales.ListByCustomer(ctx, customer.ID)
	if len(sales) != 1 {
		t.Fatalf("sales = %d, want 1", len(sales))
	}
	if sales[0].SaleDate != calendar.New(2025, time.October, 3) || !sales[0].Total.Equal(decimal.NewFromInt(120)) {
		t.Errorf("sale = %+v", sales[0])
	}

	entry, err := repos.ImportControl.Get(ctx, "Ana.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Success || entry.RowCount != 5 || entry.FileID.String != "file-ana" || !entry.LastSync.Time.Equal(testNow) {
		t.Errorf("import entry = %+v", entry)
	}

	if got := testutil.ToFloat64(m.IngestionsCounter().WithLabelValues(metrics.OutcomeSuccess)); got != 1 {
		t.Errorf("success counter = %v", got)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, _ := newTestService(store, locking.NoopLocker{}, time.Second)

	first, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot))
	if err != nil {
		t.Fatal(err)
	}
	if first.CustomerID != second.CustomerID {
		t.Errorf("customer id changed: %s -> %s", first.CustomerID, second.CustomerID)
	}

	repos := store.Repositories()
	customers, _ := repos.Customers.List(ctx)
	records, _ := repos.Records.ListByCustomer(ctx, first.CustomerID)
	payments, _ := repos.Payments.ListByCustomer(ctx, first.CustomerID)
	sales, _ := repos.Sales.ListByCustomer(ctx, first.CustomerID)
	if len(customers) != 1 || len(records) != 5 || len(payments) != 2 || len(sales) != 1 {
		t.Errorf("counts after re-ingest: customers=%d records=%d payments=%d sales=%d",
			len(customers), len(records), len(payments), len(sales))
	}
}

func TestIngestReplayProducesSameRows(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, _ := newTestService(store, locking.NoopLocker{}, time.Second)

	first, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot))
	if err != nil {
		t.Fatal(err)
	}
	before := ledgerRows(t, store.Repositories(), first.CustomerID)

	if _, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot)); err != nil {
		t.Fatal(err)
	}
	after := ledgerRows(t, store.Repositories(), first.CustomerID)

	if len(before) != len(after) {
		t.Fatalf("rows before=%v after=%v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("row %d changed on replay: %q -> %q", i, before[i], after[i])
		}
	}
}

// ledgerRows renders every derived row of a customer without its surrogate
// id, sorted so two ingests can be compared line by line.
func ledgerRows(t *testing.T, repos repositories.Repositories, customerID string) []string {
	t.Helper()
	ctx := context.Background()
	records, err := repos.Records.ListByCustomer(ctx, customerID)
	if err != nil {
		t.Fatal(err)
	}
	payments, err := repos.Payments.ListByCustomer(ctx, customerID)
	if err != nil {
		t.Fatal(err)
	}
	sales, err := repos.Sales.ListByCustomer(ctx, customerID)
	if err != nil {
		t.Fatal(err)
	}

	var rows []string
	for _, r := range records {
		rows = append(rows, fmt.Sprintf("record %d %v %s %s %s",
			r.Position, r.PaymentDate, r.Disbursement, r.BalanceSnapshot, r.PaymentTypeTag.String))
	}
	for _, p := range payments {
		rows = append(rows, fmt.Sprintf("payment %s #%d %s %s %s",
			p.PaymentDate.Format(time.RFC3339), p.SequenceInDay, p.Amount, p.PaymentTypeTag.String, p.ImportedAt.Format(time.RFC3339)))
	}
	for _, s := range sales {
		rows = append(rows, fmt.Sprintf("sale %s #%d %s %s",
			s.SaleDate, s.SequenceInDay, s.Total, s.ImportedAt.Format(time.RFC3339)))
	}
	sort.Strings(rows)
	return rows
}

func TestIngestPreservesSaleImportTimestamps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, _ := newTestService(store, locking.NoopLocker{}, time.Second)

	if _, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot)); err != nil {
		t.Fatal(err)
	}

	later := strings.Replace(anaSnapshot, `"modifiedAt": "2025-11-04T10:00:00Z"`, `"modifiedAt": "2025-11-06T10:00:00Z"`, 1)
	later = strings.Replace(later, `{"saleDate": "2025-09-29", "totalAmount": 999}`, `{"saleDate": "2025-11-06", "totalAmount": 30}`, 1)
	res, err := svc.Ingest(ctx, decodeSnapshot(t, later))
	if err != nil {
		t.Fatal(err)
	}

	sales, _ := store.Repositories().Sales.ListByCustomer(ctx, res.CustomerID)
	got := map[calendar.Day]time.Time{}
	for _, s := range sales {
		got[s.SaleDate] = s.ImportedAt
	}
	if want := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC); !got[calendar.New(2025, time.October, 3)].Equal(want) {
		t.Errorf("existing day imported at %v, want %v", got[calendar.New(2025, time.October, 3)], want)
	}
	if want := time.Date(2025, 11, 6, 10, 0, 0, 0, time.UTC); !got[calendar.New(2025, time.November, 6)].Equal(want) {
		t.Errorf("new day imported at %v, want %v", got[calendar.New(2025, time.November, 6)], want)
	}
}

func TestIngestReplacesRecordsCompletely(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, _ := newTestService(store, locking.NoopLocker{}, time.Second)

	if _, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot)); err != nil {
		t.Fatal(err)
	}
	shrunk := `{
		"fileId": "file-ana",
		"fileName": "Ana Lopez",
		"modifiedAt": "2025-11-06T10:00:00Z",
		"outstandingBalance": null,
		"consolidatedRows": [{"paymentDate": "2025-10-10", "disbursement": 40, "balanceSnapshot": 660}],
		"saleRows": []
	}`
	res, err := svc.Ingest(ctx, decodeSnapshot(t, shrunk))
	if err != nil {
		t.Fatal(err)
	}

	repos := store.Repositories()
	customer, _ := repos.Customers.GetByFileID(ctx, "file-ana")
	if customer.ID != res.CustomerID || customer.Name != "Ana Lopez" || !customer.OutstandingBalance.IsZero() {
		t.Errorf("customer = %+v", customer)
	}
	records, _ := repos.Records.ListByCustomer(ctx, res.CustomerID)
	payments, _ := repos.Payments.ListByCustomer(ctx, res.CustomerID)
	sales, _ := repos.Sales.ListByCustomer(ctx, res.CustomerID)
	if len(records) != 1 || len(payments) != 1 || len(sales) != 0 {
		t.Errorf("records=%d payments=%d sales=%d, want 1/1/0", len(records), len(payments), len(sales))
	}
	if payments[0].SequenceInDay != 1 || !payments[0].Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("payment = %+v", payments[0])
	}
}

func TestIngestRejectsInvalidSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, _ := newTestService(store, locking.NoopLocker{}, time.Second)

	bad := strings.Replace(anaSnapshot, `"fileId": "file-ana",`, ``, 1)
	_, err := svc.Ingest(ctx, decodeSnapshot(t, bad))

	var verr *snapshot.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Ingest() = %v, want ValidationError", err)
	}
	if entries, _ := store.Repositories().ImportControl.List(ctx); len(entries) != 0 {
		t.Errorf("rejected snapshot left %d import entries", len(entries))
	}
}

type failingSales struct {
	repositories.SaleRepository
	err error
}

func (f failingSales) InsertBatch(ctx context.Context, sales []*models.Sale) error {
	return f.err
}

type blockingSales struct {
	repositories.SaleRepository
}

func (blockingSales) InsertBatch(ctx context.Context, sales []*models.Sale) error {
	<-ctx.Done()
	return ctx.Err()
}

// salesStore swaps the sale repository inside transactions.
type salesStore struct {
	repositories.Store
	wrap func(repositories.SaleRepository) repositories.SaleRepository
}

func (s salesStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repositories.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos repositories.Repositories) error {
		repos.Sales = s.wrap(repos.Sales)
		return fn(ctx, repos)
	})
}

func TestIngestFailureLeavesPriorStateIntact(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	good, _ := newTestService(mem, locking.NoopLocker{}, time.Second)
	first, err := good.Ingest(ctx, decodeSnapshot(t, anaSnapshot))
	if err != nil {
		t.Fatal(err)
	}

	diskFull := errors.New("disk full")
	faulty := salesStore{Store: mem, wrap: func(r repositories.SaleRepository) repositories.SaleRepository {
		return failingSales{SaleRepository: r, err: diskFull}
	}}
	svc, m := newTestService(faulty, locking.NoopLocker{}, time.Second)

	before := ledgerRows(t, mem.Repositories(), first.CustomerID)

	changed := strings.Replace(anaSnapshot, `"fileName": "Ana"`, `"fileName": "Ana Lopez"`, 1)
	changed = strings.Replace(changed, `"outstandingBalance": 700`, `"outstandingBalance": 40`, 1)
	changed = strings.Replace(changed, `"consolidatedRows": [`, `"consolidatedRows": [
		{"paymentDate": "2025-11-01T00:00:00Z", "disbursement": 660, "balanceSnapshot": 40},`, 1)
	changed = strings.Replace(changed, `"disbursement": 100, "balanceSnapshot": 900`, `"disbursement": 150, "balanceSnapshot": 850`, 1)
	_, err = svc.Ingest(ctx, decodeSnapshot(t, changed))

	var txErr *TransactionError
	if !errors.As(err, &txErr) || !errors.Is(err, diskFull) {
		t.Fatalf("Ingest() = %v, want TransactionError wrapping disk full", err)
	}

	repos := mem.Repositories()
	customer, _ := repos.Customers.GetByFileID(ctx, "file-ana")
	if customer.Name != "Ana" || !customer.OutstandingBalance.Equal(decimal.NewFromInt(700)) {
		t.Errorf("customer changed despite failure: %+v", customer)
	}
	records, _ := repos.Records.ListByCustomer(ctx, first.CustomerID)
	if len(records) != 5 {
		t.Errorf("records = %d after failed ingest, want the original 5", len(records))
	}
	payments, _ := repos.Payments.ListByCustomer(ctx, first.CustomerID)
	sales, _ := repos.Sales.ListByCustomer(ctx, first.CustomerID)
	if len(payments) != 2 || len(sales) != 1 {
		t.Errorf("payments=%d sales=%d after failed ingest, want 2/1", len(payments), len(sales))
	}
	after := ledgerRows(t, repos, first.CustomerID)
	if strings.Join(after, "\n") != strings.Join(before, "\n") {
		t.Errorf("rows changed despite failure:\nbefore %v\nafter  %v", before, after)
	}

	entry, err := repos.ImportControl.Get(ctx, "Ana Lopez.xlsx")
	if err != nil {
		t.Fatalf("failure entry: %v", err)
	}
	if entry.Success || !strings.Contains(entry.ErrorMessage.String, "disk full") {
		t.Errorf("failure entry = %+v", entry)
	}
	if prior, _ := repos.ImportControl.Get(ctx, "Ana.xlsx"); !prior.Success {
		t.Errorf("earlier success entry changed: %+v", prior)
	}
	if got := testutil.ToFloat64(m.IngestionsCounter().WithLabelValues(metrics.OutcomeFailed)); got != 1 {
		t.Errorf("failed counter = %v", got)
	}
}

func TestIngestTimesOut(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	slow := salesStore{Store: mem, wrap: func(r repositories.SaleRepository) repositories.SaleRepository {
		return blockingSales{SaleRepository: r}
	}}
	svc, _ := newTestService(slow, locking.NoopLocker{}, 20*time.Millisecond)

	_, err := svc.Ingest(ctx, decodeSnapshot(t, anaSnapshot))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ingest() = %v, want deadline exceeded", err)
	}
	if _, err := mem.Repositories().Customers.GetByFileID(ctx, "file-ana"); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("customer committed despite timeout: %v", err)
	}
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, locking.ErrLocked
}

func TestIngestReportsLockContention(t *testing.T) {
	svc, _ := newTestService(memory.NewStore(), busyLocker{}, time.Second)

	_, err := svc.Ingest(context.Background(), decodeSnapshot(t, anaSnapshot))
	if !errors.Is(err, locking.ErrLocked) {
		t.Fatalf("Ingest() = %v, want ErrLocked", err)
	}
}
