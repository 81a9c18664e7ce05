package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeLocked  = "locked"
	OutcomeFailed  = "failed"
)

type Metrics struct {
	ingestions          *prometheus.CounterVec
	ingestDuration      prometheus.Histogram
	rows                *prometheus.CounterVec
	ledgerWriteFailures prometheus.Counter
	customersRemoved    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_sync_ingestions_total",
			Help: "Snapshot ingestions by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_sync_ingestion_duration_seconds",
			Help:    "Duration of successful snapshot ingestions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_sync_rows_total",
			Help: "Rows written by ingestions, by kind.",
		}, []string{"kind"}),
		ledgerWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_sync_import_control_write_failures_total",
			Help: "Failed best-effort writes of import control failure records.",
		}),
		customersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_sync_customers_removed_total",
			Help: "Customers removed by cleanup because their file is no longer active.",
		}),
	}
	reg.MustRegister(m.ingestions, m.ingestDuration, m.rows, m.ledgerWriteFailures, m.customersRemoved)
	return m
}

func (m *Metrics) Ingestion(outcome string) {
	m.ingestions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IngestionSucceeded(d time.Duration, records, payments, sales int) {
	m.ingestions.WithLabelValues(OutcomeSuccess).Inc()
	m.ingestDuration.Observe(d.Seconds())
	m.rows.WithLabelValues("consolidated").Add(float64(records))
	m.rows.WithLabelValues("payment").Add(float64(payments))
	m.rows.WithLabelValues("sale").Add(float64(sales))
}

// IngestionsCounter exposes the outcome counter for assertions.
func (m *Metrics) IngestionsCounter() *prometheus.CounterVec {
	return m.ingestions
}

func (m *Metrics) LedgerWriteFailed() {
	m.ledgerWriteFailures.Inc()
}

func (m *Metrics) CustomersRemoved(n int64) {
	m.customersRemoved.Add(float64(n))
}
