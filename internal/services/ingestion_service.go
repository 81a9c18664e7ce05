package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/locking"
	"ledger-sync-service/internal/logging"
	"ledger-sync-service/internal/metrics"
	"ledger-sync-service/internal/models"
	"ledger-sync-service/internal/regeneration"
	"ledger-sync-service/internal/repositories"
	"ledger-sync-service/internal/snapshot"
)

const failureWriteTimeout = 5 * time.Second

type IngestionConfig struct {
	PaymentsCutoff calendar.Day
	SalesCutoff    calendar.Day
	TxTimeout      time.Duration
}

type IngestionService struct {
	store     repositories.Store
	validator *snapshot.Validator
	locker    locking.Locker
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
	cfg       IngestionConfig
	now       func() time.Time
}

func NewIngestionService(
	store repositories.Store,
	validator *snapshot.Validator,
	locker locking.Locker,
	m *metrics.Metrics,
	logger logrus.FieldLogger,
	cfg IngestionConfig,
) *IngestionService {
	return &IngestionService{
		store:     store,
		validator: validator,
		locker:    locker,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

type IngestionResult struct {
	Success              bool    `json:"success"`
	CustomerID           string  `json:"customerId"`
	ConsolidatedRowCount int     `json:"consolidatedRowCount"`
	SaleRowCount         int     `json:"saleRowCount"`
	DurationSeconds      float64 `json:"durationSeconds"`
}

// Ingest replaces everything stored for the snapshot's customer with the
// snapshot contents. All writes share one transaction; on failure the
// import control entry is marked failed outside of it.
func (s *IngestionService) Ingest(ctx context.Context, raw snapshot.RawSnapshot) (*IngestionResult, error) {
	start := s.now()

	snap, err := s.validator.Validate(raw)
	if err != nil {
		s.metrics.Ingestion(metrics.OutcomeInvalid)
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"fileId":   snap.FileID,
		"fileName": snap.FileName,
	})

	unlock, err := s.locker.Lock(ctx, snap.FileID)
	if err != nil {
		if errors.Is(err, locking.ErrLocked) {
			s.metrics.Ingestion(metrics.OutcomeLocked)
		} else {
			s.metrics.Ingestion(metrics.OutcomeFailed)
		}
		return nil, err
	}
	defer unlock()

	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	var (
		customerID string
		payments   int
		sales      int
	)
	err = s.store.WithinTx(txCtx, func(ctx context.Context, repos repositories.Repositories) error {
		var err error
		customerID, err = s.upsertCustomer(ctx, repos, snap)
		if err != nil {
			return err
		}
		if err := repos.Records.ReplaceForCustomer(ctx, customerID, snap.ConsolidatedRows); err != nil {
			return fmt.Errorf("failed to replace consolidated records: %w", err)
		}
		if payments, err = s.regeneratePayments(ctx, repos, customerID); err != nil {
			return err
		}
		if sales, err = s.regenerateSales(ctx, repos, customerID, snap); err != nil {
			return err
		}
		return s.recordSuccess(ctx, repos, snap)
	})
	if err != nil {
		s.metrics.Ingestion(metrics.OutcomeFailed)
		logging.LogError(log, "services", "Ingest", "ingestion transaction failed", nil, err)
		s.recordFailure(log, snap.FileName, err)
		return nil, &TransactionError{FileName: snap.FileName, Err: err}
	}

	elapsed := s.now().Sub(start)
	s.metrics.IngestionSucceeded(elapsed, len(snap.ConsolidatedRows), payments, sales)
	log.WithFields(logrus.Fields{
		"customerId": customerID,
		"records":    len(snap.ConsolidatedRows),
		"payments":   payments,
		"sales":      sales,
		"duration":   elapsed.String(),
	}).Info("snapshot ingested")

	return &IngestionResult{
		Success:              true,
		CustomerID:           customerID,
		ConsolidatedRowCount: len(snap.ConsolidatedRows),
		SaleRowCount:         len(snap.SaleRows),
		DurationSeconds:      elapsed.Seconds(),
	}, nil
}

func (s *IngestionService) upsertCustomer(ctx context.Context, repos repositories.Repositories, snap *models.Snapshot) (string, error) {
	balance := decimal.Zero
	if snap.OutstandingBalance.Valid {
		balance = snap.OutstandingBalance.Decimal
	}
	customer := &models.Customer{
		FileID:             snap.FileID,
		Name:               snap.FileName,
		OutstandingBalance: balance,
		LastModified:       snap.ModifiedAt,
	}
	if err := repos.Customers.UpsertByFileID(ctx, customer); err != nil {
		return "", fmt.Errorf("failed to upsert customer: %w", err)
	}
	return customer.ID, nil
}

func (s *IngestionService) regeneratePayments(ctx context.Context, repos repositories.Repositories, customerID string) (int, error) {
	if err := repos.Payments.DeleteForCustomer(ctx, customerID); err != nil {
		return 0, fmt.Errorf("failed to delete payments: %w", err)
	}
	candidates, err := repos.Records.ListPaymentCandidates(ctx, customerID, s.cfg.PaymentsCutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list payment candidates: %w", err)
	}
	payments := regeneration.BuildPayments(customerID, candidates, s.now())
	if err := repos.Payments.InsertBatch(ctx, payments); err != nil {
		return 0, fmt.Errorf("failed to insert payments: %w", err)
	}
	return len(payments), nil
}

// regenerateSales keeps the import timestamp of days that were already
// present; new days take the file's modification time.
func (s *IngestionService) regenerateSales(ctx context.Context, repos repositories.Repositories, customerID string, snap *models.Snapshot) (int, error) {
	existing, err := repos.Sales.ImportTimestampsByDay(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("failed to read sale timestamps: %w", err)
	}
	if err := repos.Sales.DeleteForCustomer(ctx, customerID); err != nil {
		return 0, fmt.Errorf("failed to delete sales: %w", err)
	}
	days := regeneration.AggregateSales(snap.SaleRows, s.cfg.SalesCutoff)
	sales := regeneration.BuildSales(customerID, days, existing, snap.ModifiedAt)
	if err := repos.Sales.InsertBatch(ctx, sales); err != nil {
		return 0, fmt.Errorf("failed to insert sales: %w", err)
	}
	return len(sales), nil
}

func (s *IngestionService) recordSuccess(ctx context.Context, repos repositories.Repositories, snap *models.Snapshot) error {
	entry := &models.ImportControlEntry{
		FileName:     snap.FileName + models.ImportControlSuffix,
		FileID:       sql.NullString{String: snap.FileID, Valid: true},
		LastModified: sql.NullTime{Time: snap.ModifiedAt, Valid: true},
		LastSync:     sql.NullTime{Time: s.now(), Valid: true},
		RowCount:     len(snap.ConsolidatedRows),
	}
	if err := repos.ImportControl.RecordSuccess(ctx, entry); err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// recordFailure is best effort: its own error is logged, never returned.
func (s *IngestionService) recordFailure(log logrus.FieldLogger, fileName string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	key := fileName + models.ImportControlSuffix
	err := s.store.Repositories().ImportControl.RecordFailure(ctx, key, cause.Error(), s.now())
	if err != nil {
		s.metrics.LedgerWriteFailed()
		logging.LogError(log, "services", "recordFailure", "failed to record import failure", key, err)
	}
}
