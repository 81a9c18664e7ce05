package repositories

import (
	"context"
	"errors"
	"time"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
)

var ErrNotFound = errors.New("record not found")

type CustomerRepository interface {
	// UpsertByFileID creates or updates the customer owning c.FileID and
	// sets c.ID to its internal id.
	UpsertByFileID(ctx context.Context, c *models.Customer) error
	GetByFileID(ctx context.Context, fileID string) (*models.Customer, error)
	List(ctx context.Context) ([]*models.Customer, error)
	// DeleteNotIn removes customers whose file id is not listed, together
	// with their records, payments and sales.
	DeleteNotIn(ctx context.Context, fileIDs []string) (int64, error)
}

type ConsolidatedRecordRepository interface {
	// ReplaceForCustomer deletes every record of the customer and inserts
	// rows in their source order.
	ReplaceForCustomer(ctx context.Context, customerID string, rows []models.ConsolidatedRow) error
	ListByCustomer(ctx context.Context, customerID string) ([]*models.ConsolidatedRecord, error)
	// ListPaymentCandidates returns the records that produce payments, newest
	// payment date first, ties in source order.
	ListPaymentCandidates(ctx context.Context, customerID string, cutoff calendar.Day) ([]*models.ConsolidatedRecord, error)
}

type PaymentRepository interface {
	DeleteForCustomer(ctx context.Context, customerID string) error
	InsertBatch(ctx context.Context, payments []*models.Payment) error
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Payment, error)
}

type SaleRepository interface {
	ImportTimestampsByDay(ctx context.Context, customerID string) (map[calendar.Day]time.Time, error)
	DeleteForCustomer(ctx context.Context, customerID string) error
	InsertBatch(ctx context.Context, sales []*models.Sale) error
	ListByCustomer(ctx context.Context, customerID string) ([]*models.Sale, error)
}

type ImportControlRepository interface {
	RecordSuccess(ctx context.Context, entry *models.ImportControlEntry) error
	// RecordFailure marks the file as failed. An existing entry keeps its
	// other fields; a missing one is created with only name and error.
	RecordFailure(ctx context.Context, fileName string, message string, at time.Time) error
	Get(ctx context.Context, fileName string) (*models.ImportControlEntry, error)
	List(ctx context.Context) ([]*models.ImportControlEntry, error)
}

type SyncStatusRepository interface {
	Upsert(ctx context.Context, status *models.SyncStatus) error
	Get(ctx context.Context, id string) (*models.SyncStatus, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Customers     CustomerRepository
	Records       ConsolidatedRecordRepository
	Payments      PaymentRepository
	Sales         SaleRepository
	ImportControl ImportControlRepository
	SyncStatus    SyncStatusRepository
}

// Store is the persistence contract shared by the MySQL and in-memory
// implementations.
type Store interface {
	// Repositories returns repositories that run outside any transaction.
	Repositories() Repositories
	// WithinTx runs fn in a transaction. The transaction commits only if fn
	// returns nil and ctx is still live; otherwise nothing fn did is kept.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Reset deletes every row of every ingestion table.
	Reset(ctx context.Context) error
	Close() error
}
