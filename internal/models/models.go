package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"ledger-sync-service/internal/calendar"
)

// Customer is one debtor, identified upstream by the id of its spreadsheet file
type Customer struct {
	ID                 string          `db:"id" json:"id"`
	FileID             string          `db:"file_id" json:"file_id"`
	Name               string          `db:"name" json:"name"`
	OutstandingBalance decimal.Decimal `db:"outstanding_balance" json:"outstanding_balance"`
	LastModified       time.Time       `db:"last_modified" json:"last_modified"`
	CreatedAt          time.Time       `db:"created_at" json:"-"`
	UpdatedAt          time.Time       `db:"updated_at" json:"-"`
}

// ConsolidatedRecord is a raw ledger row copied from the customer's file
type ConsolidatedRecord struct {
	ID              int64           `db:"id" json:"id"`
	CustomerID      string          `db:"customer_id" json:"customer_id"`
	Position        int             `db:"source_position" json:"source_position"`
	PaymentDate     sql.NullTime    `db:"payment_date" json:"payment_date"`
	Disbursement    decimal.Decimal `db:"disbursement" json:"disbursement"`
	BalanceSnapshot decimal.Decimal `db:"balance_snapshot" json:"balance_snapshot"`
	PaymentTypeTag  sql.NullString  `db:"payment_type_tag" json:"payment_type_tag"`
	SourceSheet     sql.NullString  `db:"source_sheet" json:"source_sheet"`
	SourceRow       sql.NullInt64   `db:"source_row" json:"source_row"`
}

// Payment is derived from a ConsolidatedRecord with a dated, positive disbursement
type Payment struct {
	ID             int64           `db:"id" json:"id"`
	CustomerID     string          `db:"customer_id" json:"customer_id"`
	PaymentDate    time.Time       `db:"payment_date" json:"payment_date"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	PaymentTypeTag sql.NullString  `db:"payment_type_tag" json:"payment_type_tag"`
	ImportedAt     time.Time       `db:"imported_at" json:"imported_at"`
	SequenceInDay  int             `db:"sequence_in_day" json:"sequence_in_day"`
}

// Sale is the total of a customer's sale lines for one day
type Sale struct {
	ID            int64           `db:"id" json:"id"`
	CustomerID    string          `db:"customer_id" json:"customer_id"`
	SaleDate      calendar.Day    `db:"sale_date" json:"sale_date"`
	Total         decimal.Decimal `db:"total" json:"total"`
	ImportedAt    time.Time       `db:"imported_at" json:"imported_at"`
	SequenceInDay int             `db:"sequence_in_day" json:"sequence_in_day"`
}

// ImportControlEntry tracks the last sync of one source file
type ImportControlEntry struct {
	FileName     string         `db:"file_name" json:"file_name"`
	FileID       sql.NullString `db:"file_id" json:"file_id"`
	LastModified sql.NullTime   `db:"last_modified" json:"last_modified"`
	LastSync     sql.NullTime   `db:"last_sync" json:"last_sync"`
	RowCount     int            `db:"row_count" json:"row_count"`
	Success      bool           `db:"success" json:"success"`
	ErrorMessage sql.NullString `db:"error_message" json:"error_message"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// SyncStatus is the progress reported by the upstream spreadsheet scheduler
type SyncStatus struct {
	ID              string    `db:"id" json:"id"`
	State           string    `db:"state" json:"state"`
	LastUpdate      time.Time `db:"last_update" json:"last_update"`
	FilesUpdated    int       `db:"files_updated" json:"files_updated"`
	FilesSkipped    int       `db:"files_skipped" json:"files_skipped"`
	TotalFiles      int       `db:"total_files" json:"total_files"`
	Percent         int       `db:"percent" json:"percent"`
	DurationSeconds int       `db:"duration_seconds" json:"duration_seconds"`
	Errors          int       `db:"errors" json:"errors"`
	Success         bool      `db:"success" json:"success"`
	Message         string    `db:"message" json:"message"`
}

// Snapshot is a validated upload of one customer's file
type Snapshot struct {
	FileID             string
	FileName           string
	ModifiedAt         time.Time
	OutstandingBalance decimal.NullDecimal
	ConsolidatedRows   []ConsolidatedRow
	SaleRows           []SaleRow
}

type ConsolidatedRow struct {
	PaymentDate     sql.NullTime
	Disbursement    decimal.Decimal
	BalanceSnapshot decimal.Decimal
	PaymentTypeTag  sql.NullString
	SourceSheet     sql.NullString
	SourceRow       sql.NullInt64
}

type SaleRow struct {
	SaleDate    time.Time
	TotalAmount decimal.Decimal
}

// ImportControlSuffix is appended to a file name to build its import control key
const ImportControlSuffix = ".xlsx"

// SyncStatusID is the key of the single sync status row
const SyncStatusID = "spreadsheet-sync"

// SyncState constants
const (
	SyncStateCompleted  = "completed"
	SyncStateInProgress = "in_progress"
	SyncStateNoData     = "no_data"
)
