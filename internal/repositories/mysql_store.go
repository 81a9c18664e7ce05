package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ledger-sync-service/internal/database"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertChunkSize bounds the rows of one multi-row INSERT.
const insertChunkSize = 500

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func newRepositories(q dbtx) Repositories {
	return Repositories{
		Customers:     &customerRepository{db: q},
		Records:       &consolidatedRecordRepository{db: q},
		Payments:      &paymentRepository{db: q},
		Sales:         &saleRepository{db: q},
		ImportControl: &importControlRepository{db: q},
		SyncStatus:    &syncStatusRepository{db: q},
	}
}

func (s *MySQLStore) Repositories() Repositories {
	return newRepositories(s.db)
}

func (s *MySQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

func (s *MySQLStore) Reset(ctx context.Context) error {
	// Children first so foreign keys never block a delete.
	tables := []string{"payments", "sales", "consolidated_records", "customers", "import_control", "sync_status"}
	return database.RunInTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// bulkInsert writes n rows with as few statements as possible. head is the
// INSERT statement up to VALUES, args returns the values of row i.
func bulkInsert(ctx context.Context, q dbtx, head string, columns int, n int, args func(i int) []any) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", columns), ", ") + ")"

	for start := 0; start < n; start += insertChunkSize {
		end := min(start+insertChunkSize, n)

		values := make([]string, 0, end-start)
		flat := make([]any, 0, (end-start)*columns)
		for i := start; i < end; i++ {
			values = append(values, placeholder)
			flat = append(flat, args(i)...)
		}

		if _, err := q.ExecContext(ctx, head+" VALUES "+strings.Join(values, ", "), flat...); err != nil {
			return err
		}
	}
	return nil
}

func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
