package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"ledger-sync-service/internal/calendar"
	"ledger-sync-service/internal/models"
	"ledger-sync-service/internal/regeneration"
	"ledger-sync-service/internal/repositories"
)

type customerRepository struct {
	s  *Store
	tx *dataset
}

func (r *customerRepository) UpsertByFileID(ctx context.Context, c *models.Customer) error {
	return r.s.view(r.tx, func(d *dataset) error {
		now := r.s.now()
		for _, existing := range d.customers {
			if existing.FileID == c.FileID {
				existing.Name = c.Name
				existing.OutstandingBalance = c.OutstandingBalance
				existing.LastModified = c.LastModified
				existing.UpdatedAt = now
				c.ID = existing.ID
				return nil
			}
		}
		c.ID = uuid.NewString()
		stored := *c
		stored.CreatedAt = now
		stored.UpdatedAt = now
		d.customers[c.ID] = &stored
		return nil
	})
}

func (r *customerRepository) GetByFileID(ctx context.Context, fileID string) (*models.Customer, error) {
	var found *models.Customer
	err := r.s.view(r.tx, func(d *dataset) error {
		for _, c := range d.customers {
			if c.FileID == fileID {
				cp := *c
				found = &cp
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return found, err
}

func (r *customerRepository) List(ctx context.Context) ([]*models.Customer, error) {
	var out []*models.Customer
	err := r.s.view(r.tx, func(d *dataset) error {
		for _, c := range d.customers {
			cp := *c
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *customerRepository) DeleteNotIn(ctx context.Context, fileIDs []string) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, errors.New("refusing to delete customers without an active file list")
	}
	active := make(map[string]bool, len(fileIDs))
	for _, id := range fileIDs {
		active[id] = true
	}

	var deleted int64
	err := r.s.view(r.tx, func(d *dataset) error {
		for id, c := range d.customers {
			if active[c.FileID] {
				continue
			}
			delete(d.customers, id)
			delete(d.records, id)
			delete(d.payments, id)
			delete(d.sales, id)
			deleted++
		}
		return nil
	})
	return deleted, err
}

type recordRepository struct {
	s  *Store
	tx *dataset
}

func (r *recordRepository) ReplaceForCustomer(ctx context.Context, customerID string, rows []models.ConsolidatedRow) error {
	return r.s.view(r.tx, func(d *dataset) error {
		delete(d.records, customerID)
		if len(rows) == 0 {
			return nil
		}
		records := make([]*models.ConsolidatedRecord, len(rows))
		for i, row := range rows {
			records[i] = &models.ConsolidatedRecord{
				ID:              d.id(),
				CustomerID:      customerID,
				Position:        i,
				PaymentDate:     row.PaymentDate,
				Disbursement:    row.Disbursement,
				BalanceSnapshot: row.BalanceSnapshot,
				PaymentTypeTag:  row.PaymentTypeTag,
				SourceSheet:     row.SourceSheet,
				SourceRow:       row.SourceRow,
			}
		}
		d.records[customerID] = records
		return nil
	})
}

func (r *recordRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.ConsolidatedRecord, error) {
	var out []*models.ConsolidatedRecord
	err := r.s.view(r.tx, func(d *dataset) error {
		out = cloneRows(d.records[customerID])
		return nil
	})
	return out, err
}

func (r *recordRepository) ListPaymentCandidates(ctx context.Context, customerID string, cutoff calendar.Day) ([]*models.ConsolidatedRecord, error) {
	var out []*models.ConsolidatedRecord
	err := r.s.view(r.tx, func(d *dataset) error {
		for _, rec := range d.records[customerID] {
			if regeneration.PaymentEligible(rec, cutoff) {
				cp := *rec
				out = append(out, &cp)
			}
		}
		return nil
	})
	regeneration.SortPaymentCandidates(out)
	return out, err
}

type paymentRepository struct {
	s  *Store
	tx *dataset
}

func (r *paymentRepository) DeleteForCustomer(ctx context.Context, customerID string) error {
	return r.s.view(r.tx, func(d *dataset) error {
		delete(d.payments, customerID)
		return nil
	})
}

func (r *paymentRepository) InsertBatch(ctx context.Context, payments []*models.Payment) error {
	return r.s.view(r.tx, func(d *dataset) error {
		for _, p := range payments {
			cp := *p
			cp.ID = d.id()
			d.payments[p.CustomerID] = append(d.payments[p.CustomerID], &cp)
		}
		return nil
	})
}

func (r *paymentRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Payment, error) {
	var out []*models.Payment
	err := r.s.view(r.tx, func(d *dataset) error {
		out = cloneRows(d.payments[customerID])
		return nil
	})
	return out, err
}

type saleRepository struct {
	s  *Store
	tx *dataset
}

func (r *saleRepository) ImportTimestampsByDay(ctx context.Context, customerID string) (map[calendar.Day]time.Time, error) {
	out := make(map[calendar.Day]time.Time)
	err := r.s.view(r.tx, func(d *dataset) error {
		for _, sale := range d.sales[customerID] {
			out[sale.SaleDate] = sale.ImportedAt
		}
		return nil
	})
	return out, err
}

func (r *saleRepository) DeleteForCustomer(ctx context.Context, customerID string) error {
	return r.s.view(r.tx, func(d *dataset) error {
		delete(d.sales, customerID)
		return nil
	})
}

func (r *saleRepository) InsertBatch(ctx context.Context, sales []*models.Sale) error {
	return r.s.view(r.tx, func(d *dataset) error {
		for _, sale := range sales {
			cp := *sale
			cp.ID = d.id()
			d.sales[sale.CustomerID] = append(d.sales[sale.CustomerID], &cp)
		}
		return nil
	})
}

func (r *saleRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.Sale, error) {
	var out []*models.Sale
	err := r.s.view(r.tx, func(d *dataset) error {
		out = cloneRows(d.sales[customerID])
		return nil
	})
	return out, err
}

type importControlRepository struct {
	s  *Store
	tx *dataset
}

func (r *importControlRepository) RecordSuccess(ctx context.Context, e *models.ImportControlEntry) error {
	return r.s.view(r.tx, func(d *dataset) error {
		cp := *e
		cp.Success = true
		cp.ErrorMessage = sql.NullString{}
		cp.UpdatedAt = r.s.now()
		d.imports[e.FileName] = &cp
		return nil
	})
}

func (r *importControlRepository) RecordFailure(ctx context.Context, fileName string, message string, at time.Time) error {
	return r.s.view(r.tx, func(d *dataset) error {
		e, ok := d.imports[fileName]
		if !ok {
			e = &models.ImportControlEntry{FileName: fileName}
			d.imports[fileName] = e
		}
		e.Success = false
		e.ErrorMessage = sql.NullString{String: message, Valid: true}
		e.UpdatedAt = at
		return nil
	})
}

func (r *importControlRepository) Get(ctx context.Context, fileName string) (*models.ImportControlEntry, error) {
	var out *models.ImportControlEntry
	err := r.s.view(r.tx, func(d *dataset) error {
		e, ok := d.imports[fileName]
		if !ok {
			return repositories.ErrNotFound
		}
		cp := *e
		out = &cp
		return nil
	})
	return out, err
}

func (r *importControlRepository) List(ctx context.Context) ([]*models.ImportControlEntry, error) {
	var out []*models.ImportControlEntry
	err := r.s.view(r.tx, func(d *dataset) error {
		for _, e := range d.imports {
			cp := *e
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, err
}

type syncStatusRepository struct {
	s  *Store
	tx *dataset
}

func (r *syncStatusRepository) Upsert(ctx context.Context, status *models.SyncStatus) error {
	return r.s.view(r.tx, func(d *dataset) error {
		cp := *status
		d.syncStatus[status.ID] = &cp
		return nil
	})
}

func (r *syncStatusRepository) Get(ctx context.Context, id string) (*models.SyncStatus, error) {
	var out *models.SyncStatus
	err := r.s.view(r.tx, func(d *dataset) error {
		st, ok := d.syncStatus[id]
		if !ok {
			return repositories.ErrNotFound
		}
		cp := *st
		out = &cp
		return nil
	})
	return out, err
}
