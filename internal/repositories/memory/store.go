// Package memory is an in-process Store for tests and demos. Transactions
// run against a private copy of the data that replaces the live copy on
// commit, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sync"
	"time"

	"ledger-sync-service/internal/models"
	"ledger-sync-service/internal/repositories"
)

type dataset struct {
	customers  map[string]*models.Customer // by id
	records    map[string][]*models.ConsolidatedRecord
	payments   map[string][]*models.Payment
	sales      map[string][]*models.Sale
	imports    map[string]*models.ImportControlEntry
	syncStatus map[string]*models.SyncStatus
	nextID     int64
}

func newDataset() *dataset {
	return &dataset{
		customers:  make(map[string]*models.Customer),
		records:    make(map[string][]*models.ConsolidatedRecord),
		payments:   make(map[string][]*models.Payment),
		sales:      make(map[string][]*models.Sale),
		imports:    make(map[string]*models.ImportControlEntry),
		syncStatus: make(map[string]*models.SyncStatus),
	}
}

func (d *dataset) id() int64 {
	d.nextID++
	return d.nextID
}

// clone copies every row so the copy can be mutated freely.
func (d *dataset) clone() *dataset {
	c := newDataset()
	c.nextID = d.nextID
	for k, v := range d.customers {
		cp := *v
		c.customers[k] = &cp
	}
	for k, rows := range d.records {
		c.records[k] = cloneRows(rows)
	}
	for k, rows := range d.payments {
		c.payments[k] = cloneRows(rows)
	}
	for k, rows := range d.sales {
		c.sales[k] = cloneRows(rows)
	}
	for k, v := range d.imports {
		cp := *v
		c.imports[k] = &cp
	}
	for k, v := range d.syncStatus {
		cp := *v
		c.syncStatus[k] = &cp
	}
	return c
}

func cloneRows[T any](rows []*T) []*T {
	out := make([]*T, len(rows))
	for i, r := range rows {
		cp := *r
		out[i] = &cp
	}
	return out
}

type Option func(*Store)

// WithIdleReset wipes the store after d without any access. Demo
// deployments use it to start every visitor from a clean slate.
func WithIdleReset(d time.Duration) Option {
	return func(s *Store) { s.idle = d }
}

// WithClock overrides time.Now for timestamps the store sets itself.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu    sync.Mutex
	data  *dataset
	now   func() time.Time
	idle  time.Duration
	timer *time.Timer
	gen   uint64
}

func NewStore(opts ...Option) *Store {
	s := &Store{data: newDataset(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repositories.Store = (*Store)(nil)

// touch restarts the idle timer. Callers hold s.mu.
func (s *Store) touch() {
	if s.idle <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.idle, func() { s.expire(gen) })
}

// expire wipes the data armed by touch generation gen. A timer that fired
// while a later touch was waiting on s.mu finds a newer generation and
// leaves the data alone.
func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.data = newDataset()
}

// view runs fn on the transaction's dataset, or on the live one under the
// store lock when tx is nil.
func (s *Store) view(tx *dataset, fn func(d *dataset) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return fn(s.data)
}

func (s *Store) repositories(tx *dataset) repositories.Repositories {
	return repositories.Repositories{
		Customers:     &customerRepository{s: s, tx: tx},
		Records:       &recordRepository{s: s, tx: tx},
		Payments:      &paymentRepository{s: s, tx: tx},
		Sales:         &saleRepository{s: s, tx: tx},
		ImportControl: &importControlRepository{s: s, tx: tx},
		SyncStatus:    &syncStatusRepository{s: s, tx: tx},
	}
}

func (s *Store) Repositories() repositories.Repositories {
	return s.repositories(nil)
}

// WithinTx holds the store lock for the whole transaction, so transactions
// are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repositories.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.data.clone()
	if err := fn(ctx, s.repositories(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = newDataset()
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	return nil
}
