// Package dbtest provides in-memory implementations of the repositories so
// services can be exercised without Postgres. WithTx serializes transactions
// and restores a snapshot when the callback fails, mirroring a rollback.
package dbtest

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type tables struct {
	users        map[uuid.UUID]model.User
	projects     map[uuid.UUID]model.Project
	jobs         map[uuid.UUID]model.Job
	payments     map[uuid.UUID]model.Payment
	references   map[string]uuid.UUID
	wallets      map[uuid.UUID]model.Wallet
	withdrawals  map[uuid.UUID]model.Withdrawal
	transactions []model.Transaction
	events       []model.Event
	invoiceSeq   int64
}

func (t *tables) clone() *tables {
	return &tables{
		users:        maps.Clone(t.users),
		projects:     maps.Clone(t.projects),
		jobs:         maps.Clone(t.jobs),
		payments:     maps.Clone(t.payments),
		references:   maps.Clone(t.references),
		wallets:      maps.Clone(t.wallets),
		withdrawals:  maps.Clone(t.withdrawals),
		transactions: slices.Clone(t.transactions),
		events:       slices.Clone(t.events),
		invoiceSeq:   t.invoiceSeq,
	}
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	t    *tables

	// Saves counts wallet writes; tests use it to check nothing was persisted.
	Saves int
}

func New() *Store {
	return &Store{t: &tables{
		users:       map[uuid.UUID]model.User{},
		projects:    map[uuid.UUID]model.Project{},
		jobs:        map[uuid.UUID]model.Job{},
		payments:    map[uuid.UUID]model.Payment{},
		references:  map[string]uuid.UUID{},
		wallets:     map[uuid.UUID]model.Wallet{},
		withdrawals: map[uuid.UUID]model.Withdrawal{},
	}}
}

func (s *Store) Querier() database.Querier {
	return nil
}

// WithTx runs fn against a snapshot that is restored if fn fails. Like a
// pgx transaction, it neither begins nor commits on a cancelled context.
func (s *Store) WithTx(ctx context.Context, fn func(q database.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.t.clone()
	s.mu.RUnlock()

	err := fn(nil)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.t = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) read(fn func(t *tables)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.t)
}

func (s *Store) write(fn func(t *tables)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.t)
}

// Seed helpers.

func (s *Store) AddUser(u model.User) {
	s.write(func(t *tables) { t.users[u.ID] = u })
}

func (s *Store) AddProject(p model.Project) {
	s.write(func(t *tables) { t.projects[p.ID] = p })
}

func (s *Store) AddJob(j model.Job) {
	s.write(func(t *tables) { t.jobs[j.ID] = j })
}

func (s *Store) PutWallet(w model.Wallet) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.RecomputeAvailable()
	s.write(func(t *tables) { t.wallets[w.UserID] = w })
}

func (s *Store) PutPayment(p model.Payment) {
	s.write(func(t *tables) { t.payments[p.ID] = p })
}

// Inspection helpers.

func (s *Store) Wallet(userID uuid.UUID) (model.Wallet, bool) {
	var w model.Wallet
	var ok bool
	s.read(func(t *tables) { w, ok = t.wallets[userID] })
	return w, ok
}

func (s *Store) Payment(id uuid.UUID) model.Payment {
	var p model.Payment
	s.read(func(t *tables) { p = t.payments[id] })
	return p
}

func (s *Store) Withdrawal(id uuid.UUID) model.Withdrawal {
	var w model.Withdrawal
	s.read(func(t *tables) { w = t.withdrawals[id] })
	return w
}

func (s *Store) Job(id uuid.UUID) model.Job {
	var j model.Job
	s.read(func(t *tables) { j = t.jobs[id] })
	return j
}

func (s *Store) Transactions() []model.Transaction {
	var out []model.Transaction
	s.read(func(t *tables) { out = slices.Clone(t.transactions) })
	return out
}

func (s *Store) Events() []model.Event {
	var out []model.Event
	s.read(func(t *tables) { out = slices.Clone(t.events) })
	return out
}

func (s *Store) EventTypes() []string {
	var out []string
	for _, e := range s.Events() {
		out = append(out, e.Type)
	}
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func sortNewestFirst[T any](items []T, created func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return created(items[i]).After(created(items[j]))
	})
}
