package dbtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/redis"
)

// Payments implements the payment repository.
type Payments struct{ s *Store }

func (s *Store) Payments() *Payments { return &Payments{s: s} }

func (r *Payments) insert(t *tables, p *model.Payment) {
	now := time.Now()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	t.invoiceSeq++
	p.InvoiceNumber = model.InvoiceNumber(now, t.invoiceSeq)
	p.CreatedAt, p.UpdatedAt = now, now
	t.payments[p.ID] = *p
}

func (r *Payments) Create(ctx context.Context, q database.Querier, p *model.Payment) error {
	r.s.write(func(t *tables) { r.insert(t, p) })
	return nil
}

func (r *Payments) UpsertPending(ctx context.Context, q database.Querier, p *model.Payment) error {
	r.s.write(func(t *tables) {
		for id, existing := range t.payments {
			if existing.Status != model.PaymentPending || existing.ProjectID == nil || p.ProjectID == nil {
				continue
			}
			if *existing.ProjectID == *p.ProjectID && existing.PayerID == p.PayerID && existing.PayeeID == p.PayeeID {
				existing.MilestoneID = p.MilestoneID
				existing.Amount = p.Amount
				existing.Currency = p.Currency
				existing.PlatformFee = p.PlatformFee
				existing.NetAmount = p.NetAmount
				existing.PaymentType = p.PaymentType
				existing.Description = p.Description
				existing.UpdatedAt = time.Now()
				t.payments[id] = existing
				*p = existing
				return
			}
		}
		r.insert(t, p)
	})
	return nil
}

func (r *Payments) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	var ok bool
	r.s.read(func(t *tables) { p, ok = t.payments[id] })
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (r *Payments) GetByIDForUpdate(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Payment, error) {
	return r.GetByID(ctx, q, id)
}

func (r *Payments) FindPending(ctx context.Context, q database.Querier, projectID, payerID, payeeID uuid.UUID) (*model.Payment, error) {
	var found *model.Payment
	r.s.read(func(t *tables) {
		for _, p := range t.payments {
			if p.Status != model.PaymentPending || p.ProjectID == nil {
				continue
			}
			if *p.ProjectID == projectID && p.PayerID == payerID && p.PayeeID == payeeID {
				found = &p
				return
			}
		}
	})
	if found == nil {
		return nil, database.ErrNotFound
	}
	return found, nil
}

func (r *Payments) GetByReference(ctx context.Context, q database.Querier, reference string) (*model.Payment, error) {
	var found *model.Payment
	r.s.read(func(t *tables) {
		if id, ok := t.references[reference]; ok {
			if p, ok := t.payments[id]; ok {
				found = &p
				return
			}
		}
		for _, p := range t.payments {
			if p.GatewayReference != nil && *p.GatewayReference == reference {
				found = &p
				return
			}
		}
	})
	if found == nil {
		return nil, database.ErrNotFound
	}
	return found, nil
}

func (r *Payments) SetGatewayReference(ctx context.Context, q database.Querier, id uuid.UUID, reference, authorizationURL string) error {
	var err error
	r.s.write(func(t *tables) {
		p, ok := t.payments[id]
		if !ok {
			err = database.ErrNotFound
			return
		}
		if _, taken := t.references[reference]; taken {
			err = errors.New("duplicate payment reference")
			return
		}
		t.references[reference] = id
		p.GatewayReference = &reference
		p.AuthorizationURL = authorizationURL
		p.UpdatedAt = time.Now()
		t.payments[id] = p
	})
	return err
}

func (r *Payments) CompleteVerification(ctx context.Context, q database.Querier, id uuid.UUID, status model.PaymentStatus, escrow model.EscrowStatus, paidAt *time.Time) (bool, error) {
	var swapped bool
	r.s.write(func(t *tables) {
		p, ok := t.payments[id]
		if !ok || !p.Status.Unresolved() {
			return
		}
		p.Status = status
		p.EscrowStatus = escrow
		p.PaidAt = paidAt
		p.UpdatedAt = time.Now()
		t.payments[id] = p
		swapped = true
	})
	return swapped, nil
}

func (r *Payments) TransitionEscrow(ctx context.Context, q database.Querier, tr model.EscrowTransition) (bool, error) {
	var swapped bool
	r.s.write(func(t *tables) {
		p, ok := t.payments[tr.PaymentID]
		if !ok || p.EscrowStatus != tr.From {
			return
		}
		p.EscrowStatus = tr.To
		if tr.Status != "" {
			p.Status = tr.Status
		}
		at := tr.At
		switch tr.To {
		case model.EscrowReleased:
			p.ReleasedAt = &at
		case model.EscrowRefunded:
			p.RefundedAt = &at
			p.RefundReason = tr.Reason
		}
		p.UpdatedAt = at
		t.payments[tr.PaymentID] = p
		swapped = true
	})
	return swapped, nil
}

func (r *Payments) ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Payment, int, error) {
	var out []model.Payment
	r.s.read(func(t *tables) {
		for _, p := range t.payments {
			if p.PayerID == userID || p.PayeeID == userID {
				out = append(out, p)
			}
		}
	})
	sortNewestFirst(out, func(p model.Payment) time.Time { return p.CreatedAt })
	return paginate(out, limit, offset), len(out), nil
}

func (r *Payments) SumHeldForPayee(ctx context.Context, q database.Querier, payeeID uuid.UUID) (int64, error) {
	var sum int64
	r.s.read(func(t *tables) {
		for _, p := range t.payments {
			if p.PayeeID == payeeID && p.Status == model.PaymentCompleted && p.EscrowStatus == model.EscrowHeld {
				sum += p.NetAmount
			}
		}
	})
	return sum, nil
}

// Wallets implements the wallet repository.
type Wallets struct{ s *Store }

func (s *Store) Wallets() *Wallets { return &Wallets{s: s} }

func (r *Wallets) GetByUserID(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error) {
	w, ok := r.s.Wallet(userID)
	if !ok {
		return nil, database.ErrNotFound
	}
	return &w, nil
}

func (r *Wallets) GetOrCreate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error) {
	var w model.Wallet
	r.s.write(func(t *tables) {
		existing, ok := t.wallets[userID]
		if !ok {
			now := time.Now()
			existing = model.Wallet{
				ID:       uuid.New(),
				UserID:   userID,
				Currency: model.CurrencyNGN,
				Model:    model.Model{CreatedAt: now, UpdatedAt: now},
			}
			t.wallets[userID] = existing
		}
		w = existing
	})
	return &w, nil
}

func (r *Wallets) GetOrCreateForUpdate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error) {
	return r.GetOrCreate(ctx, q, userID)
}

func (r *Wallets) Save(ctx context.Context, q database.Querier, w *model.Wallet) error {
	w.RecomputeAvailable()
	w.UpdatedAt = time.Now()
	r.s.write(func(t *tables) {
		t.wallets[w.UserID] = *w
	})
	r.s.mu.Lock()
	r.s.Saves++
	r.s.mu.Unlock()
	return nil
}

func (r *Wallets) UpdateBankDetails(ctx context.Context, q database.Querier, userID uuid.UUID, details model.BankDetails) error {
	if _, err := r.GetOrCreate(ctx, q, userID); err != nil {
		return err
	}
	r.s.write(func(t *tables) {
		w := t.wallets[userID]
		d := details
		w.BankDetails = &d
		t.wallets[userID] = w
	})
	return nil
}

// Transactions implements the transaction repository.
type Transactions struct{ s *Store }

func (s *Store) TransactionLog() *Transactions { return &Transactions{s: s} }

func (r *Transactions) Create(ctx context.Context, q database.Querier, tx *model.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = time.Now()
	r.s.write(func(t *tables) { t.transactions = append(t.transactions, *tx) })
	return nil
}

func (r *Transactions) ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Transaction, int, error) {
	var out []model.Transaction
	r.s.read(func(t *tables) {
		for _, tx := range t.transactions {
			if tx.UserID == userID {
				out = append(out, tx)
			}
		}
	})
	sortNewestFirst(out, func(tx model.Transaction) time.Time { return tx.CreatedAt })
	return paginate(out, limit, offset), len(out), nil
}

// Withdrawals implements the withdrawal repository.
type Withdrawals struct{ s *Store }

func (s *Store) Withdrawals() *Withdrawals { return &Withdrawals{s: s} }

func (r *Withdrawals) Create(ctx context.Context, q database.Querier, w *model.Withdrawal) error {
	now := time.Now()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.write(func(t *tables) { t.withdrawals[w.ID] = *w })
	return nil
}

func (r *Withdrawals) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Withdrawal, error) {
	var w model.Withdrawal
	var ok bool
	r.s.read(func(t *tables) { w, ok = t.withdrawals[id] })
	if !ok {
		return nil, database.ErrNotFound
	}
	return &w, nil
}

func (r *Withdrawals) ListByUser(ctx context.Context, q database.Querier, userID uuid.UUID, limit, offset int) ([]model.Withdrawal, int, error) {
	var out []model.Withdrawal
	r.s.read(func(t *tables) {
		for _, w := range t.withdrawals {
			if w.UserID == userID {
				out = append(out, w)
			}
		}
	})
	sortNewestFirst(out, func(w model.Withdrawal) time.Time { return w.CreatedAt })
	return paginate(out, limit, offset), len(out), nil
}

func (r *Withdrawals) Transition(ctx context.Context, q database.Querier, tr model.WithdrawalTransition) (bool, error) {
	var swapped bool
	r.s.write(func(t *tables) {
		w, ok := t.withdrawals[tr.ID]
		if !ok || w.Status != tr.From {
			return
		}
		at := tr.At
		w.Status = tr.To
		w.UpdatedAt = at
		if tr.ProcessedBy != nil {
			w.ProcessedBy = tr.ProcessedBy
			w.ProcessedAt = &at
		}
		if tr.FailureReason != "" {
			w.FailureReason = tr.FailureReason
		}
		if tr.GatewayReference != "" {
			w.GatewayReference = tr.GatewayReference
		}
		if tr.TransferCode != "" {
			w.TransferCode = tr.TransferCode
		}
		if tr.RecipientCode != "" {
			w.RecipientCode = tr.RecipientCode
		}
		if tr.To == model.WithdrawalCompleted {
			w.CompletedAt = &at
		}
		t.withdrawals[tr.ID] = w
		swapped = true
	})
	return swapped, nil
}

// Projects implements the project/job read model.
type Projects struct{ s *Store }

func (s *Store) Projects() *Projects { return &Projects{s: s} }

func (r *Projects) GetProject(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Project, error) {
	var p model.Project
	var ok bool
	r.s.read(func(t *tables) { p, ok = t.projects[id] })
	if !ok {
		return nil, database.ErrNotFound
	}
	return &p, nil
}

func (r *Projects) GetJob(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	var ok bool
	r.s.read(func(t *tables) { j, ok = t.jobs[id] })
	if !ok {
		return nil, database.ErrNotFound
	}
	return &j, nil
}

func (r *Projects) MarkJobPaymentVerified(ctx context.Context, q database.Querier, jobID uuid.UUID) error {
	var err error
	r.s.write(func(t *tables) {
		j, ok := t.jobs[jobID]
		if !ok {
			err = database.ErrNotFound
			return
		}
		j.PaymentVerified = true
		t.jobs[jobID] = j
	})
	return err
}

func (r *Projects) SumUnpaidOngoingBudgets(ctx context.Context, q database.Querier, freelancerID uuid.UUID) (int64, error) {
	var sum int64
	r.s.read(func(t *tables) {
		for _, p := range t.projects {
			if p.FreelancerID != freelancerID || p.Status != "ongoing" {
				continue
			}
			paid := false
			for _, pay := range t.payments {
				if pay.ProjectID != nil && *pay.ProjectID == p.ID && pay.Status == model.PaymentCompleted {
					paid = true
					break
				}
			}
			if !paid {
				sum += p.Budget
			}
		}
	})
	return sum, nil
}

// Users implements the user directory.
type Users struct{ s *Store }

func (s *Store) Users() *Users { return &Users{s: s} }

func (r *Users) CreateUser(ctx context.Context, q database.Querier, u *model.User) error {
	var err error
	r.s.write(func(t *tables) {
		for _, existing := range t.users {
			if existing.Email == u.Email {
				err = database.ErrDuplicate
				return
			}
		}
		now := time.Now()
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		u.CreatedAt, u.UpdatedAt = now, now
		t.users[u.ID] = *u
	})
	return err
}

func (r *Users) GetUserByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.User, error) {
	var u model.User
	var ok bool
	r.s.read(func(t *tables) { u, ok = t.users[id] })
	if !ok {
		return nil, database.ErrNotFound
	}
	return &u, nil
}

// Outbox records emitted events in the same snapshot as the other tables.
type Outbox struct{ s *Store }

func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

func (o *Outbox) Emit(ctx context.Context, q database.Querier, evt model.Event) error {
	o.s.write(func(t *tables) { t.events = append(t.events, evt) })
	return nil
}

// Locker is an in-process stand-in for the redis lock.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocker() *Locker {
	return &Locker{held: map[string]bool{}}
}

func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redis.ErrLockHeld
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn()
}

// Hold marks key as locked until the returned func is called.
func (l *Locker) Hold(key string) func() {
	l.mu.Lock()
	l.held[key] = true
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}
}
