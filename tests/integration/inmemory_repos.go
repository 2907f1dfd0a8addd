// Package integration exercises the full service stack end to end: real
// services and HTTP routes, in-memory repositories mirroring the guarded
// UPDATE semantics of the postgres layer, miniredis behind the redis
// adapters and the mock provider gateways in place of MTN MoMo / m-Gurush.
package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeTx satisfies pgx.Tx. The repositories below hold their own locks, so
// the transaction itself is a no-op.
type fakeTx struct{}

func (fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }
func (fakeTx) Commit(ctx context.Context) error          { return nil }
func (fakeTx) Rollback(ctx context.Context) error        { return nil }
func (fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (fakeTx) Conn() *pgx.Conn                                               { return nil }

type memTransactor struct{}

func (memTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

// ---- merchants ----

type memMerchantRepo struct {
	mu        sync.Mutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newMemMerchantRepo(ms ...*domain.Merchant) *memMerchantRepo {
	r := &memMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
	for _, m := range ms {
		r.merchants[m.ID] = m
	}
	return r
}

func (r *memMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

func (r *memMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *memMerchantRepo) CreditAvailable(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[merchantID]
	if !ok {
		return errors.New("merchant not found")
	}
	m.Balance.Available += amount
	return nil
}

func (r *memMerchantRepo) HoldFunds(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[merchantID]
	if !ok {
		return false, errors.New("merchant not found")
	}
	if m.Balance.Available < amount {
		return false, nil
	}
	m.Balance.Available -= amount
	m.Balance.Pending += amount
	return true, nil
}

func (r *memMerchantRepo) ReleaseHold(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[merchantID]
	if !ok {
		return errors.New("merchant not found")
	}
	m.Balance.Pending -= amount
	m.Balance.Available += amount
	return nil
}

func (r *memMerchantRepo) SettleHold(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[merchantID]
	if !ok {
		return errors.New("merchant not found")
	}
	m.Balance.Pending -= amount
	return nil
}

func (r *memMerchantRepo) balance(id uuid.UUID) domain.Balance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.merchants[id].Balance
}

// ---- transactions ----

type memTransactionRepo struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*domain.Transaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{txs: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *memTransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.txs[t.ID] = &cp
	return nil
}

func (r *memTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.Reference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTransactionRepo) GetByProviderTransactionID(ctx context.Context, providerTxID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.ProviderTransactionID != nil && *t.ProviderTransactionID == providerTxID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTransactionRepo) UpdateDispatch(ctx context.Context, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.txs[t.ID]
	if !ok {
		return errors.New("transaction not found")
	}
	cur.Status = t.Status
	cur.ProviderTransactionID = t.ProviderTransactionID
	cur.ProviderResponse = t.ProviderResponse
	cur.Instructions = t.Instructions
	cur.DispatchAttempts = t.DispatchAttempts
	cur.UpdatedAt = t.UpdatedAt
	return nil
}

func (r *memTransactionRepo) CompareAndSetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return false, errors.New("transaction not found")
	}
	for _, f := range from {
		if t.Status == f {
			now := time.Now().UTC()
			t.Status = to
			t.ProcessedAt = &now
			t.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (r *memTransactionRepo) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.txs {
		if t.IsExpiredAt(now) {
			t.Status = domain.TransactionStatusExpired
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *memTransactionRepo) ListUnresolved(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, t := range r.txs {
		if len(out) >= limit {
			break
		}
		if (t.Status == domain.TransactionStatusPending || t.Status == domain.TransactionStatusProcessing) &&
			t.CreatedAt.Before(createdBefore) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) RecordWebhookAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.txs[id]; ok {
		t.WebhookAttempts++
		t.LastWebhookAt = &at
	}
	return nil
}

// ---- payment links ----

type memPaymentLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*domain.PaymentLink
}

func newMemPaymentLinkRepo() *memPaymentLinkRepo {
	return &memPaymentLinkRepo{links: make(map[uuid.UUID]*domain.PaymentLink)}
}

func (r *memPaymentLinkRepo) Create(ctx context.Context, link *domain.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *memPaymentLinkRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memPaymentLinkRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Reference == reference {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPaymentLinkRepo) Update(ctx context.Context, link *domain.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.ID]; !ok {
		return errors.New("payment link not found")
	}
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r *memPaymentLinkRepo) ApplyPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return errors.New("payment link not found")
	}
	l.RecordPayment(amount)
	if l.IsMultiUse && l.MaxUses > 0 && l.CurrentUses >= l.MaxUses {
		l.Status = domain.PaymentLinkStatusCompleted
		l.IsActive = false
	}
	return nil
}

func (r *memPaymentLinkRepo) IncrementViews(ctx context.Context, id uuid.UUID, unique bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return errors.New("payment link not found")
	}
	l.Views++
	if unique {
		l.UniqueViews++
	}
	return nil
}

func (r *memPaymentLinkRepo) DemoteStale(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.links {
		if l.Maintain(now) {
			n++
		}
	}
	return n, nil
}

// ---- payouts ----

type memPayoutRepo struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*domain.Payout
}

func newMemPayoutRepo() *memPayoutRepo {
	return &memPayoutRepo{payouts: make(map[uuid.UUID]*domain.Payout)}
}

func (r *memPayoutRepo) Create(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *payout
	r.payouts[payout.ID] = &cp
	return nil
}

func (r *memPayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPayoutRepo) CountOpen(ctx context.Context, merchantID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.payouts {
		if p.MerchantID == merchantID && p.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (r *memPayoutRepo) transition(id uuid.UUID, from []domain.PayoutStatus, to domain.PayoutStatus, mutate func(p *domain.Payout)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return false, errors.New("payout not found")
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			if mutate != nil {
				mutate(p)
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *memPayoutRepo) MarkProcessing(ctx context.Context, tx pgx.Tx, id uuid.UUID, operator uuid.UUID, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusPending}, domain.PayoutStatusProcessing, func(p *domain.Payout) {
		p.ProcessedBy = &operator
		p.ProcessedAt = &at
		p.UpdatedAt = at
	})
}

func (r *memPayoutRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalReference string, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusProcessing}, domain.PayoutStatusCompleted, func(p *domain.Payout) {
		p.ExternalReference = &externalReference
		p.UpdatedAt = at
	})
}

func (r *memPayoutRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusPending, domain.PayoutStatusProcessing}, domain.PayoutStatusFailed, func(p *domain.Payout) {
		p.FailureReason = &reason
		p.UpdatedAt = at
	})
}

func (r *memPayoutRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusPending}, domain.PayoutStatusCancelled, func(p *domain.Payout) {
		p.FailureReason = &reason
		p.UpdatedAt = at
	})
}

func (r *memPayoutRepo) SetFundsHeld(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return false, errors.New("payout not found")
	}
	if p.FundsHeld {
		return false, nil
	}
	p.FundsHeld = true
	return true, nil
}

// ---- webhook delivery logs ----

type memWebhookRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*domain.WebhookDeliveryLog
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{logs: make(map[uuid.UUID]*domain.WebhookDeliveryLog)}
}

func (r *memWebhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs[log.ID] = &cp
	return nil
}

func (r *memWebhookRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs[log.ID] = &cp
	return nil
}

func (r *memWebhookRepo) GetByTransactionID(ctx context.Context, txID uuid.UUID) ([]domain.WebhookDeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WebhookDeliveryLog
	for _, l := range r.logs {
		if l.TransactionID == txID {
			out = append(out, *l)
		}
	}
	return out, nil
}

// ---- platform settings ----

type memSettingsRepo struct {
	mu       sync.Mutex
	settings domain.PlatformSettings
}

func (r *memSettingsRepo) Get(ctx context.Context) (*domain.PlatformSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.settings
	return &cp, nil
}

func (r *memSettingsRepo) Update(ctx context.Context, s *domain.PlatformSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = *s
	return nil
}
