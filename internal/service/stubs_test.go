package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// In-memory fakes mirroring the guarded-UPDATE semantics of the postgres
// repositories, shared by the service tests in this package.

// fakeTx satisfies pgx.Tx. The fakes below keep their own locks, so the
// transaction itself is a no-op.
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

type stubTransactor struct{}

func (stubTransactor) Begin(ctx context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

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
	r.merchants[m.ID] = m
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

func newMemTransactionRepo(ts ...*domain.Transaction) *memTransactionRepo {
	r := &memTransactionRepo{txs: make(map[uuid.UUID]*domain.Transaction)}
	for _, t := range ts {
		r.txs[t.ID] = t
	}
	return r
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
	cp := *t
	r.txs[t.ID] = &cp
	return nil
}

func (r *memTransactionRepo) CompareAndSetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if t.Status == f {
			t.Status = to
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
		if (t.Status == domain.TransactionStatusPending || t.Status == domain.TransactionStatusProcessing) && t.CreatedAt.Before(createdBefore) {
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

func (r *memTransactionRepo) status(id uuid.UUID) domain.TransactionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[id].Status
}

// ---- payment links ----

type memPaymentLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*domain.PaymentLink
}

func newMemPaymentLinkRepo(ls ...*domain.PaymentLink) *memPaymentLinkRepo {
	r := &memPaymentLinkRepo{links: make(map[uuid.UUID]*domain.PaymentLink)}
	for _, l := range ls {
		r.links[l.ID] = l
	}
	return r
}

func (r *memPaymentLinkRepo) Create(ctx context.Context, l *domain.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.links[l.ID] = &cp
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

func (r *memPaymentLinkRepo) Update(ctx context.Context, l *domain.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.links[l.ID] = &cp
	return nil
}

func (r *memPaymentLinkRepo) ApplyPayment(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return errors.New("link not found")
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
		return errors.New("link not found")
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

func (r *memPaymentLinkRepo) get(id uuid.UUID) domain.PaymentLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.links[id]
}

// ---- payouts ----

type memPayoutRepo struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*domain.Payout
}

func newMemPayoutRepo(ps ...*domain.Payout) *memPayoutRepo {
	r := &memPayoutRepo{payouts: make(map[uuid.UUID]*domain.Payout)}
	for _, p := range ps {
		r.payouts[p.ID] = p
	}
	return r
}

func (r *memPayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payouts[p.ID] = &cp
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

func (r *memPayoutRepo) transition(id uuid.UUID, from []domain.PayoutStatus, to domain.PayoutStatus, mutate func(*domain.Payout)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok {
		return false, nil
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
	})
}

func (r *memPayoutRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalReference string, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusProcessing}, domain.PayoutStatusCompleted, func(p *domain.Payout) {
		p.ExternalReference = &externalReference
	})
}

func (r *memPayoutRepo) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusPending, domain.PayoutStatusProcessing}, domain.PayoutStatusFailed, func(p *domain.Payout) {
		p.FailureReason = &reason
	})
}

func (r *memPayoutRepo) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.transition(id, []domain.PayoutStatus{domain.PayoutStatusPending}, domain.PayoutStatusCancelled, func(p *domain.Payout) {
		p.FailureReason = &reason
	})
}

func (r *memPayoutRepo) SetFundsHeld(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payouts[id]
	if !ok || p.FundsHeld {
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

func (r *memWebhookRepo) Create(ctx context.Context, l *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.logs[l.ID] = &cp
	return nil
}

func (r *memWebhookRepo) Update(ctx context.Context, l *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.logs[l.ID] = &cp
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

// ---- service stubs ----

type stubWebhookService struct {
	mu     sync.Mutex
	events []string
}

func (s *stubWebhookService) NotifyTransaction(ctx context.Context, t *domain.Transaction, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *stubWebhookService) NotifyPayout(ctx context.Context, p *domain.Payout, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *stubWebhookService) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type stubNotifier struct {
	mu                sync.Mutex
	adminNotified     int
	verificationCodes []string
}

func (n *stubNotifier) AdminPaymentReceived(ctx context.Context, t *domain.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.adminNotified++
	return nil
}

func (n *stubNotifier) PayoutVerificationCode(ctx context.Context, p *domain.Payout, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verificationCodes = append(n.verificationCodes, code)
	return nil
}

type stubPublisher struct {
	mu     sync.Mutex
	events []ports.Event
}

func (p *stubPublisher) Publish(merchantID uuid.UUID, evt ports.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *stubPublisher) published() []ports.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.Event(nil), p.events...)
}

// stubGateway answers in MTN MoMo vocabulary unless overridden.
type stubGateway struct {
	method       domain.PaymentMethod
	initiateRes  *ports.InitiateResult
	initiateErr  error
	statusRes    *ports.StatusResult
	statusErr    error
	successToken string
	pendingToken string
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		method:       domain.PaymentMethodMTNMomo,
		successToken: "SUCCESSFUL",
		pendingToken: "PENDING",
		initiateRes: &ports.InitiateResult{
			Success:               true,
			ProviderTransactionID: "momo-123",
			Instructions:          "Dial *165# to approve",
		},
	}
}

func (g *stubGateway) Method() domain.PaymentMethod { return g.method }

func (g *stubGateway) Initiate(ctx context.Context, t *domain.Transaction) (*ports.InitiateResult, error) {
	return g.initiateRes, g.initiateErr
}

func (g *stubGateway) CheckStatus(ctx context.Context, providerTransactionID string) (*ports.StatusResult, error) {
	return g.statusRes, g.statusErr
}

func (g *stubGateway) IsSuccess(token string) bool { return token == g.successToken }
func (g *stubGateway) IsPending(token string) bool { return token == g.pendingToken }

type stubSelector struct {
	gw ports.PaymentGateway
}

func (s stubSelector) Gateway(method domain.PaymentMethod) (ports.PaymentGateway, error) {
	if s.gw == nil {
		return nil, errors.New("no gateway")
	}
	return s.gw, nil
}

type stubDedupe struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newStubDedupe() *stubDedupe { return &stubDedupe{seen: make(map[string]bool)} }

func (d *stubDedupe) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type stubViewTracker struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newStubViewTracker() *stubViewTracker { return &stubViewTracker{seen: make(map[string]bool)} }

func (t *stubViewTracker) MarkViewed(ctx context.Context, linkID uuid.UUID, viewerKey string, ttl time.Duration) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := linkID.String() + ":" + viewerKey
	if t.seen[key] {
		return false, nil
	}
	t.seen[key] = true
	return true, nil
}
