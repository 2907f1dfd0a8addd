package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettingsService struct {
	settings domain.PlatformSettings
	err      error
}

func (s *stubSettingsService) Get(ctx context.Context) (*domain.PlatformSettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := s.settings
	return &cp, nil
}

func (s *stubSettingsService) Invalidate() {}

type engineFixture struct {
	engine    *TransactionEngine
	txs       *memTransactionRepo
	links     *memPaymentLinkRepo
	merchants *memMerchantRepo
	gateway   *stubGateway
	webhooks  *stubWebhookService
	notifier  *stubNotifier
	publisher *stubPublisher
	settings  *stubSettingsService
	sigSvc    *HMACSignatureService
}

func newEngineFixture(merchant *domain.Merchant, links ...*domain.PaymentLink) *engineFixture {
	f := &engineFixture{
		txs:       newMemTransactionRepo(),
		links:     newMemPaymentLinkRepo(links...),
		merchants: newMemMerchantRepo(merchant),
		gateway:   newStubGateway(),
		webhooks:  &stubWebhookService{},
		notifier:  &stubNotifier{},
		publisher: &stubPublisher{},
		settings:  &stubSettingsService{},
		sigSvc:    NewHMACSignatureService(),
	}
	f.engine = NewTransactionEngine(
		f.txs,
		f.links,
		f.merchants,
		stubSelector{gw: f.gateway},
		NewFeeService(),
		f.sigSvc,
		f.webhooks,
		f.settings,
		f.notifier,
		newStubDedupe(),
		f.publisher,
		stubTransactor{},
		zerolog.Nop(),
	)
	return f
}

func newTestLink(merchantID uuid.UUID, amount int64) *domain.PaymentLink {
	now := time.Now().UTC()
	return &domain.PaymentLink{
		ID:           uuid.New(),
		Reference:    "PL-TEST",
		MerchantID:   merchantID,
		Title:        "Standing order",
		Amount:       amount,
		Currency:     domain.CurrencySSP,
		IsMultiUse:   true,
		NeverExpires: true,
		Status:       domain.PaymentLinkStatusActive,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testCustomer() domain.Customer {
	return domain.Customer{Name: "Achol Deng", Phone: "0920001111"}
}

func TestTransactionCreateComputesFees(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, int64(50_000), txn.Amount)
	// 2.5% of 50,000 plus the 500 fixed component.
	assert.Equal(t, int64(1_750), txn.Fees.PlatformFee)
	assert.Equal(t, int64(48_250), txn.Fees.MerchantReceives)
	require.NotNil(t, txn.LinkID)
	assert.Equal(t, link.ID, *txn.LinkID)
	assert.Contains(t, txn.Reference, "TXN-")
	assert.WithinDuration(t, time.Now().Add(transactionTTL), txn.ExpiresAt, time.Minute)
}

func TestTransactionCreateCustomAmountBounds(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 0)
	link.AllowCustomAmount = true
	link.MinAmount = 10_000
	link.MaxAmount = 100_000
	f := newEngineFixture(merchant, link)

	_, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	assert.Equal(t, "VAL_001", appErrCode(t, err), "amount required")

	low := int64(5_000)
	_, err = f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		Amount:        &low,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	assert.Equal(t, "PAY_003", appErrCode(t, err))

	ok := int64(25_000)
	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		Amount:        &ok,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), txn.Amount)
}

func TestTransactionCreateDemotesExhaustedLink(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	link.IsMultiUse = false
	link.MaxUses = 1
	link.CurrentUses = 1
	f := newEngineFixture(merchant, link)

	_, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	assert.Equal(t, "PAY_002", appErrCode(t, err))

	// The stale link was demoted before the accessibility check.
	assert.Equal(t, domain.PaymentLinkStatusCompleted, f.links.get(link.ID).Status)
}

func TestTransactionDispatch(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)

	txn, err = f.engine.Dispatch(context.Background(), txn)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusProcessing, txn.Status)
	require.NotNil(t, txn.ProviderTransactionID)
	assert.Equal(t, "momo-123", *txn.ProviderTransactionID)
	require.NotNil(t, txn.Instructions)
	assert.Equal(t, 1, txn.DispatchAttempts)
}

func TestTransactionDispatchGatewayFailure(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)
	f.gateway.initiateRes = nil
	f.gateway.initiateErr = errors.New("provider timeout")

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)

	txn, err = f.engine.Dispatch(context.Background(), txn)
	assert.Equal(t, "PAY_004", appErrCode(t, err))
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	assert.Equal(t, []string{domain.EventTransactionFailed}, f.webhooks.sent())
}

func TestTransactionReconcileCreditsOnce(t *testing.T) {
	merchant := newTestMerchant(100_000)
	link := newTestLink(merchant.ID, 50_000)
	link.IsMultiUse = false
	f := newEngineFixture(merchant, link)
	f.settings.settings.AdminPaymentNotifications = true

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)
	txn, err = f.engine.Dispatch(context.Background(), txn)
	require.NoError(t, err)

	require.NoError(t, f.engine.Reconcile(context.Background(), txn.ID, "SUCCESSFUL"))

	assert.Equal(t, domain.TransactionStatusSuccessful, f.txs.status(txn.ID))
	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(148_250), bal.Available)

	got := f.links.get(link.ID)
	assert.Equal(t, domain.PaymentLinkStatusCompleted, got.Status)
	assert.Equal(t, int64(50_000), got.TotalCollected)
	assert.EqualValues(t, 1, got.Conversions)

	assert.Equal(t, []string{domain.EventTransactionSuccessful}, f.webhooks.sent())
	assert.Equal(t, 1, f.notifier.adminNotified)
	require.Len(t, f.publisher.published(), 1)

	// A duplicate provider notification must not re-credit the ledger.
	require.NoError(t, f.engine.Reconcile(context.Background(), txn.ID, "SUCCESSFUL"))
	assert.Equal(t, int64(148_250), f.merchants.balance(merchant.ID).Available)
	assert.Len(t, f.webhooks.sent(), 1)
}

func TestTransactionReconcilePendingIsNoOp(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.Reconcile(context.Background(), txn.ID, "PENDING"))
	assert.Equal(t, domain.TransactionStatusPending, f.txs.status(txn.ID))
	assert.Empty(t, f.webhooks.sent())
}

func TestTransactionReconcileUnknownTokenFails(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.Reconcile(context.Background(), txn.ID, "REJECTED"))
	assert.Equal(t, domain.TransactionStatusFailed, f.txs.status(txn.ID))
	assert.Zero(t, f.merchants.balance(merchant.ID).Available)
}

func TestHandleProviderCallback(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)
	txn, err = f.engine.Dispatch(context.Background(), txn)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"transaction_id": txn.ID.String(),
		"status":         "SUCCESSFUL",
	})
	require.NoError(t, err)
	signature := f.sigSvc.Sign(merchant.WebhookSecret, string(body))

	require.NoError(t, f.engine.HandleProviderCallback(context.Background(), body, signature))
	assert.Equal(t, domain.TransactionStatusSuccessful, f.txs.status(txn.ID))

	// Replay of the same callback is dropped by the dedupe fast path.
	available := f.merchants.balance(merchant.ID).Available
	require.NoError(t, f.engine.HandleProviderCallback(context.Background(), body, signature))
	assert.Equal(t, available, f.merchants.balance(merchant.ID).Available)
}

func TestHandleProviderCallbackRejectsBadSignature(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"transaction_id": txn.ID.String(),
		"status":         "SUCCESSFUL",
	})
	require.NoError(t, err)

	err = f.engine.HandleProviderCallback(context.Background(), body, "deadbeef")
	assert.Equal(t, "SEC_001", appErrCode(t, err))
	assert.Equal(t, domain.TransactionStatusPending, f.txs.status(txn.ID))

	err = f.engine.HandleProviderCallback(context.Background(), body, "")
	assert.Equal(t, "SEC_001", appErrCode(t, err))
}

func TestHandleProviderCallbackByExternalID(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)

	txn, err := f.engine.Create(context.Background(), ports.CreateTransactionRequest{
		LinkReference: link.Reference,
		PaymentMethod: domain.PaymentMethodMTNMomo,
		Customer:      testCustomer(),
	})
	require.NoError(t, err)
	txn, err = f.engine.Dispatch(context.Background(), txn)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"external_transaction_id": *txn.ProviderTransactionID,
		"status":                  "FAILED",
	})
	require.NoError(t, err)
	signature := f.sigSvc.Sign(merchant.WebhookSecret, string(body))

	require.NoError(t, f.engine.HandleProviderCallback(context.Background(), body, signature))
	assert.Equal(t, domain.TransactionStatusFailed, f.txs.status(txn.ID))
}

func TestExpirePendingSweep(t *testing.T) {
	merchant := newTestMerchant(0)
	f := newEngineFixture(merchant)

	stale := &domain.Transaction{
		ID:         uuid.New(),
		Reference:  "TXN-STALE",
		MerchantID: merchant.ID,
		Amount:     10_000,
		Status:     domain.TransactionStatusPending,
		ExpiresAt:  time.Now().Add(-time.Hour),
		CreatedAt:  time.Now().Add(-25 * time.Hour),
	}
	require.NoError(t, f.txs.Create(context.Background(), stale))

	n, err := f.engine.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, domain.TransactionStatusExpired, f.txs.status(stale.ID))
}

func TestPollUnresolvedReconcilesStale(t *testing.T) {
	merchant := newTestMerchant(0)
	link := newTestLink(merchant.ID, 50_000)
	f := newEngineFixture(merchant, link)
	f.gateway.statusRes = &ports.StatusResult{Status: "SUCCESSFUL"}

	providerID := "momo-stale-1"
	linkID := link.ID
	fees := domain.FeeBreakdown{PlatformFee: 1_750}
	fees.Recompute(50_000)
	stale := &domain.Transaction{
		ID:                    uuid.New(),
		Reference:             "TXN-POLL",
		MerchantID:            merchant.ID,
		LinkID:                &linkID,
		Amount:                50_000,
		Currency:              domain.CurrencySSP,
		PaymentMethod:         domain.PaymentMethodMTNMomo,
		Status:                domain.TransactionStatusProcessing,
		Fees:                  fees,
		ProviderTransactionID: &providerID,
		ExpiresAt:             time.Now().Add(time.Hour),
		CreatedAt:             time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, f.txs.Create(context.Background(), stale))

	// Never dispatched: the poller must skip it.
	undispatched := &domain.Transaction{
		ID:         uuid.New(),
		Reference:  "TXN-UNDISPATCHED",
		MerchantID: merchant.ID,
		Amount:     10_000,
		Status:     domain.TransactionStatusPending,
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, f.txs.Create(context.Background(), undispatched))

	require.NoError(t, f.engine.PollUnresolved(context.Background()))

	assert.Equal(t, domain.TransactionStatusSuccessful, f.txs.status(stale.ID))
	assert.Equal(t, domain.TransactionStatusPending, f.txs.status(undispatched.ID))
	assert.Equal(t, int64(48_250), f.merchants.balance(merchant.ID).Available)
}
