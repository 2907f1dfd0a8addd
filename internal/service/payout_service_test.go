package service

import (
	"context"
	"testing"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMerchant(available int64) *domain.Merchant {
	url := "https://merchant.example/webhook"
	return &domain.Merchant{
		ID:            uuid.New(),
		BusinessName:  "Juba Traders",
		Email:         "owner@jubatraders.example",
		WebhookURL:    &url,
		WebhookSecret: "whsec_test",
		Balance:       domain.Balance{Available: available, Currency: domain.CurrencySSP},
		Status:        domain.MerchantStatusActive,
	}
}

func bankDestination() domain.PayoutDestination {
	return domain.PayoutDestination{
		BankName:      "Equity Bank",
		AccountName:   "Juba Traders Ltd",
		AccountNumber: "0011223344",
	}
}

type payoutFixture struct {
	engine    *PayoutEngine
	merchants *memMerchantRepo
	payouts   *memPayoutRepo
	webhooks  *stubWebhookService
	notifier  *stubNotifier
	publisher *stubPublisher
}

func newPayoutFixture(merchant *domain.Merchant) *payoutFixture {
	f := &payoutFixture{
		merchants: newMemMerchantRepo(merchant),
		payouts:   newMemPayoutRepo(),
		webhooks:  &stubWebhookService{},
		notifier:  &stubNotifier{},
		publisher: &stubPublisher{},
	}
	f.engine = NewPayoutEngine(
		f.payouts,
		f.merchants,
		NewFeeService(),
		NewVerificationService(),
		f.webhooks,
		f.notifier,
		f.publisher,
		stubTransactor{},
		zerolog.Nop(),
	)
	return f
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestPayoutRequestHoldsAmountPlusFees(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000, // below the verification threshold
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	require.NoError(t, err)

	// 1.5% of 50,000 is 750, below the 2,500 bank minimum.
	assert.Equal(t, int64(2_500), p.Fees.TotalFees)
	assert.Equal(t, int64(47_500), p.Fees.NetAmount)
	assert.Equal(t, domain.PayoutStatusPending, p.Status)
	assert.True(t, p.FundsHeld)
	assert.False(t, p.RequiresVerification)

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(147_500), bal.Available)
	assert.Equal(t, int64(52_500), bal.Pending)
}

func TestPayoutRequestLargeAmountRequiresVerification(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      domain.VerificationThreshold,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	require.NoError(t, err)

	assert.True(t, p.RequiresVerification)
	require.NotNil(t, p.VerificationCodeHash)
	require.Len(t, f.notifier.verificationCodes, 1)
	code := f.notifier.verificationCodes[0]
	assert.Len(t, code, 6)

	ok, err := NewVerificationService().Verify(code, *p.VerificationCodeHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPayoutRequestInsufficientBalance(t *testing.T) {
	merchant := newTestMerchant(40_000)
	f := newPayoutFixture(merchant)

	_, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	assert.Equal(t, "PO_001", appErrCode(t, err))

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(40_000), bal.Available)
	assert.Zero(t, bal.Pending)
}

func TestPayoutRequestFeesPushHoldOverBalance(t *testing.T) {
	// Amount fits the available balance but amount+fee does not: the guarded
	// hold must reject without any partial mutation.
	merchant := newTestMerchant(51_000)
	f := newPayoutFixture(merchant)

	_, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000, // hold would be 52,500
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	assert.Equal(t, "PO_001", appErrCode(t, err))

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(51_000), bal.Available)
	assert.Zero(t, bal.Pending)
}

func TestPayoutRequestOpenPayoutLimit(t *testing.T) {
	merchant := newTestMerchant(10_000_000)
	f := newPayoutFixture(merchant)

	for i := 0; i < maxOpenPayouts; i++ {
		_, err := f.engine.Request(context.Background(), ports.PayoutRequest{
			MerchantID:  merchant.ID,
			Amount:      50_000,
			Currency:    domain.CurrencySSP,
			Method:      domain.PayoutMethodBankTransfer,
			Destination: bankDestination(),
		})
		require.NoError(t, err)
	}

	_, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	assert.Equal(t, "PO_002", appErrCode(t, err))
}

func TestPayoutRequestNetMustBePositive(t *testing.T) {
	merchant := newTestMerchant(100_000)
	f := newPayoutFixture(merchant)

	// 2,000 bank payout carries the 2,500 minimum fee: net would be negative.
	_, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      2_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	assert.Equal(t, "PO_003", appErrCode(t, err))
}

func TestPayoutRequestValidation(t *testing.T) {
	merchant := newTestMerchant(100_000)
	f := newPayoutFixture(merchant)

	tests := []struct {
		name     string
		req      ports.PayoutRequest
		wantCode string
	}{
		{
			name: "zero amount",
			req: ports.PayoutRequest{
				MerchantID: merchant.ID, Currency: domain.CurrencySSP,
				Method: domain.PayoutMethodBankTransfer, Destination: bankDestination(),
			},
			wantCode: "VAL_002",
		},
		{
			name: "unsupported currency",
			req: ports.PayoutRequest{
				MerchantID: merchant.ID, Amount: 10_000, Currency: "EUR",
				Method: domain.PayoutMethodBankTransfer, Destination: bankDestination(),
			},
			wantCode: "VAL_003",
		},
		{
			name: "unknown method",
			req: ports.PayoutRequest{
				MerchantID: merchant.ID, Amount: 10_000, Currency: domain.CurrencySSP,
				Method: "WIRE",
			},
			wantCode: "VAL_004",
		},
		{
			name: "bank transfer missing account",
			req: ports.PayoutRequest{
				MerchantID: merchant.ID, Amount: 10_000, Currency: domain.CurrencySSP,
				Method:      domain.PayoutMethodBankTransfer,
				Destination: domain.PayoutDestination{BankName: "Equity Bank"},
			},
			wantCode: "VAL_001",
		},
		{
			name: "mobile money missing number",
			req: ports.PayoutRequest{
				MerchantID: merchant.ID, Amount: 10_000, Currency: domain.CurrencySSP,
				Method:      domain.PayoutMethodMobileMoney,
				Destination: domain.PayoutDestination{MobileNetwork: "MTN"},
			},
			wantCode: "VAL_001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Request(context.Background(), tt.req)
			assert.Equal(t, tt.wantCode, appErrCode(t, err))
		})
	}
}

func TestPayoutLifecycleCompleted(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)
	operator := uuid.New()

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	require.NoError(t, err)

	// Approve: the hold is already in place, so the balance must not move.
	balBefore := f.merchants.balance(merchant.ID)
	p, err = f.engine.Process(context.Background(), p.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusProcessing, p.Status)
	require.NotNil(t, p.ProcessedBy)
	assert.Equal(t, operator, *p.ProcessedBy)
	assert.Equal(t, balBefore, f.merchants.balance(merchant.ID))

	p, err = f.engine.Complete(context.Background(), p.ID, "BANK-REF-991")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, p.Status)

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(147_500), bal.Available)
	assert.Zero(t, bal.Pending)

	assert.Equal(t, []string{domain.EventPayoutCompleted}, f.webhooks.sent())
	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPayoutCompleted, events[0].Type)
}

func TestPayoutFailRefundsHold(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodMobileMoney,
		Destination: domain.PayoutDestination{MobileNetwork: "MTN", MobileNumber: "0921234567"},
	})
	require.NoError(t, err)

	p, err = f.engine.Fail(context.Background(), p.ID, "destination unreachable")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, p.Status)

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(200_000), bal.Available)
	assert.Zero(t, bal.Pending)
	assert.Equal(t, []string{domain.EventPayoutFailed}, f.webhooks.sent())
}

func TestPayoutCancelOnlyFromPending(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)
	operator := uuid.New()

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	require.NoError(t, err)

	p, err = f.engine.Process(context.Background(), p.ID, operator)
	require.NoError(t, err)

	_, err = f.engine.Cancel(context.Background(), p.ID, "changed my mind")
	assert.Equal(t, "PAY_005", appErrCode(t, err))
	assert.Equal(t, int64(52_500), f.merchants.balance(merchant.ID).Pending)
}

func TestPayoutCancelRefundsHold(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      80_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodCashPickup,
		Destination: domain.PayoutDestination{PickupLocation: "Juba Town", IDNumber: "ID-4471"},
	})
	require.NoError(t, err)

	// 2.5% of 80,000 = 2,000, exactly the cash-pickup minimum.
	assert.Equal(t, int64(2_000), p.Fees.TotalFees)

	p, err = f.engine.Cancel(context.Background(), p.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCancelled, p.Status)

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(200_000), bal.Available)
	assert.Zero(t, bal.Pending)
}

func TestPayoutCompleteRequiresProcessing(t *testing.T) {
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)

	p, err := f.engine.Request(context.Background(), ports.PayoutRequest{
		MerchantID:  merchant.ID,
		Amount:      50_000,
		Currency:    domain.CurrencySSP,
		Method:      domain.PayoutMethodBankTransfer,
		Destination: bankDestination(),
	})
	require.NoError(t, err)

	_, err = f.engine.Complete(context.Background(), p.ID, "BANK-REF-1")
	assert.Equal(t, "PAY_005", appErrCode(t, err))
}

func TestPayoutProcessIdempotentHold(t *testing.T) {
	// A payout persisted without its hold (legacy row) gets the hold applied
	// exactly once on process.
	merchant := newTestMerchant(200_000)
	f := newPayoutFixture(merchant)

	fees := domain.PayoutFees{ProcessingFee: 2_500}
	fees.Recompute(50_000)
	p := &domain.Payout{
		ID:         uuid.New(),
		Reference:  "PO-LEGACY",
		MerchantID: merchant.ID,
		Amount:     50_000,
		Currency:   domain.CurrencySSP,
		Method:     domain.PayoutMethodBankTransfer,
		Status:     domain.PayoutStatusPending,
		Fees:       fees,
		FundsHeld:  false,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.payouts.Create(context.Background(), fakeTx{}, p))

	got, err := f.engine.Process(context.Background(), p.ID, uuid.New())
	require.NoError(t, err)
	assert.True(t, got.FundsHeld)

	bal := f.merchants.balance(merchant.ID)
	assert.Equal(t, int64(147_500), bal.Available)
	assert.Equal(t, int64(52_500), bal.Pending)
}
