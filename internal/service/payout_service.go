package service

import (
	"context"
	"fmt"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// maxOpenPayouts caps how many PENDING/PROCESSING payouts a merchant can
// have at once.
const maxOpenPayouts = 3

// PayoutEngine implements ports.PayoutService. Balance holds are validated
// and applied in a single guarded UPDATE so two concurrent requests cannot
// both pass the balance check.
type PayoutEngine struct {
	payoutRepo   ports.PayoutRepository
	merchantRepo ports.MerchantRepository
	feeSvc       ports.FeeService
	verifySvc    ports.VerificationService
	webhookSvc   ports.WebhookService
	notifier     ports.Notifier
	publisher    ports.EventPublisher
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewPayoutEngine creates the payout engine.
func NewPayoutEngine(
	payoutRepo ports.PayoutRepository,
	merchantRepo ports.MerchantRepository,
	feeSvc ports.FeeService,
	verifySvc ports.VerificationService,
	webhookSvc ports.WebhookService,
	notifier ports.Notifier,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *PayoutEngine {
	return &PayoutEngine{
		payoutRepo:   payoutRepo,
		merchantRepo: merchantRepo,
		feeSvc:       feeSvc,
		verifySvc:    verifySvc,
		webhookSvc:   webhookSvc,
		notifier:     notifier,
		publisher:    publisher,
		transactor:   transactor,
		log:          log,
	}
}

// Request validates and persists a payout, holding amount+fees from the
// merchant's available balance in the same atomic unit as the balance check.
func (e *PayoutEngine) Request(ctx context.Context, req ports.PayoutRequest) (*domain.Payout, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !domain.IsSupportedCurrency(req.Currency) {
		return nil, apperror.ErrInvalidCurrency(string(req.Currency))
	}
	if err := validateDestination(req.Method, req.Destination); err != nil {
		return nil, err
	}

	merchant, err := e.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsActive() {
		return nil, apperror.ErrStateConflict("merchant account is suspended")
	}

	// Pre-fee balance check. The authoritative check is the guarded hold
	// below; this one rejects obviously short requests early.
	if merchant.Balance.Available < req.Amount {
		return nil, apperror.ErrInsufficientBalance()
	}

	open, err := e.payoutRepo.CountOpen(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count open payouts: %w", err))
	}
	if open >= maxOpenPayouts {
		return nil, apperror.ErrTooManyPendingPayouts()
	}

	fees, err := e.feeSvc.PayoutFees(req.Method, req.Amount)
	if err != nil {
		return nil, err
	}
	if fees.NetAmount <= 0 {
		return nil, apperror.ErrPayoutAmountTooSmall()
	}

	now := time.Now().UTC()
	payout := &domain.Payout{
		ID:          uuid.New(),
		Reference:   newReference("PO"),
		MerchantID:  req.MerchantID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Method:      req.Method,
		Destination: req.Destination,
		Status:      domain.PayoutStatusPending,
		Fees:        fees,
		FundsHeld:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var code string
	if req.Amount >= domain.VerificationThreshold {
		code, err = e.verifySvc.GenerateCode()
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("generate verification code: %w", err))
		}
		hash, herr := e.verifySvc.Hash(code)
		if herr != nil {
			return nil, apperror.InternalError(fmt.Errorf("hash verification code: %w", herr))
		}
		payout.RequiresVerification = true
		payout.VerificationCodeHash = &hash
	}

	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	held, err := e.merchantRepo.HoldFunds(ctx, dbTx, req.MerchantID, payout.HoldAmount())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hold funds: %w", err))
	}
	if !held {
		return nil, apperror.ErrInsufficientBalance()
	}

	if err := e.payoutRepo.Create(ctx, dbTx, payout); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payout: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit payout request: %w", err))
	}

	if payout.RequiresVerification && e.notifier != nil {
		if nerr := e.notifier.PayoutVerificationCode(ctx, payout, code); nerr != nil {
			e.log.Warn().Err(nerr).Str("payout_id", payout.ID.String()).Msg("verification code delivery failed")
		}
	}

	e.log.Info().
		Str("payout_id", payout.ID.String()).
		Str("reference", payout.Reference).
		Str("merchant_id", payout.MerchantID.String()).
		Int64("amount", payout.Amount).
		Int64("held", payout.HoldAmount()).
		Bool("requires_verification", payout.RequiresVerification).
		Msg("payout requested")

	return payout, nil
}

// Get fetches a payout by ID.
func (e *PayoutEngine) Get(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	p, err := e.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch payout: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payout")
	}
	return p, nil
}

// Process moves a PENDING payout to PROCESSING (admin approve). The hold is
// re-applied through the funds_held guard, which makes it a no-op when the
// request-time hold is already in place.
func (e *PayoutEngine) Process(ctx context.Context, payoutID, operator uuid.UUID) (*domain.Payout, error) {
	p, err := e.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PayoutStatusPending {
		return nil, apperror.ErrStateConflict(fmt.Sprintf("payout is %s, only PENDING can be processed", p.Status))
	}

	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if !p.FundsHeld {
		held, herr := e.merchantRepo.HoldFunds(ctx, dbTx, p.MerchantID, p.HoldAmount())
		if herr != nil {
			return nil, apperror.InternalError(fmt.Errorf("hold funds: %w", herr))
		}
		if !held {
			return nil, apperror.ErrInsufficientBalance()
		}
		if _, ferr := e.payoutRepo.SetFundsHeld(ctx, dbTx, p.ID); ferr != nil {
			return nil, apperror.InternalError(fmt.Errorf("mark funds held: %w", ferr))
		}
		p.FundsHeld = true
	}

	now := time.Now().UTC()
	ok, err := e.payoutRepo.MarkProcessing(ctx, dbTx, p.ID, operator, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark processing: %w", err))
	}
	if !ok {
		return nil, apperror.ErrStateConflict("payout is no longer PENDING")
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit payout process: %w", err))
	}

	p.Status = domain.PayoutStatusProcessing
	p.ProcessedBy = &operator
	p.ProcessedAt = &now
	p.UpdatedAt = now

	e.log.Info().
		Str("payout_id", p.ID.String()).
		Str("operator", operator.String()).
		Msg("payout processing")

	return p, nil
}

// Complete settles a PROCESSING payout: the hold is removed from pending and
// the funds have left the platform.
func (e *PayoutEngine) Complete(ctx context.Context, payoutID uuid.UUID, externalReference string) (*domain.Payout, error) {
	p, err := e.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PayoutStatusProcessing {
		return nil, apperror.ErrStateConflict(fmt.Sprintf("payout is %s, only PROCESSING can be completed", p.Status))
	}

	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	ok, err := e.payoutRepo.MarkCompleted(ctx, dbTx, p.ID, externalReference, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("mark completed: %w", err))
	}
	if !ok {
		return nil, apperror.ErrStateConflict("payout is no longer PROCESSING")
	}

	if err := e.merchantRepo.SettleHold(ctx, dbTx, p.MerchantID, p.HoldAmount()); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("settle hold: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit payout completion: %w", err))
	}

	p.Status = domain.PayoutStatusCompleted
	p.ExternalReference = &externalReference
	p.UpdatedAt = now

	e.webhookSvc.NotifyPayout(ctx, p, domain.EventPayoutCompleted)
	e.publish(p, domain.EventPayoutCompleted, now)

	e.log.Info().
		Str("payout_id", p.ID.String()).
		Str("external_reference", externalReference).
		Int64("net_amount", p.Fees.NetAmount).
		Msg("payout completed")

	return p, nil
}

// Fail aborts a PENDING or PROCESSING payout (admin reject or downstream
// failure) and refunds the hold back to the available balance.
func (e *PayoutEngine) Fail(ctx context.Context, payoutID uuid.UUID, reason string) (*domain.Payout, error) {
	p, err := e.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !p.IsOpen() {
		return nil, apperror.ErrStateConflict(fmt.Sprintf("payout is %s, only PENDING or PROCESSING can fail", p.Status))
	}

	now := time.Now().UTC()
	if err := e.refundHold(ctx, p, func(tx pgx.Tx) (bool, error) {
		return e.payoutRepo.MarkFailed(ctx, tx, p.ID, reason, now)
	}); err != nil {
		return nil, err
	}

	p.Status = domain.PayoutStatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = now

	e.webhookSvc.NotifyPayout(ctx, p, domain.EventPayoutFailed)
	e.publish(p, domain.EventPayoutFailed, now)

	e.log.Info().
		Str("payout_id", p.ID.String()).
		Str("reason", reason).
		Msg("payout failed, hold refunded")

	return p, nil
}

// Cancel aborts a PENDING payout at the merchant's request and refunds the
// hold. Any other state is a conflict.
func (e *PayoutEngine) Cancel(ctx context.Context, payoutID uuid.UUID, reason string) (*domain.Payout, error) {
	p, err := e.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PayoutStatusPending {
		return nil, apperror.ErrStateConflict(fmt.Sprintf("payout is %s, only PENDING can be cancelled", p.Status))
	}

	now := time.Now().UTC()
	if err := e.refundHold(ctx, p, func(tx pgx.Tx) (bool, error) {
		return e.payoutRepo.MarkCancelled(ctx, tx, p.ID, reason, now)
	}); err != nil {
		return nil, err
	}

	p.Status = domain.PayoutStatusCancelled
	p.FailureReason = &reason
	p.UpdatedAt = now

	e.log.Info().
		Str("payout_id", p.ID.String()).
		Str("reason", reason).
		Msg("payout cancelled, hold refunded")

	return p, nil
}

// refundHold runs the guarded transition and the hold refund in one database
// transaction.
func (e *PayoutEngine) refundHold(ctx context.Context, p *domain.Payout, transition func(pgx.Tx) (bool, error)) error {
	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ok, err := transition(dbTx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("payout transition: %w", err))
	}
	if !ok {
		return apperror.ErrStateConflict("payout state changed concurrently")
	}

	if p.FundsHeld {
		if err := e.merchantRepo.ReleaseHold(ctx, dbTx, p.MerchantID, p.HoldAmount()); err != nil {
			return apperror.InternalError(fmt.Errorf("release hold: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit payout refund: %w", err))
	}
	return nil
}

func (e *PayoutEngine) publish(p *domain.Payout, event string, at time.Time) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(p.MerchantID, ports.Event{
		Type:       event,
		MerchantID: p.MerchantID,
		Payload:    p,
		At:         at,
	})
}

// validateDestination checks the method-specific receiving fields.
func validateDestination(method domain.PayoutMethod, d domain.PayoutDestination) error {
	switch method {
	case domain.PayoutMethodBankTransfer:
		if d.BankName == "" || d.AccountName == "" || d.AccountNumber == "" {
			return apperror.Validation("bank transfers require bank name, account name and account number")
		}
	case domain.PayoutMethodMobileMoney:
		if d.MobileNetwork == "" || d.MobileNumber == "" {
			return apperror.Validation("mobile money payouts require network and number")
		}
	case domain.PayoutMethodCashPickup:
		if d.PickupLocation == "" || d.IDNumber == "" {
			return apperror.Validation("cash pickups require location and id number")
		}
	default:
		return apperror.ErrInvalidPayoutMethod(string(method))
	}
	return nil
}
