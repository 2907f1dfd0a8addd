package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/pkg/apperror"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	// transactionTTL is the payment window before a pending transaction
	// expires.
	transactionTTL = 24 * time.Hour

	// callbackDedupeTTL bounds the fast-path duplicate window for inbound
	// provider callbacks.
	callbackDedupeTTL = 10 * time.Minute

	// pollStaleness: transactions still unresolved this long after creation
	// are picked up by the polling sweep.
	pollStaleness = 5 * time.Minute

	pollBatchSize = 100
)

// reconcilable are the statuses a terminal provider status may be applied to.
var reconcilable = []domain.TransactionStatus{
	domain.TransactionStatusPending,
	domain.TransactionStatusProcessing,
}

// TransactionEngine implements ports.TransactionService. It owns the
// transaction state machine and is the only writer of ledger credits.
type TransactionEngine struct {
	txRepo       ports.TransactionRepository
	linkRepo     ports.PaymentLinkRepository
	merchantRepo ports.MerchantRepository
	gateways     ports.GatewaySelector
	feeSvc       ports.FeeService
	sigSvc       ports.SignatureService
	webhookSvc   ports.WebhookService
	settingsSvc  ports.SettingsService
	notifier     ports.Notifier
	dedupe       ports.CallbackDedupe // nil = fast path disabled
	publisher    ports.EventPublisher
	transactor   ports.DBTransactor
	log          zerolog.Logger
}

// NewTransactionEngine creates the transaction engine.
func NewTransactionEngine(
	txRepo ports.TransactionRepository,
	linkRepo ports.PaymentLinkRepository,
	merchantRepo ports.MerchantRepository,
	gateways ports.GatewaySelector,
	feeSvc ports.FeeService,
	sigSvc ports.SignatureService,
	webhookSvc ports.WebhookService,
	settingsSvc ports.SettingsService,
	notifier ports.Notifier,
	dedupe ports.CallbackDedupe,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *TransactionEngine {
	return &TransactionEngine{
		txRepo:       txRepo,
		linkRepo:     linkRepo,
		merchantRepo: merchantRepo,
		gateways:     gateways,
		feeSvc:       feeSvc,
		sigSvc:       sigSvc,
		webhookSvc:   webhookSvc,
		settingsSvc:  settingsSvc,
		notifier:     notifier,
		dedupe:       dedupe,
		publisher:    publisher,
		transactor:   transactor,
		log:          log,
	}
}

// newReference builds a sortable public reference like TXN-01J8....
func newReference(prefix string) string {
	return prefix + "-" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Create resolves the payment link, computes fees and persists a PENDING
// transaction. The link's self-maintenance runs before the accessibility
// check so a stale ACTIVE link is demoted rather than paid.
func (e *TransactionEngine) Create(ctx context.Context, req ports.CreateTransactionRequest) (*domain.Transaction, error) {
	if !domain.IsSupportedPaymentMethod(req.PaymentMethod) {
		return nil, apperror.ErrInvalidPaymentMethod(string(req.PaymentMethod))
	}
	if req.Customer.Name == "" || req.Customer.Phone == "" {
		return nil, apperror.Validation("customer name and phone are required")
	}

	link, err := e.linkRepo.GetByReference(ctx, req.LinkReference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch payment link: %w", err))
	}
	if link == nil {
		return nil, apperror.ErrNotFound("payment link")
	}

	now := time.Now().UTC()
	if link.Maintain(now) {
		if err := e.linkRepo.Update(ctx, link); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("demote stale link: %w", err))
		}
	}
	if ok, reason := link.AccessibleAt(now); !ok {
		return nil, apperror.ErrLinkNotAccessible(reason)
	}

	amount := link.Amount
	if link.AllowCustomAmount {
		if req.Amount == nil {
			return nil, apperror.Validation("amount is required for this payment link")
		}
		amount = *req.Amount
		if amount < link.MinAmount || (link.MaxAmount > 0 && amount > link.MaxAmount) {
			return nil, apperror.ErrAmountOutOfRange()
		}
	}
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	linkID := link.ID
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Reference:     newReference("TXN"),
		MerchantID:    link.MerchantID,
		LinkID:        &linkID,
		Amount:        amount,
		Currency:      link.Currency,
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
		Status:        domain.TransactionStatusPending,
		Fees:          e.feeSvc.TransactionFees(amount),
		ExpiresAt:     now.Add(transactionTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	e.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("reference", txn.Reference).
		Str("merchant_id", txn.MerchantID.String()).
		Int64("amount", amount).
		Msg("transaction created")

	return txn, nil
}

// Dispatch hands the transaction to its provider gateway. There is no retry
// at this layer: an initiation failure fails the transaction and the
// customer must start over.
func (e *TransactionEngine) Dispatch(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if t.Status != domain.TransactionStatusPending {
		return nil, apperror.ErrStateConflict(fmt.Sprintf("transaction is %s, only PENDING can be dispatched", t.Status))
	}

	gw, err := e.gateways.Gateway(t.PaymentMethod)
	if err != nil {
		return nil, apperror.ErrInvalidPaymentMethod(string(t.PaymentMethod))
	}

	res, err := gw.Initiate(ctx, t)
	now := time.Now().UTC()
	t.DispatchAttempts++
	t.UpdatedAt = now

	if err != nil || !res.Success {
		t.Status = domain.TransactionStatusFailed
		t.ProcessedAt = &now
		var code, msg string
		if err != nil {
			code, msg = "GATEWAY_ERROR", err.Error()
		} else {
			code, msg = res.ResponseCode, res.ResponseMessage
			t.ProviderResponse = res.Raw
		}
		if uerr := e.txRepo.UpdateDispatch(ctx, t); uerr != nil {
			return nil, apperror.InternalError(fmt.Errorf("persist failed dispatch: %w", uerr))
		}
		e.webhookSvc.NotifyTransaction(ctx, t, domain.EventTransactionFailed)
		e.log.Warn().
			Str("tx_id", t.ID.String()).
			Str("code", code).
			Str("message", msg).
			Msg("gateway initiation failed")
		return t, apperror.ErrProviderFailure(code, msg)
	}

	t.Status = domain.TransactionStatusProcessing
	t.ProviderTransactionID = &res.ProviderTransactionID
	if res.Instructions != "" {
		t.Instructions = &res.Instructions
	}
	t.ProviderResponse = res.Raw

	if err := e.txRepo.UpdateDispatch(ctx, t); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("persist dispatch: %w", err))
	}

	e.log.Info().
		Str("tx_id", t.ID.String()).
		Str("provider_tx_id", res.ProviderTransactionID).
		Msg("transaction dispatched")

	return t, nil
}

// Get fetches a transaction by ID.
func (e *TransactionEngine) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := e.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch transaction: %w", err))
	}
	if t == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return t, nil
}

// GetByReference fetches a transaction by public reference.
func (e *TransactionEngine) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	t, err := e.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch transaction: %w", err))
	}
	if t == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return t, nil
}

// Reconcile applies a provider-reported status exactly once. The status
// compare-and-set is the safeguard against double-crediting on duplicate
// callbacks: a losing caller sees a silent no-op.
func (e *TransactionEngine) Reconcile(ctx context.Context, transactionID uuid.UUID, providerStatus string) error {
	t, err := e.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch transaction: %w", err))
	}
	if t == nil {
		return apperror.ErrNotFound("transaction")
	}

	gw, err := e.gateways.Gateway(t.PaymentMethod)
	if err != nil {
		return apperror.ErrInvalidPaymentMethod(string(t.PaymentMethod))
	}
	if gw.IsPending(providerStatus) {
		return nil // nothing terminal to apply yet
	}

	newStatus := domain.TransactionStatusFailed
	if gw.IsSuccess(providerStatus) {
		newStatus = domain.TransactionStatusSuccessful
	}
	if t.Status == newStatus {
		return nil
	}

	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := e.txRepo.CompareAndSetStatus(ctx, dbTx, t.ID, reconcilable, newStatus)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("transaction status cas: %w", err))
	}
	if !applied {
		// Already terminal: duplicate delivery, deliberately ignored.
		e.log.Debug().
			Str("tx_id", t.ID.String()).
			Str("provider_status", providerStatus).
			Msg("duplicate reconciliation ignored")
		return nil
	}

	if newStatus == domain.TransactionStatusSuccessful {
		if err := e.merchantRepo.CreditAvailable(ctx, dbTx, t.MerchantID, t.Fees.MerchantReceives); err != nil {
			return apperror.InternalError(fmt.Errorf("credit merchant: %w", err))
		}
		if t.LinkID != nil {
			if err := e.linkRepo.ApplyPayment(ctx, dbTx, *t.LinkID, t.Amount); err != nil {
				return apperror.InternalError(fmt.Errorf("record link payment: %w", err))
			}
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit reconcile: %w", err))
	}

	now := time.Now().UTC()
	t.Status = newStatus
	t.ProcessedAt = &now
	t.UpdatedAt = now

	event := domain.EventTransactionFailed
	if newStatus == domain.TransactionStatusSuccessful {
		event = domain.EventTransactionSuccessful
	}
	e.webhookSvc.NotifyTransaction(ctx, t, event)
	if e.publisher != nil {
		e.publisher.Publish(t.MerchantID, ports.Event{
			Type:       event,
			MerchantID: t.MerchantID,
			Payload:    t,
			At:         now,
		})
	}
	if newStatus == domain.TransactionStatusSuccessful {
		e.notifyAdmins(ctx, t)
	}

	e.log.Info().
		Str("tx_id", t.ID.String()).
		Str("provider_status", providerStatus).
		Str("status", string(newStatus)).
		Int64("merchant_receives", t.Fees.MerchantReceives).
		Msg("transaction reconciled")

	return nil
}

// notifyAdmins emails the admin team about a successful payment when the
// platform toggle is on. Best effort.
func (e *TransactionEngine) notifyAdmins(ctx context.Context, t *domain.Transaction) {
	if e.settingsSvc == nil || e.notifier == nil {
		return
	}
	settings, err := e.settingsSvc.Get(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("settings lookup failed, skipping admin notification")
		return
	}
	if !settings.AdminPaymentNotifications {
		return
	}
	if err := e.notifier.AdminPaymentReceived(ctx, t); err != nil {
		e.log.Warn().Err(err).Str("tx_id", t.ID.String()).Msg("admin payment notification failed")
	}
}

// providerCallback is the inbound webhook body from a provider.
type providerCallback struct {
	TransactionID         string `json:"transaction_id"`
	ExternalTransactionID string `json:"external_transaction_id"`
	Status                string `json:"status"`
}

// HandleProviderCallback verifies the signature over the raw body against
// the transaction merchant's stored secret, then reconciles. A missing or
// invalid signature rejects the request before any state mutation.
func (e *TransactionEngine) HandleProviderCallback(ctx context.Context, rawBody []byte, signature string) error {
	if signature == "" {
		return apperror.ErrInvalidSignature()
	}

	var cb providerCallback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return apperror.Validation("malformed callback body")
	}
	if cb.Status == "" {
		return apperror.Validation("callback status is required")
	}

	t, err := e.resolveCallbackTransaction(ctx, cb)
	if err != nil {
		return err
	}

	merchant, err := e.merchantRepo.GetByID(ctx, t.MerchantID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch merchant: %w", err))
	}
	if merchant == nil {
		return apperror.ErrNotFound("merchant")
	}
	if !e.sigSvc.Verify(merchant.WebhookSecret, string(rawBody), signature) {
		e.log.Warn().Str("tx_id", t.ID.String()).Msg("callback signature mismatch")
		return apperror.ErrInvalidSignature()
	}

	if e.dedupe != nil {
		key := t.ID.String() + ":" + cb.Status
		fresh, derr := e.dedupe.CheckAndSet(ctx, key, callbackDedupeTTL)
		if derr != nil {
			e.log.Warn().Err(derr).Msg("callback dedupe unavailable, relying on status cas")
		} else if !fresh {
			e.log.Debug().Str("tx_id", t.ID.String()).Msg("duplicate callback dropped by fast path")
			return nil
		}
	}

	return e.Reconcile(ctx, t.ID, cb.Status)
}

func (e *TransactionEngine) resolveCallbackTransaction(ctx context.Context, cb providerCallback) (*domain.Transaction, error) {
	if cb.TransactionID != "" {
		id, err := uuid.Parse(cb.TransactionID)
		if err != nil {
			return nil, apperror.Validation("malformed transaction id")
		}
		t, err := e.txRepo.GetByID(ctx, id)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("fetch transaction: %w", err))
		}
		if t == nil {
			return nil, apperror.ErrNotFound("transaction")
		}
		return t, nil
	}
	if cb.ExternalTransactionID != "" {
		t, err := e.txRepo.GetByProviderTransactionID(ctx, cb.ExternalTransactionID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("fetch transaction: %w", err))
		}
		if t == nil {
			return nil, apperror.ErrNotFound("transaction")
		}
		return t, nil
	}
	return nil, apperror.Validation("callback carries no transaction identifier")
}

// ExpirePending sweeps PENDING transactions past their payment window into
// EXPIRED. No ledger effect.
func (e *TransactionEngine) ExpirePending(ctx context.Context) (int64, error) {
	n, err := e.txRepo.ExpirePending(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire pending transactions: %w", err)
	}
	if n > 0 {
		e.log.Info().Int64("expired", n).Msg("pending transactions expired")
	}
	return n, nil
}

// PollUnresolved asks providers for the status of transactions stuck in
// PENDING/PROCESSING past the staleness cutoff and reconciles any that
// reached a terminal provider state.
func (e *TransactionEngine) PollUnresolved(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-pollStaleness)
	stale, err := e.txRepo.ListUnresolved(ctx, cutoff, pollBatchSize)
	if err != nil {
		return fmt.Errorf("list unresolved transactions: %w", err)
	}

	for i := range stale {
		t := &stale[i]
		if t.ProviderTransactionID == nil {
			continue // never dispatched; the expiry sweep owns it
		}
		gw, err := e.gateways.Gateway(t.PaymentMethod)
		if err != nil {
			e.log.Error().Str("tx_id", t.ID.String()).Str("method", string(t.PaymentMethod)).Msg("no gateway for stale transaction")
			continue
		}
		res, err := gw.CheckStatus(ctx, *t.ProviderTransactionID)
		if err != nil {
			e.log.Warn().Err(err).Str("tx_id", t.ID.String()).Msg("status poll failed")
			continue
		}
		if err := e.Reconcile(ctx, t.ID, res.Status); err != nil {
			e.log.Warn().Err(err).Str("tx_id", t.ID.String()).Msg("poll reconciliation failed")
		}
	}
	return nil
}
