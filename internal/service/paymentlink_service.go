package service

import (
	"context"
	"fmt"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// viewDedupeTTL is the window within which repeat views from the same viewer
// do not count as unique.
const viewDedupeTTL = 24 * time.Hour

// PaymentLinkRegistry implements ports.PaymentLinkService.
type PaymentLinkRegistry struct {
	linkRepo    ports.PaymentLinkRepository
	viewTracker ports.ViewTracker // nil = every view counts as unique
	log         zerolog.Logger
}

// NewPaymentLinkRegistry creates the payment link registry.
func NewPaymentLinkRegistry(linkRepo ports.PaymentLinkRepository, viewTracker ports.ViewTracker, log zerolog.Logger) *PaymentLinkRegistry {
	return &PaymentLinkRegistry{
		linkRepo:    linkRepo,
		viewTracker: viewTracker,
		log:         log,
	}
}

// Create validates and persists a new ACTIVE payment link.
func (r *PaymentLinkRegistry) Create(ctx context.Context, req ports.CreatePaymentLinkRequest) (*domain.PaymentLink, error) {
	if req.Title == "" {
		return nil, apperror.Validation("title is required")
	}
	if !domain.IsSupportedCurrency(req.Currency) {
		return nil, apperror.ErrInvalidCurrency(string(req.Currency))
	}
	if req.AllowCustomAmount {
		if req.MinAmount <= 0 {
			return nil, apperror.Validation("min amount must be positive for custom-amount links")
		}
		if req.MaxAmount > 0 && req.MaxAmount < req.MinAmount {
			return nil, apperror.Validation("max amount must not be below min amount")
		}
	} else if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !req.NeverExpires && req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		return nil, apperror.Validation("expiry must be in the future")
	}
	if !req.IsMultiUse && req.MaxUses > 1 {
		return nil, apperror.Validation("single-use links cannot set max uses")
	}

	now := time.Now().UTC()
	link := &domain.PaymentLink{
		ID:                uuid.New(),
		Reference:         newReference("PL"),
		MerchantID:        req.MerchantID,
		Title:             req.Title,
		Amount:            req.Amount,
		AllowCustomAmount: req.AllowCustomAmount,
		MinAmount:         req.MinAmount,
		MaxAmount:         req.MaxAmount,
		Currency:          req.Currency,
		IsMultiUse:        req.IsMultiUse,
		MaxUses:           req.MaxUses,
		NeverExpires:      req.NeverExpires,
		ExpiresAt:         req.ExpiresAt,
		Status:            domain.PaymentLinkStatusActive,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := r.linkRepo.Create(ctx, link); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment link: %w", err))
	}

	r.log.Info().
		Str("link_id", link.ID.String()).
		Str("reference", link.Reference).
		Str("merchant_id", link.MerchantID.String()).
		Msg("payment link created")

	return link, nil
}

// GetByReference fetches a link by its public reference.
func (r *PaymentLinkRegistry) GetByReference(ctx context.Context, reference string) (*domain.PaymentLink, error) {
	link, err := r.linkRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch payment link: %w", err))
	}
	if link == nil {
		return nil, apperror.ErrNotFound("payment link")
	}
	return link, nil
}

// View records a view (unique per viewerKey within the dedupe window),
// demoting a stale link first. The view counters are side-effect only and
// never change link status.
func (r *PaymentLinkRegistry) View(ctx context.Context, reference string, viewerKey string) (*domain.PaymentLink, error) {
	link, err := r.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if link.Maintain(time.Now().UTC()) {
		if err := r.linkRepo.Update(ctx, link); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("demote stale link: %w", err))
		}
	}

	unique := true
	if r.viewTracker != nil && viewerKey != "" {
		fresh, terr := r.viewTracker.MarkViewed(ctx, link.ID, viewerKey, viewDedupeTTL)
		if terr != nil {
			r.log.Warn().Err(terr).Str("link_id", link.ID.String()).Msg("view tracker unavailable, counting view as repeat")
			unique = false
		} else {
			unique = fresh
		}
	}

	if err := r.linkRepo.IncrementViews(ctx, link.ID, unique); err != nil {
		r.log.Warn().Err(err).Str("link_id", link.ID.String()).Msg("view counter update failed")
	} else {
		link.Views++
		if unique {
			link.UniqueViews++
		}
	}

	return link, nil
}

// Pause moves an ACTIVE link to PAUSED.
func (r *PaymentLinkRegistry) Pause(ctx context.Context, merchantID, linkID uuid.UUID) error {
	return r.setStatus(ctx, merchantID, linkID, domain.PaymentLinkStatusActive, domain.PaymentLinkStatusPaused)
}

// Resume moves a PAUSED link back to ACTIVE.
func (r *PaymentLinkRegistry) Resume(ctx context.Context, merchantID, linkID uuid.UUID) error {
	return r.setStatus(ctx, merchantID, linkID, domain.PaymentLinkStatusPaused, domain.PaymentLinkStatusActive)
}

func (r *PaymentLinkRegistry) setStatus(ctx context.Context, merchantID, linkID uuid.UUID, from, to domain.PaymentLinkStatus) error {
	link, err := r.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch payment link: %w", err))
	}
	if link == nil || link.MerchantID != merchantID {
		return apperror.ErrNotFound("payment link")
	}
	if link.Status != from {
		return apperror.ErrStateConflict(fmt.Sprintf("link is %s, expected %s", link.Status, from))
	}

	link.Status = to
	link.IsActive = to == domain.PaymentLinkStatusActive
	link.UpdatedAt = time.Now().UTC()
	if err := r.linkRepo.Update(ctx, link); err != nil {
		return apperror.InternalError(fmt.Errorf("update payment link: %w", err))
	}
	return nil
}

// DemoteStale sweeps ACTIVE links that expired or hit their usage cap.
func (r *PaymentLinkRegistry) DemoteStale(ctx context.Context) (int64, error) {
	n, err := r.linkRepo.DemoteStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("demote stale links: %w", err)
	}
	if n > 0 {
		r.log.Info().Int64("demoted", n).Msg("stale payment links demoted")
	}
	return n, nil
}
