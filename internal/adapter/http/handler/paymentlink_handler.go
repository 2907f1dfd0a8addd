package handler

import (
	"context"

	"github.com/johniman211/payssd-sub003/internal/adapter/http/dto"
	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/pkg/apperror"
	"github.com/johniman211/payssd-sub003/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentLinkHandler handles payment link endpoints.
type PaymentLinkHandler struct {
	linkSvc ports.PaymentLinkService
}

// NewPaymentLinkHandler creates a new PaymentLinkHandler.
func NewPaymentLinkHandler(linkSvc ports.PaymentLinkService) *PaymentLinkHandler {
	return &PaymentLinkHandler{linkSvc: linkSvc}
}

// Create handles POST /api/v1/links.
func (h *PaymentLinkHandler) Create(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	link, err := h.linkSvc.Create(c.Request.Context(), ports.CreatePaymentLinkRequest{
		MerchantID:        merchantID,
		Title:             req.Title,
		Amount:            req.Amount,
		AllowCustomAmount: req.AllowCustomAmount,
		MinAmount:         req.MinAmount,
		MaxAmount:         req.MaxAmount,
		Currency:          domain.Currency(req.Currency),
		IsMultiUse:        req.IsMultiUse,
		MaxUses:           req.MaxUses,
		NeverExpires:      req.NeverExpires,
		ExpiresAt:         req.ExpiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPaymentLinkResponse(link))
}

// Get handles GET /api/v1/links/:reference.
func (h *PaymentLinkHandler) Get(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	link, err := h.linkSvc.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if link.MerchantID != merchantID {
		response.Error(c, apperror.ErrNotFound("payment link"))
		return
	}

	response.OK(c, toPaymentLinkResponse(link))
}

// Pause handles POST /api/v1/links/:reference/pause.
func (h *PaymentLinkHandler) Pause(c *gin.Context) {
	h.toggle(c, h.linkSvc.Pause)
}

// Resume handles POST /api/v1/links/:reference/resume.
func (h *PaymentLinkHandler) Resume(c *gin.Context) {
	h.toggle(c, h.linkSvc.Resume)
}

func (h *PaymentLinkHandler) toggle(c *gin.Context, op func(ctx context.Context, merchantID, linkID uuid.UUID) error) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	link, err := h.linkSvc.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := op(c.Request.Context(), merchantID, link.ID); err != nil {
		response.Error(c, err)
		return
	}

	link, err = h.linkSvc.GetByReference(c.Request.Context(), link.Reference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPaymentLinkResponse(link))
}

// View handles GET /pay/:reference — the public payment page data. The
// viewer's client IP keys unique-view tracking.
func (h *PaymentLinkHandler) View(c *gin.Context) {
	link, err := h.linkSvc.View(c.Request.Context(), c.Param("reference"), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.PublicPaymentLinkResponse{
		Reference:         link.Reference,
		Title:             link.Title,
		Amount:            link.Amount,
		AllowCustomAmount: link.AllowCustomAmount,
		MinAmount:         link.MinAmount,
		MaxAmount:         link.MaxAmount,
		Currency:          string(link.Currency),
		Status:            string(link.Status),
	})
}

func toPaymentLinkResponse(l *domain.PaymentLink) dto.PaymentLinkResponse {
	return dto.PaymentLinkResponse{
		ID:                l.ID.String(),
		Reference:         l.Reference,
		Title:             l.Title,
		Amount:            l.Amount,
		AllowCustomAmount: l.AllowCustomAmount,
		MinAmount:         l.MinAmount,
		MaxAmount:         l.MaxAmount,
		Currency:          string(l.Currency),
		IsMultiUse:        l.IsMultiUse,
		MaxUses:           l.MaxUses,
		CurrentUses:       l.CurrentUses,
		NeverExpires:      l.NeverExpires,
		ExpiresAt:         l.ExpiresAt,
		Status:            string(l.Status),
		IsActive:          l.IsActive,
		Views:             l.Views,
		UniqueViews:       l.UniqueViews,
		Conversions:       l.Conversions,
		TotalCollected:    l.TotalCollected,
		CreatedAt:         formatTime(l.CreatedAt),
	}
}
