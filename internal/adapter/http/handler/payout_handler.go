package handler

import (
	"github.com/johniman211/payssd-sub003/internal/adapter/http/dto"
	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/pkg/apperror"
	"github.com/johniman211/payssd-sub003/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler handles merchant payout requests and the admin approval
// actions.
type PayoutHandler struct {
	payoutSvc ports.PayoutService
	verifySvc ports.VerificationService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(payoutSvc ports.PayoutService, verifySvc ports.VerificationService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc, verifySvc: verifySvc}
}

// Request handles POST /api/v1/payouts.
func (h *PayoutHandler) Request(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	var req dto.CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payout, err := h.payoutSvc.Request(c.Request.Context(), ports.PayoutRequest{
		MerchantID: merchantID,
		Amount:     req.Amount,
		Currency:   domain.Currency(req.Currency),
		Method:     domain.PayoutMethod(req.Method),
		Destination: domain.PayoutDestination{
			BankName:       req.Destination.BankName,
			AccountName:    req.Destination.AccountName,
			AccountNumber:  req.Destination.AccountNumber,
			MobileNetwork:  req.Destination.MobileNetwork,
			MobileNumber:   req.Destination.MobileNumber,
			PickupLocation: req.Destination.PickupLocation,
			IDNumber:       req.Destination.IDNumber,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPayoutResponse(payout))
}

// Get handles GET /api/v1/payouts/:id for the owning merchant.
func (h *PayoutHandler) Get(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payout id"))
		return
	}

	payout, err := h.payoutSvc.Get(c.Request.Context(), payoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payout.MerchantID != merchantID {
		response.Error(c, apperror.ErrNotFound("payout"))
		return
	}

	response.OK(c, toPayoutResponse(payout))
}

// Cancel handles POST /api/v1/payouts/:id/cancel for the owning merchant.
func (h *PayoutHandler) Cancel(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payout id"))
		return
	}

	var req dto.CancelPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by merchant"
	}

	payout, err := h.payoutSvc.Get(c.Request.Context(), payoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payout.MerchantID != merchantID {
		response.Error(c, apperror.ErrNotFound("payout"))
		return
	}

	payout, err = h.payoutSvc.Cancel(c.Request.Context(), payoutID, reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPayoutResponse(payout))
}

// Process handles POST /api/v1/admin/payouts/:id/process. Payouts at or above
// the verification threshold must present the code delivered to the merchant.
func (h *PayoutHandler) Process(c *gin.Context) {
	operator, ok := merchantFromContext(c)
	if !ok {
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payout id"))
		return
	}

	var req dto.ProcessPayoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}

	payout, err := h.payoutSvc.Get(c.Request.Context(), payoutID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payout.RequiresVerification {
		if req.VerificationCode == "" {
			response.Error(c, apperror.ErrVerificationRequired())
			return
		}
		if payout.VerificationCodeHash == nil {
			response.Error(c, apperror.ErrInvalidVerificationCode())
			return
		}
		valid, verr := h.verifySvc.Verify(req.VerificationCode, *payout.VerificationCodeHash)
		if verr != nil {
			response.Error(c, apperror.InternalError(verr))
			return
		}
		if !valid {
			response.Error(c, apperror.ErrInvalidVerificationCode())
			return
		}
	}

	payout, err = h.payoutSvc.Process(c.Request.Context(), payoutID, operator)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPayoutResponse(payout))
}

// Complete handles POST /api/v1/admin/payouts/:id/complete.
func (h *PayoutHandler) Complete(c *gin.Context) {
	if _, ok := merchantFromContext(c); !ok {
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payout id"))
		return
	}

	var req dto.CompletePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payout, err := h.payoutSvc.Complete(c.Request.Context(), payoutID, req.ExternalReference)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPayoutResponse(payout))
}

// Fail handles POST /api/v1/admin/payouts/:id/fail.
func (h *PayoutHandler) Fail(c *gin.Context) {
	if _, ok := merchantFromContext(c); !ok {
		return
	}

	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payout id"))
		return
	}

	var req dto.FailPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payout, err := h.payoutSvc.Fail(c.Request.Context(), payoutID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPayoutResponse(payout))
}

func toPayoutResponse(p *domain.Payout) dto.PayoutResponse {
	return dto.PayoutResponse{
		ID:                   p.ID.String(),
		Reference:            p.Reference,
		Amount:               p.Amount,
		Currency:             string(p.Currency),
		Method:               string(p.Method),
		Status:               string(p.Status),
		ProcessingFee:        p.Fees.ProcessingFee,
		TotalFees:            p.Fees.TotalFees,
		NetAmount:            p.Fees.NetAmount,
		RequiresVerification: p.RequiresVerification,
		ExternalReference:    p.ExternalReference,
		FailureReason:        p.FailureReason,
		CreatedAt:            formatTime(p.CreatedAt),
		ProcessedAt:          formatTimePtr(p.ProcessedAt),
	}
}
