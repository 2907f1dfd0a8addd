package handler

import (
	"io"

	"github.com/johniman211/payssd-sub003/internal/adapter/http/dto"
	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
	"github.com/johniman211/payssd-sub003/internal/service"
	"github.com/johniman211/payssd-sub003/pkg/apperror"
	"github.com/johniman211/payssd-sub003/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransactionHandler handles payment initiation, status polling and inbound
// provider callbacks.
type TransactionHandler struct {
	txSvc ports.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(txSvc ports.TransactionService) *TransactionHandler {
	return &TransactionHandler{txSvc: txSvc}
}

// Pay handles POST /pay/:reference — a customer initiating a payment against
// a link. The transaction is created and immediately dispatched to the
// provider gateway.
func (h *TransactionHandler) Pay(c *gin.Context) {
	var req dto.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.txSvc.Create(c.Request.Context(), ports.CreateTransactionRequest{
		LinkReference: c.Param("reference"),
		Amount:        req.Amount,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Customer: domain.Customer{
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
			Email: req.Customer.Email,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	txn, err = h.txSvc.Dispatch(c.Request.Context(), txn)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionStatusResponse(txn))
}

// Status handles GET /pay/status/:reference — customer polling for the
// outcome of a payment they initiated.
func (h *TransactionHandler) Status(c *gin.Context) {
	txn, err := h.txSvc.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionStatusResponse(txn))
}

// Get handles GET /api/v1/transactions/:reference for the owning merchant.
func (h *TransactionHandler) Get(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	txn, err := h.txSvc.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if txn.MerchantID != merchantID {
		response.Error(c, apperror.ErrNotFound("transaction"))
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// ProviderCallback handles POST /api/v1/callbacks/:provider. The raw body is
// verified against the merchant's webhook secret before any state changes.
func (h *TransactionHandler) ProviderCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader(service.SignatureHeader)
	if err := h.txSvc.HandleProviderCallback(c.Request.Context(), body, signature); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"received": true})
}

func toTransactionResponse(t *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:                t.ID.String(),
		Reference:         t.Reference,
		Amount:            t.Amount,
		Currency:          string(t.Currency),
		PaymentMethod:     string(t.PaymentMethod),
		Status:            string(t.Status),
		PlatformFee:       t.Fees.PlatformFee,
		TotalFees:         t.Fees.TotalFees,
		MerchantReceives:  t.Fees.MerchantReceives,
		CustomerName:      t.Customer.Name,
		CustomerPhone:     t.Customer.Phone,
		Instructions:      t.Instructions,
		ExpiresAt:         formatTime(t.ExpiresAt),
		CreatedAt:         formatTime(t.CreatedAt),
		ProcessedAt:       formatTimePtr(t.ProcessedAt),
		ExternalReference: t.ExternalTransactionID,
	}
}

func toTransactionStatusResponse(t *domain.Transaction) dto.TransactionStatusResponse {
	return dto.TransactionStatusResponse{
		Reference:    t.Reference,
		Status:       string(t.Status),
		Amount:       t.Amount,
		Currency:     string(t.Currency),
		Instructions: t.Instructions,
		ExpiresAt:    formatTime(t.ExpiresAt),
	}
}
