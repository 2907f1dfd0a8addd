package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidCurrency(currency string) *AppError {
	return New("VAL_003", fmt.Sprintf("Unsupported currency: %s", currency), http.StatusBadRequest)
}

func ErrInvalidPayoutMethod(method string) *AppError {
	return New("VAL_004", fmt.Sprintf("Unknown payout method: %s", method), http.StatusBadRequest)
}

func ErrInvalidPaymentMethod(method string) *AppError {
	return New("VAL_005", fmt.Sprintf("Unknown payment method: %s", method), http.StatusBadRequest)
}

// ---- Transactions & Payment Links (PAY) ----

func ErrNotFound(entity string) *AppError {
	return New("PAY_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrLinkNotAccessible(reason string) *AppError {
	return New("PAY_002", fmt.Sprintf("Payment link is not accessible: %s", reason), http.StatusGone)
}

func ErrAmountOutOfRange() *AppError {
	return New("PAY_003", "Amount is outside the allowed range for this payment link", http.StatusBadRequest)
}

func ErrProviderFailure(code, message string) *AppError {
	return New("PAY_004", fmt.Sprintf("Payment provider rejected the request (%s): %s", code, message), http.StatusBadGateway)
}

func ErrStateConflict(detail string) *AppError {
	return New("PAY_005", detail, http.StatusConflict)
}

// ---- Payouts (PO) ----

func ErrInsufficientBalance() *AppError {
	return New("PO_001", "Insufficient available balance", http.StatusPaymentRequired)
}

func ErrTooManyPendingPayouts() *AppError {
	return New("PO_002", "Too many pending payout requests", http.StatusUnprocessableEntity)
}

func ErrPayoutAmountTooSmall() *AppError {
	return New("PO_003", "Payout amount does not cover the processing fee", http.StatusBadRequest)
}

func ErrVerificationRequired() *AppError {
	return New("PO_004", "Payout requires verification", http.StatusForbidden)
}

func ErrInvalidVerificationCode() *AppError {
	return New("PO_005", "Invalid verification code", http.StatusForbidden)
}

// ---- Security (SEC) ----

func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid signature", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("SEC_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- System & Infrastructure (SYS) ----

func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_002", "Internal database error", http.StatusInternalServerError, err)
}
