package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/rs/zerolog"
)

// m-Gurush status vocabulary. Note the provider says COMPLETED where MTN
// says SUCCESSFUL.
const (
	mgurushStatusCompleted  = "COMPLETED"
	mgurushStatusProcessing = "PROCESSING"
	mgurushStatusInitiated  = "INITIATED"
)

// MGurushGateway talks to the m-Gurush payments API.
type MGurushGateway struct {
	baseURL string
	apiKey  string
	client  HTTPClient
	log     zerolog.Logger
}

// NewMGurushGateway creates the m-Gurush adapter.
func NewMGurushGateway(baseURL, apiKey string, client HTTPClient, log zerolog.Logger) *MGurushGateway {
	return &MGurushGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		log:     log,
	}
}

func (g *MGurushGateway) Method() domain.PaymentMethod { return domain.PaymentMethodMGurush }

type mgurushPaymentRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Msisdn    string `json:"msisdn"`
	Reference string `json:"reference"`
}

type mgurushPaymentResponse struct {
	PaymentID  string `json:"payment_id"`
	Status     string `json:"status"`
	StatusCode string `json:"status_code"`
	Detail     string `json:"detail"`
}

// Initiate starts an m-Gurush wallet debit.
func (g *MGurushGateway) Initiate(ctx context.Context, t *domain.Transaction) (*ports.InitiateResult, error) {
	payload, err := json.Marshal(mgurushPaymentRequest{
		Amount:    t.Amount,
		Currency:  string(t.Currency),
		Msisdn:    t.Customer.Phone,
		Reference: t.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("mgurush request encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", g.apiKey)

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mgurush request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("mgurush response body: %w", err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("mgurush request: http %d", httpResp.StatusCode)
	}

	var resp mgurushPaymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("mgurush response decode: %w", err)
	}

	success := httpResp.StatusCode < http.StatusBadRequest && resp.Status != "FAILED"
	result := &ports.InitiateResult{
		Success:               success,
		ProviderTransactionID: resp.PaymentID,
		ResponseCode:          resp.StatusCode,
		ResponseMessage:       resp.Detail,
		Raw:                   raw,
	}
	if success {
		result.Instructions = "Confirm the payment in your m-Gurush wallet"
	}
	return result, nil
}

// CheckStatus polls a payment's state.
func (g *MGurushGateway) CheckStatus(ctx context.Context, providerTransactionID string) (*ports.StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/payments/"+providerTransactionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", g.apiKey)

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mgurush status poll: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("mgurush status body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mgurush status poll: http %d", httpResp.StatusCode)
	}

	var resp mgurushPaymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("mgurush status decode: %w", err)
	}
	return &ports.StatusResult{Status: resp.Status, Raw: raw}, nil
}

func (g *MGurushGateway) IsSuccess(token string) bool { return token == mgurushStatusCompleted }

func (g *MGurushGateway) IsPending(token string) bool {
	return token == mgurushStatusProcessing || token == mgurushStatusInitiated
}
