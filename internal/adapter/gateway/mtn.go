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

// MTN MoMo status vocabulary.
const (
	mtnStatusSuccessful = "SUCCESSFUL"
	mtnStatusPending    = "PENDING"
	mtnStatusInitiated  = "INITIATED"
)

// MTNGateway talks to the MTN Mobile Money collections API.
type MTNGateway struct {
	baseURL string
	apiKey  string
	client  HTTPClient
	log     zerolog.Logger
}

// NewMTNGateway creates the MTN MoMo adapter.
func NewMTNGateway(baseURL, apiKey string, client HTTPClient, log zerolog.Logger) *MTNGateway {
	return &MTNGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		log:     log,
	}
}

func (g *MTNGateway) Method() domain.PaymentMethod { return domain.PaymentMethodMTNMomo }

type mtnCollectionRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	PayerPhone  string `json:"payer_phone"`
	ExternalRef string `json:"external_ref"`
}

type mtnCollectionResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

// Initiate requests an approval prompt on the payer's handset.
func (g *MTNGateway) Initiate(ctx context.Context, t *domain.Transaction) (*ports.InitiateResult, error) {
	body := mtnCollectionRequest{
		Amount:      t.Amount,
		Currency:    string(t.Currency),
		PayerPhone:  t.Customer.Phone,
		ExternalRef: t.Reference,
	}

	raw, resp, err := g.post(ctx, "/collections", body)
	if err != nil {
		return nil, err
	}

	result := &ports.InitiateResult{
		Success:               resp.Status == mtnStatusPending || resp.Status == mtnStatusInitiated || resp.Status == mtnStatusSuccessful,
		ProviderTransactionID: resp.TransactionID,
		Instructions:          "Approve the payment prompt on your MTN MoMo handset",
		ResponseCode:          resp.Code,
		ResponseMessage:       resp.Message,
		Raw:                   raw,
	}
	if !result.Success {
		result.Instructions = ""
	}
	return result, nil
}

// CheckStatus polls the collection status.
func (g *MTNGateway) CheckStatus(ctx context.Context, providerTransactionID string) (*ports.StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/collections/"+providerTransactionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mtn status poll: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("mtn status body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mtn status poll: http %d", httpResp.StatusCode)
	}

	var resp mtnCollectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("mtn status decode: %w", err)
	}
	return &ports.StatusResult{Status: resp.Status, Raw: raw}, nil
}

func (g *MTNGateway) IsSuccess(token string) bool { return token == mtnStatusSuccessful }

func (g *MTNGateway) IsPending(token string) bool {
	return token == mtnStatusPending || token == mtnStatusInitiated
}

func (g *MTNGateway) post(ctx context.Context, path string, body any) ([]byte, *mtnCollectionResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("mtn request encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("mtn request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("mtn response body: %w", err)
	}

	var resp mtnCollectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, fmt.Errorf("mtn response decode: %w", err)
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, fmt.Errorf("mtn request: http %d: %s", httpResp.StatusCode, resp.Message)
	}
	// 4xx carries a provider rejection in the body: surface it as a
	// non-success result rather than an error.
	if httpResp.StatusCode >= http.StatusBadRequest && resp.Status == "" {
		resp.Status = "FAILED"
	}
	return raw, &resp, nil
}
