package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"
)

// MockGateway is the development stand-in for a real provider. Every
// initiation succeeds and every status poll reports the provider's success
// token, so a local stack can exercise the full transaction lifecycle.
type MockGateway struct {
	method domain.PaymentMethod

	mu        sync.Mutex
	initiated map[string]string // provider tx id -> transaction reference
}

// NewMockGateway creates a mock adapter for the given method.
func NewMockGateway(method domain.PaymentMethod) *MockGateway {
	return &MockGateway{
		method:    method,
		initiated: make(map[string]string),
	}
}

func (g *MockGateway) Method() domain.PaymentMethod { return g.method }

func (g *MockGateway) Initiate(ctx context.Context, t *domain.Transaction) (*ports.InitiateResult, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	providerID := "mock-" + hex.EncodeToString(buf)

	g.mu.Lock()
	g.initiated[providerID] = t.Reference
	g.mu.Unlock()

	return &ports.InitiateResult{
		Success:               true,
		ProviderTransactionID: providerID,
		Instructions:          "Mock gateway: payment auto-approves on the next status poll",
		ResponseCode:          "00",
		ResponseMessage:       "accepted",
	}, nil
}

func (g *MockGateway) CheckStatus(ctx context.Context, providerTransactionID string) (*ports.StatusResult, error) {
	g.mu.Lock()
	_, known := g.initiated[providerTransactionID]
	g.mu.Unlock()

	if !known {
		return &ports.StatusResult{Status: "FAILED"}, nil
	}
	return &ports.StatusResult{Status: g.successToken()}, nil
}

func (g *MockGateway) successToken() string {
	if g.method == domain.PaymentMethodMGurush {
		return mgurushStatusCompleted
	}
	return mtnStatusSuccessful
}

func (g *MockGateway) IsSuccess(token string) bool { return token == g.successToken() }

func (g *MockGateway) IsPending(token string) bool {
	return token == mtnStatusPending || token == mtnStatusInitiated || token == mgurushStatusProcessing
}
