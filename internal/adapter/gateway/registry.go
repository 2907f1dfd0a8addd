// Package gateway holds the provider adapters that move money through the
// mobile-money networks. One adapter per provider, selected once at startup.
package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/rs/zerolog"
)

// providerTimeout bounds every outbound provider call.
const providerTimeout = 15 * time.Second

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry implements ports.GatewaySelector over a fixed method→adapter map
// built at startup. It is read-only after construction.
type Registry struct {
	gateways map[domain.PaymentMethod]ports.PaymentGateway
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(gws ...ports.PaymentGateway) *Registry {
	m := make(map[domain.PaymentMethod]ports.PaymentGateway, len(gws))
	for _, gw := range gws {
		m[gw.Method()] = gw
	}
	return &Registry{gateways: m}
}

// Gateway resolves the adapter for a payment method.
func (r *Registry) Gateway(method domain.PaymentMethod) (ports.PaymentGateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("no gateway registered for method %s", method)
	}
	return gw, nil
}

// Config holds the provider connection settings.
type Config struct {
	UseMock bool

	MTNBaseURL string
	MTNAPIKey  string

	MGurushBaseURL string
	MGurushAPIKey  string
}

// NewSelector wires the configured adapters: the mock pair in development,
// the real providers otherwise.
func NewSelector(cfg Config, log zerolog.Logger) ports.GatewaySelector {
	if cfg.UseMock {
		log.Warn().Msg("payment gateways running in mock mode")
		return NewRegistry(
			NewMockGateway(domain.PaymentMethodMTNMomo),
			NewMockGateway(domain.PaymentMethodMGurush),
		)
	}
	client := &http.Client{Timeout: providerTimeout}
	return NewRegistry(
		NewMTNGateway(cfg.MTNBaseURL, cfg.MTNAPIKey, client, log),
		NewMGurushGateway(cfg.MGurushBaseURL, cfg.MGurushAPIKey, client, log),
	)
}
