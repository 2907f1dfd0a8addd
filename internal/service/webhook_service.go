package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/johniman211/payssd-sub003/internal/core/domain"
	"github.com/johniman211/payssd-sub003/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body.
	SignatureHeader = "X-PaySSD-Signature"

	webhookMaxRetries = 3
	webhookRetryStep  = time.Second // linear: attempt * step
)

// WebhookPayload is the JSON structure sent to the merchant's webhook URL.
// The signature covers these exact bytes.
type WebhookPayload struct {
	Event     string             `json:"event"`
	Timestamp int64              `json:"timestamp"`
	Data      WebhookPayloadData `json:"data"`
}

// WebhookPayloadData holds the state-change details in the webhook.
type WebhookPayloadData struct {
	ID            string            `json:"id"`
	Reference     string            `json:"reference"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	PayoutMethod  string            `json:"payout_method,omitempty"`
	MerchantID    string            `json:"merchant_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhookService implements ports.WebhookService. Delivery failures are
// contained here: they are logged and dropped, never surfaced to the caller
// that triggered the state change.
type webhookService struct {
	merchantRepo ports.MerchantRepository
	txRepo       ports.TransactionRepository
	webhookRepo  ports.WebhookRepository
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	log          zerolog.Logger

	sleep func(time.Duration) // test seam
}

// NewWebhookService creates a new webhook notifier. The supplied client
// should carry the 10-second delivery timeout.
func NewWebhookService(
	merchantRepo ports.MerchantRepository,
	txRepo ports.TransactionRepository,
	webhookRepo ports.WebhookRepository,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) ports.WebhookService {
	return &webhookService{
		merchantRepo: merchantRepo,
		txRepo:       txRepo,
		webhookRepo:  webhookRepo,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		log:          log,
		sleep:        time.Sleep,
	}
}

// NotifyTransaction delivers a transaction state change asynchronously.
func (s *webhookService) NotifyTransaction(ctx context.Context, t *domain.Transaction, event string) {
	data := WebhookPayloadData{
		ID:            t.ID.String(),
		Reference:     t.Reference,
		Amount:        t.Amount,
		Currency:      string(t.Currency),
		Status:        string(t.Status),
		PaymentMethod: string(t.PaymentMethod),
		MerchantID:    t.MerchantID.String(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.LinkID != nil {
		data.Metadata = map[string]string{"link_id": t.LinkID.String()}
	}
	s.notify(t.MerchantID, t.ID, event, data)
}

// NotifyPayout delivers a payout state change asynchronously.
func (s *webhookService) NotifyPayout(ctx context.Context, p *domain.Payout, event string) {
	data := WebhookPayloadData{
		ID:           p.ID.String(),
		Reference:    p.Reference,
		Amount:       p.Amount,
		Currency:     string(p.Currency),
		Status:       string(p.Status),
		PayoutMethod: string(p.Method),
		MerchantID:   p.MerchantID.String(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	s.notify(p.MerchantID, p.ID, event, data)
}

func (s *webhookService) notify(merchantID, subjectID uuid.UUID, event string, data WebhookPayloadData) {
	// Detach from the request context: delivery must not be cut short by the
	// triggering request finishing.
	ctx := context.Background()

	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", merchantID.String()).Msg("webhook: failed to fetch merchant")
		return
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		s.log.Debug().Str("merchant_id", merchantID.String()).Msg("webhook: no webhook URL configured, skipping")
		return
	}

	payload := WebhookPayload{
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("subject_id", subjectID.String()).Msg("webhook: failed to marshal payload")
		return
	}
	signature := s.sigSvc.Sign(merchant.WebhookSecret, string(payloadBytes))

	go s.deliverWithRetry(ctx, *merchant.WebhookURL, payloadBytes, signature, merchantID, subjectID, event)
}

// deliverWithRetry attempts delivery with linear backoff. After exhausting
// retries the failure is logged and dropped.
func (s *webhookService) deliverWithRetry(ctx context.Context, url string, payload []byte, signature string, merchantID, subjectID uuid.UUID, event string) {
	dlog := &domain.WebhookDeliveryLog{
		ID:            uuid.New(),
		TransactionID: subjectID,
		MerchantID:    merchantID,
		Event:         event,
		WebhookURL:    url,
		Payload:       string(payload),
		Status:        domain.WebhookStatusPending,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.webhookRepo.Create(ctx, dlog); err != nil {
		s.log.Warn().Err(err).Str("subject_id", subjectID.String()).Msg("webhook: failed to record delivery log")
	}

	for attempt := 1; attempt <= webhookMaxRetries+1; attempt++ {
		if attempt > 1 {
			s.sleep(time.Duration(attempt-1) * webhookRetryStep)
		}

		status, err := s.deliver(ctx, url, payload, signature)
		dlog.Attempt = attempt
		now := time.Now().UTC()
		if s.txRepo != nil {
			if rerr := s.txRepo.RecordWebhookAttempt(ctx, subjectID, now); rerr != nil {
				s.log.Debug().Err(rerr).Msg("webhook: attempt counter update failed")
			}
		}

		if err == nil && status >= 200 && status < 300 {
			dlog.Status = domain.WebhookStatusDelivered
			dlog.HTTPStatus = &status
			dlog.LastError = nil
			if uerr := s.webhookRepo.Update(ctx, dlog); uerr != nil {
				s.log.Debug().Err(uerr).Msg("webhook: delivery log update failed")
			}
			s.log.Info().
				Str("subject_id", subjectID.String()).
				Str("event", event).
				Int("attempt", attempt).
				Int("status", status).
				Msg("webhook: delivered")
			return
		}

		if err != nil {
			msg := err.Error()
			dlog.LastError = &msg
			s.log.Warn().Err(err).Str("subject_id", subjectID.String()).Int("attempt", attempt).Msg("webhook: delivery failed")
		} else {
			dlog.HTTPStatus = &status
			s.log.Warn().Str("subject_id", subjectID.String()).Int("attempt", attempt).Int("status", status).Msg("webhook: non-2xx response")
		}
	}

	dlog.Status = domain.WebhookStatusFailed
	if uerr := s.webhookRepo.Update(ctx, dlog); uerr != nil {
		s.log.Debug().Err(uerr).Msg("webhook: delivery log update failed")
	}
	s.log.Error().
		Str("subject_id", subjectID.String()).
		Str("event", event).
		Msg("webhook: all retry attempts exhausted, dropping")
}

// deliver performs one signed POST. Success is strictly 2xx.
func (s *webhookService) deliver(ctx context.Context, url string, payload []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
