// Package paygate talks to the external payment gateway: an HTTP client for
// the intent lifecycle and a verifier for its signed webhook events.
package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"eventsignup/internal/domain"
)

type httpGateway struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPGateway returns a PaymentGateway talking JSON over HTTP. The
// Idempotency-Key header carries the caller's key so a retried CreateIntent
// returns the original intent instead of opening a second one.
func NewHTTPGateway(client *http.Client, baseURL, apiKey string) domain.PaymentGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpGateway{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (g *httpGateway) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (*domain.PaymentIntent, error) {
	body := map[string]any{
		"amount_cents": req.AmountCents,
		"currency":     req.Currency,
		"metadata":     req.Metadata,
	}
	return g.do(ctx, http.MethodPost, "/v1/intents", req.IdempotencyKey, body)
}

func (g *httpGateway) RetrieveIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	return g.do(ctx, http.MethodGet, "/v1/intents/"+intentID, "", nil)
}

func (g *httpGateway) CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	return g.do(ctx, http.MethodPost, "/v1/intents/"+intentID+"/cancel", "", nil)
}

func (g *httpGateway) do(ctx context.Context, method, path, idempotencyKey string, body any) (*domain.PaymentIntent, error) {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned status: %d", resp.StatusCode)
	}
	var intent domain.PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return &intent, nil
}
