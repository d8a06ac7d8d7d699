package paygate

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventsignup/internal/domain"
)

func signWebhook(t *testing.T, secret string, event domain.WebhookEvent) string {
	t.Helper()
	claims := webhookClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "paygate",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Event: event,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestWebhookVerifierRoundTrip(t *testing.T) {
	event := domain.WebhookEvent{
		ID:   "wh-1",
		Type: domain.WebhookIntentSucceeded,
		Intent: domain.PaymentIntent{
			ID:     "in_1",
			Status: domain.IntentSucceeded,
			Metadata: map[string]string{
				domain.IntentMetaEventID: "evt-1",
				domain.IntentMetaUserID:  "u1",
			},
		},
	}
	token := signWebhook(t, "sekrit", event)

	got, err := NewWebhookVerifier("sekrit").Verify(token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != event.ID || got.Type != event.Type {
		t.Errorf("expected event %s/%s, got %s/%s", event.ID, event.Type, got.ID, got.Type)
	}
	if got.Intent.Metadata[domain.IntentMetaUserID] != "u1" {
		t.Errorf("expected intent metadata preserved, got %v", got.Intent.Metadata)
	}
}

func TestWebhookVerifierRejectsWrongSecret(t *testing.T) {
	token := signWebhook(t, "sekrit", domain.WebhookEvent{ID: "wh-1", Type: domain.WebhookIntentSucceeded})

	if _, err := NewWebhookVerifier("other").Verify(token); err == nil {
		t.Fatal("expected a signature error")
	}
}

func TestWebhookVerifierRejectsGarbage(t *testing.T) {
	if _, err := NewWebhookVerifier("sekrit").Verify("not.a.token"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestWebhookVerifierRejectsEmptyEvent(t *testing.T) {
	token := signWebhook(t, "sekrit", domain.WebhookEvent{})

	if _, err := NewWebhookVerifier("sekrit").Verify(token); err == nil {
		t.Fatal("expected an empty event to be rejected")
	}
}

func TestWebhookVerifierRejectsUnsignedToken(t *testing.T) {
	claims := webhookClaims{Event: domain.WebhookEvent{ID: "wh-1", Type: domain.WebhookIntentSucceeded}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := NewWebhookVerifier("sekrit").Verify(token); err == nil {
		t.Fatal("expected the none algorithm to be rejected")
	}
}
