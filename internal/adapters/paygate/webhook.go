package paygate

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"eventsignup/internal/domain"
)

// webhookClaims is the JWS payload the gateway signs around each event.
type webhookClaims struct {
	jwt.RegisteredClaims
	Event domain.WebhookEvent `json:"event"`
}

// WebhookVerifier decodes the gateway's signed webhook deliveries. Events
// arrive as compact JWS tokens signed with a shared HS256 secret; anything
// unverifiable is rejected before it can touch payment state.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier returns a verifier for the given shared secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify checks the token's signature and returns the embedded event.
func (v *WebhookVerifier) Verify(token string) (*domain.WebhookEvent, error) {
	claims := &webhookClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("webhook token is not valid")
	}
	if claims.Event.ID == "" || claims.Event.Type == "" {
		return nil, fmt.Errorf("webhook token carries no event")
	}
	return &claims.Event, nil
}
