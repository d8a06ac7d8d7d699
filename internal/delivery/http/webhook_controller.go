package http

import (
	"io"
	"log/slog"
	"net/http"

	"eventsignup/internal/adapters/paygate"
	"eventsignup/internal/domain"
	"eventsignup/internal/services"
)

const maxWebhookBody = 64 << 10

// WebhookController receives the payment gateway's signed event deliveries.
type WebhookController struct {
	verifier *paygate.WebhookVerifier
	payments *services.PaymentService
	logger   *slog.Logger
}

// NewWebhookController returns a WebhookController.
func NewWebhookController(verifier *paygate.WebhookVerifier, payments *services.PaymentService, logger *slog.Logger) *WebhookController {
	return &WebhookController{verifier: verifier, payments: payments, logger: logger}
}

// HandlePaymentWebhook handles POST /webhooks/payment. The body is one
// compact JWS token. A webhook that matches no registration signals state
// drift between us and the gateway; it is answered with 500 so the gateway
// redelivers while the drift is investigated, never silently acknowledged.
func (c *WebhookController) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	event, err := c.verifier.Verify(string(body))
	if err != nil {
		c.logger.Warn("rejected webhook", "error", err)
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid webhook signature")
		return
	}
	if err := c.payments.HandleWebhook(r.Context(), *event); err != nil {
		if domain.IsConsistency(err) {
			c.logger.Error("webhook consistency violation", "webhook_id", event.ID, "error", err)
		} else {
			c.logger.Error("webhook processing failed", "webhook_id", event.ID, "error", err)
		}
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "webhook not processed")
		return
	}
	WriteJSONSuccess(w, http.StatusOK, map[string]string{"received": event.ID})
}
