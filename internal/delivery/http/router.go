package http

import (
	"net/http"
)

// NewRouter initializes the HTTP router with all application routes.
func NewRouter(signup *SignupController, webhooks *WebhookController) *http.ServeMux {
	mux := http.NewServeMux()

	// Registration engine
	mux.HandleFunc("POST /events/{eventID}/registrations", signup.Register)
	mux.HandleFunc("POST /events/{eventID}/registrations/admin", signup.AdminRegister)
	mux.HandleFunc("POST /events/{eventID}/bump", signup.Bump)
	mux.HandleFunc("GET /events/{eventID}/audit", signup.Audit)
	mux.HandleFunc("DELETE /registrations/{registrationID}", signup.Unregister)

	// Payment gateway callbacks
	mux.HandleFunc("POST /webhooks/payment", webhooks.HandlePaymentWebhook)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
