package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"eventsignup/internal/domain"
	"eventsignup/internal/services"
	"eventsignup/internal/worker"
)

// Concurrent writes on the same event contend on its row lock; transient
// conflicts are retried in-request before surfacing an error.
const (
	engineRetryAttempts = 3
	engineRetryBackoff  = 150 * time.Millisecond
)

// SignupController exposes the registration engine's operations. This is
// the boundary surface only; eligibility, placement, and all invariants
// live in the services layer.
type SignupController struct {
	enrollment *services.EnrollmentService
	logger     *slog.Logger
}

// NewSignupController returns a SignupController.
func NewSignupController(enrollment *services.EnrollmentService, logger *slog.Logger) *SignupController {
	return &SignupController{enrollment: enrollment, logger: logger}
}

type registerRequest struct {
	UserID string `json:"user_id"`
}

// Register handles POST /events/{eventID}/registrations.
func (c *SignupController) Register(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	var reg *domain.Registration
	err := worker.Retry(r.Context(), engineRetryAttempts, engineRetryBackoff, func() error {
		var err error
		reg, err = c.enrollment.Register(r.Context(), eventID, req.UserID)
		return err
	})
	if err != nil {
		c.writeEngineError(w, r, err)
		return
	}
	WriteJSONSuccess(w, http.StatusOK, reg)
}

// Unregister handles DELETE /registrations/{registrationID}.
func (c *SignupController) Unregister(w http.ResponseWriter, r *http.Request) {
	var reg *domain.Registration
	err := worker.Retry(r.Context(), engineRetryAttempts, engineRetryBackoff, func() error {
		var err error
		reg, err = c.enrollment.Unregister(r.Context(), r.PathValue("registrationID"))
		return err
	})
	if err != nil {
		c.writeEngineError(w, r, err)
		return
	}
	WriteJSONSuccess(w, http.StatusOK, reg)
}

type adminRegisterRequest struct {
	RequesterID string  `json:"requester_id"`
	UserID      string  `json:"user_id"`
	PoolID      *string `json:"pool_id"`
	Reason      string  `json:"reason"`
}

// AdminRegister handles POST /events/{eventID}/registrations/admin.
func (c *SignupController) AdminRegister(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	var req adminRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.RequesterID == "" {
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "requester_id and user_id are required")
		return
	}
	var reg *domain.Registration
	err := worker.Retry(r.Context(), engineRetryAttempts, engineRetryBackoff, func() error {
		var err error
		reg, err = c.enrollment.AdminRegister(r.Context(), req.RequesterID, eventID, req.UserID, req.PoolID, req.Reason)
		return err
	})
	if err != nil {
		c.writeEngineError(w, r, err)
		return
	}
	WriteJSONSuccess(w, http.StatusOK, reg)
}

// Bump handles POST /events/{eventID}/bump.
func (c *SignupController) Bump(w http.ResponseWriter, r *http.Request) {
	err := worker.Retry(r.Context(), engineRetryAttempts, engineRetryBackoff, func() error {
		return c.enrollment.BumpOnPoolChange(r.Context(), r.PathValue("eventID"))
	})
	if err != nil {
		c.writeEngineError(w, r, err)
		return
	}
	WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Audit handles GET /events/{eventID}/audit.
func (c *SignupController) Audit(w http.ResponseWriter, r *http.Request) {
	ok, err := c.enrollment.CheckPoolCountersConsistent(r.Context(), r.PathValue("eventID"))
	if err != nil && !domain.IsConsistency(err) {
		c.writeEngineError(w, r, err)
		return
	}
	WriteJSONSuccess(w, http.StatusOK, map[string]bool{"consistent": ok})
}

func (c *SignupController) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	case errors.Is(err, domain.ErrNoAvailablePools):
		WriteJSONError(w, http.StatusConflict, ErrCodeConflict, "no pool admits this user")
	case errors.Is(err, domain.ErrRegistrationClosed):
		WriteJSONError(w, http.StatusConflict, ErrCodeConflict, "registration window is closed")
	case errors.Is(err, domain.ErrEventFull):
		WriteJSONError(w, http.StatusConflict, ErrCodeConflict, "no free slot in the requested pool")
	default:
		c.logger.Error("registration engine error", "path", r.URL.Path, "error", err)
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
