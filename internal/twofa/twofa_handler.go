package twofa

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Error codes for API responses
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidCode     = "INVALID_CODE"
	CodeAlreadyEnabled  = "2FA_ALREADY_ENABLED"
	CodeSetupNotStarted = "2FA_SETUP_NOT_STARTED"
	CodeNotEnabled      = "2FA_NOT_ENABLED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// ActionRequest is the POST /2fa payload. setup requires email;
// verify-setup, verify, and disable require code.
type ActionRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Email  string `json:"email" validate:"omitempty,email"`
	Action string `json:"action" validate:"required,oneof=setup verify-setup verify disable"`
	Code   string `json:"code"`
}

// Validator instance for request validation
var validate = validator.New()

// Handler handles HTTP requests for 2FA endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new twofa Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetStatus reports the user's 2FA enrollment state
// GET /api/v1/2fa/status?user_id=...
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid or missing user_id", nil)
		return
	}

	status, err := h.service.GetStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to get 2FA status", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, status)
}

// Action dispatches a 2FA operation
// POST /api/v1/2fa
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", validationDetails(err))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user_id", nil)
		return
	}

	rc := RequestContext{
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	}

	switch req.Action {
	case "setup":
		if req.Email == "" {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "email is required for setup", nil)
			return
		}
		h.handleSetup(w, r, userID, req.Email, rc)
	case "verify-setup":
		if req.Code == "" {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "code is required for verify-setup", nil)
			return
		}
		h.handleVerifySetup(w, r, userID, req.Code, rc)
	case "verify":
		if req.Code == "" {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "code is required for verify", nil)
			return
		}
		h.handleVerify(w, r, userID, req.Code, rc)
	case "disable":
		if req.Code == "" {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "code is required for disable", nil)
			return
		}
		h.handleDisable(w, r, userID, req.Code, rc)
	}
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request, userID uuid.UUID, email string, rc RequestContext) {
	payload, err := h.service.BeginSetup(r.Context(), userID, email, rc)
	if err != nil {
		if errors.Is(err, ErrAlreadyEnabled) {
			h.writeError(w, http.StatusConflict, CodeAlreadyEnabled, "Two-factor authentication is already enabled", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to start 2FA setup", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, payload)
}

func (h *Handler) handleVerifySetup(w http.ResponseWriter, r *http.Request, userID uuid.UUID, code string, rc RequestContext) {
	ok, err := h.service.VerifySetup(r.Context(), userID, code, rc)
	if err != nil {
		switch {
		case errors.Is(err, ErrSetupNotStarted):
			h.writeError(w, http.StatusConflict, CodeSetupNotStarted, "Two-factor setup has not been started", nil)
		case errors.Is(err, ErrAlreadyEnabled):
			h.writeError(w, http.StatusConflict, CodeAlreadyEnabled, "Two-factor authentication is already enabled", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to verify setup code", nil)
		}
		return
	}
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCode, "Invalid verification code", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request, userID uuid.UUID, code string, rc RequestContext) {
	ok, err := h.service.Verify(r.Context(), userID, code, rc)
	if err != nil {
		if errors.Is(err, ErrNotEnabled) {
			h.writeError(w, http.StatusConflict, CodeNotEnabled, "Two-factor authentication is not enabled", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to verify code", nil)
		return
	}
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCode, "Invalid verification code", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request, userID uuid.UUID, code string, rc RequestContext) {
	ok, err := h.service.Disable(r.Context(), userID, code, rc)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to disable 2FA", nil)
		return
	}
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCode, "Invalid verification code", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

// validationDetails flattens validator errors into field -> messages
func validationDetails(err error) map[string][]string {
	details := make(map[string][]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			details[field] = append(details[field], "failed "+fe.Tag()+" validation")
		}
	}
	return details
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// writeSuccess writes a success JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}
