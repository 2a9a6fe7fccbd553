package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/avossberg/account-security/internal/repository"
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
	CodeInternalError   = "INTERNAL_ERROR"
)

// CreateRequest is the POST /sessions payload
type CreateRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	TTLSeconds int64  `json:"ttl_seconds" validate:"omitempty,min=1"`
}

// DeleteRequest is the DELETE /sessions payload. SessionID terminates one
// session; ExceptSessionID terminates all of the user's other sessions.
type DeleteRequest struct {
	UserID          string  `json:"user_id" validate:"required,uuid"`
	SessionID       *string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	ExceptSessionID *string `json:"except_session_id,omitempty" validate:"omitempty,uuid"`
}

// SessionResponse is one session in API responses. The token hash is
// intentionally absent.
type SessionResponse struct {
	ID             string     `json:"id"`
	Browser        string     `json:"browser"`
	OS             string     `json:"os"`
	Device         string     `json:"device"`
	IPAddress      string     `json:"ip_address"`
	Location       *string    `json:"location,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateResponse is the POST /sessions response. The plaintext token
// appears here once and nowhere else.
type CreateResponse struct {
	Session SessionResponse `json:"session"`
	Token   string          `json:"token"`
}

// Validator instance for request validation
var validate = validator.New()

// Handler handles HTTP requests for session endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new session Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List returns the user's active sessions
// GET /api/v1/sessions?user_id=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid or missing user_id", nil)
		return
	}

	sessions, err := h.service.ListActiveSessions(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list sessions", nil)
		return
	}

	responses := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, toSessionResponse(s))
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{"sessions": responses})
}

// Create mints a new session for the user
// POST /api/v1/sessions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
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

	created, err := h.service.CreateSession(r.Context(), userID, getClientIP(r), r.UserAgent(), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create session", nil)
		return
	}

	h.writeSuccess(w, http.StatusCreated, CreateResponse{
		Session: toSessionResponse(created.Session),
		Token:   created.Token,
	})
}

// Delete terminates one session or all sessions except one
// DELETE /api/v1/sessions
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", validationDetails(err))
		return
	}
	if (req.SessionID == nil) == (req.ExceptSessionID == nil) {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Exactly one of session_id and except_session_id is required", nil)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user_id", nil)
		return
	}

	rc := RequestContext{IPAddress: getClientIP(r), UserAgent: r.UserAgent()}

	var terminated bool
	if req.SessionID != nil {
		sessionID, err := uuid.Parse(*req.SessionID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid session_id", nil)
			return
		}
		terminated, err = h.service.TerminateSession(r.Context(), sessionID, &userID, rc)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to terminate session", nil)
			return
		}
	} else {
		exceptID, err := uuid.Parse(*req.ExceptSessionID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid except_session_id", nil)
			return
		}
		terminated, err = h.service.TerminateAllOtherSessions(r.Context(), userID, exceptID, rc)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to terminate sessions", nil)
			return
		}
	}

	h.writeSuccess(w, http.StatusOK, map[string]bool{"terminated": terminated})
}

// Touch updates last-activity on the session named by its token
// POST /api/v1/sessions/touch
func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "token is required", nil)
		return
	}

	touched, err := h.service.TouchActivity(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to update session activity", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]bool{"touched": touched})
}

func toSessionResponse(s repository.Session) SessionResponse {
	return SessionResponse{
		ID:             s.ID.String(),
		Browser:        s.Browser,
		OS:             s.OS,
		Device:         s.Device,
		IPAddress:      s.IPAddress,
		Location:       s.Location,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		CreatedAt:      s.CreatedAt,
	}
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
