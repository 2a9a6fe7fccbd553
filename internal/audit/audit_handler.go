package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
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
	CodeUnknownAction   = "UNKNOWN_ACTION"
	CodeInternalError   = "INTERNAL_ERROR"
)

// LogEventRequest is the POST /audit-logs payload
type LogEventRequest struct {
	UserID       *string                `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Action       string                 `json:"action" validate:"required"`
	ResourceType *string                `json:"resource_type,omitempty"`
	ResourceID   *string                `json:"resource_id,omitempty"`
	Detail       repository.AuditDetail `json:"detail"`
	IPAddress    string                 `json:"ip_address" validate:"required"`
	UserAgent    string                 `json:"user_agent"`
	Status       string                 `json:"status" validate:"omitempty,oneof=success failure warning"`
	RiskLevel    string                 `json:"risk_level" validate:"omitempty,oneof=low medium high critical"`
}

// QueryResponse is the GET /audit-logs response payload
type QueryResponse struct {
	Logs  []EntryResponse `json:"logs"`
	Total int             `json:"total"`
}

// EntryResponse is one audit entry in API responses
type EntryResponse struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"user_id,omitempty"`
	Action       string                 `json:"action"`
	ResourceType *string                `json:"resource_type,omitempty"`
	ResourceID   *string                `json:"resource_id,omitempty"`
	Detail       repository.AuditDetail `json:"detail"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	Status       string                 `json:"status"`
	RiskLevel    string                 `json:"risk_level"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Validator instance for request validation
var validate = validator.New()

// Handler handles HTTP requests for audit log endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new audit Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Query handles audit log queries
// GET /api/v1/audit-logs
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, total, err := h.service.QueryEvents(r.Context(), filters, limit, offset)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to query audit logs", nil)
		return
	}

	response := QueryResponse{
		Logs:  make([]EntryResponse, 0, len(entries)),
		Total: total,
	}
	for _, e := range entries {
		response.Logs = append(response.Logs, toEntryResponse(e))
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// LogEvent handles audit event submission
// POST /api/v1/audit-logs
func (h *Handler) LogEvent(w http.ResponseWriter, r *http.Request) {
	var req LogEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", validationDetails(err))
		return
	}

	event := Event{
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Detail:       req.Detail,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Status:       req.Status,
		RiskLevel:    req.RiskLevel,
	}
	if req.UserID != nil {
		id, err := uuid.Parse(*req.UserID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user_id", nil)
			return
		}
		event.UserID = &id
	}

	if err := h.service.LogEvent(r.Context(), event); err != nil {
		switch {
		case errors.Is(err, ErrUnknownAction):
			h.writeError(w, http.StatusBadRequest, CodeUnknownAction, "Unknown action type", nil)
		case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidRiskLevel):
			h.writeError(w, http.StatusBadRequest, CodeValidationError, err.Error(), nil)
		default:
			h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to record audit event", nil)
		}
		return
	}

	h.writeSuccess(w, http.StatusCreated, map[string]bool{"recorded": true})
}

// parseFilters builds query filters from URL parameters
func parseFilters(r *http.Request) (repository.AuditQueryFilters, error) {
	var filters repository.AuditQueryFilters
	q := r.URL.Query()

	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filters, errors.New("invalid user_id filter")
		}
		filters.UserID = &id
	}
	if v := q.Get("action"); v != "" {
		filters.Action = &v
	}
	if v := q.Get("risk_level"); v != "" {
		if !validRiskLevels[v] {
			return filters, errors.New("invalid risk_level filter")
		}
		filters.RiskLevel = &v
	}
	if v := q.Get("start_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errors.New("invalid start_date filter, expected RFC 3339")
		}
		filters.StartDate = &ts
	}
	if v := q.Get("end_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errors.New("invalid end_date filter, expected RFC 3339")
		}
		filters.EndDate = &ts
	}

	return filters, nil
}

func toEntryResponse(e repository.AuditLogEntry) EntryResponse {
	resp := EntryResponse{
		ID:           e.ID.String(),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Detail:       e.Detail,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Status:       e.Status,
		RiskLevel:    e.RiskLevel,
		CreatedAt:    e.CreatedAt,
	}
	if e.UserID != nil {
		id := e.UserID.String()
		resp.UserID = &id
	}
	return resp
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
