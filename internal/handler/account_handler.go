package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"

	"catalog-api/internal/models"
	"catalog-api/internal/service"
	"catalog-api/internal/util"
)

// AccountHandler handles HTTP requests for account operations
type AccountHandler struct {
	accountService *service.AccountService
	logger         *zap.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accountService *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Code    string            `json:"code,omitempty"`
	Error   string            `json:"error,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Message string            `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(code string, err error, message string) Response {
	resp := Response{
		Success: false,
		Code:    code,
		Error:   err.Error(),
		Message: message,
	}

	// Field-level errors drive inline form feedback on the client.
	var validationErr *service.ValidationError
	var conflictErr *service.ConflictError
	switch {
	case errors.As(err, &validationErr):
		resp.Errors = validationErr.Fields
	case errors.As(err, &conflictErr):
		resp.Errors = conflictErr.Fields
	}

	return resp
}

// RegisterRoutes registers all account routes
func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListAccounts)
		r.Post("/", h.Register)
		r.Get("/verify", h.VerifyEmail)
		r.Post("/verify/resend", h.ResendVerification)
		r.Get("/health", h.HealthCheck)
	})
}

// Register handles account creation
// @Summary Register a new account
// @Description Create an account and send a verification email
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body service.RegisterRequest true "Registration request"
// @Success 201 {object} Response
// @Failure 409 {object} Response
// @Failure 422 {object} Response
// @Failure 500 {object} Response
// @Router /users [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_body", err, "Invalid request body")
		return
	}

	account, err := h.accountService.Register(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), h.getErrorCode(err), err, "Failed to register account")
		return
	}

	h.sanitizeAccount(account)

	h.respondWithJSON(w, http.StatusCreated, successResponse(account, "Account created successfully"))
	h.logger.Info("Account registered via HTTP",
		util.String("account_id", account.AccountID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Register"),
	)
}

// ListAccounts handles account listing
// @Summary List accounts
// @Description List all registered accounts
// @Tags accounts
// @Produce json
// @Success 200 {object} Response
// @Failure 500 {object} Response
// @Router /users [get]
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	accounts, err := h.accountService.ListAccounts(ctx)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "storage_failure", err, "Failed to list accounts")
		return
	}

	for _, account := range accounts {
		h.sanitizeAccount(account)
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(accounts, "Accounts retrieved successfully"))
	h.logger.Debug("Accounts listed via HTTP",
		util.Int("count", len(accounts)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ListAccounts"),
	)
}

// VerifyEmail handles verification code redemption
// @Summary Verify an email address
// @Description Redeem a verification code and mark the account verified
// @Tags accounts
// @Produce json
// @Param code query string true "Verification code"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 410 {object} Response
// @Failure 500 {object} Response
// @Router /users/verify [get]
func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	code := r.URL.Query().Get("code")

	account, err := h.accountService.Verify(ctx, code)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), h.getErrorCode(err), err, "Failed to verify account")
		return
	}

	h.sanitizeAccount(account)

	h.respondWithJSON(w, http.StatusOK, successResponse(account, "Account verified successfully"))
	h.logger.Info("Account verified via HTTP",
		util.String("account_id", account.AccountID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyEmail"),
	)
}

// ResendVerification handles verification email resends
// @Summary Resend verification email
// @Description Issue a fresh verification code and re-send the link
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body map[string]string true "Resend request"
// @Success 202 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /users/verify/resend [post]
func (h *AccountHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		EmailAddress string `json:"email_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_body", err, "Invalid request body")
		return
	}

	if err := h.accountService.ResendVerification(ctx, req.EmailAddress); err != nil {
		h.respondWithError(w, h.getStatusCode(err), h.getErrorCode(err), err, "Failed to resend verification")
		return
	}

	// Always accepted: unknown addresses are indistinguishable from known
	// ones to prevent account enumeration.
	h.respondWithJSON(w, http.StatusAccepted, successResponse(nil, "If the address is registered, a verification email is on its way"))
}

// HealthCheck handles service health check
// @Summary Health check
// @Description Check if the account service is healthy
// @Tags accounts
// @Produce json
// @Success 200 {object} Response
// @Router /users/health [get]
func (h *AccountHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.accountService.HealthCheck(ctx); err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "unhealthy", err, "Service unhealthy")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Service is healthy"))
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *AccountHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AccountHandler) respondWithError(w http.ResponseWriter, statusCode int, code string, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(code, err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error.
// Identity problems map to client statuses; only hashing and storage
// failures fall through to 500.
func (h *AccountHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrIdentityConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrCodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCodeExpired), errors.Is(err, service.ErrCodeConsumed):
		return http.StatusGone
	case errors.Is(err, service.ErrResendThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *AccountHandler) getErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return "validation_failed"
	case errors.Is(err, service.ErrIdentityConflict):
		return "identity_conflict"
	case errors.Is(err, service.ErrCodeNotFound):
		return "code_not_found"
	case errors.Is(err, service.ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, service.ErrCodeConsumed):
		return "code_already_used"
	case errors.Is(err, service.ErrResendThrottled):
		return "resend_throttled"
	case errors.Is(err, service.ErrAccountNotFound):
		return "account_not_found"
	default:
		return "server_error"
	}
}

// sanitizeAccount removes credential material from an account before it is
// sent in a response. The fields also carry json:"-", this is belt and
// braces against future tag churn.
func (h *AccountHandler) sanitizeAccount(account *models.Account) {
	account.PasswordHash = ""
	account.PasswordSalt = ""
	account.PasswordIterations = 0
}
