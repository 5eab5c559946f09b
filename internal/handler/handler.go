package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/middleware"
	"github.com/breezeauth/riskgate/internal/realtime"
	"github.com/breezeauth/riskgate/internal/service"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// HealthChecker is a dependency probed by /health and /ready
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	log         *logger.Logger
	riskSvc     *service.RiskService
	otpSvc      *service.OTPService
	activitySvc *service.ActivityService
	hub         *realtime.Hub
	checks      map[string]HealthChecker
}

// New creates a new Handler instance. hub may be nil when the live feed is disabled.
func New(log *logger.Logger, riskSvc *service.RiskService, otpSvc *service.OTPService, activitySvc *service.ActivityService, hub *realtime.Hub, checks map[string]HealthChecker) *Handler {
	return &Handler{
		log:         log.WithComponent("handler"),
		riskSvc:     riskSvc,
		otpSvc:      otpSvc,
		activitySvc: activitySvc,
		hub:         hub,
		checks:      checks,
	}
}

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse is the failure body shared by every endpoint
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, errMsg, message string) {
	writeJSON(w, status, errorResponse{Error: errMsg, Message: message})
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// requestMeta collects the caller details recorded alongside every event
func requestMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: middleware.ClientIP(r),
		UserAgent: middleware.UserAgent(r),
		Recipient: middleware.GetRecipient(r.Context()),
	}
}

// queryLimit reads ?limit=, returning 0 when absent or malformed
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
