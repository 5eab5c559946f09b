package router

import (
	"net/http"

	"github.com/breezeauth/riskgate/internal/auth"
	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/handler"
	"github.com/breezeauth/riskgate/internal/metrics"
	"github.com/breezeauth/riskgate/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, verifier *auth.TokenVerifier, rl config.RateLimitingConfig) http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, fn http.HandlerFunc, mws ...func(http.Handler) http.Handler) {
		mws = append([]func(http.Handler) http.Handler{middleware.Instrument(pattern)}, mws...)
		mux.Handle(pattern, middleware.Chain(fn, mws...))
	}

	// Health check endpoints
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	defaultLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "default",
		Limit:  rl.DefaultLimit,
		Window: rl.DefaultWindow,
		KeyFn:  mw.IPKey,
	})
	otpLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "otp",
		Limit:  rl.OTPLimit,
		Window: rl.OTPWindow,
		KeyFn:  mw.IPKey,
	})

	// Page-facing routes
	route("POST /risk-score", h.RiskScore, defaultLimit)
	route("POST /validate-otp", h.ValidateOTP, otpLimit)
	route("POST /resend-otp", h.ResendOTP, otpLimit)
	route("POST /dismiss-otp", h.DismissOTP)
	route("GET /sessions/{sessionId}/challenge", h.GetChallenge)
	route("POST /analytics", h.RecordAnalytics, defaultLimit)
	route("POST /shop-activity", h.RecordShopActivity, defaultLimit)

	// Admin routes (require a token with the admin role)
	adminMw := mw.RequireAdmin(verifier)
	route("GET /sessions/{sessionId}/activity", h.GetSessionActivity, adminMw)
	route("GET /otp-attempts", h.ListOTPAttempts, adminMw)
	route("GET /user-analytics", h.ListUserAnalytics, adminMw)
	route("GET /shop-activity", h.ListShopActivity, adminMw)
	route("GET /dashboard", h.Dashboard, adminMw)
	mux.Handle("GET /ws", adminMw(http.HandlerFunc(h.LiveFeed)))

	// Apply middleware stack
	var handler http.Handler = mux

	// Caller identity from an optional bearer token
	handler = mw.Identify(verifier)(handler)

	// CORS answers preflights before routing
	handler = mw.CORS(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
