package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/breezeauth/riskgate/internal/auth"
	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/email"
	"github.com/breezeauth/riskgate/internal/handler"
	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/metrics"
	"github.com/breezeauth/riskgate/internal/middleware"
	"github.com/breezeauth/riskgate/internal/otp"
	"github.com/breezeauth/riskgate/internal/realtime"
	"github.com/breezeauth/riskgate/internal/repository"
	"github.com/breezeauth/riskgate/internal/router"
	"github.com/breezeauth/riskgate/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Msg("starting risk gate server")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	go metrics.StartDBStatsCollector(ctx, db.DB, 15*time.Second)

	// Initialize repositories
	eventRepo := repository.NewEventRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	// Realtime fan-out: publish through Redis, relay into this instance's hub
	var (
		hub *realtime.Hub
		pub realtime.Publisher
	)
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(log)
		go hub.Run(ctx)
		pub = realtime.NewRedisPublisher(rdb, cfg.Realtime.Channel)
		go func() {
			if err := realtime.Relay(ctx, rdb, cfg.Realtime.Channel, hub, log); err != nil {
				log.Error().Err(err).Msg("realtime relay stopped")
			}
		}()
		log.Info().Str("channel", cfg.Realtime.Channel).Msg("realtime feed enabled")
	}

	// Initialize the OTP gate
	gate, err := newGate(ctx, cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize OTP gate")
	}
	log.Info().
		Str("issuer", cfg.OTP.Issuer).
		Str("store", cfg.OTP.Store).
		Int("threshold", cfg.Risk.OTPThreshold).
		Msg("OTP gate initialized")

	// Initialize services
	attemptLog := service.NewAttemptLog(eventRepo, pub, cfg.AttemptLog.WriteTimeout, log)
	riskSvc := service.NewRiskService(gate, attemptLog, log)
	otpSvc := service.NewOTPService(gate, attemptLog, log)
	activitySvc := service.NewActivityService(eventRepo, analyticsRepo, attemptLog, pub, cfg.AttemptLog.WriteTimeout, cfg.AttemptLog.ListLimit, log)

	// Initialize handlers
	h := handler.New(log, riskSvc, otpSvc, activitySvc, hub, map[string]handler.HealthChecker{
		"postgres": db,
		"redis":    rdb,
	})

	// Initialize middleware
	mw := middleware.New(rdb, log, cfg)

	// Set up router
	verifier := auth.NewTokenVerifier(cfg.Auth)
	if !verifier.Enabled() {
		log.Warn().Msg("auth.jwt_secret is empty; admin routes and the live feed reject every request")
	}
	r := router.New(h, mw, verifier, cfg.Security.RateLimiting)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: /ws connections are long-lived
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Bool("tls", cfg.Server.TLS.Enabled).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newGate builds the OTP gate from configuration
func newGate(ctx context.Context, cfg *config.Config, rdb *database.Redis, log *logger.Logger) (*otp.Gate, error) {
	var issuer otp.Issuer
	switch cfg.OTP.Issuer {
	case "totp":
		issuer = otp.NewTOTPIssuer(otp.TOTPConfig{
			IssuerName: cfg.OTP.TOTPIssuerName,
			Period:     cfg.OTP.TOTPPeriod,
			Skew:       cfg.OTP.TOTPSkew,
		})
	default:
		static, err := otp.NewStaticIssuer(cfg.OTP.StaticCode)
		if err != nil {
			return nil, err
		}
		log.Warn().Msg("static OTP issuer in use; every session accepts the same code")
		issuer = static
	}

	var store otp.Store
	switch cfg.OTP.Store {
	case "memory":
		store = otp.NewMemoryStore()
	default:
		store = otp.NewRedisStore(rdb)
	}

	sender, err := email.NewSender(ctx, cfg.Email, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email sender: %w", err)
	}

	return otp.NewGate(store, issuer, otp.NewEmailDeliverer(sender, cfg.Email.AppName), otp.Config{
		Threshold:      cfg.Risk.OTPThreshold,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		TTL:            cfg.OTP.TTL,
		LockRetention:  cfg.OTP.LockRetention,
		SuccessDismiss: cfg.OTP.SuccessDismiss,
		LockDismiss:    cfg.OTP.LockDismiss,
	}, log), nil
}
