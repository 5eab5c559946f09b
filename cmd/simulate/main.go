package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/risk"
	riskgate "github.com/breezeauth/riskgate/sdk/go"
)

var (
	baseURL     string
	profileName string
	otpCode     string
	pageURL     string
	dryRun      bool
)

var rootCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scripted session through the behavior collector and score it",
	Long: `simulate drives a collector with a scripted human or bot session on a
virtual clock and posts each snapshot to the risk gate service. When the
service asks for a code and --code is set, the code is submitted once.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the risk gate service")
	rootCmd.Flags().StringVar(&profileName, "profile", "human", "session profile: "+strings.Join(profileNames(), ", "))
	rootCmd.Flags().StringVar(&otpCode, "code", "", "code to submit when a challenge is opened")
	rootCmd.Flags().StringVar(&pageURL, "page", "https://shop.example.com/checkout", "page URL reported with each snapshot")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "score snapshots locally instead of posting them")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	p, ok := profiles[profileName]
	if !ok {
		return fmt.Errorf("unknown profile %q (want one of %s)", profileName, strings.Join(profileNames(), ", "))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format).WithComponent("simulate")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emit := localScorer(log)
	if !dryRun {
		emit = remoteScorer(ctx, log, riskgate.NewClient(riskgate.Config{
			BaseURL:   baseURL,
			UserAgent: "riskgate-simulate/" + profileName,
		}))
	}

	log.Info().Str("profile", profileName).Dur("duration", p.duration).Bool("dry_run", dryRun).Msg("Starting simulation")
	return simulate(ctx, p, cfg.Collector.Interval, cfg.Collector.IdleThreshold, emit)
}

func localScorer(log *logger.Logger) func(model.Snapshot) error {
	return func(s model.Snapshot) error {
		a := risk.Score(s.BehaviorMetrics)
		log.Assessment(s.SessionID, a.Score, string(a.Level), a.Triggered)
		return nil
	}
}

func remoteScorer(ctx context.Context, log *logger.Logger, client *riskgate.Client) func(model.Snapshot) error {
	submitted := false
	return func(s model.Snapshot) error {
		res, err := client.SubmitSnapshot(ctx, s, pageURL)
		if err != nil {
			return fmt.Errorf("failed to submit snapshot: %w", err)
		}

		log.Info().
			Str("session_id", s.SessionID).
			Int("risk_score", res.RiskScore).
			Str("risk_level", string(res.RiskLevel)).
			Bool("otp_required", res.OTPRequired).
			Msg("Snapshot scored")

		if !res.OTPRequired || otpCode == "" || submitted {
			return nil
		}
		submitted = true

		out, err := client.ValidateOTP(ctx, s.SessionID, otpCode, res.RiskScore)
		if err != nil {
			return fmt.Errorf("failed to validate code: %w", err)
		}

		remaining := -1
		if out.AttemptsRemaining != nil {
			remaining = *out.AttemptsRemaining
		}
		log.Info().
			Str("session_id", s.SessionID).
			Bool("valid", out.Valid()).
			Bool("locked", out.Locked).
			Int("attempts_remaining", remaining).
			Dur("dismiss_after", out.DismissAfter()).
			Msg("Code submitted")
		return nil
	}
}
