package email

import (
	"context"
	"fmt"

	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/logger"
)

// Sender is implemented by every email provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// LogSender writes messages to the log instead of sending them. Used in
// development where no provider is configured.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("email")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email not sent, log provider in use")
	return nil
}

// NewSender builds the provider selected in cfg
func NewSender(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return NewLogSender(log), nil
	case "gmail":
		return NewGmailSender(ctx, GmailConfig{
			CredentialsJSON: cfg.Gmail.CredentialsJSON,
			ClientID:        cfg.Gmail.ClientID,
			ClientSecret:    cfg.Gmail.ClientSecret,
			RefreshToken:    cfg.Gmail.RefreshToken,
			SenderAddress:   cfg.Gmail.SenderAddress,
			SenderName:      cfg.Gmail.SenderName,
		})
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
