package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const mimeBoundary = "boundary_riskgate_email"

// GmailConfig holds the configuration for the Gmail email sender.
// Either CredentialsJSON (service account with domain-wide delegation) or the
// ClientID/ClientSecret/RefreshToken triple must be set.
type GmailConfig struct {
	CredentialsJSON string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	SenderAddress   string
	SenderName      string
}

// GmailSender implements Sender using the Gmail API.
type GmailSender struct {
	service *gmail.Service
	from    string
}

// NewGmailSender creates a new GmailSender.
func NewGmailSender(ctx context.Context, cfg GmailConfig) (*GmailSender, error) {
	if cfg.SenderAddress == "" {
		return nil, fmt.Errorf("gmail: sender address is required")
	}

	var client *http.Client
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		// impersonate the sending mailbox
		jwtConfig.Subject = cfg.SenderAddress
		client = jwtConfig.Client(ctx)
	case cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		client = oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	default:
		return nil, fmt.Errorf("gmail: credentials JSON or refresh token is required")
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	from := cfg.SenderAddress
	if cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.SenderName, cfg.SenderAddress)
	}
	return &GmailSender{service: svc, from: from}, nil
}

// Send sends an email via the Gmail API.
func (g *GmailSender) Send(ctx context.Context, msg Message) error {
	raw := base64.URLEncoding.EncodeToString([]byte(buildMIME(g.from, msg)))

	_, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail: failed to send email: %w", err)
	}
	return nil
}

// buildMIME renders msg as an RFC 5322 message, multipart when both bodies are set
func buildMIME(from string, msg Message) string {
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
	}

	var lines []string
	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		lines = append(headers,
			"Content-Type: multipart/alternative; boundary="+mimeBoundary,
			"",
			"--"+mimeBoundary,
			"Content-Type: text/plain; charset=UTF-8",
			"",
			msg.TextBody,
			"--"+mimeBoundary,
			"Content-Type: text/html; charset=UTF-8",
			"",
			msg.HTMLBody,
			"--"+mimeBoundary+"--",
		)
	case msg.HTMLBody != "":
		lines = append(headers, "Content-Type: text/html; charset=UTF-8", "", msg.HTMLBody)
	default:
		lines = append(headers, "Content-Type: text/plain; charset=UTF-8", "", msg.TextBody)
	}
	return strings.Join(lines, "\r\n")
}
