package otp

import (
	"context"
	"fmt"

	"github.com/breezeauth/riskgate/internal/email"
	"github.com/breezeauth/riskgate/internal/model"
)

// Deliverer sends an issued code to the person behind a session
type Deliverer interface {
	Deliver(ctx context.Context, to model.Recipient, code string, c *model.Challenge) error
}

// NopDeliverer drops codes. Used with the static issuer, whose code is known out of band.
type NopDeliverer struct{}

func (NopDeliverer) Deliver(context.Context, model.Recipient, string, *model.Challenge) error {
	return nil
}

// EmailDeliverer emails codes to recipients that carry an address
type EmailDeliverer struct {
	sender  email.Sender
	appName string
}

// NewEmailDeliverer creates an EmailDeliverer
func NewEmailDeliverer(sender email.Sender, appName string) *EmailDeliverer {
	return &EmailDeliverer{sender: sender, appName: appName}
}

func (d *EmailDeliverer) Deliver(ctx context.Context, to model.Recipient, code string, c *model.Challenge) error {
	if to.Email == "" {
		return ErrNoDeliveryAddress
	}

	ttlMinutes := max(int(c.ExpiresAt.Sub(c.CreatedAt).Minutes()), 1)
	msg := email.Message{
		To:       to.Email,
		Subject:  email.ChallengeSubject(d.appName),
		HTMLBody: email.ChallengeHTML(code, d.appName, ttlMinutes),
		TextBody: email.ChallengeText(code, d.appName, ttlMinutes),
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send challenge email: %w", err)
	}
	return nil
}
