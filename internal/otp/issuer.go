package otp

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/breezeauth/riskgate/internal/model"
)

// Issuer produces and checks the codes for a challenge
type Issuer interface {
	// Name identifies the issuer in logs and config
	Name() string
	// Prepare initialises issuer material on a new challenge
	Prepare(c *model.Challenge) error
	// Code returns the code currently accepted for c, for delivery
	Code(c *model.Challenge, now time.Time) (string, error)
	// Verify reports whether code is accepted for c at now
	Verify(c *model.Challenge, code string, now time.Time) bool
}

// StaticIssuer accepts one fixed code for every session. It exists for demos
// and local development.
type StaticIssuer struct {
	code string
}

// NewStaticIssuer creates a StaticIssuer accepting code
func NewStaticIssuer(code string) (*StaticIssuer, error) {
	if err := ValidateCodeFormat(code); err != nil {
		return nil, fmt.Errorf("static code: %w", err)
	}
	return &StaticIssuer{code: code}, nil
}

func (s *StaticIssuer) Name() string { return "static" }

func (s *StaticIssuer) Prepare(*model.Challenge) error { return nil }

func (s *StaticIssuer) Code(*model.Challenge, time.Time) (string, error) {
	return s.code, nil
}

func (s *StaticIssuer) Verify(_ *model.Challenge, code string, _ time.Time) bool {
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.code)) == 1
}

// TOTPConfig configures TOTPIssuer
type TOTPConfig struct {
	IssuerName string
	Period     uint
	Skew       uint
}

// TOTPIssuer derives time-limited codes from a per-challenge secret
type TOTPIssuer struct {
	issuerName string
	opts       totp.ValidateOpts
}

// NewTOTPIssuer creates a TOTPIssuer producing six-digit SHA1 codes
func NewTOTPIssuer(cfg TOTPConfig) *TOTPIssuer {
	period := cfg.Period
	if period == 0 {
		period = 30
	}
	name := cfg.IssuerName
	if name == "" {
		name = "Breeze"
	}
	return &TOTPIssuer{
		issuerName: name,
		opts: totp.ValidateOpts{
			Period:    period,
			Skew:      cfg.Skew,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
	}
}

func (t *TOTPIssuer) Name() string { return "totp" }

func (t *TOTPIssuer) Prepare(c *model.Challenge) error {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuerName,
		AccountName: c.SessionID,
		Period:      t.opts.Period,
		Digits:      t.opts.Digits,
		Algorithm:   t.opts.Algorithm,
	})
	if err != nil {
		return fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	c.Secret = key.Secret()
	return nil
}

func (t *TOTPIssuer) Code(c *model.Challenge, now time.Time) (string, error) {
	if c.Secret == "" {
		return "", ErrMissingSecret
	}
	return totp.GenerateCodeCustom(c.Secret, now, t.opts)
}

func (t *TOTPIssuer) Verify(c *model.Challenge, code string, now time.Time) bool {
	if c.Secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, c.Secret, now, t.opts)
	return err == nil && ok
}

// ValidateCodeFormat checks that code is exactly six ASCII digits
func ValidateCodeFormat(code string) error {
	if len(code) != CodeLength {
		return ErrInvalidCodeFormat
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidCodeFormat
		}
	}
	return nil
}
