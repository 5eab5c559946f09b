package model

import "time"

// ChallengeState is the state of an OTP challenge. A session without a
// challenge is idle.
type ChallengeState string

const (
	ChallengePending   ChallengeState = "pending"
	ChallengeValidated ChallengeState = "validated"
	ChallengeLocked    ChallengeState = "locked"
)

// Challenge is the ephemeral OTP gate for one session
type Challenge struct {
	SessionID         string         `json:"sessionId"`
	RiskScore         int            `json:"riskScore"`
	State             ChallengeState `json:"state"`
	AttemptsRemaining int            `json:"attemptsRemaining"`
	// Failures is the stored count of wrong codes; stores keep it apart from the body.
	Failures int `json:"-"`
	// Secret is issuer-owned material (the TOTP seed). Never exposed.
	Secret    string    `json:"-"`
	Resends   int       `json:"resends"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired reports whether the challenge has outlived its TTL
func (c *Challenge) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Recipient identifies where an issued code can be delivered
type Recipient struct {
	UserID *string
	Email  string
}
