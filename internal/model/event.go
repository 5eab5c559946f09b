package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind discriminates attempt log entries
type EventKind string

const (
	EventOTPAttempt     EventKind = "otp_attempt"
	EventShopActivity   EventKind = "shop_activity"
	EventRiskAssessment EventKind = "risk_assessment"
)

// Valid reports whether k is a known kind
func (k EventKind) Valid() bool {
	switch k {
	case EventOTPAttempt, EventShopActivity, EventRiskAssessment:
		return true
	}
	return false
}

// OTP attempt outcomes
const (
	OutcomeValidated = "validated"
	OutcomeRejected  = "rejected"
	OutcomeLocked    = "locked"
)

// OTPAttempt is the payload of an otp_attempt event
type OTPAttempt struct {
	Code              string `json:"code"`
	IsValid           bool   `json:"isValid"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	Outcome           string `json:"outcome"`
}

// ShopActivity is the payload of a shop_activity event
type ShopActivity struct {
	ProductViews    []int  `json:"productViews"`
	CartActions     int    `json:"cartActions"`
	WishlistActions int    `json:"wishlistActions"`
	CategoryChanges int    `json:"categoryChanges"`
	Searches        int    `json:"searches"`
	Category        string `json:"category,omitempty"`
	SearchTerm      string `json:"searchTerm,omitempty"`
	// Exit marks the final flush sent when the page is left.
	Exit bool `json:"exit,omitempty"`
}

// IsEmpty reports whether the payload carries no activity at all
func (s *ShopActivity) IsEmpty() bool {
	return len(s.ProductViews) == 0 && s.CartActions == 0 && s.WishlistActions == 0 &&
		s.CategoryChanges == 0 && s.Searches == 0
}

// Total counts every recorded shop interaction
func (s *ShopActivity) Total() int {
	return len(s.ProductViews) + s.CartActions + s.WishlistActions + s.CategoryChanges + s.Searches
}

// RiskEvent is the payload of a risk_assessment event
type RiskEvent struct {
	Level       RiskLevel `json:"riskLevel"`
	Triggered   []string  `json:"triggered"`
	OTPRequired bool      `json:"otpRequired"`
}

// Event is one append-only attempt log entry. Exactly one payload matching
// Kind is set.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId"`
	UserID    *string   `json:"userId,omitempty"`
	RiskScore int       `json:"riskScore"`
	IPAddress *string   `json:"ipAddress,omitempty"`
	UserAgent *string   `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	OTP  *OTPAttempt   `json:"otp,omitempty"`
	Shop *ShopActivity `json:"shop,omitempty"`
	Risk *RiskEvent    `json:"risk,omitempty"`
}

// Validate checks that the payload matches the kind
func (e *Event) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("event: session id is required")
	}
	var ok bool
	switch e.Kind {
	case EventOTPAttempt:
		ok = e.OTP != nil && e.Shop == nil && e.Risk == nil
	case EventShopActivity:
		ok = e.Shop != nil && e.OTP == nil && e.Risk == nil
	case EventRiskAssessment:
		ok = e.Risk != nil && e.OTP == nil && e.Shop == nil
	default:
		return fmt.Errorf("event: unknown kind %q", e.Kind)
	}
	if !ok {
		return fmt.Errorf("event: payload does not match kind %q", e.Kind)
	}
	return nil
}

// Payload returns the kind-specific payload encoded as JSON
func (e *Event) Payload() ([]byte, error) {
	switch e.Kind {
	case EventOTPAttempt:
		return json.Marshal(e.OTP)
	case EventShopActivity:
		return json.Marshal(e.Shop)
	case EventRiskAssessment:
		return json.Marshal(e.Risk)
	}
	return nil, fmt.Errorf("event: unknown kind %q", e.Kind)
}

// SetPayload decodes raw into the payload slot selected by Kind
func (e *Event) SetPayload(raw []byte) error {
	switch e.Kind {
	case EventOTPAttempt:
		e.OTP = &OTPAttempt{}
		return json.Unmarshal(raw, e.OTP)
	case EventShopActivity:
		e.Shop = &ShopActivity{}
		return json.Unmarshal(raw, e.Shop)
	case EventRiskAssessment:
		e.Risk = &RiskEvent{}
		return json.Unmarshal(raw, e.Risk)
	}
	return fmt.Errorf("event: unknown kind %q", e.Kind)
}
