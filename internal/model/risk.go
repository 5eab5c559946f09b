package model

import "time"

// RiskLevel is the categorical label derived from a risk score
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Factor availability labels reported back to clients
const (
	FactorAnalyzed     = "analyzed"
	FactorNotAvailable = "not available"
)

// RiskFactors reports which metric groups were present in the scored input
type RiskFactors struct {
	Typing string `json:"typing"`
	Mouse  string `json:"mouse"`
	Focus  string `json:"focus"`
	Scroll string `json:"scroll"`
}

// RiskAssessment is the result of one scoring invocation. It is never mutated
// after being returned.
type RiskAssessment struct {
	SessionID string      `json:"sessionId"`
	Score     int         `json:"riskScore"`
	Level     RiskLevel   `json:"riskLevel"`
	Factors   RiskFactors `json:"factors"`
	Triggered []string    `json:"triggered"`
	Timestamp time.Time   `json:"timestamp"`
}
