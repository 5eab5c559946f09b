package riskgate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK.
var (
	// ErrInvalidCode is returned, without a network call, when an OTP code is not exactly six digits.
	ErrInvalidCode = errors.New("riskgate: code must be exactly 6 digits")

	// ErrMissingSession is returned when a call needs a session id and none was given.
	ErrMissingSession = errors.New("riskgate: session id is required")

	// ErrNoChallenge is returned by ResendOTP when the session has no open challenge.
	ErrNoChallenge = errors.New("riskgate: no active challenge")

	// ErrRateLimited is returned when the server answers 429.
	ErrRateLimited = errors.New("riskgate: rate limited")
)

// APIError represents an error response from the risk gate API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("riskgate: API error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("riskgate: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// Is lets errors.Is match status-derived sentinels.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == 429
}

func parseAPIError(statusCode int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = statusCode
		return &apiErr
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
