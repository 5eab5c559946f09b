// Package riskgate is the Go client for the risk gate service. It posts
// behavior metrics for scoring and submits one-time codes for sessions the
// service has challenged.
package riskgate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the configuration for the risk gate client.
type Config struct {
	// BaseURL is the root URL of the risk gate service.
	// Example: "https://risk.example.com"
	BaseURL string

	// UserAgent is sent with every request. It is recorded in the attempt log.
	UserAgent string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.UserAgent == "" {
		c.UserAgent = "riskgate-go"
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client is the risk gate SDK client. It is safe for concurrent use.
type Client struct {
	cfg Config
	now func() time.Time
}

// NewClient creates a new risk gate client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{cfg: cfg, now: time.Now}
}

// SubmitMetrics posts a metrics snapshot for scoring. An empty sessionID is
// scored but neither gated nor logged by the service.
func (c *Client) SubmitMetrics(ctx context.Context, sessionID string, m BehaviorMetrics, pageURL string) (*RiskScore, error) {
	req := riskScoreRequest{
		BehaviorMetrics: m,
		SessionID:       sessionID,
		Timestamp:       c.now().UTC(),
		PageURL:         pageURL,
		UserAgent:       c.cfg.UserAgent,
	}

	var resp RiskScore
	if err := c.post(ctx, "/risk-score", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitSnapshot posts a collector snapshot for scoring.
func (c *Client) SubmitSnapshot(ctx context.Context, s Snapshot, pageURL string) (*RiskScore, error) {
	return c.SubmitMetrics(ctx, s.SessionID, s.BehaviorMetrics, pageURL)
}

// ValidateOTP submits a code for a challenged session. Codes that are not six
// digits are rejected locally with ErrInvalidCode. A wrong or locked outcome
// is returned as a result with a nil error.
func (c *Client) ValidateOTP(ctx context.Context, sessionID, code string, riskScore int) (*OTPResult, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if !validCode(code) {
		return nil, ErrInvalidCode
	}

	body, status, err := c.do(ctx, "/validate-otp", validateOTPRequest{
		SessionID: sessionID,
		OTPCode:   code,
		RiskScore: riskScore,
	})
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK || status == http.StatusBadRequest {
		var res OTPResult
		if err := json.Unmarshal(body, &res); err == nil && (res.Success || res.AttemptsRemaining != nil) {
			return &res, nil
		}
	}
	if status >= 400 {
		return nil, parseAPIError(status, body)
	}
	return nil, fmt.Errorf("riskgate: unexpected status %d: %s", status, string(body))
}

// ResendOTP asks the service to deliver the outstanding code again. The code
// and the remaining attempts are unchanged.
func (c *Client) ResendOTP(ctx context.Context, sessionID string) (*ResendResult, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	var res ResendResult
	err := c.post(ctx, "/resend-otp", map[string]string{"sessionId": sessionID}, &res)
	if apiErr, ok := IsAPIError(err); ok && apiErr.StatusCode == http.StatusNotFound {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DismissOTP closes the session's prompt. A locked challenge stays locked.
func (c *Client) DismissOTP(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	return c.post(ctx, "/dismiss-otp", map[string]string{"sessionId": sessionID}, nil)
}

// RecordShopActivity reports shop interactions for a session.
func (c *Client) RecordShopActivity(ctx context.Context, sessionID string, a ShopActivity) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	return c.post(ctx, "/shop-activity", shopActivityRequest{SessionID: sessionID, ShopActivity: a}, nil)
}

// post sends payload and decodes a 2xx response into out when out is non-nil.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, status, err := c.do(ctx, path, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return parseAPIError(status, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("riskgate: failed to parse response: %w", err)
	}
	return nil
}

// do sends a POST request to the risk gate API and returns the raw response.
func (c *Client) do(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("riskgate: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("riskgate: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("riskgate: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("riskgate: failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func validCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
