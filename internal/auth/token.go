package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/model"
)

var (
	ErrNoToken       = errors.New("no bearer token")
	ErrNotConfigured = errors.New("token verification is not configured")
	ErrNotAdmin      = errors.New("token does not carry the admin role")
)

// DefaultAdminRole is the role claim that grants access to admin routes
const DefaultAdminRole = "admin"

// TokenClaims represents the claims read from a caller's access token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenVerifier resolves bearer tokens into the user behind a request.
// Requests are anonymous unless a valid HS256 token is presented.
type TokenVerifier struct {
	secret    []byte
	issuer    string
	adminRole string
}

// NewTokenVerifier creates a TokenVerifier. An empty secret disables
// verification, which also leaves every admin route closed.
func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	role := cfg.AdminRole
	if role == "" {
		role = DefaultAdminRole
	}
	return &TokenVerifier{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.Issuer,
		adminRole: role,
	}
}

// Enabled reports whether tokens are verified at all
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// ValidateToken validates a token and returns its claims.
func (v *TokenVerifier) ValidateToken(tokenString string) (*TokenClaims, error) {
	if !v.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid token: missing subject")
	}
	return claims, nil
}

// Admin validates a token and requires the configured admin role
func (v *TokenVerifier) Admin(tokenString string) (*TokenClaims, error) {
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != v.adminRole {
		return nil, fmt.Errorf("%w: subject %s", ErrNotAdmin, claims.Subject)
	}
	return claims, nil
}

// Recipient resolves an Authorization header into a challenge recipient.
func (v *TokenVerifier) Recipient(authHeader string) (model.Recipient, error) {
	tokenString := BearerToken(authHeader)
	if tokenString == "" {
		return model.Recipient{}, ErrNoToken
	}
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return model.Recipient{}, err
	}
	sub := claims.Subject
	return model.Recipient{UserID: &sub, Email: claims.Email}, nil
}

// Sign issues an HS256 token for userID. Used by tooling and tests.
func (v *TokenVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	return v.sign(userID, email, "", ttl)
}

// SignAdmin issues a token carrying the admin role
func (v *TokenVerifier) SignAdmin(userID, email string, ttl time.Duration) (string, error) {
	return v.sign(userID, email, v.adminRole, ttl)
}

func (v *TokenVerifier) sign(userID, email, role string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", ErrNotConfigured
	}
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
