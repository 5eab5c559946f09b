package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/breezeauth/riskgate/internal/auth"
	"github.com/breezeauth/riskgate/internal/model"
)

// Identify attaches the caller's identity when a valid bearer token is
// presented. Requests without one, or with an invalid one, stay anonymous.
func (m *Middleware) Identify(verifier *auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			to, err := verifier.Recipient(r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, auth.ErrNoToken) {
					m.log.Debug().Err(err).Msg("ignoring invalid bearer token")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), RecipientKey, to)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const (
	unauthorizedBody = `{"success":false,"error":"Unauthorized","message":"Authentication required"}`
	invalidTokenBody = `{"success":false,"error":"Unauthorized","message":"The access token is invalid or expired"}`
	forbiddenBody    = `{"success":false,"error":"Forbidden","message":"Admin access required"}`
)

// RequireAdmin rejects requests that lack a valid token carrying the admin
// role. Browsers cannot set headers on a WebSocket upgrade, so upgrades may
// pass the token as the access_token query parameter instead.
func (m *Middleware) RequireAdmin(verifier *auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := auth.BearerToken(r.Header.Get("Authorization"))
			if tokenString == "" && websocket.IsWebSocketUpgrade(r) {
				tokenString = r.URL.Query().Get("access_token")
			}
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, unauthorizedBody)
				return
			}

			claims, err := verifier.Admin(tokenString)
			if err != nil {
				log := m.log.WithRequestID(GetRequestID(r.Context()))
				if errors.Is(err, auth.ErrNotAdmin) {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("admin route denied")
					writeAuthError(w, http.StatusForbidden, forbiddenBody)
					return
				}
				log.Debug().Err(err).Msg("admin token validation failed")
				writeAuthError(w, http.StatusUnauthorized, invalidTokenBody)
				return
			}

			sub := claims.Subject
			ctx := context.WithValue(r.Context(), RecipientKey, model.Recipient{UserID: &sub, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// GetRecipient returns the identity attached by Identify, or an anonymous recipient
func GetRecipient(ctx context.Context) model.Recipient {
	if to, ok := ctx.Value(RecipientKey).(model.Recipient); ok {
		return to
	}
	return model.Recipient{}
}
