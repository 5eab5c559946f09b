package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/breezeauth/riskgate/internal/metrics"
)

const internalErrorBody = `{"success":false,"error":"Internal server error","message":"An unexpected error occurred"}`

// Recover turns a handler panic into a 500 in the service's error shape.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}

			metrics.PanicsTotal.Inc()
			m.log.WithRequestID(GetRequestID(r.Context())).Error().
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("panic recovered")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(internalErrorBody))
		}()

		next.ServeHTTP(w, r)
	})
}
