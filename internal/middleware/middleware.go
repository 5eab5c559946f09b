package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/breezeauth/riskgate/internal/config"
	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb     *database.Redis
	log     *logger.Logger
	cfg     *config.Config
	trusted []netip.Prefix
}

// New creates a new Middleware instance. rdb may be nil when rate limiting is disabled.
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config) *Middleware {
	trusted, err := cfg.Security.TrustedProxyPrefixes()
	if err != nil {
		log.Warn().Err(err).Msg("ignoring trusted proxies; rate limits use socket addresses")
		trusted = nil
	}
	return &Middleware{
		rdb:     rdb,
		log:     log,
		cfg:     cfg,
		trusted: trusted,
	}
}

// Chain applies middlewares so the first one listed runs outermost
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ClientIP returns the caller's address: the first X-Forwarded-For hop, then
// X-Real-IP, then "unknown".
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return "unknown"
}

// socketIP returns the peer address of the connection
func socketIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Middleware) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return slices.ContainsFunc(m.trusted, func(p netip.Prefix) bool { return p.Contains(addr) })
}

// trustedClientIP returns the address a rate limit can rely on. Forwarding
// headers count only when the peer is a trusted proxy; X-Forwarded-For is then
// read right to left, skipping trusted hops.
func (m *Middleware) trustedClientIP(r *http.Request) string {
	peer := socketIP(r)
	if !m.isTrusted(peer) {
		return peer
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !m.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return peer
}

// UserAgent returns the User-Agent header or "unknown"
func UserAgent(r *http.Request) string {
	if ua := r.Header.Get("User-Agent"); ua != "" {
		return ua
	}
	return "unknown"
}
