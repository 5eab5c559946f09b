package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// checkTimeout bounds each dependency probe
const checkTimeout = 2 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
	Gate     *gateInfo         `json:"gate,omitempty"`
	// LiveClients is the number of connected dashboards; absent when the feed is off.
	LiveClients *int `json:"liveClients,omitempty"`
}

type gateInfo struct {
	Threshold   int `json:"threshold"`
	MaxAttempts int `json:"maxAttempts"`
}

// probe runs every dependency check in parallel and returns the failures by name
func (h *Handler) probe(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed = make(map[string]error)
	)
	for name, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.HealthCheck(ctx); err != nil {
				mu.Lock()
				failed[name] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return failed
}

// Health reports each dependency and the gate settings. Any failed dependency
// makes the service degraded and the response 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	failed := h.probe(r.Context())

	resp := HealthResponse{
		Status:   "healthy",
		Version:  Version,
		Services: make(map[string]string, len(h.checks)),
	}
	for name := range h.checks {
		if err, ok := failed[name]; ok {
			h.log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			resp.Services[name] = "unhealthy"
			resp.Status = "degraded"
			continue
		}
		resp.Services[name] = "healthy"
	}
	if h.otpSvc != nil {
		cfg := h.otpSvc.Gate().Config()
		resp.Gate = &gateInfo{Threshold: cfg.Threshold, MaxAttempts: cfg.MaxAttempts}
	}
	if h.hub != nil {
		n := h.hub.Clients()
		resp.LiveClients = &n
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Ready answers 200 "OK" once every dependency responds
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	for name := range h.probe(r.Context()) {
		http.Error(w, name+" not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
