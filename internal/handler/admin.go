package handler

import (
	"net/http"
)

// --- Admin read handlers ---

// GetSessionActivity returns everything recorded for one session
func (h *Handler) GetSessionActivity(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: sessionId", "")
		return
	}

	activity, err := h.activitySvc.SessionActivity(r.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session activity")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to load session activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    activity,
	})
}

// ListOTPAttempts lists recent OTP attempts and risk assessments, one per kind per minute
func (h *Handler) ListOTPAttempts(w http.ResponseWriter, r *http.Request) {
	events, err := h.activitySvc.ListSecurityEvents(r.Context(), queryLimit(r))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list otp attempts")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to list OTP attempts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    events,
		"count":   len(events),
	})
}

// ListUserAnalytics lists recent analytics rows, one per minute
func (h *Handler) ListUserAnalytics(w http.ResponseWriter, r *http.Request) {
	rows, err := h.activitySvc.ListAnalytics(r.Context(), queryLimit(r))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list user analytics")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to list user analytics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    rows,
		"count":   len(rows),
	})
}

// ListShopActivity lists shop activity from events and analytics metadata
func (h *Handler) ListShopActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.activitySvc.ListShopActivity(r.Context(), queryLimit(r))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list shop activity")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to list shop activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}

// Dashboard returns aggregate counters for the admin overview
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.activitySvc.Dashboard(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load dashboard")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to load dashboard")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	})
}

// LiveFeed upgrades to a websocket that streams admin events
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Live feed disabled", "")
		return
	}
	h.hub.ServeHTTP(w, r)
}
