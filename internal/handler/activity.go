package handler

import (
	"errors"
	"net/http"

	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/service"
)

type shopActivityRequest struct {
	SessionID string `json:"sessionId"`
	model.ShopActivity
}

// RecordAnalytics stores one behavior snapshot for a session
func (h *Handler) RecordAnalytics(w http.ResponseWriter, r *http.Request) {
	var a model.UserAnalytics
	if err := readJSON(w, r, &a); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	persisted, err := h.activitySvc.RecordAnalytics(r.Context(), &a, requestMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrMissingSession) {
			writeError(w, http.StatusBadRequest, "Missing required field: sessionId", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to record analytics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": a.SessionID,
		"persisted": persisted,
	})
}

// RecordShopActivity appends a shop_activity event for a session
func (h *Handler) RecordShopActivity(w http.ResponseWriter, r *http.Request) {
	var req shopActivityRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	persisted, err := h.activitySvc.RecordShopActivity(r.Context(), req.SessionID, &req.ShopActivity, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingSession):
			writeError(w, http.StatusBadRequest, "Missing required field: sessionId", "")
		case errors.Is(err, service.ErrEmptyActivity):
			writeError(w, http.StatusBadRequest, "No shop activity to record", "")
		default:
			writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to record shop activity")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": req.SessionID,
		"persisted": persisted,
	})
}
