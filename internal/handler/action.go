package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hollyoak/remindhub/internal/auth"
	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/reconcile"
)

// ActionHandler applies notification actions reported by devices.
type ActionHandler struct {
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
}

func NewActionHandler(reconciler *reconcile.Reconciler, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{reconciler: reconciler, logger: logger}
}

type actionRequest struct {
	Type       string `json:"type"`
	EntityType string `json:"entityType"`
	EntityID   int64  `json:"entityId"`
	Context    struct {
		SnoozeMinutes       int    `json:"snoozeMinutes"`
		NotificationEventID string `json:"notificationEventId"`
	} `json:"context"`
}

type actionResponse struct {
	Success    bool       `json:"success"`
	NextFireAt *time.Time `json:"nextFireAt,omitempty"`
}

// Apply handles POST /api/notifications/action
func (h *ActionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Type == "" || req.EntityType == "" || req.EntityID == 0 {
		writeError(w, http.StatusBadRequest, "type, entityType, and entityId are required")
		return
	}
	if req.EntityType != model.KindMedication && req.EntityType != model.KindAppointment {
		writeError(w, http.StatusBadRequest, "unknown entity type")
		return
	}

	result, err := h.reconciler.Apply(ownerID, reconcile.Action{
		Action:        req.Type,
		Kind:          req.EntityType,
		EntityID:      req.EntityID,
		EventID:       req.Context.NotificationEventID,
		SnoozeMinutes: req.Context.SnoozeMinutes,
	})
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrNotFound):
			writeError(w, http.StatusNotFound, "reminder not found")
		case errors.Is(err, reconcile.ErrForbidden):
			writeError(w, http.StatusForbidden, "not your reminder")
		case errors.Is(err, reconcile.ErrUnsupportedAction):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("apply action", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to apply action")
		}
		return
	}

	writeJSON(w, http.StatusOK, actionResponse{Success: true, NextFireAt: result.NextFireAt})
}
