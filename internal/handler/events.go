package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hollyoak/remindhub/internal/auth"
	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/store"
)

const defaultEventLimit = 50

// EventHandler serves the caller's delivery ledger.
type EventHandler struct {
	events *store.EventStore
	logger *slog.Logger
}

func NewEventHandler(events *store.EventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// List handles GET /api/notifications/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events, err := h.events.ListByOwner(ownerID, limit)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	if events == nil {
		events = []model.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
