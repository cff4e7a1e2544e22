package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hollyoak/remindhub/internal/dispatch"
)

// CronHandler exposes the reminder pipeline to an external scheduler. Used
// by deployments that disable the internal ticker and drive passes from a
// platform cron instead.
type CronHandler struct {
	dispatcher *dispatch.Dispatcher
	secret     string
	logger     *slog.Logger
}

func NewCronHandler(dispatcher *dispatch.Dispatcher, secret string, logger *slog.Logger) *CronHandler {
	return &CronHandler{dispatcher: dispatcher, secret: secret, logger: logger}
}

// ProcessReminders handles POST /api/cron/process-reminders
func (h *CronHandler) ProcessReminders(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.dispatcher.Run(r.Context()); err != nil {
		// Per-owner failures are already in the ledger; the pass itself ran.
		h.logger.Error("cron pass finished with errors", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// authorized accepts the shared secret as either an X-Api-Key header or a
// bearer token, matching what common cron services can send. With no secret
// configured the endpoint is open, for deployments that restrict it at the
// network layer instead.
func (h *CronHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	if r.Header.Get("X-Api-Key") == h.secret {
		return true
	}
	authz := r.Header.Get("Authorization")
	return strings.HasPrefix(authz, "Bearer ") && strings.TrimPrefix(authz, "Bearer ") == h.secret
}
