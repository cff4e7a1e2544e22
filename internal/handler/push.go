// Package handler implements the server's JSON API endpoints.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hollyoak/remindhub/internal/auth"
	"github.com/hollyoak/remindhub/internal/push"
	"github.com/hollyoak/remindhub/internal/store"
)

// PushHandler manages device subscriptions and notification preferences.
type PushHandler struct {
	subs    *store.PushStore
	prefs   *store.PreferenceStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushHandler(subs *store.PushStore, prefs *store.PreferenceStore, service *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, prefs: prefs, service: service, logger: logger}
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	UserAgent string `json:"userAgent"`
}

// Subscribe handles POST /api/notifications/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, keys.p256dh, and keys.auth are required")
		return
	}

	sub, err := h.subs.Upsert(ownerID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth, req.UserAgent)
	if err != nil {
		h.logger.Error("save subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	// First subscription also provisions default preferences.
	if _, err := h.prefs.EnsureDefaults(ownerID); err != nil {
		h.logger.Error("ensure default preferences", "error", err, "owner_id", ownerID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "subscriptionId": sub.ID})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles POST /api/notifications/unsubscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := h.subs.DeleteOwnedEndpoint(ownerID, req.Endpoint); err != nil {
		h.logger.Error("delete subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// VAPIDKey handles GET /api/notifications/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.service.VAPIDPublicKey()})
}

// Test handles POST /api/notifications/test. It sends a short-lived ad-hoc
// push to every device the caller has registered, so users can verify their
// setup end to end.
func (h *PushHandler) Test(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	subs, err := h.subs.ListByOwner(ownerID)
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load subscriptions")
		return
	}
	if len(subs) == 0 {
		writeError(w, http.StatusNotFound, "no devices registered")
		return
	}

	payload := push.Payload{
		Title: "Test Notification",
		Body:  "Push notifications are working.",
		Icon:  "/icon-192x192.png",
		Tag:   "test",
		Data: push.Data{
			EntityType: "test",
			UserID:     ownerID,
			Timestamp:  time.Now().UnixMilli(),
		},
	}

	delivered := 0
	for i := range subs {
		if err := h.service.Send(&subs[i], payload, push.TTLAdhoc); err != nil {
			h.logger.Warn("test push failed", "error", err, "subscription_id", subs[i].ID)
			continue
		}
		delivered++
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "delivered": delivered, "devices": len(subs)})
}
