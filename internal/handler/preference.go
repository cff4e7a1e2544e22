package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hollyoak/remindhub/internal/auth"
	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/store"
)

// PreferenceHandler reads and writes per-user notification preferences.
type PreferenceHandler struct {
	prefs  *store.PreferenceStore
	logger *slog.Logger
}

func NewPreferenceHandler(prefs *store.PreferenceStore, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, logger: logger}
}

type preferenceBody struct {
	Timezone           string  `json:"timezone"`
	QuietStart         *string `json:"quietStart"`
	QuietEnd           *string `json:"quietEnd"`
	NotifyMedications  bool    `json:"notifyMedications"`
	NotifyAppointments bool    `json:"notifyAppointments"`
	SnoozePresets      []int   `json:"snoozePresets"`
}

func preferenceResponse(pref *model.UserPreference) preferenceBody {
	return preferenceBody{
		Timezone:           pref.Timezone,
		QuietStart:         pref.QuietStart,
		QuietEnd:           pref.QuietEnd,
		NotifyMedications:  pref.NotifyMedications,
		NotifyAppointments: pref.NotifyAppointments,
		SnoozePresets:      pref.SnoozePresets,
	}
}

// Get handles GET /api/notifications/preferences. Owners who never saved
// preferences see the defaults.
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	pref, err := h.prefs.Get(ownerID)
	if err != nil {
		h.logger.Error("load preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	if pref == nil {
		defaults := model.DefaultPreferences(ownerID)
		pref = &defaults
	}
	writeJSON(w, http.StatusOK, preferenceResponse(pref))
}

// Update handles PUT /api/notifications/preferences.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var body preferenceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if body.Timezone == "" {
		body.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(body.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "unknown timezone")
		return
	}
	if !validClock(body.QuietStart) || !validClock(body.QuietEnd) {
		writeError(w, http.StatusBadRequest, "quiet hours must be HH:MM")
		return
	}
	if (body.QuietStart == nil) != (body.QuietEnd == nil) {
		writeError(w, http.StatusBadRequest, "quiet hours require both start and end")
		return
	}
	if len(body.SnoozePresets) == 0 {
		body.SnoozePresets = model.DefaultPreferences(ownerID).SnoozePresets
	}

	pref := model.UserPreference{
		OwnerID:            ownerID,
		Timezone:           body.Timezone,
		QuietStart:         body.QuietStart,
		QuietEnd:           body.QuietEnd,
		NotifyMedications:  body.NotifyMedications,
		NotifyAppointments: body.NotifyAppointments,
		SnoozePresets:      body.SnoozePresets,
	}

	saved, err := h.prefs.Upsert(pref)
	if err != nil {
		h.logger.Error("save preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, preferenceResponse(saved))
}

func validClock(v *string) bool {
	if v == nil {
		return true
	}
	_, err := time.Parse("15:04", *v)
	return err == nil
}
