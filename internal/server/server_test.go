package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hollyoak/remindhub/internal/auth"
	"github.com/hollyoak/remindhub/internal/config"
	"github.com/hollyoak/remindhub/internal/database"
	"github.com/hollyoak/remindhub/internal/push"
)

func setupServer(t *testing.T) (http.Handler, string) {
	return setupServerWithCronSecret(t, "cron-secret")
}

func setupServerWithCronSecret(t *testing.T, cronSecret string) (http.Handler, string) {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate vapid keys: %v", err)
	}

	cfg := config.Config{
		JWTSecret:       "test-secret",
		CronSecret:      cronSecret,
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDSubject:    "mailto:test@example.com",
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, cfg, logger)

	token, err := auth.NewJWT(cfg.JWTSecret).Sign(1, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return srv.Router(), token
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupServer(t)
	rec := doJSON(t, router, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, _ := setupServer(t)

	rec := doJSON(t, router, "GET", "/api/notifications/preferences", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, "GET", "/api/notifications/preferences", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestSubscribeFlow(t *testing.T) {
	router, token := setupServer(t)

	body := map[string]any{
		"endpoint": "https://push.example/device1",
		"keys":     map[string]string{"p256dh": "pk", "auth": "ak"},
	}
	rec := doJSON(t, router, "POST", "/api/notifications/subscribe", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("subscribe status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success        bool  `json:"success"`
		SubscriptionID int64 `json:"subscriptionId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.SubscriptionID == 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	// Subscribing provisions default preferences.
	rec = doJSON(t, router, "GET", "/api/notifications/preferences", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get preferences status = %d", rec.Code)
	}
	var prefs struct {
		Timezone          string `json:"timezone"`
		NotifyMedications bool   `json:"notifyMedications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode preferences: %v", err)
	}
	if prefs.Timezone != "UTC" || !prefs.NotifyMedications {
		t.Errorf("unexpected defaults: %+v", prefs)
	}

	rec = doJSON(t, router, "POST", "/api/notifications/unsubscribe", token, map[string]string{
		"endpoint": "https://push.example/device1",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("unsubscribe status = %d", rec.Code)
	}
}

func TestSubscribeValidation(t *testing.T) {
	router, token := setupServer(t)

	rec := doJSON(t, router, "POST", "/api/notifications/subscribe", token, map[string]any{
		"endpoint": "https://push.example/device1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing keys: status = %d, want 400", rec.Code)
	}
}

func TestUpdatePreferences(t *testing.T) {
	router, token := setupServer(t)

	body := map[string]any{
		"timezone":           "America/New_York",
		"quietStart":         "22:00",
		"quietEnd":           "07:00",
		"notifyMedications":  true,
		"notifyAppointments": false,
		"snoozePresets":      []int{15, 45},
	}
	rec := doJSON(t, router, "PUT", "/api/notifications/preferences", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", "/api/notifications/preferences", token, nil)
	var prefs struct {
		Timezone   string  `json:"timezone"`
		QuietStart *string `json:"quietStart"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prefs.Timezone != "America/New_York" || prefs.QuietStart == nil || *prefs.QuietStart != "22:00" {
		t.Errorf("preferences not persisted: %+v", prefs)
	}

	// Bad inputs are rejected.
	rec = doJSON(t, router, "PUT", "/api/notifications/preferences", token, map[string]any{"timezone": "Mars/Olympus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad timezone: status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, router, "PUT", "/api/notifications/preferences", token, map[string]any{"quietStart": "late"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad clock: status = %d, want 400", rec.Code)
	}
}

func TestActionEndpointErrorMapping(t *testing.T) {
	router, token := setupServer(t)

	rec := doJSON(t, router, "POST", "/api/notifications/action", token, map[string]any{
		"type":       "taken",
		"entityType": "medication",
		"entityId":   999,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing reminder: status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/notifications/action", token, map[string]any{
		"type":       "taken",
		"entityType": "grocery",
		"entityId":   1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown entity type: status = %d, want 400", rec.Code)
	}
}

func TestCronEndpointGuard(t *testing.T) {
	router, _ := setupServer(t)

	req := httptest.NewRequest("POST", "/api/cron/process-reminders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no secret: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("POST", "/api/cron/process-reminders", nil)
	req.Header.Set("X-Api-Key", "cron-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with secret: status = %d, want 200", rec.Code)
	}

	var resp struct {
		Success   bool   `json:"success"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Timestamp == "" {
		t.Errorf("unexpected cron response: %+v", resp)
	}
}

func TestCronEndpointOpenWithoutSecret(t *testing.T) {
	router, _ := setupServerWithCronSecret(t, "")

	// No secret configured means no guard; external-cron deployments that
	// protect the endpoint at the network layer still get their passes.
	req := httptest.NewRequest("POST", "/api/cron/process-reminders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("unguarded cron: status = %d, want 200", rec.Code)
	}
}

func TestVAPIDKeyEndpoint(t *testing.T) {
	router, token := setupServer(t)

	rec := doJSON(t, router, "GET", "/api/notifications/vapid-key", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PublicKey == "" {
		t.Error("expected public key")
	}
}

func TestEventsEndpoint(t *testing.T) {
	router, token := setupServer(t)

	rec := doJSON(t, router, "GET", "/api/notifications/events", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Events []any `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Events == nil {
		t.Error("events should be an empty array, not null")
	}

	rec = doJSON(t, router, "GET", "/api/notifications/events?limit=0", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0: status = %d, want 400", rec.Code)
	}
}
