package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnavailable marks transient transport failures: the server could not be
// reached or answered with a server-side error. Items failing this way stay
// queued for the next drain pass.
var ErrUnavailable = errors.New("server unavailable")

// ActionContext carries the optional parameters of a notification action.
type ActionContext struct {
	SnoozeMinutes       int    `json:"snoozeMinutes,omitempty"`
	NotificationEventID string `json:"notificationEventId,omitempty"`
}

// Action mirrors the notification action request body the server accepts.
type Action struct {
	Type       string        `json:"type"`
	EntityType string        `json:"entityType"`
	EntityID   int64         `json:"entityId"`
	Context    ActionContext `json:"context,omitempty"`
}

// Mutation is a deferred data change replayed verbatim against the server
// API, for example a preference update made while offline.
type Mutation struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// Sender replays queued items against the server. Tests inject fakes.
type Sender interface {
	SendAction(ctx context.Context, action Action) error
	SendMutation(ctx context.Context, mutation Mutation) error
}

// HTTPSender talks to the reminder server over its JSON API using the
// agent's bearer token.
type HTTPSender struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPSender(baseURL, token string) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSender) SendAction(ctx context.Context, action Action) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	return s.do(ctx, http.MethodPost, "/api/notifications/action", body)
}

func (s *HTTPSender) SendMutation(ctx context.Context, mutation Mutation) error {
	return s.do(ctx, mutation.Method, mutation.Path, mutation.Body)
}

func (s *HTTPSender) do(ctx context.Context, method, path string, body []byte) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	default:
		// 4xx is permanent: replaying the same request cannot succeed
		return fmt.Errorf("%s %s rejected with status %d", method, path, resp.StatusCode)
	}
}
