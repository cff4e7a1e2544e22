package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Intake is the entry point for the device's notification handler. Online,
// a submitted item goes straight to the server; when the server is
// unreachable the item is persisted for replay and the submission still
// succeeds, because the queue guarantees eventual delivery.
type Intake struct {
	engine *Engine
	sender Sender
	logger *slog.Logger
}

func NewIntake(engine *Engine, sender Sender, logger *slog.Logger) *Intake {
	return &Intake{
		engine: engine,
		sender: sender,
		logger: logger.With("component", "intake"),
	}
}

// SubmitAction tries a direct send and falls back to the queue when the
// server is unreachable. It reports whether the action was queued. Permanent
// rejections are returned to the caller, never queued.
func (i *Intake) SubmitAction(ctx context.Context, action Action) (bool, error) {
	err := i.sender.SendAction(ctx, action)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return false, err
	}

	id, qerr := i.engine.EnqueueAction(action)
	if qerr != nil {
		return false, fmt.Errorf("queue action: %w", qerr)
	}
	i.logger.Info("action queued for replay", "id", id, "type", action.Type, "entity_id", action.EntityID)
	return true, nil
}

// SubmitMutation is SubmitAction for deferred data changes.
func (i *Intake) SubmitMutation(ctx context.Context, mutation Mutation) (bool, error) {
	err := i.sender.SendMutation(ctx, mutation)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return false, err
	}

	id, qerr := i.engine.EnqueueMutation(mutation)
	if qerr != nil {
		return false, fmt.Errorf("queue mutation: %w", qerr)
	}
	i.logger.Info("mutation queued for replay", "id", id, "method", mutation.Method, "path", mutation.Path)
	return true, nil
}

// Handler returns the agent's local HTTP API. The host notification handler
// posts here instead of talking to the server directly, so offline fallback
// lives in one place.
func (i *Intake) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /action", i.handleAction)
	mux.HandleFunc("POST /mutation", i.handleMutation)
	return mux
}

func (i *Intake) handleAction(w http.ResponseWriter, r *http.Request) {
	var action Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeIntakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON"})
		return
	}
	if action.Type == "" || action.EntityType == "" || action.EntityID == 0 {
		writeIntakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "type, entityType, and entityId are required"})
		return
	}

	queued, err := i.SubmitAction(r.Context(), action)
	if err != nil {
		i.logger.Error("submit action", "error", err)
		writeIntakeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeIntakeJSON(w, http.StatusOK, map[string]any{"success": true, "queued": queued})
}

func (i *Intake) handleMutation(w http.ResponseWriter, r *http.Request) {
	var mutation Mutation
	if err := json.NewDecoder(r.Body).Decode(&mutation); err != nil {
		writeIntakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON"})
		return
	}
	if mutation.Method == "" || mutation.Path == "" {
		writeIntakeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "method and path are required"})
		return
	}

	queued, err := i.SubmitMutation(r.Context(), mutation)
	if err != nil {
		i.logger.Error("submit mutation", "error", err)
		writeIntakeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeIntakeJSON(w, http.StatusOK, map[string]any{"success": true, "queued": queued})
}

func writeIntakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
