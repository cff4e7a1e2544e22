package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultPollInterval = 30 * time.Second

// Engine drains the offline store against the server. It polls on a fixed
// interval and can be woken early when connectivity returns.
type Engine struct {
	store        *Store
	sender       Sender
	logger       *slog.Logger
	pollInterval time.Duration
	wake         chan struct{}
}

func NewEngine(store *Store, sender Sender, logger *slog.Logger) *Engine {
	return &Engine{
		store:        store,
		sender:       sender,
		logger:       logger.With("component", "replay"),
		pollInterval: defaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// EnqueueAction persists a notification action for later replay.
func (e *Engine) EnqueueAction(action Action) (string, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("encode action: %w", err)
	}
	return e.store.Add(KindAction, payload)
}

// EnqueueMutation persists a deferred data change for later replay.
func (e *Engine) EnqueueMutation(mutation Mutation) (string, error) {
	payload, err := json.Marshal(mutation)
	if err != nil {
		return "", fmt.Errorf("encode mutation: %w", err)
	}
	return e.store.Add(KindMutation, payload)
}

// Wake nudges the engine to drain immediately instead of waiting for the
// next poll tick. Safe to call from any goroutine; redundant wakes coalesce.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Start runs the drain loop until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.logger.Info("replay engine started", "poll_interval", e.pollInterval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("replay engine stopped")
			return
		case <-ticker.C:
		case <-e.wake:
		}
		if err := e.Drain(ctx); err != nil {
			e.logger.Error("drain pass incomplete", "error", err)
		}
	}
}

// Drain replays every pending item in arrival order. Transient failures
// abort the pass so ordering is preserved; permanent failures are recorded
// against the item and the pass moves on.
func (e *Engine) Drain(ctx context.Context) error {
	items, err := e.store.ListPending()
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	e.logger.Info("draining queue", "pending", len(items))

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := e.replay(ctx, item)
		if err == nil {
			if err := e.store.Delete(item.ID); err != nil {
				return fmt.Errorf("delete replayed item: %w", err)
			}
			continue
		}

		if errors.Is(err, ErrUnavailable) {
			// Stop here without touching the retry counter: an outage
			// says nothing about the item, and replaying later entries
			// first would break arrival order.
			e.logger.Info("server unreachable, pausing drain", "id", item.ID)
			return err
		}

		dead, recErr := e.store.RecordFailure(item.ID, err.Error())
		if recErr != nil {
			return fmt.Errorf("record failure: %w", recErr)
		}
		if dead {
			e.logger.Warn("item dead-lettered", "id", item.ID, "kind", item.Kind, "error", err)
			continue
		}
		e.logger.Error("replay failed", "id", item.ID, "kind", item.Kind, "error", err)
	}
	return nil
}

// replay sends one item, retrying transient failures with a short fibonacci
// backoff inside the pass before giving up until the next one.
func (e *Engine) replay(ctx context.Context, item Item) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.send(ctx, item)
		if errors.Is(err, ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (e *Engine) send(ctx context.Context, item Item) error {
	switch item.Kind {
	case KindAction:
		var action Action
		if err := json.Unmarshal(item.Payload, &action); err != nil {
			return fmt.Errorf("decode queued action: %w", err)
		}
		return e.sender.SendAction(ctx, action)
	case KindMutation:
		var mutation Mutation
		if err := json.Unmarshal(item.Payload, &mutation); err != nil {
			return fmt.Errorf("decode queued mutation: %w", err)
		}
		return e.sender.SendMutation(ctx, mutation)
	default:
		return fmt.Errorf("unknown item kind %q", item.Kind)
	}
}
