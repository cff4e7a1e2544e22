package store

import (
	"testing"
)

func TestPushUpsertIsIdempotentByEndpoint(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	first, err := ps.Upsert(1, "https://push.example/dev1", "key-a", "auth-a", "Firefox")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Re-subscribing the same endpoint rotates keys, not rows.
	second, err := ps.Upsert(1, "https://push.example/dev1", "key-b", "auth-b", "Firefox")
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same row, got ids %d and %d", first.ID, second.ID)
	}
	if second.P256dhKey != "key-b" || second.AuthKey != "auth-b" {
		t.Errorf("keys not rotated: %+v", second)
	}

	subs, err := ps.ListByOwner(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription, got %d", len(subs))
	}
}

func TestPushDeleteOwnedEndpoint(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	if _, err := ps.Upsert(1, "https://push.example/dev1", "k", "a", "ua"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Another owner cannot remove it.
	if err := ps.DeleteOwnedEndpoint(2, "https://push.example/dev1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, err := ps.ListByOwner(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatal("foreign owner must not remove the subscription")
	}

	if err := ps.DeleteOwnedEndpoint(1, "https://push.example/dev1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, err = ps.ListByOwner(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions, got %d", len(subs))
	}
}

func TestPushDeleteByEndpoint(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	if _, err := ps.Upsert(1, "https://push.example/gone", "k", "a", "ua"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ps.DeleteByEndpoint("https://push.example/gone"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	sub, err := ps.GetByEndpoint("https://push.example/gone")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub != nil {
		t.Error("expected subscription to be pruned")
	}
}

func TestPushTouchLastSeen(t *testing.T) {
	ps := NewPushStore(setupTestDB(t))

	sub, err := ps.Upsert(1, "https://push.example/dev1", "k", "a", "ua")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ps.TouchLastSeen(sub.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	after, err := ps.GetByEndpoint(sub.Endpoint)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.LastSeenAt.IsZero() {
		t.Error("last_seen_at should be set after touch")
	}
}
