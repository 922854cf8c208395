package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func sampleReference(id, user string) Reference {
	return Reference{
		ActivityID:   "act-" + id,
		User:         Account{ID: user, Name: "User " + user},
		Bot:          Account{ID: "28:bot", Name: "Relay"},
		Conversation: Conversation{ID: id, ConversationType: "personal", TenantID: "tenant-1"},
		ChannelID:    "msteams",
		ServiceURL:   "https://smba.trafficmanager.net/amer/",
	}
}

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, ok, err := store.Get(ctx, "nope")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if ok {
			t.Error("expected no reference")
		}
	})

	t.Run("save then get", func(t *testing.T) {
		store := newStore(t)
		want := sampleReference("conv-1", "u1")
		if err := store.Save(ctx, "conv-1", want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, ok, err := store.Get(ctx, "conv-1")
		if err != nil || !ok {
			t.Fatalf("Get() = %v, %v; want found", ok, err)
		}
		if got.User.ID != "u1" || got.ServiceURL != want.ServiceURL || got.Conversation.TenantID != "tenant-1" {
			t.Errorf("Get() = %+v", got)
		}
		if got.UpdatedAt.IsZero() {
			t.Error("expected UpdatedAt to be stamped")
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := newStore(t)
		_ = store.Save(ctx, "conv-1", sampleReference("conv-1", "u1"))
		_ = store.Save(ctx, "conv-1", sampleReference("conv-1", "u2"))

		got, _, _ := store.Get(ctx, "conv-1")
		if got.User.ID != "u2" {
			t.Errorf("User.ID = %q, want u2", got.User.ID)
		}
		if n, _ := store.Len(ctx); n != 1 {
			t.Errorf("Len() = %d, want 1", n)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		store := newStore(t)
		if err := store.Save(ctx, "", sampleReference("", "u1")); !errors.Is(err, ErrMissingID) {
			t.Errorf("Save() error = %v, want ErrMissingID", err)
		}
	})

	t.Run("list ordered", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"c", "a", "b"} {
			_ = store.Save(ctx, id, sampleReference(id, "u"))
		}
		refs, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(refs) != 3 || refs[0].Conversation.ID != "a" || refs[2].Conversation.ID != "c" {
			t.Errorf("List() = %+v", refs)
		}
	})

	t.Run("clear all", func(t *testing.T) {
		store := newStore(t)
		_ = store.Save(ctx, "a", sampleReference("a", "u"))
		_ = store.Save(ctx, "b", sampleReference("b", "u"))
		if err := store.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll() error = %v", err)
		}
		if n, _ := store.Len(ctx); n != 0 {
			t.Errorf("Len() = %d, want 0", n)
		}
		if _, ok, _ := store.Get(ctx, "a"); ok {
			t.Error("expected reference to be gone")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", i%10)
			_ = store.Save(ctx, id, sampleReference(id, fmt.Sprintf("u%d", i)))
			_, _, _ = store.Get(ctx, id)
		}(i)
	}
	wg.Wait()

	if n, _ := store.Len(ctx); n != 10 {
		t.Errorf("Len() = %d, want 10", n)
	}
}
