// Package conversation caches the conversation references needed to post
// into a Teams conversation outside of an inbound turn.
package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Account identifies a user or bot within a reference.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// Conversation identifies the conversation a reference points at.
type Conversation struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// Reference is everything needed to address a conversation later.
type Reference struct {
	ActivityID   string       `json:"activityId,omitempty"`
	User         Account      `json:"user"`
	Bot          Account      `json:"bot"`
	Conversation Conversation `json:"conversation"`
	ChannelID    string       `json:"channelId,omitempty"`
	ServiceURL   string       `json:"serviceUrl"`
	Locale       string       `json:"locale,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Store persists conversation references keyed by conversation id.
type Store interface {
	// Save inserts or overwrites the reference for id.
	Save(ctx context.Context, id string, ref Reference) error
	// Get returns the reference for id and whether one was found.
	Get(ctx context.Context, id string) (Reference, bool, error)
	// List returns all references ordered by conversation id.
	List(ctx context.Context) ([]Reference, error)
	// ClearAll removes every reference.
	ClearAll(ctx context.Context) error
	// Len returns the number of stored references.
	Len(ctx context.Context) (int, error)
}

// MemoryStore keeps references in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	refs map[string]Reference
}

// NewMemoryStore returns a new in-memory reference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{refs: make(map[string]Reference)}
}

func (s *MemoryStore) Save(ctx context.Context, id string, ref Reference) error {
	if id == "" {
		return ErrMissingID
	}
	if ref.UpdatedAt.IsZero() {
		ref.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	s.refs[id] = ref
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Reference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.refs[id]
	return ref, ok, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Reference, error) {
	s.mu.RLock()
	out := make([]Reference, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, ref)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Conversation.ID < out[j].Conversation.ID
	})
	return out, nil
}

func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.refs = make(map[string]Reference)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs), nil
}
