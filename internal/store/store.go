// Package store holds the process-wide registry of in-flight conversations.
// It is a pure data holder: no prompt, provider or scoring logic lives here.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"bouncer-agent/internal/domain"
)

// ConversationStore is an in-memory keyed registry of conversations.
// Conversations live for the process lifetime; durability is delegated to
// the repository's transcript archive.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
}

// New creates an empty ConversationStore.
func New() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*domain.Conversation),
	}
}

// Create registers a new conversation with a fresh id. The caller supplies
// the fully seeded message slice (system instruction plus opening turns).
func (s *ConversationStore) Create(username string, messages []domain.ChatMessage) *domain.Conversation {
	conv := &domain.Conversation{
		ID:        newUUID(),
		Username:  username,
		Messages:  messages,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()
	return conv
}

// Get returns the conversation for id, or false if it is unknown.
func (s *ConversationStore) Get(id string) (*domain.Conversation, bool) {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	return conv, ok
}

// Len reports the number of registered conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

var newUUID = func() string {
	return uuid.NewString()
}
