package domain

import (
	"sync"
	"time"
)

// Conversation is one in-flight dialogue with The Bouncer. Messages[0] is
// always the current system instruction and is replaced every turn; every
// other entry is append-only. Once Granted flips to true the conversation is
// frozen: role, score and rank never change again.
type Conversation struct {
	ID            string
	Username      string
	Messages      []ChatMessage
	ExchangeCount int
	Granted       bool
	GrantedRole   string
	GrantedScore  *Score
	GrantedRank   *int
	CreatedAt     time.Time

	mu sync.Mutex
}

// Lock serializes turns on this conversation. Chat holds the lock for the
// full turn, including the provider call, so concurrent calls on the same id
// queue instead of racing on Messages/ExchangeCount.
func (c *Conversation) Lock() { c.mu.Lock() }

// Unlock releases the per-conversation turn lock.
func (c *Conversation) Unlock() { c.mu.Unlock() }

// Attempt is one prior run's outcome, fed back into the system prompt so the
// model does not hand out the same role twice.
type Attempt struct {
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}
