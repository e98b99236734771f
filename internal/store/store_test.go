package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bouncer-agent/internal/domain"
)

func seedMessages() []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "instructions"},
		{Role: domain.RoleUser, Content: "opening"},
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	conv := s.Create("alice", seedMessages())

	require.NotEmpty(t, conv.ID)
	require.Equal(t, "alice", conv.Username)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, 0, conv.ExchangeCount)
	require.False(t, conv.Granted)
	require.False(t, conv.CreatedAt.IsZero())

	got, ok := s.Get(conv.ID)
	require.True(t, ok)
	require.Same(t, conv, got)
}

func TestGet_Unknown(t *testing.T) {
	s := New()
	_, ok := s.Get("nope")
	require.False(t, ok)
}

func TestCreate_UniqueIDs(t *testing.T) {
	s := New()
	a := s.Create("alice", seedMessages())
	b := s.Create("alice", seedMessages())
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, s.Len())
}

func TestConcurrentCreatesAndReads(t *testing.T) {
	s := New()
	const n = 50

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := s.Create(fmt.Sprintf("user-%d", i), seedMessages())
			ids[i] = conv.ID
			_, _ = s.Get(conv.ID)
		}(i)
	}
	wg.Wait()

	require.Equal(t, n, s.Len())
	for _, id := range ids {
		_, ok := s.Get(id)
		require.True(t, ok)
	}
}

// Turn serialization: holding the conversation lock while mutating keeps
// concurrent same-id writers from interleaving.
func TestConversationLock_SerializesMutation(t *testing.T) {
	s := New()
	conv := s.Create("alice", seedMessages())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv.Lock()
			defer conv.Unlock()
			conv.Messages = append(conv.Messages, domain.ChatMessage{Role: domain.RoleUser, Content: "turn"})
			conv.ExchangeCount++
		}()
	}
	wg.Wait()

	require.Equal(t, n, conv.ExchangeCount)
	require.Len(t, conv.Messages, 2+n)
}
