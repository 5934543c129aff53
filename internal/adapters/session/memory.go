// Package session stores conversation turns per conversation id. It
// implements ports.ConversationStore in memory and in Redis.
package session

import (
	"context"
	"sync"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

// DefaultMaxTurns is the number of most recent turns a store keeps.
const DefaultMaxTurns = 10

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	maxTurns int
	convs    map[string][]entities.ConversationTurn
}

// NewMemoryStore creates a store keeping the last maxTurns turns.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{maxTurns: maxTurns, convs: make(map[string][]entities.ConversationTurn)}
}

// Load returns a copy of the stored turns, oldest first.
func (s *MemoryStore) Load(_ context.Context, conversationID string) ([]entities.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.convs[conversationID]
	out := make([]entities.ConversationTurn, len(turns))
	copy(out, turns)
	return out, nil
}

// Append adds turns and drops the oldest beyond the limit.
func (s *MemoryStore) Append(_ context.Context, conversationID string, turns ...entities.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(s.convs[conversationID], turns...)
	if len(all) > s.maxTurns {
		all = append([]entities.ConversationTurn(nil), all[len(all)-s.maxTurns:]...)
	}
	s.convs[conversationID] = all
	return nil
}

// Clear forgets a conversation.
func (s *MemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.convs, conversationID)
	return nil
}
