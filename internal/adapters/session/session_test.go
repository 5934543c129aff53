package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/pkg/redisx"
)

func turn(role entities.Role, text string) entities.ConversationTurn {
	return entities.ConversationTurn{Role: role, Text: text}
}

func exerciseStore(t *testing.T, store ports.ConversationStore) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	turns, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, turns)

	require.NoError(t, store.Append(ctx, id, turn(entities.RoleUser, "q1"), turn(entities.RoleAssistant, "a1")))
	require.NoError(t, store.Append(ctx, id, turn(entities.RoleUser, "q2"), turn(entities.RoleAssistant, "a2")))

	turns, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []entities.ConversationTurn{
		turn(entities.RoleAssistant, "a1"),
		turn(entities.RoleUser, "q2"),
		turn(entities.RoleAssistant, "a2"),
	}, turns)

	require.NoError(t, store.Clear(ctx, id))
	turns, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(3))
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Append(ctx, "c", turn(entities.RoleUser, "hi")))

	turns, err := s.Load(ctx, "c")
	require.NoError(t, err)
	turns[0].Text = "changed"

	again, err := s.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "hi", again[0].Text)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("LOCALRAG_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LOCALRAG_TEST_REDIS_URL not set")
	}
	cfg := redisx.Config{URL: url}
	client, err := cfg.New(context.Background())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, time.Minute, 3))
}

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "conversation:abc:turns", conversationKey("abc"))
}
