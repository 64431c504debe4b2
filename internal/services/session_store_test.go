package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarisops/assistant-go/internal/pipeline"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, 3600, 2), mr
}

func TestLoadHistoryEmptySession(t *testing.T) {
	store, _ := newTestSessionStore(t)

	turns, err := store.LoadHistory(context.Background(), "missing-session")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAppendAndLoadHistory(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	err := store.AppendTurns(ctx, "s1",
		pipeline.ConversationTurn{Role: pipeline.RoleUser, Content: "troubleshoot smt60 oil pressure"},
		pipeline.ConversationTurn{Role: pipeline.RoleAssistant, Content: "Check the filter."},
	)
	require.NoError(t, err)

	turns, err := store.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, pipeline.RoleUser, turns[0].Role)
	assert.Equal(t, "Check the filter.", turns[1].Content)
}

func TestAppendTrimsToWindow(t *testing.T) {
	// maxTurns=2 → 最多保留4条消息
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := store.AppendTurns(ctx, "s1",
			pipeline.ConversationTurn{Role: pipeline.RoleUser, Content: "question"},
			pipeline.ConversationTurn{Role: pipeline.RoleAssistant, Content: "answer"},
		)
		require.NoError(t, err)
	}

	turns, err := store.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestHistoryExpires(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurns(ctx, "s1",
		pipeline.ConversationTurn{Role: pipeline.RoleUser, Content: "question"}))

	mr.FastForward(2 * time.Hour)

	turns, err := store.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestClearHistory(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTurns(ctx, "s1",
		pipeline.ConversationTurn{Role: pipeline.RoleUser, Content: "question"}))
	require.NoError(t, store.ClearHistory(ctx, "s1"))

	turns, err := store.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
