package chatbot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTranscriptStore(t *testing.T) *RedisTranscriptStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTranscriptStore(client)
}

func TestRedisTranscriptAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTranscriptStore(t)

	msgs := []Message{
		{Role: RoleBot, Content: TextContent("hello"), CreatedAt: time.Now().UTC()},
		{Role: RoleUser, Content: TextContent("Omar"), CreatedAt: time.Now().UTC()},
		{Role: RoleBot, Content: Content{Card: &Card{Title: "Thanks"}}, CreatedAt: time.Now().UTC()},
	}
	for _, m := range msgs {
		require.NoError(t, store.Append(ctx, "sess-1", m))
	}

	got, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "hello", got[0].Content.Text)
	assert.Equal(t, RoleUser, got[1].Role)
	require.NotNil(t, got[2].Content.Card)
	assert.Equal(t, "Thanks", got[2].Content.Card.Title)
}

func TestRedisTranscriptListLimitReturnsTail(t *testing.T) {
	ctx := context.Background()
	store := newTranscriptStore(t)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, store.Append(ctx, "sess-1", Message{Role: RoleBot, Content: TextContent(text)}))
	}

	got, err := store.List(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Content.Text)
	assert.Equal(t, "three", got[1].Content.Text)
}

func TestRedisTranscriptSkipsTypingPlaceholders(t *testing.T) {
	ctx := context.Background()
	store := newTranscriptStore(t)

	require.NoError(t, store.Append(ctx, "sess-1", Message{Role: RoleTyping}))
	got, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisTranscriptCapsLength(t *testing.T) {
	ctx := context.Background()
	store := newTranscriptStore(t)
	store.maxMessages = 5

	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(ctx, "sess-1", Message{Role: RoleUser, Content: TextContent("msg")}))
	}

	got, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestRedisTranscriptNilStoreIsInert(t *testing.T) {
	var store *RedisTranscriptStore
	require.NoError(t, store.Append(context.Background(), "sess-1", Message{Role: RoleBot}))
	got, err := store.List(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Nil(t, NewRedisTranscriptStore(nil))
}

func TestRedisTranscriptRequiresSession(t *testing.T) {
	store := newTranscriptStore(t)
	assert.Error(t, store.Append(context.Background(), "", Message{Role: RoleBot}))
	_, err := store.List(context.Background(), "", 0)
	assert.Error(t, err)
}
