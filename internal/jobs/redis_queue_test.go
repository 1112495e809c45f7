package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisQueueSubmitPrompt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rdb := newTestRedis(t)
	q := NewRedisQueue(rdb)

	require.NoError(t, q.SubmitPrompt(ctx, PromptJob{InterviewID: "iv-1", AccountID: "acc", AccountName: "Dana", Attempt: 2}))

	msgs, err := rdb.XRange(ctx, PromptStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	job, ok := PromptJobFromValues(msgs[0].Values)
	require.True(t, ok)
	assert.Equal(t, PromptJob{InterviewID: "iv-1", AccountID: "acc", AccountName: "Dana", Attempt: 2}, job)
}

func TestRedisQueueSubmitFeedback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rdb := newTestRedis(t)
	q := NewRedisQueue(rdb)

	require.NoError(t, q.SubmitFeedback(ctx, FeedbackJob{InterviewID: "iv-1", ConversationID: "c-1", AccountID: "acc"}))

	msgs, err := rdb.XRange(ctx, FeedbackStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "c-1", msgs[0].Values["conversation_id"])
	assert.Equal(t, "iv-1", msgs[0].Values["interview_id"])
}

func TestPromptJobFromValuesRequiresInterview(t *testing.T) {
	t.Parallel()
	_, ok := PromptJobFromValues(map[string]any{"account_id": "acc"})
	assert.False(t, ok)
}

func TestRedisNotifierPublishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rdb := newTestRedis(t)

	sub := rdb.Subscribe(ctx, StatusChannel("iv-1"))
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	n := NewRedisNotifier(rdb)
	require.NoError(t, n.Notify(ctx, StatusEvent{Type: "prompt_status", InterviewID: "iv-1", Status: "ready"}))

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(rctx)
	require.NoError(t, err)

	var ev StatusEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, "ready", ev.Status)
}
