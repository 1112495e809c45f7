package jobs

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type RedisQueue struct {
	rdb    *redis.Client
	maxLen int64
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, maxLen: 10000}
}

func (q *RedisQueue) SubmitPrompt(ctx context.Context, job PromptJob) error {
	return q.add(ctx, PromptStream, job.values())
}

func (q *RedisQueue) SubmitFeedback(ctx context.Context, job FeedbackJob) error {
	return q.add(ctx, FeedbackStream, job.values())
}

func (q *RedisQueue) add(ctx context.Context, stream string, values map[string]any) error {
	return q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}
