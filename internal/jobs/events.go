package jobs

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// StatusEvent is fanned out to websocket subscribers of an interview.
type StatusEvent struct {
	Type           string `json:"type"` // prompt_status | feedback_status | session
	InterviewID    string `json:"interview_id"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, ev StatusEvent) error
}

func StatusChannel(interviewID string) string {
	return "interview:" + interviewID + ":status"
}

type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Notify(ctx context.Context, ev StatusEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, StatusChannel(ev.InterviewID), b).Err()
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, StatusEvent) error { return nil }
