package cache

import (
	"context"
	"time"
)

type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Locker hands out short-lived exclusive leases.
type Locker interface {
	// TryLock returns ok=false when the key is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

func ConversationKey(interviewID string) string { return "conversation:interview:" + interviewID }

func ConversationByIDKey(conversationID string) string { return "conversation:id:" + conversationID }

func SessionLockKey(interviewID string) string { return "lock:session:" + interviewID }

func ReferenceKey(kind string) string { return "reference:" + kind }
