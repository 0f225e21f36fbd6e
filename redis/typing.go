package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Typing keeps typing marks in one sorted set per conversation, scored by
// unix milliseconds. It lets several API replicas share typing state.
type Typing struct {
	cli    *redis.Client
	Window time.Duration
	Now    func() time.Time
}

// NewTyping returns a registry sharing r's client.
func NewTyping(r *Redis, window time.Duration) *Typing {
	return &Typing{cli: r.cli, Window: window}
}

func (t *Typing) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Typing) window() time.Duration {
	if t.Window > 0 {
		return t.Window
	}
	return defaultTypingWindow
}

const defaultTypingWindow = 10 * time.Second

func typingKey(conversationID string) string {
	return fmt.Sprintf("%s:%s:typing", conversationPrefix, conversationID)
}

// MarkTyping records that userID typed in conversationID just now.
func (t *Typing) MarkTyping(ctx context.Context, conversationID, userID string) error {
	key := typingKey(conversationID)
	_, err := t.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(t.now().UnixMilli()),
			Member: userID,
		})
		pipe.Expire(ctx, key, t.window())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis mark typing: %w", err)
	}
	return nil
}

// ActiveTypers returns, sorted, the users that typed within the window,
// excluding viewerID. Expired marks are removed.
func (t *Typing) ActiveTypers(ctx context.Context, conversationID, viewerID string) ([]string, error) {
	key := typingKey(conversationID)
	cutoff := strconv.FormatInt(t.now().Add(-t.window()).UnixMilli(), 10)

	if err := t.cli.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return nil, fmt.Errorf("zremrangebyscore: %w", err)
	}
	users, err := t.cli.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "(" + cutoff,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore: %w", err)
	}

	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != viewerID {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}
