package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GetStream/nebula-chat/chat"
)

// Redis caches the most recent messages of each conversation.
type Redis struct {
	cli *redis.Client
	// MaxSize is the number of messages kept per conversation.
	MaxSize int
	// TTL expires the cache of an idle conversation.
	TTL time.Duration
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli), nil
}

// New wraps an existing client.
func New(cli *redis.Client) *Redis {
	return &Redis{
		cli:     cli,
		MaxSize: defaultMaxSize,
		TTL:     defaultTTL,
	}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	messagePrefix      = "messages"
	conversationPrefix = "conversations"
	defaultMaxSize     = 20
	defaultTTL         = 24 * time.Hour
)

func messageKey(id string) string {
	return fmt.Sprintf("%s:%s", messagePrefix, id)
}

func recentKey(conversationID string) string {
	return fmt.Sprintf("%s:%s:messages", conversationPrefix, conversationID)
}

// PushMessage stores the message under messages:MESSAGE_ID and adds the key
// to the conversation's sorted set, scored by sequence number.
func (r *Redis) PushMessage(ctx context.Context, msg chat.Message) error {
	m := newMessage(msg)
	set := recentKey(msg.ConversationID)
	key := messageKey(msg.ID)

	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, m)
			pipe.Expire(ctx, key, r.TTL)
			pipe.ZAdd(ctx, set, redis.Z{
				Score:  float64(msg.Seq),
				Member: key,
			})
			pipe.Expire(ctx, set, r.TTL)
			return nil
		})
		return err
	}, set)
	if err != nil {
		return fmt.Errorf("redis push message: %w", err)
	}

	if err := r.evictOldest(ctx, set); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit cached messages of the conversation,
// newest first. Entries whose hash has expired are skipped.
func (r *Redis) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}
	keys, err := r.cli.ZRevRange(ctx, recentKey(conversationID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}

	out := make([]chat.Message, 0, len(keys))
	for _, key := range keys {
		res := r.cli.HGetAll(ctx, key)
		vals, err := res.Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall: %w", err)
		}
		if len(vals) == 0 {
			continue
		}
		var m message
		if err := res.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, m.ChatMessage())
	}
	return out, nil
}

func (r *Redis) evictOldest(ctx context.Context, set string) error {
	vals, err := r.cli.ZRange(ctx, set, 0, int64(-r.MaxSize-1)).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}

	for _, key := range vals {
		_ = r.cli.ZRem(ctx, set, key).Err()
		_ = r.cli.Del(ctx, key).Err()
	}
	return nil
}
