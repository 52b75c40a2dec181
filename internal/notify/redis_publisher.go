// Package notify fans call updates out over Redis pub/sub so any API
// instance can relay them to the caller's socket.
package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

func Channel(sessionID string) string { return "call:" + sessionID + ":events" }

type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, sessionID string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel(sessionID), b).Err()
}

// Subscribe returns the raw JSON payloads published for a session. The
// channel closes when ctx ends or the returned close func is called.
func (p *RedisPublisher) Subscribe(ctx context.Context, sessionID string) (<-chan []byte, func() error) {
	sub := p.rdb.Subscribe(ctx, Channel(sessionID))
	out := make(chan []byte, 64)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close
}
