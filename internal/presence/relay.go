package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "room:"

// RedisRelay publishes room events on Redis so every instance's Router sees
// them. Run must be active on each instance for delivery to happen, including
// the publishing one.
type RedisRelay struct {
	rdb    *redis.Client
	router *Router
	log    *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, router *Router, log *slog.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, router: router, log: log}
}

func channelFor(room RoomID) string { return channelPrefix + string(room) }

func (r *RedisRelay) Publish(ctx context.Context, room RoomID, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.rdb.Publish(ctx, channelFor(room), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", room, err)
	}
	return nil
}

// Subscribe opens the pattern subscription and waits for Redis to confirm it.
func (r *RedisRelay) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("psubscribe: %w", err)
	}
	return sub, nil
}

// Run forwards relayed events into the local Router until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub, err := r.Subscribe(ctx)
	if err != nil {
		return err
	}
	return r.Forward(ctx, sub)
}

// Forward drains an open subscription into the local Router.
func (r *RedisRelay) Forward(ctx context.Context, sub *redis.PubSub) error {
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(msg)
		}
	}
}

func (r *RedisRelay) dispatch(msg *redis.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in relay", "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	room := RoomID(strings.TrimPrefix(msg.Channel, channelPrefix))
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		r.log.Warn("dropping malformed relay payload", "channel", msg.Channel, "err", err)
		return
	}
	r.router.Broadcast(room, ev)
}
