package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/oggyb/campus-connect/internal/cache"
	"github.com/oggyb/campus-connect/internal/presence"
)

// Sequencer is the per-room sequence point. A send holds it from validation
// until its broadcast has been handed off, so persisted and broadcast order
// agree for everyone who shares the Sequencer.
type Sequencer interface {
	Acquire(ctx context.Context, room presence.RoomID) (release func(), err error)
}

// localSequencer is enough when one process owns every room.
type localSequencer struct {
	locks presence.RoomLocks
}

// NewLocalSequencer serializes rooms inside this process only.
func NewLocalSequencer() Sequencer {
	return &localSequencer{}
}

func (s *localSequencer) Acquire(_ context.Context, room presence.RoomID) (func(), error) {
	return s.locks.Lock(room), nil
}

const (
	defaultLeaseTTL = 10 * time.Second
	releaseTimeout  = time.Second
)

// redisSequencer shares the sequence point across instances through a Redis
// lease. Local stripes go first so one process does not poll Redis against
// itself.
type redisSequencer struct {
	rc    *cache.RedisCache
	ttl   time.Duration
	local presence.RoomLocks
	log   *slog.Logger
}

// NewRedisSequencer serializes rooms across every instance using rc. A holder
// that dies keeps the room for at most ttl.
func NewRedisSequencer(rc *cache.RedisCache, ttl time.Duration, log *slog.Logger) Sequencer {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &redisSequencer{rc: rc, ttl: ttl, log: log}
}

func (s *redisSequencer) Acquire(ctx context.Context, room presence.RoomID) (func(), error) {
	unlockLocal := s.local.Lock(room)
	unlock, err := s.rc.Lock(ctx, "room:"+string(room), s.ttl)
	if err != nil {
		unlockLocal()
		return nil, err
	}
	return func() {
		defer unlockLocal()
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := unlock(ctx); err != nil {
			s.log.Warn("room lease release failed", "room", room, "err", err)
		}
	}, nil
}
