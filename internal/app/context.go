package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/auth"
	"github.com/oggyb/campus-connect/internal/cache"
	"github.com/oggyb/campus-connect/internal/config"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/repository"
	"github.com/oggyb/campus-connect/internal/service/dispatch"
	"github.com/oggyb/campus-connect/internal/service/ledger"
	"github.com/oggyb/campus-connect/internal/service/messages"
	"github.com/oggyb/campus-connect/internal/service/recommend"
)

const tokenTTL = 7 * 24 * time.Hour

// AppContext holds shared dependencies (DB, Redis, Logger, etc.) and the
// domain components built on top of them. Transports read from it; nothing
// mutates it after New.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger

	Auth        *auth.Verifier
	Router      *presence.Router
	Relay       *presence.RedisRelay // nil unless MSG_FANOUT=redis
	Ledger      *ledger.Ledger
	Recommender *recommend.Engine
	Messages    *messages.Store
	Dispatcher  *dispatch.Dispatcher
}

// New creates a new AppContext. rdb may be nil, in which case unread totals
// are not cached and fan-out stays local.
func New(cfg *config.Config, database *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	users := repository.NewUserRepository(database)
	ledgerRepo := repository.NewLedgerRepository(database)

	a := &AppContext{
		Config:     cfg,
		DB:         database,
		RedisCache: rdb,
		Logger:     logger,
		Auth:       auth.NewVerifier(cfg.Auth.JWTSecret, tokenTTL),
		Router:     presence.NewRouter(logger.With("component", "presence")),
	}

	a.Ledger = ledger.New(ledgerRepo, users, logger.With("component", "ledger"))
	a.Recommender = recommend.NewEngine(users, recommend.PolicyFromConfig(cfg), logger.With("component", "recommend"))

	opts := messages.Options{MaxContentLen: cfg.Messaging.MaxContentLen}
	if rdb != nil {
		opts.Cache = rdb
	}
	a.Messages = messages.NewStore(
		repository.NewMessageRepository(database),
		repository.NewGroupRepository(database),
		users,
		a.Ledger,
		logger.With("component", "messages"),
		opts,
	)

	var pub presence.Publisher = a.Router
	var dispatchOpts []dispatch.Option
	if cfg.Messaging.FanOut == config.FanOutRedis && rdb != nil {
		a.Relay = presence.NewRedisRelay(rdb.Client, a.Router, logger.With("component", "relay"))
		pub = a.Relay
		// every instance may write to every room, so the sequence point lives in Redis too
		dispatchOpts = append(dispatchOpts, dispatch.WithSequencer(
			dispatch.NewRedisSequencer(rdb, cfg.Messaging.RoomLease, logger.With("component", "sequencer")),
		))
	}
	a.Dispatcher = dispatch.New(a.Messages, a.Ledger, a.Router, pub, logger.With("component", "dispatch"), dispatchOpts...)
	return a
}
