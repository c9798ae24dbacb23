// Package ledger is the authoritative record of swipes, connections and blocks.
package ledger

import (
	"context"
	"log/slog"

	"github.com/oggyb/campus-connect/internal/db"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/metrics"
	"github.com/oggyb/campus-connect/internal/repository"
)

// SwipeResult is the outcome of RecordSwipe.
type SwipeResult struct {
	// Matched is true whenever both sides currently like each other.
	Matched bool
	// NewConnection is true only for the call that materialized the
	// connection. Exactly one caller per pair ever sees it.
	NewConnection bool
}

type Ledger struct {
	swipes *repository.LedgerRepository
	users  *repository.UserRepository
	log    *slog.Logger
}

func New(swipes *repository.LedgerRepository, users *repository.UserRepository, log *slog.Logger) *Ledger {
	return &Ledger{swipes: swipes, users: users, log: log}
}

// RecordSwipe upserts actor's decision on target and materializes the
// connection on a mutual like.
//
// Behavior:
//   - The swipe is written first as its own statement, then the reciprocal
//     like is read. Of two concurrent reciprocal likes at least one observes
//     the other, so a match is never missed.
//   - The connection insert is a compare-and-set on the unordered pair, so
//     the pair is never connected twice.
//   - Blocked pairs are rejected before anything is written.
func (l *Ledger) RecordSwipe(ctx context.Context, actorID, targetID uint64, decision string) (SwipeResult, error) {
	l.log.Debug("RecordSwipe called", "actor", actorID, "target", targetID, "decision", decision)

	if actorID == targetID {
		return SwipeResult{}, svcErr.InvalidArgument("cannot swipe on yourself")
	}
	if decision != db.DecisionLike && decision != db.DecisionPass {
		return SwipeResult{}, svcErr.InvalidArgument("decision must be like or pass")
	}

	ok, err := l.users.Exists(ctx, targetID)
	if err != nil {
		return SwipeResult{}, svcErr.Transient("look up target", err)
	}
	if !ok {
		return SwipeResult{}, svcErr.NotFound("user not found")
	}

	blocked, err := l.swipes.IsBlocked(ctx, actorID, targetID)
	if err != nil {
		return SwipeResult{}, svcErr.Transient("check block", err)
	}
	if blocked {
		return SwipeResult{}, svcErr.Forbidden("cannot swipe on this user")
	}

	if err := l.swipes.UpsertSwipe(ctx, actorID, targetID, decision); err != nil {
		l.log.Error("UpsertSwipe failed", "actor", actorID, "target", targetID, "err", err)
		return SwipeResult{}, svcErr.Transient("record swipe", err)
	}
	metrics.SwipesTotal.WithLabelValues(decision).Inc()

	if decision != db.DecisionLike {
		return SwipeResult{}, nil
	}

	mutual, err := l.swipes.HasLiked(ctx, targetID, actorID)
	if err != nil {
		return SwipeResult{}, svcErr.Transient("check reciprocal", err)
	}
	if !mutual {
		return SwipeResult{}, nil
	}

	created, err := l.swipes.CreateConnection(ctx, actorID, targetID)
	if err != nil {
		l.log.Error("CreateConnection failed", "actor", actorID, "target", targetID, "err", err)
		return SwipeResult{}, svcErr.Transient("create connection", err)
	}
	if created {
		metrics.MatchesTotal.Inc()
		l.log.Info("connection created", "a", actorID, "b", targetID)
	}
	return SwipeResult{Matched: true, NewConnection: created}, nil
}

func (l *Ledger) IsConnected(ctx context.Context, a, b uint64) (bool, error) {
	ok, err := l.swipes.IsConnected(ctx, a, b)
	if err != nil {
		return false, svcErr.Transient("check connection", err)
	}
	return ok, nil
}

// IsBlocked is true when either side blocks the other.
func (l *Ledger) IsBlocked(ctx context.Context, a, b uint64) (bool, error) {
	ok, err := l.swipes.IsBlocked(ctx, a, b)
	if err != nil {
		return false, svcErr.Transient("check block", err)
	}
	return ok, nil
}

// Block sets actor -> target. Idempotent.
func (l *Ledger) Block(ctx context.Context, actorID, targetID uint64) error {
	if actorID == targetID {
		return svcErr.InvalidArgument("cannot block yourself")
	}
	ok, err := l.users.Exists(ctx, targetID)
	if err != nil {
		return svcErr.Transient("look up target", err)
	}
	if !ok {
		return svcErr.NotFound("user not found")
	}
	if err := l.swipes.InsertBlock(ctx, actorID, targetID); err != nil {
		return svcErr.Transient("block", err)
	}
	return nil
}

// Unblock clears actor -> target only. Idempotent.
func (l *Ledger) Unblock(ctx context.Context, actorID, targetID uint64) error {
	if actorID == targetID {
		return svcErr.InvalidArgument("cannot unblock yourself")
	}
	if err := l.swipes.DeleteBlock(ctx, actorID, targetID); err != nil {
		return svcErr.Transient("unblock", err)
	}
	return nil
}
