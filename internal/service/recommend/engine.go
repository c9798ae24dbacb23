package recommend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/metrics"
	"github.com/oggyb/campus-connect/internal/repository"
)

// Engine computes recommendations on demand. Scoring runs in memory over
// rows fetched up front; only the fetch blocks.
type Engine struct {
	users  *repository.UserRepository
	policy Policy
	log    *slog.Logger
}

func NewEngine(users *repository.UserRepository, policy Policy, log *slog.Logger) *Engine {
	return &Engine{users: users, policy: policy, log: log}
}

// Recommend returns up to limit candidates for userID, best first.
//
// Behavior:
//   - limit <= 0 → InvalidArgument; limit above the policy cap is clamped.
//   - Unknown user → NotFound.
//   - A requester without a profile is not an error: every candidate scores
//     zero on skills and interests.
func (e *Engine) Recommend(ctx context.Context, userID uint64, limit int) ([]Score, error) {
	defer metrics.ObserveSince(metrics.RecommendLatency, time.Now())
	e.log.Debug("Recommend called", "user_id", userID, "limit", limit)

	if limit <= 0 {
		return nil, svcErr.InvalidArgument("limit must be positive")
	}
	if e.policy.MaxLimit > 0 && limit > e.policy.MaxLimit {
		limit = e.policy.MaxLimit
	}

	if _, err := e.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("user not found")
		}
		return nil, svcErr.Transient("load user", err)
	}

	self, err := e.users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.Transient("load profile", err)
		}
		self = nil
	}

	candidates, err := e.users.Candidates(ctx, userID)
	if err != nil {
		e.log.Error("Candidates failed", "user_id", userID, "err", err)
		return nil, svcErr.Transient("load candidates", err)
	}

	ranked := Rank(self, candidates, e.policy)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	e.log.Debug("Recommend result", "user_id", userID, "pool", len(candidates), "returned", len(ranked))
	return ranked, nil
}
