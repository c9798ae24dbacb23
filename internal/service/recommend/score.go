// Package recommend ranks candidate students for a requester by profile overlap.
package recommend

import (
	"sort"
	"strings"

	"github.com/oggyb/campus-connect/internal/config"
	"github.com/oggyb/campus-connect/internal/db"
)

// Weights of the three scoring terms.
type Weights struct {
	Skill    float64
	Interest float64
	Intent   float64
}

// Policy is the scoring configuration. It is fixed for the life of an Engine
// so rankings stay stable.
type Policy struct {
	Weights
	// Threshold is the score above which a candidate is flagged as recommended.
	Threshold float64
	// MaxLimit caps the page size; larger requests are clamped.
	MaxLimit int
}

func DefaultPolicy() Policy {
	return Policy{
		Weights:   Weights{Skill: 0.5, Interest: 0.3, Intent: 0.2},
		Threshold: 0.25,
		MaxLimit:  100,
	}
}

func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Weights: Weights{
			Skill:    cfg.Match.WeightSkill,
			Interest: cfg.Match.WeightInterest,
			Intent:   cfg.Match.WeightIntent,
		},
		Threshold: cfg.Match.Threshold,
		MaxLimit:  cfg.Match.MaxLimit,
	}
}

// Score is one ranked candidate. It is derived per request and never stored.
type Score struct {
	UserID           uint64
	DisplayName      string
	Skills           []string
	Interests        []string
	MatchedSkills    []string
	MatchedInterests []string
	SharedIntents    []string
	Score            float64
	IsRecommended    bool
}

// normalize lowercases and trims tags and drops blanks and duplicates,
// keeping first-seen order.
func normalize(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// intersect returns the tags of a also in b, in a's order. Inputs are normalized.
func intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, t := range b {
		in[t] = struct{}{}
	}
	var out []string
	for _, t := range a {
		if _, ok := in[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Jaccard is |A ∩ B| / |A ∪ B| over the normalized tag sets, 0 when both are empty.
func Jaccard(a, b []string) float64 {
	na, nb := normalize(a), normalize(b)
	shared := len(intersect(na, nb))
	union := len(na) + len(nb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// OverlapCount is the number of distinct normalized tags present in both lists.
func OverlapCount(a, b []string) int {
	return len(intersect(normalize(a), normalize(b)))
}

// Rank scores every candidate against self and orders them by score
// descending, then user id ascending. self may be nil for a requester without
// a profile. Candidates must have their Profile loaded.
func Rank(self *db.Profile, candidates []db.User, p Policy) []Score {
	if self == nil {
		self = &db.Profile{}
	}
	mySkills := normalize(self.Skills)
	myInterests := normalize(self.Interests)
	myIntents := normalize(self.OpenFor)

	out := make([]Score, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		prof := c.Profile
		if prof == nil {
			prof = &db.Profile{}
		}
		skills := normalize(prof.Skills)
		interests := normalize(prof.Interests)

		s := Score{
			UserID:           c.ID,
			DisplayName:      c.Name(),
			Skills:           prof.Skills,
			Interests:        prof.Interests,
			MatchedSkills:    intersect(mySkills, skills),
			MatchedInterests: intersect(myInterests, interests),
			SharedIntents:    intersect(myIntents, normalize(prof.OpenFor)),
		}
		s.Score = p.Skill*jaccardN(mySkills, skills, len(s.MatchedSkills)) +
			p.Interest*jaccardN(myInterests, interests, len(s.MatchedInterests)) +
			p.Intent*float64(len(s.SharedIntents))
		s.IsRecommended = s.Score > p.Threshold
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func jaccardN(a, b []string, shared int) float64 {
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
