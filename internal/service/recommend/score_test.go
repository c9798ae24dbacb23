package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/campus-connect/internal/db"
)

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", []string{"go"}, nil, 0},
		{"identical", []string{"go", "rust"}, []string{"rust", "go"}, 1},
		{"half", []string{"python", "ml"}, []string{"python"}, 0.5},
		{"case and space insensitive", []string{" Python", "ML"}, []string{"python ", "ml"}, 1},
		{"duplicates ignored", []string{"go", "go", "GO"}, []string{"go", "c"}, 0.5},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Jaccard(tc.a, tc.b), 1e-9)
		})
	}
}

func TestOverlapCount(t *testing.T) {
	assert.Equal(t, 0, OverlapCount(nil, []string{"hackathon"}))
	assert.Equal(t, 2, OverlapCount(
		[]string{"hackathon", "Research", "startup"},
		[]string{"research", "hackathon", "hackathon"},
	))
}

func user(id uint64, skills, interests, openFor []string) db.User {
	return db.User{
		ID:       id,
		Username: "u",
		Profile:  &db.Profile{UserID: id, Skills: skills, Interests: interests, OpenFor: openFor},
	}
}

func TestRank_ScenarioAndOrdering(t *testing.T) {
	p := DefaultPolicy()
	self := &db.Profile{Skills: []string{"python", "ml"}, Interests: []string{"ai"}}

	got := Rank(self, []db.User{
		user(3, []string{"java"}, []string{"music"}, nil), // C: no overlap
		user(2, []string{"python"}, []string{"ai"}, nil),  // B
		user(1, nil, nil, nil),
	}, p)

	assert.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].UserID)
	assert.InDelta(t, 0.55, got[0].Score, 1e-9)
	assert.True(t, got[0].IsRecommended)
	assert.Equal(t, []string{"python"}, got[0].MatchedSkills)
	assert.Equal(t, []string{"ai"}, got[0].MatchedInterests)

	// zero scores tie-break by id
	assert.Equal(t, uint64(1), got[1].UserID)
	assert.Equal(t, uint64(3), got[2].UserID)
	assert.Zero(t, got[2].Score)
	assert.False(t, got[2].IsRecommended)
}

func TestRank_IntentOverlapCounts(t *testing.T) {
	p := DefaultPolicy()
	self := &db.Profile{OpenFor: []string{"hackathon", "research"}}

	got := Rank(self, []db.User{
		user(1, nil, nil, []string{"hackathon"}),
		user(2, nil, nil, []string{"research", "hackathon"}),
	}, p)

	assert.Equal(t, uint64(2), got[0].UserID)
	assert.InDelta(t, 0.4, got[0].Score, 1e-9)
	assert.InDelta(t, 0.2, got[1].Score, 1e-9)
	assert.False(t, got[1].IsRecommended, "0.2 is below the default threshold")
}

func TestRank_NilSelfScoresZero(t *testing.T) {
	got := Rank(nil, []db.User{
		user(9, []string{"go"}, []string{"ai"}, []string{"startup"}),
		user(4, []string{"go"}, nil, nil),
	}, DefaultPolicy())

	assert.Equal(t, uint64(4), got[0].UserID)
	assert.Equal(t, uint64(9), got[1].UserID)
	for _, s := range got {
		assert.Zero(t, s.Score)
	}
}
