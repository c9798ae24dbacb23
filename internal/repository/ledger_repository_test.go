package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/campus-connect/internal/db"
	"github.com/oggyb/campus-connect/internal/repository"
	"github.com/oggyb/campus-connect/internal/testutil"
)

func TestUpsertSwipe_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewLedgerRepository(dbase)

	// insert like
	require.NoError(t, repo.UpsertSwipe(ctx, 1, 2, db.DecisionLike))

	// overwrite with pass
	require.NoError(t, repo.UpsertSwipe(ctx, 1, 2, db.DecisionPass))

	var rows []db.SwipeDecision
	require.NoError(t, dbase.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, db.DecisionPass, rows[0].Decision)

	liked, err := repo.HasLiked(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, liked)
}

func TestCreateConnection_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewLedgerRepository(testutil.NewDB(t))

	created, err := repo.CreateConnection(ctx, 7, 3)
	require.NoError(t, err)
	assert.True(t, created)

	// same pair, reversed order → no second row
	created, err = repo.CreateConnection(ctx, 3, 7)
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := repo.IsConnected(ctx, 7, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsConnected(ctx, 3, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlocks_DirectedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewLedgerRepository(testutil.NewDB(t))

	require.NoError(t, repo.InsertBlock(ctx, 1, 2))
	require.NoError(t, repo.InsertBlock(ctx, 1, 2))
	require.NoError(t, repo.InsertBlock(ctx, 2, 1))

	blocked, err := repo.IsBlocked(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, blocked)

	// clearing 1→2 leaves 2→1 in place
	require.NoError(t, repo.DeleteBlock(ctx, 1, 2))
	blocked, err = repo.IsBlocked(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, repo.DeleteBlock(ctx, 2, 1))
	blocked, err = repo.IsBlocked(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestCandidates_Exclusions(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	users := repository.NewUserRepository(dbase)
	ledger := repository.NewLedgerRepository(dbase)

	for id := uint64(1); id <= 7; id++ {
		testutil.CreateUser(t, dbase, id, &db.Profile{Skills: []string{"go"}})
	}
	testutil.CreateUser(t, dbase, 8, nil) // no profile → never a candidate
	require.NoError(t, dbase.Model(&db.User{}).Where("id = ?", 7).Update("blocked", true).Error)

	testutil.Connect(t, dbase, 1, 2)
	require.NoError(t, ledger.InsertBlock(ctx, 3, 1)) // 3 blocked requester
	require.NoError(t, ledger.UpsertSwipe(ctx, 1, 4, db.DecisionPass))
	require.NoError(t, ledger.UpsertSwipe(ctx, 5, 1, db.DecisionLike)) // incoming swipe does not exclude

	cands, err := users.Candidates(ctx, 1)
	require.NoError(t, err)

	var ids []uint64
	for _, c := range cands {
		ids = append(ids, c.ID)
		require.NotNil(t, c.Profile)
	}
	assert.Equal(t, []uint64{5, 6}, ids)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	users := repository.NewUserRepository(dbase)
	testutil.CreateUser(t, dbase, 1, nil)
	testutil.CreateUser(t, dbase, 2, nil)

	ok, err := users.Exists(ctx, 1, 2, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.Exists(ctx, 1, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}
