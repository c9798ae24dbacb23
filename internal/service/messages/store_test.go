package messages_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/cache"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/logger"
	"github.com/oggyb/campus-connect/internal/repository"
	"github.com/oggyb/campus-connect/internal/service/messages"
	"github.com/oggyb/campus-connect/internal/testutil"
)

type fixture struct {
	store *messages.Store
	db    *gorm.DB
	mr    *miniredis.Miniredis
	gate  *repository.LedgerRepository
}

// newFixture creates users 1..n; 1-2 and 1-3 are connected.
func newFixture(t *testing.T, n int, now func() time.Time) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	for id := 1; id <= n; id++ {
		testutil.CreateUser(t, gdb, uint64(id), nil)
	}
	testutil.Connect(t, gdb, 1, 2)
	testutil.Connect(t, gdb, 1, 3)

	mr := miniredis.RunT(t)
	rc := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	gate := repository.NewLedgerRepository(gdb)
	store := messages.NewStore(
		repository.NewMessageRepository(gdb),
		repository.NewGroupRepository(gdb),
		repository.NewUserRepository(gdb),
		gate,
		logger.Discard(),
		messages.Options{MaxContentLen: 20, Cache: rc, Now: now},
	)
	return &fixture{store: store, db: gdb, mr: mr, gate: gate}
}

// sibling is a second store on the same database, the way another instance
// of the service would see it.
func (f *fixture) sibling(now func() time.Time) *messages.Store {
	return messages.NewStore(
		repository.NewMessageRepository(f.db),
		repository.NewGroupRepository(f.db),
		repository.NewUserRepository(f.db),
		f.gate,
		logger.Discard(),
		messages.Options{MaxContentLen: 20, Now: now},
	)
}

func TestAppendDirect_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, nil)
	require.NoError(t, f.gate.InsertBlock(ctx, 3, 1))

	_, err := f.store.AppendDirect(ctx, 1, 2, "   ", nil)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = f.store.AppendDirect(ctx, 1, 2, strings.Repeat("x", 21), nil)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = f.store.AppendDirect(ctx, 1, 99, "hi", nil)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	// not connected and blocked look the same to the sender
	_, errNoConn := f.store.AppendDirect(ctx, 2, 4, "hi", nil)
	assert.ErrorIs(t, errNoConn, svcErr.ErrForbidden)
	_, errBlocked := f.store.AppendDirect(ctx, 1, 3, "hi", nil)
	assert.ErrorIs(t, errBlocked, svcErr.ErrForbidden)
	_, errBlockedRev := f.store.AppendDirect(ctx, 3, 1, "hi", nil)
	assert.ErrorIs(t, errBlockedRev, svcErr.ErrForbidden)
	assert.Equal(t, errNoConn.Error(), errBlocked.Error())

	att := "files/notes.pdf"
	m, err := f.store.AppendDirect(ctx, 2, 1, "hello", &att)
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Equal(t, "dm:1:2", m.RoomKey)
	assert.False(t, m.IsRead)
	assert.Equal(t, "files/notes.pdf", messages.ToView(m).Attachment)
}

func TestDirectRead_RoundTripAndCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, nil)

	// prime the cache with zero
	n, err := f.store.UnreadDirectCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, f.mr.Exists("unread:direct:1"))

	for i := 0; i < 3; i++ {
		_, err := f.store.AppendDirect(ctx, 2, 1, "ping", nil)
		require.NoError(t, err)
	}
	_, err = f.store.AppendDirect(ctx, 3, 1, "yo", nil)
	require.NoError(t, err)

	n, err = f.store.UnreadDirectCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "append must invalidate the cached total")

	changed, err := f.store.MarkDirectRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	from2, err := f.store.UnreadDirectFrom(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, from2)

	n, err = f.store.UnreadDirectCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.MarkDirectRead(ctx, 1, 77)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestUnreadDirect_CacheDownFallsBackToDB(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, nil)
	_, err := f.store.AppendDirect(ctx, 2, 1, "hi", nil)
	require.NoError(t, err)

	f.mr.Close()

	n, err := f.store.UnreadDirectCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGroups_SendAndWatermark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, testutil.NewClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)).Now)

	g, err := f.store.CreateGroup(ctx, 1, "  Robotics ", []uint64{2, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "Robotics", g.Name)
	require.Len(t, g.Members, 3)

	_, err = f.store.CreateGroup(ctx, 1, "", nil)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
	_, err = f.store.CreateGroup(ctx, 1, "x", []uint64{50})
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	_, err = f.store.AppendGroup(ctx, 4, g.ID, "let me in", nil)
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	_, err = f.store.AppendGroup(ctx, 1, 999, "hello?", nil)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	for i := 0; i < 2; i++ {
		_, err = f.store.AppendGroup(ctx, 1, g.ID, "standup", nil)
		require.NoError(t, err)
	}

	unread, err := f.store.UnreadGroupCount(ctx, 2, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	own, err := f.store.UnreadGroupCount(ctx, 1, g.ID)
	require.NoError(t, err)
	assert.Zero(t, own)

	require.NoError(t, f.store.MarkGroupRead(ctx, 2, g.ID))
	require.NoError(t, f.store.MarkGroupRead(ctx, 2, g.ID))
	unread, err = f.store.UnreadGroupCount(ctx, 2, g.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	_, err = f.store.AppendGroup(ctx, 3, g.ID, "after read", nil)
	require.NoError(t, err)
	summary, err := f.store.UnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, map[uint64]int64{g.ID: 1}, summary.Groups)

	assert.ErrorIs(t, f.store.MarkGroupRead(ctx, 4, g.ID), svcErr.ErrForbidden)
}

func TestAddGroupMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, nil)
	g, err := f.store.CreateGroup(ctx, 1, "ml club", []uint64{2})
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.AddGroupMember(ctx, 2, g.ID, 3), svcErr.ErrForbidden)
	assert.ErrorIs(t, f.store.AddGroupMember(ctx, 1, g.ID, 42), svcErr.ErrNotFound)
	assert.ErrorIs(t, f.store.AddGroupMember(ctx, 1, 999, 3), svcErr.ErrNotFound)

	require.NoError(t, f.store.AddGroupMember(ctx, 1, g.ID, 3))
	require.NoError(t, f.store.AddGroupMember(ctx, 1, g.ID, 3))

	got, err := f.store.Group(ctx, 3, g.ID)
	require.NoError(t, err)
	var roster []uint64
	for _, m := range got.Members {
		roster = append(roster, m.UserID)
	}
	assert.Equal(t, []uint64{1, 2, 3}, roster)

	_, err = f.store.Group(ctx, 4, g.ID)
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
}

func TestHistory_PaginationAndAccess(t *testing.T) {
	ctx := context.Background()
	// a frozen clock still yields strictly increasing timestamps
	frozen := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, 4, func() time.Time { return frozen })

	var sent []uint64
	for i := 0; i < 5; i++ {
		sender, receiver := uint64(1), uint64(2)
		if i%2 == 1 {
			sender, receiver = 2, 1
		}
		m, err := f.store.AppendDirect(ctx, sender, receiver, "msg", nil)
		require.NoError(t, err)
		sent = append(sent, m.ID)
	}

	var got []uint64
	token := ""
	pages := 0
	for {
		page, next, err := f.store.History(ctx, 2, "dm:1:2", token, 2)
		require.NoError(t, err)
		for _, m := range page {
			got = append(got, m.ID)
		}
		pages++
		if next == "" {
			break
		}
		token = next
	}
	assert.Equal(t, sent, got)
	assert.Equal(t, 3, pages)

	_, _, err := f.store.History(ctx, 4, "dm:1:2", "", 10)
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	_, _, err = f.store.History(ctx, 1, "dm:2:1", "", 10)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
	_, _, err = f.store.History(ctx, 1, "dm:1:2", "%%%", 10)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
	_, _, err = f.store.History(ctx, 1, "user:1", "", 10)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
}

func TestMarkGroupRead_DuringSlowAppendKeepsMessageUnread(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, nil)
	g, err := f.store.CreateGroup(ctx, 1, "night shift", []uint64{2})
	require.NoError(t, err)

	inserting := make(chan struct{})
	var once sync.Once
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("slow_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			once.Do(func() { close(inserting) })
			time.Sleep(200 * time.Millisecond)
		}
	}))

	done := make(chan error, 1)
	go func() {
		_, err := f.store.AppendGroup(ctx, 1, g.ID, "late", nil)
		done <- err
	}()

	<-inserting
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.store.MarkGroupRead(ctx, 2, g.ID))
	require.NoError(t, <-done)

	unread, err := f.store.UnreadGroupCount(ctx, 2, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread, "a message committed after the read mark must stay unread")

	require.NoError(t, f.store.MarkGroupRead(ctx, 2, g.ID))
	unread, err = f.store.UnreadGroupCount(ctx, 2, g.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestPersist_StampsFollowRoomHead(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, 3, testutil.NewClock(base.Add(time.Hour)).Now)
	// this instance's clock runs an hour behind the first one
	behind := f.sibling(testutil.NewClock(base).Now)

	first, err := f.store.AppendDirect(ctx, 1, 2, "first", nil)
	require.NoError(t, err)
	second, err := behind.AppendDirect(ctx, 2, 1, "second", nil)
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	page, _, err := f.store.History(ctx, 1, "dm:1:2", "", 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, []uint64{first.ID, second.ID}, []uint64{page[0].ID, page[1].ID})

	g, err := f.store.CreateGroup(ctx, 1, "skew", []uint64{2})
	require.NoError(t, err)
	ahead, err := f.store.AppendGroup(ctx, 1, g.ID, "ahead", nil)
	require.NoError(t, err)
	require.NoError(t, f.store.MarkGroupRead(ctx, 2, g.ID))

	late, err := behind.AppendGroup(ctx, 1, g.ID, "from behind", nil)
	require.NoError(t, err)
	assert.True(t, late.CreatedAt.After(ahead.CreatedAt))

	unread, err := behind.UnreadGroupCount(ctx, 2, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}
