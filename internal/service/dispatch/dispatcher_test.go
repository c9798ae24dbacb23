package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/cache"
	"github.com/oggyb/campus-connect/internal/db"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/logger"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/repository"
	"github.com/oggyb/campus-connect/internal/service/dispatch"
	"github.com/oggyb/campus-connect/internal/service/ledger"
	"github.com/oggyb/campus-connect/internal/service/messages"
	"github.com/oggyb/campus-connect/internal/testutil"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, presence.RoomID, presence.Event) error {
	return errors.New("relay unavailable")
}

type fixture struct {
	d      *dispatch.Dispatcher
	store  *messages.Store
	router *presence.Router
	db     *gorm.DB
}

// newFixture creates users 1..6; 1-2 and 1-3 are connected.
func newFixture(t *testing.T, pub presence.Publisher) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	for id := uint64(1); id <= 6; id++ {
		testutil.CreateUser(t, gdb, id, nil)
	}
	testutil.Connect(t, gdb, 1, 2)
	testutil.Connect(t, gdb, 1, 3)
	return newInstance(gdb, nil, func(*presence.Router) presence.Publisher { return pub })
}

// newInstance builds one service instance on top of an existing database.
// pubFor picks the publisher given the instance's router.
func newInstance(gdb *gorm.DB, now func() time.Time, pubFor func(*presence.Router) presence.Publisher, opts ...dispatch.Option) *fixture {
	log := logger.Discard()
	users := repository.NewUserRepository(gdb)
	ledgerRepo := repository.NewLedgerRepository(gdb)
	l := ledger.New(ledgerRepo, users, log)
	store := messages.NewStore(
		repository.NewMessageRepository(gdb),
		repository.NewGroupRepository(gdb),
		users, l, log, messages.Options{Now: now},
	)
	router := presence.NewRouter(log)
	d := dispatch.New(store, l, router, pubFor(router), log, opts...)
	return &fixture{d: d, store: store, router: router, db: gdb}
}

func (f *fixture) connect(t *testing.T, userID uint64, buffer int) *presence.Client {
	t.Helper()
	c := presence.NewClient(userID, buffer)
	require.NoError(t, f.d.Connect(c))
	t.Cleanup(func() { f.d.Disconnect(c) })
	return c
}

func drain(c *presence.Client) []presence.Event {
	var out []presence.Event
	for {
		select {
		case ev := <-c.Outbox():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSendDirect_Acknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	bob := f.connect(t, 2, 8)
	_, err := f.d.JoinRoom(ctx, bob, "dm:1:2")
	require.NoError(t, err)

	r, err := f.d.SendDirect(ctx, 1, 2, "hey bob", nil)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StateAcknowledged, r.State)
	assert.Equal(t, "dm:1:2", r.Message.RoomID)

	events := drain(bob)
	require.Len(t, events, 1)
	assert.Equal(t, presence.EventMessageReceived, events[0].Type)
	var got messages.View
	require.NoError(t, events[0].Decode(&got))
	assert.Equal(t, r.Message.ID, got.ID)
	assert.Equal(t, "hey bob", got.Content)
}

func TestSendDirect_RejectedHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	watcher := f.connect(t, 4, 8)
	require.NoError(t, f.router.JoinRoom(watcher.ID(), presence.DirectRoom(2, 4)))

	r, err := f.d.SendDirect(ctx, 2, 4, "not connected", nil)
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	assert.Equal(t, dispatch.StateRejected, r.State)
	assert.Empty(t, drain(watcher))

	unread, err := f.store.UnreadDirectCount(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestSendDirect_BroadcastFailureKeepsMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingPublisher{})

	r, err := f.d.SendDirect(ctx, 1, 2, "durable", nil)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatePersisted, r.State)
	assert.Error(t, r.BroadcastErr)

	page, _, err := f.store.History(ctx, 2, "dm:1:2", "", 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, r.Message.ID, page[0].ID)
}

func TestSendGroup_BroadcastOrderMatchesStoredOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g, err := f.store.CreateGroup(ctx, 1, "hackers", []uint64{2, 3})
	require.NoError(t, err)

	listener := f.connect(t, 2, 256)
	_, err = f.d.JoinRoom(ctx, listener, fmt.Sprintf("group:%d", g.ID))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := uint64(i%3 + 1)
			_, err := f.d.SendGroup(ctx, sender, g.ID, fmt.Sprintf("m%d", i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var live []uint64
	for _, ev := range drain(listener) {
		var v messages.View
		require.NoError(t, ev.Decode(&v))
		live = append(live, v.ID)
	}

	stored, _, err := f.store.History(ctx, 2, fmt.Sprintf("group:%d", g.ID), "", 100)
	require.NoError(t, err)
	var persisted []uint64
	for _, m := range stored {
		persisted = append(persisted, m.ID)
	}

	require.Len(t, persisted, 30)
	assert.Equal(t, persisted, live)
}

func TestSwipe_MatchedNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c4 := f.connect(t, 4, 8)
	c5 := f.connect(t, 5, 8)

	var wg sync.WaitGroup
	for _, sw := range [][2]uint64{{4, 5}, {5, 4}} {
		wg.Add(1)
		go func(a, b uint64) {
			defer wg.Done()
			_, err := f.d.Swipe(ctx, a, b, db.DecisionLike)
			assert.NoError(t, err)
		}(sw[0], sw[1])
	}
	wg.Wait()

	// repeated like on an existing connection emits nothing new
	res, err := f.d.Swipe(ctx, 4, 5, db.DecisionLike)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, res.NewConnection)

	for _, c := range []*presence.Client{c4, c5} {
		events := drain(c)
		require.Len(t, events, 1, "user %d", c.UserID())
		assert.Equal(t, presence.EventMatched, events[0].Type)
		var p dispatch.MatchedPayload
		require.NoError(t, events[0].Decode(&p))
		assert.Equal(t, [2]uint64{4, 5}, p.UserIDs)
		assert.Equal(t, "dm:4:5", p.RoomID)
	}
}

func TestMarkDirectRead_EmitsReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.connect(t, 1, 8)
	_, err := f.d.JoinRoom(ctx, alice, "dm:1:2")
	require.NoError(t, err)

	_, err = f.d.SendDirect(ctx, 1, 2, "read me", nil)
	require.NoError(t, err)
	drain(alice)

	n, err := f.d.MarkDirectRead(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, presence.EventMessagesRead, events[0].Type)

	// nothing left to mark, no receipt
	n, err = f.d.MarkDirectRead(ctx, 2, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, drain(alice))
}

func TestJoinRoom_Authorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	g, err := f.store.CreateGroup(ctx, 1, "core", []uint64{2})
	require.NoError(t, err)
	eve := f.connect(t, 4, 8)
	bob := f.connect(t, 2, 8)

	_, err = f.d.JoinRoom(ctx, eve, "dm:1:2")
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	_, err = f.d.JoinRoom(ctx, eve, fmt.Sprintf("group:%d", g.ID))
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	_, err = f.d.JoinRoom(ctx, eve, "user:2")
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
	_, err = f.d.JoinRoom(ctx, eve, "lobby")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	room, err := f.d.JoinRoom(ctx, bob, fmt.Sprintf("group:%d", g.ID))
	require.NoError(t, err)
	assert.Contains(t, f.router.Rooms(bob.ID()), room)

	_, err = f.d.LeaveRoom(bob, "user:2")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
	_, err = f.d.LeaveRoom(bob, string(room))
	require.NoError(t, err)
	assert.NotContains(t, f.router.Rooms(bob.ID()), room)
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.connect(t, 1, 8)

	pong := f.d.HandleCommand(ctx, alice, dispatch.Command{Type: dispatch.CmdPing, RequestID: "r1"})
	assert.Equal(t, presence.EventPong, pong.Type)

	ack := f.d.HandleCommand(ctx, alice, dispatch.Command{Type: dispatch.CmdJoinRoom, RoomID: "dm:1:3", RequestID: "r2"})
	require.Equal(t, presence.EventAck, ack.Type)

	sent := f.d.HandleCommand(ctx, alice, dispatch.Command{
		Type: dispatch.CmdSendDirect, ReceiverID: 3, Content: "hi carol", RequestID: "r3",
	})
	require.Equal(t, presence.EventAck, sent.Type)
	var ap dispatch.AckPayload
	require.NoError(t, sent.Decode(&ap))
	assert.Equal(t, "r3", ap.RequestID)
	assert.Equal(t, "acknowledged", ap.State)
	require.NotNil(t, ap.Message)
	assert.Equal(t, "hi carol", ap.Message.Content)

	// the sender's own subscription also sees the broadcast
	events := drain(alice)
	require.Len(t, events, 1)
	assert.Equal(t, presence.EventMessageReceived, events[0].Type)

	bad := f.d.HandleCommand(ctx, alice, dispatch.Command{Type: dispatch.CmdSendDirect, ReceiverID: 5, Content: "x"})
	require.Equal(t, presence.EventError, bad.Type)
	var ep dispatch.ErrorPayload
	require.NoError(t, bad.Decode(&ep))
	assert.Equal(t, "forbidden", ep.Code)
	assert.Equal(t, "cannot message this user", ep.Message)

	unknown := f.d.HandleCommand(ctx, alice, dispatch.Command{Type: "dance"})
	require.NoError(t, unknown.Decode(&ep))
	assert.Equal(t, "invalid_argument", ep.Code)
}

func TestMarkDirectRead_NoReceiptOnceBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// user 2 keeps a subscription from before the block
	bob := f.connect(t, 2, 8)
	require.NoError(t, f.router.JoinRoom(bob.ID(), presence.DirectRoom(1, 2)))

	_, err := f.d.SendDirect(ctx, 2, 1, "you there?", nil)
	require.NoError(t, err)
	drain(bob)

	require.NoError(t, f.d.Block(ctx, 1, 2))
	assert.NotContains(t, f.router.Rooms(bob.ID()), presence.DirectRoom(1, 2))

	// even a subscription that survived the block sees no receipt
	require.NoError(t, f.router.JoinRoom(bob.ID(), presence.DirectRoom(1, 2)))
	n, err := f.d.MarkDirectRead(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, drain(bob))
}

func TestBlock_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	bob := f.connect(t, 2, 8)
	require.NoError(t, f.router.JoinRoom(bob.ID(), presence.DirectRoom(1, 2)))

	assert.ErrorIs(t, f.d.Block(ctx, 1, 1), svcErr.ErrInvalidArgument)
	assert.ErrorIs(t, f.d.Block(ctx, 1, 42), svcErr.ErrNotFound)
	assert.Contains(t, f.router.Rooms(bob.ID()), presence.DirectRoom(1, 2), "failed block leaves rooms alone")
}

type stalledSequencer struct{}

func (stalledSequencer) Acquire(context.Context, presence.RoomID) (func(), error) {
	return nil, errors.New("lease store unreachable")
}

func TestSend_SequencerUnavailableIsTransient(t *testing.T) {
	ctx := context.Background()
	gdb := testutil.NewDB(t)
	testutil.CreateUser(t, gdb, 1, nil)
	testutil.CreateUser(t, gdb, 2, nil)
	testutil.Connect(t, gdb, 1, 2)
	local := func(r *presence.Router) presence.Publisher { return r }
	f := newInstance(gdb, nil, local, dispatch.WithSequencer(stalledSequencer{}))

	r, err := f.d.SendDirect(ctx, 1, 2, "hello", nil)
	assert.ErrorIs(t, err, svcErr.ErrTransient)
	assert.Equal(t, dispatch.StateRejected, r.State)

	page, _, err := f.store.History(ctx, 1, "dm:1:2", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSendGroup_OrderHoldsAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gdb := testutil.NewDB(t)
	for id := uint64(1); id <= 3; id++ {
		testutil.CreateUser(t, gdb, id, nil)
	}
	mr := miniredis.RunT(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clocks := []func() time.Time{
		testutil.NewClock(base.Add(time.Minute)).Now, // runs ahead
		testutil.NewClock(base).Now,
	}
	var instances []*fixture
	for _, now := range clocks {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		seq := dispatch.NewRedisSequencer(cache.NewFromClient(rdb), time.Minute, logger.Discard())

		var relay *presence.RedisRelay
		f := newInstance(gdb, now, func(r *presence.Router) presence.Publisher {
			relay = presence.NewRedisRelay(rdb, r, logger.Discard())
			return relay
		}, dispatch.WithSequencer(seq))

		sub, err := relay.Subscribe(ctx)
		require.NoError(t, err)
		go func() { _ = relay.Forward(ctx, sub) }()
		instances = append(instances, f)
	}

	a, b := instances[0], instances[1]
	g, err := a.store.CreateGroup(ctx, 1, "distributed", []uint64{2, 3})
	require.NoError(t, err)
	room := presence.GroupRoom(g.ID)

	listener := a.connect(t, 2, 128)
	require.NoError(t, a.router.JoinRoom(listener.ID(), room))

	const perInstance = 15
	var wg sync.WaitGroup
	for i := 0; i < perInstance; i++ {
		for j, inst := range instances {
			wg.Add(1)
			go func(inst *fixture, sender uint64, text string) {
				defer wg.Done()
				_, err := inst.d.SendGroup(ctx, sender, g.ID, text, nil)
				assert.NoError(t, err)
			}(inst, uint64(j+1), fmt.Sprintf("i%d-%d", j, i))
		}
	}
	wg.Wait()

	var live []uint64
	timeout := time.After(5 * time.Second)
	for len(live) < 2*perInstance {
		select {
		case ev := <-listener.Outbox():
			if ev.Type != presence.EventMessageReceived {
				continue
			}
			var v messages.View
			require.NoError(t, ev.Decode(&v))
			live = append(live, v.ID)
		case <-timeout:
			t.Fatalf("received %d of %d relayed messages", len(live), 2*perInstance)
		}
	}

	stored, _, err := b.store.History(ctx, 2, string(room), "", 100)
	require.NoError(t, err)
	var persisted []uint64
	for _, m := range stored {
		persisted = append(persisted, m.ID)
	}
	assert.Equal(t, persisted, live)
}
