// Package dispatch orchestrates sends: validate against the ledger, persist
// in the message store, then push to live subscribers.
package dispatch

import (
	"context"
	"log/slog"

	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/metrics"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/repository"
	"github.com/oggyb/campus-connect/internal/service/ledger"
	"github.com/oggyb/campus-connect/internal/service/messages"
)

// State is the lifecycle of one send request.
type State int

const (
	StateValidating State = iota
	StatePersisted
	StateBroadcast
	StateAcknowledged
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StatePersisted:
		return "persisted"
	case StateBroadcast:
		return "broadcast"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return "rejected"
	}
}

// Receipt is what a send returns. A persisted message whose live push failed
// comes back in StatePersisted with BroadcastErr set and no error: the message
// is durable and recipients pick it up on their next read.
type Receipt struct {
	State        State
	Message      messages.View
	BroadcastErr error
}

type Dispatcher struct {
	store  *messages.Store
	ledger *ledger.Ledger
	router *presence.Router
	pub    presence.Publisher
	log    *slog.Logger
	seq    Sequencer
}

type Option func(*Dispatcher)

// WithSequencer replaces the in-process sequence point, e.g. with one shared
// by every instance behind a Redis relay.
func WithSequencer(s Sequencer) Option {
	return func(d *Dispatcher) { d.seq = s }
}

// New wires a dispatcher. pub carries broadcasts (the router itself, or a
// relay in multi-instance mode); router owns local room membership.
func New(store *messages.Store, l *ledger.Ledger, router *presence.Router, pub presence.Publisher, log *slog.Logger, opts ...Option) *Dispatcher {
	if pub == nil {
		pub = router
	}
	d := &Dispatcher{store: store, ledger: l, router: router, pub: pub, log: log}
	for _, opt := range opts {
		opt(d)
	}
	if d.seq == nil {
		d.seq = NewLocalSequencer()
	}
	return d
}

func (d *Dispatcher) acquire(ctx context.Context, room presence.RoomID) (func(), error) {
	release, err := d.seq.Acquire(ctx, room)
	if err != nil {
		d.log.Error("room sequence point unavailable", "room", room, "err", err)
		return nil, svcErr.Transient("acquire room", err)
	}
	return release, nil
}

// SendDirect delivers a direct message. Validation, persistence and broadcast
// run under the room's sequence point, so persisted and broadcast order agree.
func (d *Dispatcher) SendDirect(ctx context.Context, senderID, receiverID uint64, content string, attachment *string) (Receipt, error) {
	room := presence.DirectRoom(senderID, receiverID)
	release, err := d.acquire(ctx, room)
	if err != nil {
		return Receipt{State: StateRejected}, err
	}
	defer release()

	if err := d.store.CheckDirect(ctx, senderID, receiverID, content, attachment); err != nil {
		metrics.SendRejected.WithLabelValues("direct", svcErr.KindOf(err).String()).Inc()
		return Receipt{State: StateRejected}, err
	}
	m, err := d.store.PersistDirect(ctx, senderID, receiverID, content, attachment)
	if err != nil {
		return Receipt{State: StateRejected}, err
	}
	return acknowledge(d.broadcastMessage(ctx, room, messages.ToView(m))), nil
}

// SendGroup delivers a group message under the group room's sequence point.
func (d *Dispatcher) SendGroup(ctx context.Context, senderID, groupID uint64, content string, attachment *string) (Receipt, error) {
	room := presence.GroupRoom(groupID)
	release, err := d.acquire(ctx, room)
	if err != nil {
		return Receipt{State: StateRejected}, err
	}
	defer release()

	if err := d.store.CheckGroup(ctx, senderID, groupID, content, attachment); err != nil {
		metrics.SendRejected.WithLabelValues("group", svcErr.KindOf(err).String()).Inc()
		return Receipt{State: StateRejected}, err
	}
	m, err := d.store.PersistGroup(ctx, senderID, groupID, content, attachment)
	if err != nil {
		return Receipt{State: StateRejected}, err
	}
	return acknowledge(d.broadcastMessage(ctx, room, messages.ToView(m))), nil
}

func (d *Dispatcher) broadcastMessage(ctx context.Context, room presence.RoomID, v messages.View) Receipt {
	r := Receipt{State: StatePersisted, Message: v}

	ev, err := presence.NewEvent(presence.EventMessageReceived, room, v)
	if err == nil {
		err = d.pub.Publish(ctx, room, ev)
	}
	if err != nil {
		metrics.BroadcastFailures.Inc()
		d.log.Warn("broadcast failed after persist", "room", room, "message_id", v.ID, "err", err)
		r.BroadcastErr = err
		return r
	}

	r.State = StateBroadcast
	return r
}

// acknowledge closes a receipt whose broadcast went out. A receipt left in
// StatePersisted stays there so the caller can see the push failed.
func acknowledge(r Receipt) Receipt {
	if r.State == StateBroadcast {
		r.State = StateAcknowledged
	}
	return r
}

// MatchedPayload is sent to both users' personal rooms once per new connection.
type MatchedPayload struct {
	UserIDs [2]uint64 `json:"user_ids"`
	RoomID  string    `json:"room_id"`
}

// Swipe records the decision and, on a newly created connection, notifies
// both sides exactly once. Notification failure does not undo the match.
func (d *Dispatcher) Swipe(ctx context.Context, actorID, targetID uint64, decision string) (ledger.SwipeResult, error) {
	res, err := d.ledger.RecordSwipe(ctx, actorID, targetID, decision)
	if err != nil || !res.NewConnection {
		return res, err
	}

	low, high := repository.OrderPair(actorID, targetID)
	payload := MatchedPayload{UserIDs: [2]uint64{low, high}, RoomID: string(presence.DirectRoom(low, high))}
	for _, uid := range payload.UserIDs {
		room := presence.UserRoom(uid)
		ev, err := presence.NewEvent(presence.EventMatched, room, payload)
		if err == nil {
			err = d.pub.Publish(ctx, room, ev)
		}
		if err != nil {
			metrics.BroadcastFailures.Inc()
			d.log.Warn("matched notification failed", "user_id", uid, "err", err)
		}
	}
	return res, nil
}

// ReadPayload is the direct read receipt.
type ReadPayload struct {
	ReaderID      uint64 `json:"reader_id"`
	CounterpartID uint64 `json:"counterpart_id"`
	Count         int64  `json:"count"`
}

// MarkDirectRead marks the counterpart's messages read and, when anything
// changed, tells the pair's room. A blocked pair gets no receipt: it would
// tell a blocked user that the blocker is still reading them.
func (d *Dispatcher) MarkDirectRead(ctx context.Context, userID, counterpartID uint64) (int64, error) {
	n, err := d.store.MarkDirectRead(ctx, userID, counterpartID)
	if err != nil || n == 0 {
		return n, err
	}
	blocked, err := d.ledger.IsBlocked(ctx, userID, counterpartID)
	if err != nil {
		d.log.Warn("read receipt skipped, block check failed", "user_id", userID, "err", err)
		return n, nil
	}
	if blocked {
		return n, nil
	}

	room := presence.DirectRoom(userID, counterpartID)
	ev, err := presence.NewEvent(presence.EventMessagesRead, room, ReadPayload{
		ReaderID: userID, CounterpartID: counterpartID, Count: n,
	})
	if err == nil {
		err = d.pub.Publish(ctx, room, ev)
	}
	if err != nil {
		d.log.Warn("read receipt failed", "room", room, "err", err)
	}
	return n, nil
}

func (d *Dispatcher) MarkGroupRead(ctx context.Context, userID, groupID uint64) error {
	return d.store.MarkGroupRead(ctx, userID, groupID)
}

// Block records the block and drops every local subscription to the pair's
// room, so neither side keeps receiving that room's live events.
func (d *Dispatcher) Block(ctx context.Context, actorID, targetID uint64) error {
	if err := d.ledger.Block(ctx, actorID, targetID); err != nil {
		return err
	}
	room := presence.DirectRoom(actorID, targetID)
	if n := d.router.CloseRoom(room); n > 0 {
		d.log.Debug("room closed after block", "room", room, "subscriptions", n)
	}
	return nil
}

// JoinRoom subscribes a live connection to roomID after checking the
// connection's user may see it.
func (d *Dispatcher) JoinRoom(ctx context.Context, conn presence.Conn, roomID string) (presence.RoomID, error) {
	room, err := presence.ParseRoom(roomID)
	if err != nil {
		return "", svcErr.InvalidArgument(err.Error())
	}
	if err := d.store.Authorize(ctx, conn.UserID(), room); err != nil {
		return "", err
	}
	id := room.ID()
	if err := d.router.JoinRoom(conn.ID(), id); err != nil {
		return "", svcErr.InvalidArgument("connection is not registered")
	}
	return id, nil
}

// LeaveRoom unsubscribes; the personal room cannot be left.
func (d *Dispatcher) LeaveRoom(conn presence.Conn, roomID string) (presence.RoomID, error) {
	room, err := presence.ParseRoom(roomID)
	if err != nil {
		return "", svcErr.InvalidArgument(err.Error())
	}
	id := room.ID()
	if id == presence.UserRoom(conn.UserID()) {
		return "", svcErr.InvalidArgument("cannot leave your personal room")
	}
	d.router.LeaveRoom(conn.ID(), id)
	return id, nil
}

// Connect registers a live connection; Disconnect removes it from every room.
func (d *Dispatcher) Connect(conn presence.Conn) error {
	return d.router.Register(conn)
}

func (d *Dispatcher) Disconnect(conn presence.Conn) {
	d.router.LeaveAll(conn.ID())
}
