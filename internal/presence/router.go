package presence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/oggyb/campus-connect/internal/metrics"
)

var (
	ErrNotRegistered     = errors.New("connection not registered")
	ErrAlreadyRegistered = errors.New("connection already registered")
)

// Publisher hands an event to every live subscriber of a room, possibly on
// other instances.
type Publisher interface {
	Publish(ctx context.Context, room RoomID, ev Event) error
}

// Router is the process-wide registry of live connections and the rooms they
// are subscribed to. All mutation goes through its methods.
type Router struct {
	log *slog.Logger

	mu          sync.RWMutex
	conns       map[string]Conn
	rooms       map[RoomID]map[string]Conn
	memberships map[string]map[RoomID]struct{}
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{
		log:         log,
		conns:       make(map[string]Conn),
		rooms:       make(map[RoomID]map[string]Conn),
		memberships: make(map[string]map[RoomID]struct{}),
	}
}

// Register adds c and subscribes it to its owner's personal room.
func (r *Router) Register(c Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; ok {
		return ErrAlreadyRegistered
	}
	r.conns[c.ID()] = c
	r.memberships[c.ID()] = make(map[RoomID]struct{})
	r.joinLocked(c, UserRoom(c.UserID()))

	metrics.LiveConnections.Inc()
	r.log.Debug("connection registered", "conn_id", c.ID(), "user_id", c.UserID())
	return nil
}

// JoinRoom subscribes a registered connection to room. Joining twice is a no-op.
func (r *Router) JoinRoom(connID string, room RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrNotRegistered
	}
	r.joinLocked(c, room)
	return nil
}

func (r *Router) joinLocked(c Conn, room RoomID) {
	subs := r.rooms[room]
	if subs == nil {
		subs = make(map[string]Conn)
		r.rooms[room] = subs
	}
	subs[c.ID()] = c
	r.memberships[c.ID()][room] = struct{}{}
}

// LeaveRoom unsubscribes connID from room.
func (r *Router) LeaveRoom(connID string, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Router) leaveLocked(connID string, room RoomID) {
	if subs, ok := r.rooms[room]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(r.rooms, room)
		}
	}
	if m, ok := r.memberships[connID]; ok {
		delete(m, room)
	}
}

// CloseRoom unsubscribes every connection from room and returns how many were
// removed. Personal rooms are left alone.
func (r *Router) CloseRoom(room RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.rooms[room]
	n := 0
	for connID, c := range subs {
		if UserRoom(c.UserID()) == room {
			continue
		}
		r.leaveLocked(connID, room)
		n++
	}
	return n
}

// LeaveAll removes connID from every room and forgets it. Safe to call more
// than once.
func (r *Router) LeaveAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.memberships[connID]
	if !ok {
		return
	}
	for room := range m {
		r.leaveLocked(connID, room)
	}
	delete(r.memberships, connID)
	delete(r.conns, connID)

	metrics.LiveConnections.Dec()
	r.log.Debug("connection removed", "conn_id", connID)
}

// Broadcast delivers ev to every connection currently subscribed to room and
// returns how many accepted it. Delivery never blocks on a slow subscriber.
func (r *Router) Broadcast(room RoomID, ev Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, c := range r.rooms[room] {
		if c.Deliver(ev) {
			delivered++
		}
	}
	return delivered
}

// Publish makes the Router a local-only Publisher.
func (r *Router) Publish(_ context.Context, room RoomID, ev Event) error {
	r.Broadcast(room, ev)
	return nil
}

// Subscribers returns the distinct user ids subscribed to room, ascending.
func (r *Router) Subscribers(room RoomID) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uint64]struct{})
	for _, c := range r.rooms[room] {
		seen[c.UserID()] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rooms lists the rooms connID is subscribed to.
func (r *Router) Rooms(connID string) []RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomID, 0, len(r.memberships[connID]))
	for room := range r.memberships[connID] {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Online reports whether userID has at least one live connection.
func (r *Router) Online(userID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[UserRoom(userID)]
	return ok
}
