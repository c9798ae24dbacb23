// Package presence maps live connections to users and chat rooms and relays
// events to whoever is subscribed right now. It keeps nothing durable.
package presence

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomID names a messaging scope: "dm:<low>:<high>", "group:<id>" or the
// personal "user:<id>" room every connection joins on register.
type RoomID string

type RoomKind int

const (
	RoomDirect RoomKind = iota + 1
	RoomGroup
	RoomUser
)

// Room is a parsed RoomID.
type Room struct {
	Kind RoomKind
	// A and B are the pair for direct rooms, A < B. A is the owner for user rooms.
	A, B    uint64
	GroupID uint64
}

// DirectRoom is symmetric: DirectRoom(a, b) == DirectRoom(b, a).
func DirectRoom(a, b uint64) RoomID {
	if a > b {
		a, b = b, a
	}
	return RoomID(fmt.Sprintf("dm:%d:%d", a, b))
}

func GroupRoom(groupID uint64) RoomID {
	return RoomID("group:" + strconv.FormatUint(groupID, 10))
}

func UserRoom(userID uint64) RoomID {
	return RoomID("user:" + strconv.FormatUint(userID, 10))
}

// ParseRoom validates a client-supplied room id.
func ParseRoom(s string) (Room, error) {
	parts := strings.Split(s, ":")
	bad := fmt.Errorf("invalid room id %q", s)

	switch {
	case len(parts) == 3 && parts[0] == "dm":
		a, errA := strconv.ParseUint(parts[1], 10, 64)
		b, errB := strconv.ParseUint(parts[2], 10, 64)
		if errA != nil || errB != nil || a == 0 || a >= b {
			return Room{}, bad
		}
		return Room{Kind: RoomDirect, A: a, B: b}, nil
	case len(parts) == 2 && parts[0] == "group":
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || id == 0 {
			return Room{}, bad
		}
		return Room{Kind: RoomGroup, GroupID: id}, nil
	case len(parts) == 2 && parts[0] == "user":
		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil || id == 0 {
			return Room{}, bad
		}
		return Room{Kind: RoomUser, A: id}, nil
	}
	return Room{}, bad
}

// ID renders the canonical RoomID.
func (r Room) ID() RoomID {
	switch r.Kind {
	case RoomDirect:
		return DirectRoom(r.A, r.B)
	case RoomGroup:
		return GroupRoom(r.GroupID)
	default:
		return UserRoom(r.A)
	}
}

// Counterpart returns the other participant of a direct room.
func (r Room) Counterpart(userID uint64) (uint64, bool) {
	if r.Kind != RoomDirect {
		return 0, false
	}
	switch userID {
	case r.A:
		return r.B, true
	case r.B:
		return r.A, true
	}
	return 0, false
}
