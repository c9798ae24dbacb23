package presence

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// RoomLocks serializes work per room inside one process. Rooms hash onto a
// fixed set of mutexes; two rooms may share a stripe, which only costs some
// parallelism. The zero value is ready to use.
type RoomLocks struct {
	stripes [lockStripes]sync.Mutex
}

// Lock blocks until room's stripe is held and returns its unlock func.
func (l *RoomLocks) Lock(room RoomID) func() {
	m := &l.stripes[xxhash.Sum64String(string(room))%lockStripes]
	m.Lock()
	return m.Unlock
}
