package tcpserver

import (
	"errors"
	"math"
	"strconv"

	"github.com/cyberinferno/snowcast/poller"
)

// ErrTableFull is returned by Table.Allocate when every slot is in use.
var ErrTableFull = errors.New("tcpserver: connection table full")

// Sentinel slot indexes for the two descriptors that are not connections.
// They sit far outside any table capacity.
const (
	listenerIndex uint32 = math.MaxUint32
	wakerIndex    uint32 = math.MaxUint32 - 1
)

// MaxCapacity is the largest connection table the server accepts.
const MaxCapacity = 1 << 24

var (
	listenerHandle = Handle{Index: listenerIndex}
	wakerHandle    = Handle{Index: wakerIndex}
)

// Handle addresses a table slot. Gen is bumped every time the slot is freed,
// so a Handle kept past its connection's removal no longer resolves.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Token packs the handle into poller user data: index in the low half,
// generation in the high half.
func (h Handle) Token() poller.Token {
	return poller.Token(uint64(h.Gen)<<32 | uint64(h.Index))
}

// handleFromToken is the inverse of Handle.Token.
func handleFromToken(t poller.Token) Handle {
	return Handle{Index: uint32(t), Gen: uint32(uint64(t) >> 32)}
}

// String renders the handle as "index/gen".
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h.Index), 10) + "/" + strconv.FormatUint(uint64(h.Gen), 10)
}

type slot struct {
	gen     uint32
	used    bool
	session *Session
}

// Table is a fixed capacity slot array of sessions with a free list. It is
// owned by the event loop goroutine and is not safe for concurrent use.
type Table struct {
	slots []slot
	free  []uint32
	live  int
}

// NewTable creates a table with room for capacity sessions. Capacity is
// clamped to [1, MaxCapacity].
func NewTable(capacity int) *Table {
	capacity = max(1, min(capacity, MaxCapacity))

	t := &Table{
		slots: make([]slot, capacity),
		free:  make([]uint32, 0, capacity),
	}
	// lowest index on top so a fresh table fills from slot 0
	for i := capacity - 1; i >= 0; i-- {
		t.free = append(t.free, uint32(i))
	}

	return t
}

// Allocate reserves a free slot.
//
// Returns:
//   - The handle of the reserved slot
//   - ErrTableFull if no slot is free
func (t *Table) Allocate() (Handle, error) {
	n := len(t.free)
	if n == 0 {
		return Handle{}, ErrTableFull
	}

	idx := t.free[n-1]
	t.free = t.free[:n-1]
	t.slots[idx].used = true

	return Handle{Index: idx, Gen: t.slots[idx].gen}, nil
}

// Insert stores s in the slot reserved by h. It reports false if h does not
// name a reserved slot.
func (t *Table) Insert(h Handle, s *Session) bool {
	sl := t.slot(h)
	if sl == nil {
		return false
	}

	if sl.session == nil {
		t.live++
	}
	sl.session = s
	return true
}

// Get returns the session at h. Stale generations and empty slots report
// false.
func (t *Table) Get(h Handle) (*Session, bool) {
	sl := t.slot(h)
	if sl == nil || sl.session == nil {
		return nil, false
	}

	return sl.session, true
}

// Remove frees the slot at h, bumps its generation and pushes it on the free
// list, where it is the next one handed out.
//
// Returns:
//   - The session that occupied the slot, if any
//   - false if h is stale or unreserved
func (t *Table) Remove(h Handle) (*Session, bool) {
	sl := t.slot(h)
	if sl == nil {
		return nil, false
	}

	s := sl.session
	if s != nil {
		t.live--
	}

	sl.session = nil
	sl.used = false
	sl.gen++
	t.free = append(t.free, h.Index)

	return s, true
}

// Len returns the number of live sessions.
func (t *Table) Len() int { return t.live }

// Cap returns the table capacity.
func (t *Table) Cap() int { return len(t.slots) }

// Range calls fn for every live session in slot order until fn returns
// false.
func (t *Table) Range(fn func(s *Session) bool) {
	for i := range t.slots {
		if s := t.slots[i].session; s != nil {
			if !fn(s) {
				return
			}
		}
	}
}

func (t *Table) slot(h Handle) *slot {
	if int64(h.Index) >= int64(len(t.slots)) {
		return nil
	}

	sl := &t.slots[h.Index]
	if !sl.used || sl.gen != h.Gen {
		return nil
	}

	return sl
}
