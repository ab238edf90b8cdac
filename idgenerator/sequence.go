// Package idgenerator hands out connection serial numbers. Serials identify a
// connection for its whole life in logs, events and the published session
// view, independent of the slot handle that the server recycles.
package idgenerator

import "sync/atomic"

// Sequence generates increasing uint32 serials in a concurrency-safe manner.
// Zero is reserved to mean "no serial" and is never returned, including after
// the counter wraps.
type Sequence struct {
	last atomic.Uint32
}

// NewSequence creates a Sequence whose first Next returns start+1 (or 1 when
// that would be zero).
//
// Parameters:
//   - start: The value to initialize the counter to
//
// Returns:
//   - A new Sequence
func NewSequence(start uint32) *Sequence {
	s := &Sequence{}
	s.last.Store(start)
	return s
}

// Next returns the next serial.
func (s *Sequence) Next() uint32 {
	for {
		if id := s.last.Add(1); id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued serial, or the start value if Next
// has not been called.
func (s *Sequence) Last() uint32 {
	return s.last.Load()
}
