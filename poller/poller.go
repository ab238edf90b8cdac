// Package poller wraps the operating system readiness multiplexer used by the
// control server. On Linux it is epoll; other platforms get a stub whose
// constructor fails with ErrUnsupported.
//
// A Poller is not safe for concurrent use except for Waker.Wake, which may be
// called from any goroutine to interrupt a blocking Wait.
package poller

import "errors"

// ErrUnsupported is returned by New on platforms without an implementation.
var ErrUnsupported = errors.New("poller: platform not supported")

// Token is the caller supplied value returned with every event for a
// registered descriptor.
type Token uint64

// Interest is the set of readiness categories a descriptor is registered for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
	Hangup
)

// Has reports whether all categories in o are present in i.
func (i Interest) Has(o Interest) bool {
	return i&o == o
}

// String renders the interest set as a compact flag list, e.g. "rw-".
func (i Interest) String() string {
	b := []byte("---")
	if i.Has(Readable) {
		b[0] = 'r'
	}
	if i.Has(Writable) {
		b[1] = 'w'
	}
	if i.Has(Hangup) {
		b[2] = 'h'
	}
	return string(b)
}

// Mode controls how notifications are delivered for a registration.
type Mode uint8

const (
	// EdgeTriggered reports a category once per transition to ready.
	EdgeTriggered Mode = 1 << iota
	// OneShot disables the registration after one notification until it is
	// re-armed with Reregister.
	OneShot
)

// Event is one readiness notification.
type Event struct {
	Token    Token
	Readable bool
	Writable bool
	Error    bool
	Hangup   bool
}
