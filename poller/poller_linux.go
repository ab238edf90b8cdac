//go:build linux

package poller

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Poller is an epoll instance.
type Poller struct {
	epfd int
	raw  []unix.EpollEvent
}

// New creates an epoll instance.
//
// Returns:
//   - The poller, or an error if epoll_create1 fails
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	return &Poller{epfd: epfd}, nil
}

// Register adds fd to the watch list.
//
// Parameters:
//   - fd: The descriptor to watch
//   - token: Value reported back with every event for fd
//   - interest: Readiness categories to report
//   - mode: Edge-triggered and/or one-shot delivery
//
// Returns:
//   - An error if epoll_ctl fails
func (p *Poller) Register(fd int, token Token, interest Interest, mode Mode) error {
	ev := encode(token, interest, mode)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}

	return nil
}

// Reregister replaces the interest set of an already registered fd. For
// one-shot registrations this re-arms the descriptor; the kernel re-checks
// readiness, so data that arrived while disarmed is reported on the next Wait.
func (p *Poller) Reregister(fd int, token Token, interest Interest, mode Mode) error {
	ev := encode(token, interest, mode)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}

	return nil
}

// Deregister removes fd from the watch list. Closing fd has the same effect,
// so callers about to close may ignore the error.
func (p *Poller) Deregister(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}

	return nil
}

// Wait blocks until at least one registered descriptor is ready, then fills
// events. A negative timeout blocks indefinitely. Interruption by a signal is
// reported as zero events and no error.
//
// Parameters:
//   - events: Destination slice; at most len(events) events are returned
//   - timeoutMs: Milliseconds to wait, or -1 for no timeout
//
// Returns:
//   - The number of events written to events
//   - An error if epoll_wait fails for any reason other than EINTR
func (p *Poller) Wait(events []Event, timeoutMs int) (int, error) {
	if len(events) == 0 {
		return 0, errors.New("poller: empty event buffer")
	}

	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		events[i] = decode(raw[i])
	}

	return n, nil
}

// Close releases the epoll descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

func encode(token Token, interest Interest, mode Mode) unix.EpollEvent {
	var flags uint32
	if interest.Has(Readable) {
		flags |= unix.EPOLLIN
	}
	if interest.Has(Writable) {
		flags |= unix.EPOLLOUT
	}
	if interest.Has(Hangup) {
		flags |= unix.EPOLLRDHUP
	}
	if mode&EdgeTriggered != 0 {
		flags |= unix.EPOLLET
	}
	if mode&OneShot != 0 {
		flags |= unix.EPOLLONESHOT
	}

	return unix.EpollEvent{
		Events: flags,
		Fd:     int32(uint32(token)),
		Pad:    int32(uint32(token >> 32)),
	}
}

func decode(ev unix.EpollEvent) Event {
	return Event{
		Token:    Token(uint32(ev.Fd)) | Token(uint32(ev.Pad))<<32,
		Readable: ev.Events&unix.EPOLLIN != 0,
		Writable: ev.Events&unix.EPOLLOUT != 0,
		Error:    ev.Events&unix.EPOLLERR != 0,
		Hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
	}
}

// Waker interrupts a blocking Wait from another goroutine. It is an eventfd
// registered with the poller for readable interest.
type Waker struct {
	fd int
}

// NewWaker creates an eventfd and registers it with p, edge-triggered, under
// token.
//
// Returns:
//   - The waker, or an error if the eventfd cannot be created or registered
func NewWaker(p *Poller, token Token) (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	if err := p.Register(fd, token, Readable, EdgeTriggered); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &Waker{fd: fd}, nil
}

// Wake makes the poller's current or next Wait return with the waker's token.
// It is safe for concurrent use.
func (w *Waker) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)

	_, err := unix.Write(w.fd, one[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("wake: %w", err)
	}

	return nil
}

// Drain resets the eventfd counter after a wakeup was observed.
func (w *Waker) Drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.fd, buf[:]); err != nil {
			return
		}
	}
}

// Close releases the eventfd. Closing also removes it from the poller.
func (w *Waker) Close() error {
	return unix.Close(w.fd)
}
