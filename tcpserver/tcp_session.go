package tcpserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/eapache/queue"

	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/poller"
	"github.com/cyberinferno/snowcast/wire"
)

var (
	// ErrIncompleteFrame is reported when a read returns fewer bytes than a
	// command frame. The server does not reassemble frames.
	ErrIncompleteFrame = errors.New("tcpserver: incomplete command frame")

	// ErrPeerClosed is reported when a read hits end of stream.
	ErrPeerClosed = errors.New("tcpserver: peer closed connection")
)

// NoStation is the station of a session that has not selected one.
const NoStation = -1

// Reset reasons, also used as metric labels.
const (
	reasonPeerClosed        = "peer_closed"
	reasonIncompleteFrame   = "incomplete_frame"
	reasonReadError         = "read_error"
	reasonWriteError        = "write_error"
	reasonHangup            = "hangup"
	reasonSocketError       = "socket_error"
	reasonProtocolViolation = "protocol_violation"
	reasonRearmFailed       = "rearm_failed"
	reasonShutdown          = "shutdown"
)

// SessionState is the protocol state of a connection.
type SessionState uint8

const (
	AwaitingHello SessionState = iota
	Ready
	Tuned
)

// String returns the state name used in logs and the console.
func (s SessionState) String() string {
	switch s {
	case AwaitingHello:
		return "awaiting_hello"
	case Ready:
		return "ready"
	case Tuned:
		return "tuned"
	default:
		return "unknown"
	}
}

// ReadResult classifies the outcome of Session.PollRead.
type ReadResult uint8

const (
	// ReadNoData means the socket has nothing more to read right now.
	ReadNoData ReadResult = iota
	// ReadCommand means one complete frame was read and decoded.
	ReadCommand
	// ReadFatal means the connection must be reset.
	ReadFatal
)

const armMode = poller.EdgeTriggered | poller.OneShot

// Session is one accepted connection. It owns its descriptor and is only
// touched by the event loop goroutine.
type Session struct {
	fd     int
	handle Handle
	serial uint32
	peer   string
	since  time.Time
	log    logger.Logger

	interest poller.Interest
	outbound *queue.Queue
	offset   int

	idle           bool
	reset          bool
	pendingRemoval bool
	resetReason    string

	state             SessionState
	handshakeComplete bool
	station           int
	udpPort           uint16

	frame [wire.CommandSize]byte
}

func newSession(fd int, h Handle, serial uint32, peer string, log logger.Logger) *Session {
	return &Session{
		fd:       fd,
		handle:   h,
		serial:   serial,
		peer:     peer,
		since:    time.Now(),
		log:      log,
		interest: poller.Hangup,
		outbound: queue.New(),
		station:  NoStation,
	}
}

// Handle returns the session's table handle.
func (s *Session) Handle() Handle { return s.handle }

// Serial returns the connection serial, unique for the life of the process.
func (s *Session) Serial() uint32 { return s.serial }

// Peer returns the remote address.
func (s *Session) Peer() string { return s.peer }

// State returns the protocol state.
func (s *Session) State() SessionState { return s.state }

// HandshakeComplete reports whether Hello has been accepted.
func (s *Session) HandshakeComplete() bool { return s.handshakeComplete }

// Station returns the selected station or NoStation.
func (s *Session) Station() int { return s.station }

// UDPPort returns the datagram port announced in Hello, 0 before Hello.
func (s *Session) UDPPort() uint16 { return s.udpPort }

// Interest returns the readiness set the session is armed with.
func (s *Session) Interest() poller.Interest { return s.interest }

// Pending returns the number of queued outbound buffers.
func (s *Session) Pending() int { return s.outbound.Length() }

// IsIdle reports whether the session was notified this cycle and needs re-arming.
func (s *Session) IsIdle() bool { return s.idle }

// IsReset reports whether the session is due for removal.
func (s *Session) IsReset() bool { return s.reset }

// PendingRemoval reports whether the session closes once its queue drains.
func (s *Session) PendingRemoval() bool { return s.pendingRemoval }

// ResetReason returns why the session was reset.
func (s *Session) ResetReason() string { return s.resetReason }

// MarkIdle flags the session for re-arming on the next tick.
func (s *Session) MarkIdle() { s.idle = true }

// MarkReset flags the session for removal on the next tick. The first reason
// given is kept.
func (s *Session) MarkReset(reason string) {
	if !s.reset {
		s.reset = true
		s.resetReason = reason
	}
}

// MarkPendingRemoval makes the session close after its queue drains. Frames
// read afterwards are ignored.
func (s *Session) MarkPendingRemoval() {
	s.pendingRemoval = true
	if s.outbound.Length() == 0 {
		s.MarkReset(reasonProtocolViolation)
	}
}

// Register adds the session's descriptor to p. Readable interest is inserted
// here.
func (s *Session) Register(p *poller.Poller) error {
	s.interest |= poller.Readable
	return s.arm(p.Register)
}

// Reregister re-arms the one-shot registration with the current interest.
func (s *Session) Reregister(p *poller.Poller) error {
	return s.arm(p.Reregister)
}

func (s *Session) arm(ctl func(fd int, token poller.Token, interest poller.Interest, mode poller.Mode) error) error {
	if err := ctl(s.fd, s.handle.Token(), s.interest, armMode); err != nil {
		s.MarkReset(reasonRearmFailed)
		return err
	}

	s.idle = false
	return nil
}

// Enqueue appends buf to the outbound queue and adds writable interest. buf
// is sent as is and must not be modified afterwards.
func (s *Session) Enqueue(buf []byte) {
	s.outbound.Add(buf)
	s.interest |= poller.Writable
}

// PollRead performs one non-blocking read of a command frame.
//
// Returns:
//   - ReadCommand and the decoded command when a full frame was read
//   - ReadNoData when the socket would block
//   - ReadFatal with ErrPeerClosed, ErrIncompleteFrame or the read error
func (s *Session) PollRead() (ReadResult, wire.Command, error) {
	for retried := false; ; retried = true {
		n, err := sysRead(s.fd, s.frame[:])
		switch {
		case err != nil && isWouldBlock(err):
			return ReadNoData, wire.Command{}, nil
		case err != nil && isInterrupted(err) && !retried:
			continue
		case err != nil:
			return ReadFatal, wire.Command{}, fmt.Errorf("read: %w", err)
		case n == 0:
			return ReadFatal, wire.Command{}, ErrPeerClosed
		case n < wire.CommandSize:
			return ReadFatal, wire.Command{}, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteFrame, n, wire.CommandSize)
		default:
			return ReadCommand, wire.DecodeCommand(s.frame), nil
		}
	}
}

// PollWrite makes one write attempt for the head of the outbound queue,
// starting at the offset left by any earlier partial write. When the queue
// is empty afterwards writable interest is dropped, and a session pending
// removal is reset.
//
// Returns:
//   - A write error other than would-block; the caller resets the session
func (s *Session) PollWrite() error {
	if s.outbound.Length() > 0 {
		head := s.outbound.Peek().([]byte)

		n, err := sysWrite(s.fd, head[s.offset:])
		switch {
		case err == nil:
			s.offset += n
			if s.offset >= len(head) {
				s.outbound.Remove()
				s.offset = 0
			}
		case isWouldBlock(err), isInterrupted(err):
		default:
			return fmt.Errorf("write: %w", err)
		}
	}

	if s.outbound.Length() == 0 {
		s.interest &^= poller.Writable
		if s.pendingRemoval {
			s.MarkReset(reasonProtocolViolation)
		}
	}

	return nil
}

func (s *Session) close() error {
	return sysClose(s.fd)
}
