//go:build linux

package tcpserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/poller"
	"github.com/cyberinferno/snowcast/wire"
)

// sessionPair returns a session over one end of a non-blocking stream
// socketpair and the raw peer descriptor.
func sessionPair(t *testing.T) (*Session, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)

	s := newSession(fds[0], Handle{Index: 0}, 1, "pair", logger.NewNopLogger())
	t.Cleanup(func() {
		_ = s.close()
		_ = unix.Close(fds[1])
	})
	return s, fds[1]
}

func peerWrite(t *testing.T, fd int, p []byte) {
	t.Helper()
	n, err := unix.Write(fd, p)
	require.NoError(t, err)
	require.Equal(t, len(p), n)
}

func peerReadAll(fd int) []byte {
	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n <= 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestSession_PollRead(t *testing.T) {
	t.Run("full frames then no data", func(t *testing.T) {
		s, peer := sessionPair(t)
		hello := wire.EncodeCommand(wire.NewHello(16384))
		station := wire.EncodeCommand(wire.NewSetStation(2))
		peerWrite(t, peer, append(hello[:], station[:]...))

		res, cmd, err := s.PollRead()
		require.NoError(t, err)
		assert.Equal(t, ReadCommand, res)
		assert.Equal(t, wire.NewHello(16384), cmd)

		res, cmd, err = s.PollRead()
		require.NoError(t, err)
		assert.Equal(t, ReadCommand, res)
		assert.Equal(t, uint16(2), cmd.Station())

		res, _, err = s.PollRead()
		assert.NoError(t, err)
		assert.Equal(t, ReadNoData, res)
	})

	t.Run("short read is fatal", func(t *testing.T) {
		s, peer := sessionPair(t)
		peerWrite(t, peer, []byte{1, 0})

		res, _, err := s.PollRead()
		assert.Equal(t, ReadFatal, res)
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})

	t.Run("end of stream is fatal", func(t *testing.T) {
		s, peer := sessionPair(t)
		require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

		res, _, err := s.PollRead()
		assert.Equal(t, ReadFatal, res)
		assert.ErrorIs(t, err, ErrPeerClosed)
	})

	t.Run("bad descriptor is fatal", func(t *testing.T) {
		s := newSession(-1, Handle{}, 1, "bad", logger.NewNopLogger())

		res, _, err := s.PollRead()
		assert.Equal(t, ReadFatal, res)
		assert.ErrorIs(t, err, unix.EBADF)
	})
}

func TestSession_PollWrite(t *testing.T) {
	t.Run("delivers queued buffers in order", func(t *testing.T) {
		s, peer := sessionPair(t)
		s.Enqueue([]byte{0, 0, 3})
		s.Enqueue(wire.EncodeAnnounce("a.mp3"))
		s.Enqueue(wire.EncodeAnnounce("b.mp3"))
		require.True(t, s.Interest().Has(poller.Writable))

		for s.Pending() > 0 {
			require.NoError(t, s.PollWrite())
		}

		want := append([]byte{0, 0, 3}, wire.EncodeAnnounce("a.mp3")...)
		want = append(want, wire.EncodeAnnounce("b.mp3")...)
		assert.Equal(t, want, peerReadAll(peer))
		assert.False(t, s.Interest().Has(poller.Writable))
	})

	t.Run("partial writes resume at the offset", func(t *testing.T) {
		s, peer := sessionPair(t)
		require.NoError(t, unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

		big := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
		s.Enqueue(big)
		s.Enqueue([]byte{0, 0, 1})

		var got []byte
		partial := false
		for s.Pending() > 0 {
			require.NoError(t, s.PollWrite())
			if s.Pending() == 2 && s.offset > 0 {
				partial = true
			}
			got = append(got, peerReadAll(peer)...)
		}
		got = append(got, peerReadAll(peer)...)

		assert.True(t, partial, "the large buffer needed more than one write")
		assert.Equal(t, append(append([]byte{}, big...), 0, 0, 1), got)
		assert.Zero(t, s.offset)
	})

	t.Run("would block changes nothing", func(t *testing.T) {
		s, _ := sessionPair(t)
		require.NoError(t, unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

		big := bytes.Repeat([]byte{7}, 1<<20)
		s.Enqueue(big)
		for i := 0; i < 64 && s.offset < len(big); i++ {
			require.NoError(t, s.PollWrite())
		}
		offset := s.offset

		require.NoError(t, s.PollWrite())
		assert.Equal(t, offset, s.offset)
		assert.Equal(t, 1, s.Pending())
		assert.True(t, s.Interest().Has(poller.Writable))
	})

	t.Run("pending removal resets once drained", func(t *testing.T) {
		s, peer := sessionPair(t)
		s.Enqueue(wire.EncodeInvalid(msgUnrecognizedCommand))
		s.MarkPendingRemoval()
		assert.False(t, s.IsReset())

		require.NoError(t, s.PollWrite())

		assert.True(t, s.IsReset())
		assert.Equal(t, reasonProtocolViolation, s.ResetReason())
		assert.Equal(t, wire.EncodeInvalid(msgUnrecognizedCommand), peerReadAll(peer))
	})

	t.Run("closed peer is a hard error", func(t *testing.T) {
		s, peer := sessionPair(t)
		require.NoError(t, unix.Close(peer))
		s.Enqueue([]byte{0, 0, 1})

		assert.Error(t, s.PollWrite())
	})
}

func TestSession_Register(t *testing.T) {
	p, err := poller.New()
	require.NoError(t, err)
	defer p.Close()

	t.Run("register inserts readable interest", func(t *testing.T) {
		s, _ := sessionPair(t)
		s.MarkIdle()

		require.NoError(t, s.Register(p))

		assert.Equal(t, poller.Readable|poller.Hangup, s.Interest())
		assert.False(t, s.IsIdle())
	})

	t.Run("rearm of an unregistered descriptor marks reset", func(t *testing.T) {
		s, _ := sessionPair(t)

		assert.Error(t, s.Reregister(p))
		assert.True(t, s.IsReset())
		assert.Equal(t, reasonRearmFailed, s.ResetReason())
	})

	t.Run("first reset reason wins", func(t *testing.T) {
		s, _ := sessionPair(t)
		s.MarkReset(reasonHangup)
		s.MarkReset(reasonShutdown)
		assert.Equal(t, reasonHangup, s.ResetReason())
	})
}
