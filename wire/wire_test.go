package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	t.Run("hello carries big-endian udp port", func(t *testing.T) {
		cmd := DecodeCommand([CommandSize]byte{0, 0x40, 0x00})
		assert.Equal(t, Hello, cmd.Kind)
		assert.Equal(t, uint16(16384), cmd.UDPPort())
	})

	t.Run("set station carries big-endian index", func(t *testing.T) {
		cmd := DecodeCommand([CommandSize]byte{1, 0x01, 0x02})
		assert.Equal(t, SetStation, cmd.Kind)
		assert.Equal(t, uint16(0x0102), cmd.Station())
	})

	t.Run("unknown tag decodes to invalid and keeps the tag", func(t *testing.T) {
		cmd := DecodeCommand([CommandSize]byte{7, 0, 1})
		assert.Equal(t, Invalid, cmd.Kind)
		assert.Equal(t, byte(7), cmd.Tag)
		assert.Equal(t, uint16(1), cmd.Value)
	})

	t.Run("max tag is invalid", func(t *testing.T) {
		assert.Equal(t, Invalid, DecodeCommand([CommandSize]byte{0xff, 0xff, 0xff}).Kind)
	})
}

func TestEncodeCommand(t *testing.T) {
	t.Run("hello", func(t *testing.T) {
		assert.Equal(t, [CommandSize]byte{0, 0x40, 0x00}, EncodeCommand(NewHello(16384)))
	})

	t.Run("set station", func(t *testing.T) {
		assert.Equal(t, [CommandSize]byte{1, 0, 5}, EncodeCommand(NewSetStation(5)))
	})

	t.Run("invalid keeps raw tag", func(t *testing.T) {
		frame := EncodeCommand(Command{Kind: Invalid, Tag: 9, Value: 2})
		assert.Equal(t, [CommandSize]byte{9, 0, 2}, frame)
	})

	t.Run("decode inverts encode for every kind", func(t *testing.T) {
		for _, cmd := range []Command{NewHello(1), NewSetStation(65535), {Kind: Invalid, Tag: 3, Value: 4}} {
			assert.Equal(t, cmd, DecodeCommand(EncodeCommand(cmd)))
		}
	})
}

func TestEncodeReplies(t *testing.T) {
	t.Run("welcome layout", func(t *testing.T) {
		assert.Equal(t, []byte{0, 0, 3}, EncodeWelcome(3))
		assert.Equal(t, []byte{0, 0xff, 0xff}, EncodeWelcome(65535))
	})

	t.Run("announce layout", func(t *testing.T) {
		assert.Equal(t, []byte{1, 5, 'a', '.', 'm', 'p', '3'}, EncodeAnnounce("a.mp3"))
	})

	t.Run("invalid layout", func(t *testing.T) {
		assert.Equal(t, []byte{2, 3, 'b', 'a', 'd'}, EncodeInvalid("bad"))
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, []byte{1, 0}, EncodeAnnounce(""))
	})

	t.Run("text longer than one length byte is cut", func(t *testing.T) {
		buf := EncodeAnnounce(strings.Repeat("x", 300))
		require.Len(t, buf, 2+MaxTextLength)
		assert.Equal(t, byte(MaxTextLength), buf[1])
	})

	t.Run("each call returns a fresh buffer", func(t *testing.T) {
		a := EncodeAnnounce("same")
		b := EncodeAnnounce("same")
		a[2] = 'X'
		assert.Equal(t, byte('s'), b[2])
	})
}

func TestReadReply(t *testing.T) {
	t.Run("reads a sequence of replies", func(t *testing.T) {
		var stream bytes.Buffer
		stream.Write(EncodeWelcome(3))
		stream.Write(EncodeAnnounce("U2-StuckInAMoment.mp3"))
		stream.Write(EncodeInvalid("unrecognized command"))

		r, err := ReadReply(&stream)
		require.NoError(t, err)
		assert.Equal(t, Reply{Kind: Welcome, StationCount: 3}, r)

		r, err = ReadReply(&stream)
		require.NoError(t, err)
		assert.Equal(t, Reply{Kind: Announce, Text: "U2-StuckInAMoment.mp3"}, r)

		r, err = ReadReply(&stream)
		require.NoError(t, err)
		assert.Equal(t, Reply{Kind: InvalidCommand, Text: "unrecognized command"}, r)

		_, err = ReadReply(&stream)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := ReadReply(bytes.NewReader([]byte{9, 0, 0}))
		assert.ErrorIs(t, err, ErrUnknownReply)
	})

	t.Run("truncated announce", func(t *testing.T) {
		_, err := ReadReply(bytes.NewReader([]byte{1, 10, 'a'}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated welcome", func(t *testing.T) {
		_, err := ReadReply(bytes.NewReader([]byte{0, 1}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "hello", Hello.String())
	assert.Equal(t, "set_station", SetStation.String())
	assert.Equal(t, "invalid", Invalid.String())
	assert.Equal(t, "announce", Announce.String())
	assert.Equal(t, "invalid_command", InvalidCommand.String())
}
