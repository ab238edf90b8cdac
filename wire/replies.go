package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cyberinferno/snowcast/utils"
)

// Reply tags sent by the server.
const (
	TagWelcome        byte = 0
	TagAnnounce       byte = 1
	TagInvalidCommand byte = 2
)

// MaxTextLength is the longest song name or error message a reply can carry.
const MaxTextLength = 255

// ErrUnknownReply is returned by ReadReply when the server sends a tag it does
// not recognise.
var ErrUnknownReply = errors.New("wire: unknown reply tag")

// ReplyKind identifies the variant of a Reply.
type ReplyKind uint8

const (
	Welcome ReplyKind = iota
	Announce
	InvalidCommand
)

// String returns the lower case protocol name of the reply kind.
func (k ReplyKind) String() string {
	switch k {
	case Welcome:
		return "welcome"
	case Announce:
		return "announce"
	case InvalidCommand:
		return "invalid_command"
	default:
		return "unknown"
	}
}

// Reply is a decoded server reply. StationCount is set for Welcome, Text for
// Announce (the song name) and InvalidCommand (the reason).
type Reply struct {
	Kind         ReplyKind
	StationCount uint16
	Text         string
}

// EncodeWelcome serializes a Welcome reply.
//
// Parameters:
//   - stationCount: Number of stations the server offers
//
// Returns:
//   - A new 3 byte buffer
func EncodeWelcome(stationCount uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = TagWelcome
	binary.BigEndian.PutUint16(buf[1:], stationCount)
	return buf
}

// EncodeAnnounce serializes an Announce reply carrying a song name. Names are
// expected to be at most MaxTextLength bytes; longer names are cut.
//
// Parameters:
//   - name: The song currently playing on the selected station
//
// Returns:
//   - A new buffer of 2+len(name) bytes
func EncodeAnnounce(name string) []byte {
	return encodeText(TagAnnounce, name)
}

// EncodeInvalid serializes an InvalidCommand reply carrying a reason.
//
// Parameters:
//   - message: Human readable reason, at most MaxTextLength bytes
//
// Returns:
//   - A new buffer of 2+len(message) bytes
func EncodeInvalid(message string) []byte {
	return encodeText(TagInvalidCommand, message)
}

func encodeText(tag byte, text string) []byte {
	text, _ = utils.TruncateUTF8(text, MaxTextLength)

	buf := make([]byte, 2+len(text))
	buf[0] = tag
	buf[1] = byte(len(text))
	copy(buf[2:], text)
	return buf
}

// ReadReply reads exactly one reply from r. It is used by clients, which read
// from a blocking stream and therefore can reassemble replies split across
// segments.
//
// Parameters:
//   - r: The stream to read from
//
// Returns:
//   - The decoded Reply
//   - ErrUnknownReply for an unrecognised tag, or the underlying read error
//     (io.EOF when the stream ends cleanly before a reply starts)
func ReadReply(r io.Reader) (Reply, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:1]); err != nil {
		return Reply{}, err
	}

	switch head[0] {
	case TagWelcome:
		var count [2]byte
		if _, err := io.ReadFull(r, count[:]); err != nil {
			return Reply{}, fmt.Errorf("read welcome: %w", err)
		}

		return Reply{Kind: Welcome, StationCount: binary.BigEndian.Uint16(count[:])}, nil
	case TagAnnounce, TagInvalidCommand:
		if _, err := io.ReadFull(r, head[1:]); err != nil {
			return Reply{}, fmt.Errorf("read reply length: %w", err)
		}

		text := make([]byte, head[1])
		if _, err := io.ReadFull(r, text); err != nil {
			return Reply{}, fmt.Errorf("read reply text: %w", err)
		}

		kind := Announce
		if head[0] == TagInvalidCommand {
			kind = InvalidCommand
		}

		return Reply{Kind: kind, Text: string(text)}, nil
	default:
		return Reply{}, fmt.Errorf("%w: %d", ErrUnknownReply, head[0])
	}
}
