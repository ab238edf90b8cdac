// Package wire implements the fixed binary codec of the snowcast control
// protocol. Client commands are always three bytes: a one byte tag followed by
// a big-endian uint16. Server replies are either three bytes (Welcome) or a tag,
// a one byte length and that many bytes of UTF-8 text.
//
// Every function in this package is pure: no state, no I/O on the server path.
package wire

import "encoding/binary"

// CommandSize is the size in bytes of every client command frame.
const CommandSize = 3

// Command tags sent by clients.
const (
	TagHello      byte = 0
	TagSetStation byte = 1
)

// CommandKind identifies the variant of a decoded Command.
type CommandKind uint8

const (
	Hello CommandKind = iota
	SetStation
	Invalid
)

// String returns the lower case protocol name of the command kind.
func (k CommandKind) String() string {
	switch k {
	case Hello:
		return "hello"
	case SetStation:
		return "set_station"
	default:
		return "invalid"
	}
}

// Command is a decoded client command. Value holds the UDP port for Hello and
// the station index for SetStation; for Invalid it holds whatever the client
// sent after the unknown tag.
type Command struct {
	Kind  CommandKind
	Tag   byte
	Value uint16
}

// UDPPort returns the peer datagram port carried by a Hello command.
func (c Command) UDPPort() uint16 {
	return c.Value
}

// Station returns the station index carried by a SetStation command.
func (c Command) Station() uint16 {
	return c.Value
}

// DecodeCommand parses one complete command frame. Tags other than Hello and
// SetStation decode to Invalid; decoding itself never fails.
//
// Parameters:
//   - frame: Exactly CommandSize bytes as read from the connection
//
// Returns:
//   - The decoded Command
func DecodeCommand(frame [CommandSize]byte) Command {
	cmd := Command{
		Tag:   frame[0],
		Value: binary.BigEndian.Uint16(frame[1:]),
	}

	switch frame[0] {
	case TagHello:
		cmd.Kind = Hello
	case TagSetStation:
		cmd.Kind = SetStation
	default:
		cmd.Kind = Invalid
	}

	return cmd
}

// EncodeCommand serializes a command into its wire frame. Invalid commands
// keep their original tag so tests and tools can produce malformed traffic.
//
// Parameters:
//   - cmd: The command to encode
//
// Returns:
//   - The CommandSize byte frame
func EncodeCommand(cmd Command) [CommandSize]byte {
	var frame [CommandSize]byte

	switch cmd.Kind {
	case Hello:
		frame[0] = TagHello
	case SetStation:
		frame[0] = TagSetStation
	default:
		frame[0] = cmd.Tag
	}

	binary.BigEndian.PutUint16(frame[1:], cmd.Value)
	return frame
}

// NewHello builds a Hello command announcing the client's UDP port.
func NewHello(udpPort uint16) Command {
	return Command{Kind: Hello, Tag: TagHello, Value: udpPort}
}

// NewSetStation builds a SetStation command for the given station index.
func NewSetStation(station uint16) Command {
	return Command{Kind: SetStation, Tag: TagSetStation, Value: station}
}
