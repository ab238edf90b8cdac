package tcpserver

import (
	"github.com/cyberinferno/snowcast/events"
	"github.com/cyberinferno/snowcast/stations"
	"github.com/cyberinferno/snowcast/wire"
)

// transition is what a command did to a session, for events and metrics.
type transition struct {
	event  events.Type
	reason string
}

// protocol applies client commands to sessions.
type protocol struct {
	registry *stations.Registry
	replies  *replyCache
}

// apply runs one command through the session's state machine. Replies are
// queued on the session; violations queue an InvalidCommand reply and mark
// the session for removal once it has been sent. Commands arriving after
// that are ignored and yield a zero transition.
func (p *protocol) apply(s *Session, cmd wire.Command) transition {
	if s.pendingRemoval || s.reset {
		return transition{}
	}

	switch cmd.Kind {
	case wire.Hello:
		if s.handshakeComplete {
			return p.reject(s, msgRepeatedHello)
		}

		s.udpPort = cmd.UDPPort()
		s.handshakeComplete = true
		s.state = Ready
		s.Enqueue(p.replies.welcome())
		return transition{event: events.HandshakeCompleted}

	case wire.SetStation:
		if !s.handshakeComplete {
			return p.reject(s, msgSetStationBeforeHello)
		}

		station := int(cmd.Station())
		if station >= p.registry.Len() {
			return p.reject(s, msgInvalidStation)
		}

		s.station = station
		s.state = Tuned
		s.Enqueue(p.replies.announce(station))
		return transition{event: events.StationSelected}

	default:
		return p.reject(s, msgUnrecognizedCommand)
	}
}

func (p *protocol) reject(s *Session, msg string) transition {
	s.Enqueue(p.replies.invalid(msg))
	s.MarkPendingRemoval()
	return transition{event: events.InvalidCommand, reason: msg}
}
