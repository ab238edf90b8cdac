// Package events carries structured session lifecycle notifications out of
// the control server's event loop. The loop calls Sink.Publish, which must
// never block; sinks that talk to the network hand events to a background
// worker through a bounded queue and drop when it is full.
package events

import (
	"encoding/json"
	"time"
)

// Type names a session lifecycle event.
type Type string

const (
	Accepted           Type = "accepted"
	HandshakeCompleted Type = "handshake_completed"
	StationSelected    Type = "station_selected"
	InvalidCommand     Type = "invalid_command"
	Reset              Type = "reset"
)

// NoStation is the Station value of events for connections that have not
// selected a station.
const NoStation = -1

// Event describes one transition of one connection.
type Event struct {
	Type    Type      `json:"type"`
	Serial  uint32    `json:"serial"`
	Handle  string    `json:"handle"`
	Peer    string    `json:"peer"`
	Station int       `json:"station"`
	UDPPort uint16    `json:"udp_port,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Time    time.Time `json:"time"`
}

// Marshal renders the event as JSON for network sinks.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives events. Publish is called from the server's event loop and
// must return promptly.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Publish implements Sink.
func (f SinkFunc) Publish(ev Event) { f(ev) }

type multi []Sink

// Multi fans every event out to all non-nil sinks in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
