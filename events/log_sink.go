package events

import "github.com/cyberinferno/snowcast/logger"

// LogSink writes every event to a logger. Resets and invalid commands are
// logged at warn level, everything else at info.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish implements Sink.
func (s *LogSink) Publish(ev Event) {
	fields := []logger.Field{
		{Key: "serial", Value: ev.Serial},
		{Key: "handle", Value: ev.Handle},
		{Key: "peer", Value: ev.Peer},
	}
	if ev.Station != NoStation {
		fields = append(fields, logger.Field{Key: "station", Value: ev.Station})
	}
	if ev.UDPPort != 0 {
		fields = append(fields, logger.Field{Key: "udp_port", Value: ev.UDPPort})
	}
	if ev.Reason != "" {
		fields = append(fields, logger.Field{Key: "reason", Value: ev.Reason})
	}

	switch ev.Type {
	case Reset, InvalidCommand:
		s.log.Warn(string(ev.Type), fields...)
	default:
		s.log.Info(string(ev.Type), fields...)
	}
}
