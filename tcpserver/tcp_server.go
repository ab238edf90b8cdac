// Package tcpserver implements the snowcast control server: a single
// goroutine, readiness driven event loop that accepts TCP connections, reads
// fixed size command frames, runs each connection through the protocol state
// machine and writes replies from per-connection FIFO queues.
//
// All sockets are non-blocking and registered edge-triggered and one-shot.
// Every notification marks the connection idle and the tick at the end of
// each poll cycle re-arms idle connections and removes reset ones.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cyberinferno/snowcast/events"
	"github.com/cyberinferno/snowcast/idgenerator"
	"github.com/cyberinferno/snowcast/logger"
	"github.com/cyberinferno/snowcast/perfmonitor"
	"github.com/cyberinferno/snowcast/poller"
	"github.com/cyberinferno/snowcast/stations"
)

// ErrServerClosed is returned by Run when the server has already been run.
var ErrServerClosed = errors.New("tcpserver: server closed")

// Config holds the server's startup parameters.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string
	// MaxConnections is the connection table capacity.
	MaxConnections int
	// EventBatch is how many readiness events one Wait can return.
	EventBatch int
	// Backlog is the listen backlog.
	Backlog int
	// SlowCycle is the poll cycle duration above which a warning is logged;
	// zero disables the warning.
	SlowCycle time.Duration
}

// DefaultConfig returns a Config listening on loopback with 1024 slots.
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:16800",
		MaxConnections: 1024,
		EventBatch:     256,
		Backlog:        128,
		SlowCycle:      50 * time.Millisecond,
	}
}

// Option configures optional collaborators of a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default discards everything.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithSink sets where session events go. The default logs them through the
// server logger.
func WithSink(sink events.Sink) Option {
	return func(s *Server) {
		s.sink = sink
	}
}

// WithMetrics registers the server's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Server) {
		s.metricsReg = reg
	}
}

// Server is the control server. Create it with New and drive it with Run.
type Server struct {
	cfg      Config
	registry *stations.Registry
	log      logger.Logger
	sink     events.Sink

	metricsReg prometheus.Registerer
	metrics    *metrics

	poller *poller.Poller
	lfd    int
	addr   string

	wakeMu    sync.Mutex
	waker     *poller.Waker
	wakerGone bool
	started   atomic.Bool
	stopping  atomic.Bool

	table   *Table
	proto   *protocol
	replies *replyCache
	view    *View
	serials *idgenerator.Sequence
	monitor *perfmonitor.Monitor

	events []poller.Event
	doomed []*Session
}

// New binds the listening socket and prepares the event loop.
//
// Parameters:
//   - cfg: Listen address and limits; zero fields take DefaultConfig values
//   - registry: The stations offered to clients
//   - opts: Optional collaborators
//
// Returns:
//   - The server, ready to Run
//   - An error if the socket cannot be bound or the poller cannot be created
func New(cfg Config, registry *stations.Registry, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, stations.ErrNoStations
	}

	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxConnections > MaxCapacity {
		return nil, fmt.Errorf("max connections %d exceeds %d", cfg.MaxConnections, MaxCapacity)
	}
	if cfg.EventBatch <= 0 {
		cfg.EventBatch = def.EventBatch
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = def.Backlog
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		log:      logger.NewNopLogger(),
		lfd:      -1,
		table:    NewTable(cfg.MaxConnections),
		view:     newView(),
		serials:  idgenerator.NewSequence(0),
		monitor:  perfmonitor.NewMonitor(),
		events:   make([]poller.Event, cfg.EventBatch),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = events.NewLogSink(s.log)
	}

	s.replies = newReplyCache(registry)
	s.replies.warm()
	s.proto = &protocol{registry: registry, replies: s.replies}
	s.metrics = newMetrics(s.metricsReg, s.view, registry)

	p, err := poller.New()
	if err != nil {
		return nil, err
	}

	lfd, addr, err := listenTCP(cfg.Addr, cfg.Backlog)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	w, err := poller.NewWaker(p, wakerHandle.Token())
	if err != nil {
		_ = sysClose(lfd)
		_ = p.Close()
		return nil, err
	}

	s.poller, s.lfd, s.addr, s.waker = p, lfd, addr, w
	return s, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string { return s.addr }

// View returns the published list of live connections.
func (s *Server) View() *View { return s.view }

// Registry returns the stations the server offers.
func (s *Server) Registry() *stations.Registry { return s.registry }

// Run drives the event loop on the calling goroutine, which is locked to its
// OS thread, until ctx is done or Stop is called. Every connection is closed
// before Run returns.
//
// Returns:
//   - nil after a requested stop
//   - ErrServerClosed if Run was already called
//   - An error if the listener cannot be registered or the poller fails
func (s *Server) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerClosed
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer s.shutdown()

	if err := s.poller.Register(s.lfd, listenerHandle.Token(), poller.Readable, poller.EdgeTriggered); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	s.log.Info("control server listening",
		logger.Field{Key: "addr", Value: s.addr},
		logger.Field{Key: "stations", Value: s.registry.Len()},
		logger.Field{Key: "max_conns", Value: s.table.Cap()})

	for !s.stopping.Load() {
		n, err := s.poller.Wait(s.events, -1)
		if err != nil {
			s.log.Error("poll failed", logger.Field{Key: "error", Value: err})
			return err
		}

		s.monitor.Start()
		for i := 0; i < n; i++ {
			s.dispatch(s.events[i])
		}
		s.tick()
		elapsed := s.monitor.Stop()

		s.metrics.cycle(elapsed, s.monitor.Max())
		if s.cfg.SlowCycle > 0 && elapsed > s.cfg.SlowCycle {
			s.log.Warn("slow poll cycle",
				logger.Field{Key: "elapsed", Value: elapsed},
				logger.Field{Key: "events", Value: n})
		}
	}

	return nil
}

// Stop asks a running event loop to return. It is safe to call from any
// goroutine and more than once.
func (s *Server) Stop() {
	s.stopping.Store(true)

	s.wakeMu.Lock()
	defer s.wakeMu.Unlock()
	if s.wakerGone {
		return
	}
	if err := s.waker.Wake(); err != nil {
		s.log.Error("wake event loop", logger.Field{Key: "error", Value: err})
	}
}

func (s *Server) dispatch(ev poller.Event) {
	h := handleFromToken(ev.Token)

	switch h.Index {
	case wakerIndex:
		s.waker.Drain()
		return
	case listenerIndex:
		if ev.Error {
			s.log.Warn("listener reported an error condition")
		}
		if ev.Readable {
			s.acceptAll()
		}
		return
	}

	sess, ok := s.table.Get(h)
	if !ok {
		return
	}

	if ev.Error || ev.Hangup {
		reason := reasonHangup
		if ev.Error {
			reason = reasonSocketError
		}
		sess.MarkReset(reason)
		return
	}

	if ev.Writable {
		if err := sess.PollWrite(); err != nil {
			sess.log.Debug("write failed", logger.Field{Key: "error", Value: err})
			sess.MarkReset(reasonWriteError)
		}
	}

	if ev.Readable && !sess.reset {
		s.drain(sess)
	}

	sess.MarkIdle()
}

// drain reads frames until the socket would block or the connection fails.
func (s *Server) drain(sess *Session) {
	for {
		res, cmd, err := sess.PollRead()
		switch res {
		case ReadNoData:
			return
		case ReadFatal:
			reason := reasonReadError
			switch {
			case errors.Is(err, ErrPeerClosed):
				reason = reasonPeerClosed
			case errors.Is(err, ErrIncompleteFrame):
				reason = reasonIncompleteFrame
			}
			sess.log.Debug("read failed", logger.Field{Key: "error", Value: err})
			sess.MarkReset(reason)
			return
		}

		s.metrics.command(cmd.Kind.String())
		tr := s.proto.apply(sess, cmd)
		if tr.event == "" {
			continue
		}

		s.view.publish(sess)
		s.emit(tr.event, sess, tr.reason)
	}
}

func (s *Server) acceptAll() {
	for {
		fd, peer, err := acceptConn(s.lfd)
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if isRetryableAccept(err) {
				continue
			}
			s.log.Error("accept failed", logger.Field{Key: "error", Value: err})
			return
		}

		h, err := s.table.Allocate()
		if err != nil {
			s.metrics.connectionRejected()
			_ = sysClose(fd)
			s.log.Warn("connection table full, rejecting connection",
				logger.Field{Key: "peer", Value: peer},
				logger.Field{Key: "capacity", Value: s.table.Cap()})
			continue
		}

		serial := s.serials.Next()
		sess := newSession(fd, h, serial, peer, s.log.With(
			logger.Field{Key: "serial", Value: serial},
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "peer", Value: peer}))

		if err := sess.Register(s.poller); err != nil {
			s.table.Remove(h)
			s.metrics.connectionRejected()
			_ = sess.close()
			s.log.Warn("register connection", logger.Field{Key: "peer", Value: peer}, logger.Field{Key: "error", Value: err})
			continue
		}

		s.table.Insert(h, sess)
		s.metrics.connectionAccepted()
		s.view.publish(sess)
		s.emit(events.Accepted, sess, "")
	}
}

// tick re-arms sessions notified this cycle and removes reset ones.
func (s *Server) tick() {
	s.doomed = s.doomed[:0]

	s.table.Range(func(sess *Session) bool {
		switch {
		case sess.reset:
			s.doomed = append(s.doomed, sess)
		case sess.idle:
			if err := sess.Reregister(s.poller); err != nil {
				sess.log.Warn("re-arm connection", logger.Field{Key: "error", Value: err})
				s.doomed = append(s.doomed, sess)
			}
		}
		return true
	})

	for _, sess := range s.doomed {
		s.remove(sess)
	}
	clear(s.doomed)
}

// remove tears a session down. The descriptor is closed last so that a peer
// seeing the close also sees the removal everywhere else.
func (s *Server) remove(sess *Session) {
	_ = s.poller.Deregister(sess.fd)
	s.table.Remove(sess.handle)
	s.metrics.connectionReset(sess.resetReason)
	s.emit(events.Reset, sess, sess.resetReason)
	s.view.remove(sess.serial)

	if err := sess.close(); err != nil {
		sess.log.Debug("close connection", logger.Field{Key: "error", Value: err})
	}
}

func (s *Server) emit(t events.Type, sess *Session, reason string) {
	s.sink.Publish(events.Event{
		Type:    t,
		Serial:  sess.serial,
		Handle:  sess.handle.String(),
		Peer:    sess.peer,
		Station: sess.station,
		UDPPort: sess.udpPort,
		Reason:  reason,
		Time:    time.Now(),
	})
}

func (s *Server) shutdown() {
	s.doomed = s.doomed[:0]
	s.table.Range(func(sess *Session) bool {
		sess.MarkReset(reasonShutdown)
		s.doomed = append(s.doomed, sess)
		return true
	})
	for _, sess := range s.doomed {
		s.remove(sess)
	}
	clear(s.doomed)

	_ = s.poller.Deregister(s.lfd)
	_ = sysClose(s.lfd)

	s.wakeMu.Lock()
	_ = s.waker.Close()
	s.wakerGone = true
	s.wakeMu.Unlock()

	_ = s.poller.Close()
	s.log.Info("control server stopped", logger.Field{Key: "cycles", Value: s.monitor.Cycles()})
}
