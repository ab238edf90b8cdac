package events

import (
	"context"
	"sync/atomic"

	"github.com/cyberinferno/snowcast/logger"
)

// DefaultBuffer is the queue length used by network sinks when none is given.
const DefaultBuffer = 1024

// deliverFunc sends one event to its destination.
type deliverFunc func(ctx context.Context, ev Event) error

// worker decouples Publish from a slow deliverFunc.
type worker struct {
	name    string
	queue   chan Event
	deliver deliverFunc
	log     logger.Logger
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newWorker(name string, buffer int, deliver deliverFunc, log logger.Logger) *worker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &worker{
		name:    name,
		queue:   make(chan Event, buffer),
		deliver: deliver,
		log:     log.With(logger.Field{Key: "sink", Value: name}),
	}
}

// Publish enqueues ev, dropping it when the queue is full.
func (w *worker) Publish(ev Event) {
	select {
	case w.queue <- ev:
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("event queue full, dropping events")
		}
	}
}

// Run delivers queued events until ctx is done. Events still queued at that
// point are discarded.
func (w *worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.queue:
			if err := w.deliver(ctx, ev); err != nil {
				w.failed.Add(1)
				w.log.Error("event delivery failed",
					logger.Field{Key: "type", Value: string(ev.Type)},
					logger.Field{Key: "error", Value: err})
			}
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (w *worker) Dropped() uint64 { return w.dropped.Load() }

// Failed returns how many deliveries returned an error.
func (w *worker) Failed() uint64 { return w.failed.Load() }
