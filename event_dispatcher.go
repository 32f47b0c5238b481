package goSession

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// expiredEventWait bounds how long a token-expired event waits for room in a full queue.
var expiredEventWait = time.Second

// eventTypes indexes per-type drop counters. Unknown types share the last slot.
var eventTypes = [...]EventType{EventTokenExpired, EventTokenRefreshed, EventLoggedIn, EventLoggedOut, ""}

func eventTypeIndex(typ EventType) int {
	for i, t := range eventTypes[:len(eventTypes)-1] {
		if t == typ {
			return i
		}
	}
	return len(eventTypes) - 1
}

// eventDispatcher hands session events to the host sink on one goroutine, so a slow or
// panicking sink can neither stall a request nor stop later events.
//
// Under DropIfFull, lifecycle notices are dropped when the queue is full. token-expired
// is what hosts use to discard user state, so it instead waits up to expiredEventWait.
type eventDispatcher struct {
	sink       EventSink
	log        *slog.Logger
	dropIfFull bool

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}

	dropped   [len(eventTypes)]atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newEventDispatcher(cfg EventsConfig, sink EventSink, logger *slog.Logger) *eventDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &eventDispatcher{
		sink:       sink,
		log:        logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *eventDispatcher) run() {
	defer close(d.finished)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("goSession: event sink panicked", "event", ev.Type, "event_id", ev.ID, "panic", r)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. It never blocks a request on a lifecycle notice when DropIfFull is set.
func (d *eventDispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && ev.Type != EventTokenExpired {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.drop(ev)
		}
		return
	}

	var timeout <-chan time.Time
	if ev.Type == EventTokenExpired {
		timer := time.NewTimer(expiredEventWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case d.queue <- ev:
	case <-d.stop:
	case <-ctx.Done():
		d.drop(ev)
	case <-timeout:
		d.drop(ev)
	}
}

func (d *eventDispatcher) drop(ev Event) {
	d.dropped[eventTypeIndex(ev.Type)].Add(1)
	if ev.Type == EventTokenExpired {
		d.log.Error("goSession: token-expired event dropped; event sink is not keeping up",
			"event_id", ev.ID,
			"reason", ev.Reason,
		)
	}
}

// Close delivers what is queued and stops the worker.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		<-d.finished
	})
}

// Dropped returns the total number of dropped events.
func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var total uint64
	for i := range d.dropped {
		total += d.dropped[i].Load()
	}
	return total
}

// DroppedByType returns drop counts for every known event type. Events of other types
// are reported under the empty type only when some were dropped.
func (d *eventDispatcher) DroppedByType() map[EventType]uint64 {
	out := make(map[EventType]uint64, len(eventTypes))
	for i, typ := range eventTypes {
		var n uint64
		if d != nil {
			n = d.dropped[i].Load()
		}
		if typ == "" && n == 0 {
			continue
		}
		out[typ] = n
	}
	return out
}
