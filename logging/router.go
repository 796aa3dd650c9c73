package logging

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	defaultQueueSize = 512
	maxSinkBacklog   = 1024
	minSinkBacklog   = 32
	maxSinkBackoff   = 32 * time.Second
)

// Router stamps published events and fans them out to sink workers by
// category. Publish never blocks; a full queue drops the event.
type Router struct {
	clock    Clock
	fallback *log.Logger
	minimum  Severity
	fields   map[string]any

	// routed holds the workers for categories with an explicit route.
	routed  map[string][]*sinkWorker
	workers []*sinkWorker

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	dropWarn     rate.Sometimes
	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
}

type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
}

// NewRouter starts the dispatcher and one worker per enabled sink. A route
// naming a sink that is not active is an error.
func NewRouter(clock Clock, cfg Config, fallback *log.Logger, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	dropInterval := cfg.DropWarnInterval
	if dropInterval <= 0 {
		dropInterval = 5 * time.Second
	}
	backlog := min(max(queueSize, minSinkBacklog), maxSinkBacklog)

	byName := make(map[string]*sinkWorker, len(namedSinks))
	var workers []*sinkWorker
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		if len(cfg.EnabledSinks) > 0 && !cfg.HasSink(named.Name) {
			continue
		}
		w := &sinkWorker{name: named.Name, sink: named.Sink, events: make(chan Event, backlog), fallback: fallback}
		byName[named.Name] = w
		workers = append(workers, w)
	}

	routed := make(map[string][]*sinkWorker, len(cfg.Routes))
	for category, names := range cfg.Routes {
		targets := make([]*sinkWorker, 0, len(names))
		for _, name := range names {
			w, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("logging: route %q names inactive sink %q", category, name)
			}
			targets = append(targets, w)
		}
		routed[category] = targets
	}

	r := &Router{
		clock:    clock,
		fallback: fallback,
		minimum:  cfg.MinimumSeverity,
		fields:   copyFields(cfg.Fields),
		routed:   routed,
		workers:  workers,
		queue:    make(chan Event, queueSize),
		done:     make(chan struct{}),
		dropWarn: rate.Sometimes{Interval: dropInterval},
	}

	var running sync.WaitGroup
	for _, w := range workers {
		running.Add(1)
		go func(w *sinkWorker) {
			defer running.Done()
			w.run()
		}(w)
	}
	go func() {
		defer close(r.done)
		for event := range r.queue {
			r.dispatch(event)
		}
		for _, w := range r.workers {
			close(w.events)
		}
		running.Wait()
	}()
	return r, nil
}

// Publish queues event for delivery. Untyped events and events published
// after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if event.Type == "" {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.droppedTotal.Add(1)
		r.dropWarn.Do(func() {
			r.fallback.Printf("event queue full, dropping type=%s category=%s", event.Type, event.Category)
		})
	}
}

func (r *Router) dispatch(event Event) {
	if event.Severity < r.minimum {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = event.withDefaults(r.fields)
	r.eventsTotal.Add(1)
	for _, w := range r.targets(event.Category) {
		w.enqueue(event.Clone())
	}
}

func (r *Router) targets(category string) []*sinkWorker {
	if routed, ok := r.routed[category]; ok {
		return routed
	}
	return r.workers
}

// Close stops intake, waits for queued events to reach the sinks and then
// closes them. It returns ctx.Err if the drain outlives ctx.
func (r *Router) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		w.closeOnce.Do(func() { w.closeErr = w.sink.Close(ctx) })
		if w.closeErr != nil && firstErr == nil {
			firstErr = w.closeErr
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
	}
}

// Sink returns the active sink registered under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// sinkWorker serialises writes to one sink and backs off after failures.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	backoff  time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- event:
	default:
		w.fallback.Printf("sink %s backlog full, dropping type=%s", w.name, event.Type)
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if w.backoff > 0 {
			time.Sleep(w.backoff)
		}
		err := w.sink.Write(event)
		if err == nil {
			w.backoff = 0
			continue
		}
		w.backoff = min(max(2*w.backoff, 2*time.Second), maxSinkBackoff)
		w.fallback.Printf("sink %s failed: %v (next write in %s)", w.name, err, w.backoff)
	}
}
