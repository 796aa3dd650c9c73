package sinks

import (
	"context"
	"sync"

	"webmap/server/logging"
)

// MemorySink keeps every event it receives. Tests read it back.
type MemorySink struct {
	mu     sync.RWMutex
	events []logging.Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(event logging.Event) error {
	event = event.Clone()
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of everything written so far.
func (s *MemorySink) Events() []logging.Event {
	return s.filter(func(logging.Event) bool { return true })
}

// Category returns the events written for one category.
func (s *MemorySink) Category(category string) []logging.Event {
	return s.filter(func(e logging.Event) bool { return e.Category == category })
}

// OfType returns the events of one type.
func (s *MemorySink) OfType(typ logging.EventType) []logging.Event {
	return s.filter(func(e logging.Event) bool { return e.Type == typ })
}

func (s *MemorySink) filter(keep func(logging.Event) bool) []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]logging.Event, 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}
