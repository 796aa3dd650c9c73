package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindUnknown  EntityKind = "unknown"
	EntityKindPlayer   EntityKind = "player"
	EntityKindViewer   EntityKind = "viewer"
	EntityKindPin      EntityKind = "pin"
	EntityKindArtifact EntityKind = "artifact"
	EntityKindWorld    EntityKind = "world"
)

// Event is one structured record of something that happened to the map.
// Actor is who caused it; Subject, when set, is the pin or artifact it
// touched.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Actor    EntityRef      `json:"actor"`
	Subject  *EntityRef     `json:"subject,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Fields   map[string]any `json:"fields,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// Ref is a shorthand for building subjects.
func Ref(kind EntityKind, id string) *EntityRef {
	return &EntityRef{ID: id, Kind: kind}
}

const (
	CategoryMapData = "mapdata"
	CategoryNetwork = "network"
	CategoryIngest  = "ingest"
	CategorySystem  = "system"
)

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	if p.next == nil {
		return
	}
	p.next.Publish(ctx, event.withDefaults(p.fields))
}

// WithFields wraps p so every event carries fields unless it already sets
// the same key.
func WithFields(p Publisher, fields map[string]any) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return p
	}
	return &fieldPublisher{next: p, fields: copyFields(fields)}
}

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// WithField returns a copy of e with key set.
func (e Event) WithField(key string, value any) Event {
	e = e.Clone()
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}

// Clone copies the mutable parts of e so sinks can hold it safely.
func (e Event) Clone() Event {
	if e.Subject != nil {
		subject := *e.Subject
		e.Subject = &subject
	}
	e.Fields = copyFields(e.Fields)
	return e
}

func (e Event) withDefaults(defaults map[string]any) Event {
	if len(defaults) == 0 {
		return e
	}
	e = e.Clone()
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(defaults))
	}
	for k, v := range defaults {
		if _, set := e.Fields[k]; !set {
			e.Fields[k] = v
		}
	}
	return e
}

func copyFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
