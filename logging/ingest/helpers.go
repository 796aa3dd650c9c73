package ingest

import (
	"context"

	"webmap/server/logging"
)

const (
	// EventDecodeFailed is emitted when a host event could not be decoded.
	EventDecodeFailed logging.EventType = "ingest.decode_failed"
	// EventHandlerPanic is emitted when routing an event panicked.
	EventHandlerPanic logging.EventType = "ingest.handler_panic"
	// EventCommandThrottled is emitted when a pin command exceeded its rate.
	EventCommandThrottled logging.EventType = "ingest.command_throttled"
	// EventLookupFailed is emitted when a command sender has no position.
	EventLookupFailed logging.EventType = "ingest.lookup_failed"
)

// FailurePayload describes a dropped host event.
type FailurePayload struct {
	Method string `json:"method"`
	Error  string `json:"error"`
}

// CommandPayload describes a throttled chat command.
type CommandPayload struct {
	Command string `json:"command"`
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, sender string, payload any) {
	if pub == nil {
		return
	}
	actor := logging.EntityRef{Kind: logging.EntityKindUnknown}
	if sender != "" {
		actor = logging.EntityRef{ID: sender, Kind: logging.EntityKindPlayer}
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryIngest,
		Payload:  payload,
	})
}

// DecodeFailed publishes a malformed host event.
func DecodeFailed(ctx context.Context, pub logging.Publisher, sender string, payload FailurePayload) {
	publish(ctx, pub, EventDecodeFailed, logging.SeverityWarn, sender, payload)
}

// HandlerPanic publishes a recovered panic while routing a host event.
func HandlerPanic(ctx context.Context, pub logging.Publisher, sender string, payload FailurePayload) {
	publish(ctx, pub, EventHandlerPanic, logging.SeverityError, sender, payload)
}

// CommandThrottled publishes a rate-limited pin command.
func CommandThrottled(ctx context.Context, pub logging.Publisher, sender string, payload CommandPayload) {
	publish(ctx, pub, EventCommandThrottled, logging.SeverityWarn, sender, payload)
}

// LookupFailed publishes a command dropped for want of a sender position.
func LookupFailed(ctx context.Context, pub logging.Publisher, sender string, payload FailurePayload) {
	publish(ctx, pub, EventLookupFailed, logging.SeverityWarn, sender, payload)
}
