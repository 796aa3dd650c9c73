package network

import (
	"context"

	"webmap/server/logging"
)

const (
	// EventViewerJoined is emitted when a viewer connection joins the hub.
	EventViewerJoined logging.EventType = "network.viewer_joined"
	// EventViewerLeft is emitted when a viewer disconnects normally.
	EventViewerLeft logging.EventType = "network.viewer_left"
	// EventViewerDropped is emitted when a viewer is removed after a failed
	// write or an idle timeout.
	EventViewerDropped logging.EventType = "network.viewer_dropped"
	// EventViewerRejected is emitted when the hub refuses a new viewer.
	EventViewerRejected logging.EventType = "network.viewer_rejected"
)

// ViewerPayload captures hub membership after the change.
type ViewerPayload struct {
	Viewers int    `json:"viewers"`
	Remote  string `json:"remote,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func viewerEvent(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, viewerID string, payload ViewerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Actor:    logging.EntityRef{ID: viewerID, Kind: logging.EntityKindViewer},
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// ViewerJoined publishes a viewer registration.
func ViewerJoined(ctx context.Context, pub logging.Publisher, viewerID string, payload ViewerPayload) {
	viewerEvent(ctx, pub, EventViewerJoined, logging.SeverityDebug, viewerID, payload)
}

// ViewerLeft publishes a normal viewer disconnect.
func ViewerLeft(ctx context.Context, pub logging.Publisher, viewerID string, payload ViewerPayload) {
	viewerEvent(ctx, pub, EventViewerLeft, logging.SeverityDebug, viewerID, payload)
}

// ViewerDropped publishes a forced viewer removal.
func ViewerDropped(ctx context.Context, pub logging.Publisher, viewerID string, payload ViewerPayload) {
	viewerEvent(ctx, pub, EventViewerDropped, logging.SeverityWarn, viewerID, payload)
}

// ViewerRejected publishes a refused upgrade.
func ViewerRejected(ctx context.Context, pub logging.Publisher, payload ViewerPayload) {
	viewerEvent(ctx, pub, EventViewerRejected, logging.SeverityWarn, "", payload)
}
