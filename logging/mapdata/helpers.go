package mapdata

import (
	"context"
	"path/filepath"

	"webmap/server/logging"
)

const (
	// EventMapBaked is emitted once the base terrain image has been rendered.
	EventMapBaked logging.EventType = "mapdata.map_baked"
	// EventFogSaved is emitted after the fog raster was written to disk.
	EventFogSaved logging.EventType = "mapdata.fog_saved"
	// EventPinsSaved is emitted after the pin list was written to disk.
	EventPinsSaved logging.EventType = "mapdata.pins_saved"
	// EventSaveFailed is emitted when a map artifact could not be written.
	EventSaveFailed logging.EventType = "mapdata.save_failed"
	// EventPinAdded is emitted when a pin is created.
	EventPinAdded logging.EventType = "mapdata.pin_added"
	// EventPinRemoved is emitted when a pin is undone or deleted.
	EventPinRemoved logging.EventType = "mapdata.pin_removed"
	// EventPinEvicted is emitted when an owner exceeded the pin quota.
	EventPinEvicted logging.EventType = "mapdata.pin_evicted"
)

// ArtifactPayload describes a persisted map artifact.
type ArtifactPayload struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
	Size  string `json:"size,omitempty"`
}

// SaveFailedPayload captures the artifact and error of a failed write.
type SaveFailedPayload struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// PinPayload identifies a pin touched by a store mutation.
type PinPayload struct {
	PinID string `json:"pinId"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Owned int    `json:"owned,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, actor logging.EntityRef, subject *logging.EntityRef, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Actor:    actor,
		Subject:  subject,
		Severity: severity,
		Category: logging.CategoryMapData,
		Payload:  payload,
	})
}

func artifact(path string) *logging.EntityRef {
	if path == "" {
		return nil
	}
	return logging.Ref(logging.EntityKindArtifact, filepath.Base(path))
}

func pin(payload PinPayload) *logging.EntityRef {
	return logging.Ref(logging.EntityKindPin, payload.PinID)
}

func player(owner string) logging.EntityRef {
	return logging.EntityRef{ID: owner, Kind: logging.EntityKindPlayer}
}

var worldActor = logging.EntityRef{Kind: logging.EntityKindWorld}

// MapBaked publishes the completion of a terrain bake.
func MapBaked(ctx context.Context, pub logging.Publisher, payload ArtifactPayload) {
	publish(ctx, pub, EventMapBaked, logging.SeverityInfo, worldActor, artifact(payload.Path), payload)
}

// FogSaved publishes a successful fog write.
func FogSaved(ctx context.Context, pub logging.Publisher, payload ArtifactPayload) {
	publish(ctx, pub, EventFogSaved, logging.SeverityInfo, worldActor, artifact(payload.Path), payload)
}

// PinsSaved publishes a successful pin list write.
func PinsSaved(ctx context.Context, pub logging.Publisher, payload ArtifactPayload) {
	publish(ctx, pub, EventPinsSaved, logging.SeverityInfo, worldActor, artifact(payload.Path), payload)
}

// SaveFailed publishes a failed artifact write.
func SaveFailed(ctx context.Context, pub logging.Publisher, payload SaveFailedPayload) {
	publish(ctx, pub, EventSaveFailed, logging.SeverityError, worldActor, artifact(payload.Path), payload)
}

// PinAdded publishes a pin creation by owner.
func PinAdded(ctx context.Context, pub logging.Publisher, owner string, payload PinPayload) {
	publish(ctx, pub, EventPinAdded, logging.SeverityInfo, player(owner), pin(payload), payload)
}

// PinRemoved publishes an undo or delete by owner.
func PinRemoved(ctx context.Context, pub logging.Publisher, owner string, payload PinPayload) {
	publish(ctx, pub, EventPinRemoved, logging.SeverityInfo, player(owner), pin(payload), payload)
}

// PinEvicted publishes a quota eviction, or a would-be eviction when the
// store only reports quota overflow.
func PinEvicted(ctx context.Context, pub logging.Publisher, owner string, payload PinPayload) {
	publish(ctx, pub, EventPinEvicted, logging.SeverityWarn, player(owner), pin(payload), payload)
}
