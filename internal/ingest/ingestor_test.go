package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"webmap/server/internal/net/proto"
	"webmap/server/internal/pins"
	"webmap/server/internal/world"
	"webmap/server/logging"
	ingestlog "webmap/server/logging/ingest"
)

type recordingHub struct {
	mu     sync.Mutex
	frames []string
}

func (h *recordingHub) Broadcast(msg proto.Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, string(msg.Encode()))
	return 1
}

func (h *recordingHub) Frames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames...)
}

type lookupFunc func(id string) (world.Vitals, error)

func (f lookupFunc) Lookup(id string) (world.Vitals, error) { return f(id) }

type panicStore struct{}

func (panicStore) Add(string, pins.Kind, string, world.Position, string) (pins.Pin, []pins.Pin) {
	panic("store exploded")
}
func (panicStore) Undo(string) (pins.Pin, error)                  { panic("store exploded") }
func (panicStore) DeleteByLabel(string, string) (pins.Pin, error) { panic("store exploded") }

type harness struct {
	ingestor *Ingestor
	hub      *recordingHub
	store    *pins.Store
	events   *[]logging.Event
}

func newHarness(t *testing.T, cfg Config) harness {
	t.Helper()
	var events []logging.Event
	hub := &recordingHub{}
	ids := 0
	store := pins.NewStore(pins.Config{NewID: func() string { ids++; return fmt.Sprintf("pin-%d", ids) }})
	if cfg.Pins == nil {
		cfg.Pins = store
	}
	cfg.Hub = hub
	if cfg.Lookup == nil {
		cfg.Lookup = lookupFunc(func(id string) (world.Vitals, error) {
			if id == "ghost" {
				return world.Vitals{}, world.ErrUnknownEntity
			}
			return world.Vitals{Position: world.Position{X: 100, Y: 30, Z: -200}}, nil
		})
	}
	cfg.Publisher = logging.PublisherFunc(func(_ context.Context, e logging.Event) { events = append(events, e) })
	return harness{ingestor: New(cfg), hub: hub, store: store, events: &events}
}

func say(sender, text string) Event {
	return Event{Method: MethodSay, Sender: sender, Params: []string{"1", "Ragnar", text}}
}

func TestPlainChatIsBroadcastUnsanitized(t *testing.T) {
	h := newHarness(t, Config{})
	h.ingestor.Handle(context.Background(), say("1", "<b>hi</b> ünïcode"))
	frames := h.hub.Frames()
	if len(frames) != 1 || frames[0] != "say\n1\nRagnar\n<b>hi</b> ünïcode" {
		t.Fatalf("unexpected frames %q", frames)
	}
}

func TestPinCommandAddsAndBroadcasts(t *testing.T) {
	h := newHarness(t, Config{})
	h.ingestor.Handle(context.Background(), say("1", "/pin mine copper vein!!"))

	snapshot := h.store.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected one pin, got %d", len(snapshot))
	}
	pin := snapshot[0]
	if pin.Kind != pins.KindMine || pin.Label != "copper vein" || pin.OwnerID != "1" || pin.CreatorName != "Ragnar" {
		t.Fatalf("unexpected pin %+v", pin)
	}
	frames := h.hub.Frames()
	want := "pin\n1\npin-1\nmine\nRagnar\n100,30,-200\ncopper vein"
	if len(frames) != 1 || frames[0] != want {
		t.Fatalf("unexpected frames %q", frames)
	}
}

func TestUndoAndDeletePin(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.ingestor.Handle(ctx, say("1", "/pin cave bat cave"))
	h.ingestor.Handle(ctx, say("1", "/pin fire camp"))
	h.ingestor.Handle(ctx, say("1", "/pin house home"))

	h.ingestor.Handle(ctx, say("1", "/deletePin bat cave"))
	h.ingestor.Handle(ctx, say("1", "/undoPin"))

	snapshot := h.store.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Label != "camp" {
		t.Fatalf("expected only camp left, got %+v", snapshot)
	}
	frames := h.hub.Frames()
	if frames[3] != "rmpin\npin-1" || frames[4] != "rmpin\npin-3" {
		t.Fatalf("unexpected removal frames %q", frames[3:])
	}
}

func TestOtherSlashCommandsAreSwallowed(t *testing.T) {
	h := newHarness(t, Config{})
	h.ingestor.Handle(context.Background(), say("1", "/help me"))
	if frames := h.hub.Frames(); len(frames) != 0 {
		t.Fatalf("expected nothing broadcast, got %q", frames)
	}
}

func TestChatWithPingTypeBecomesPing(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.ingestor.Handle(ctx, Event{Method: MethodChatMessage, Params: []string{"3", "Ragnar", "1", "2", "3", ""}})
	h.ingestor.Handle(ctx, Event{Method: MethodChatMessage, Params: []string{"2", "Ragnar", "1", "2", "3", "HEY"}})
	frames := h.hub.Frames()
	if len(frames) != 2 || frames[0] != "ping\nRagnar\n1,2,3" || frames[1] != "chat\n2\nRagnar\n1,2,3\nHEY" {
		t.Fatalf("unexpected frames %q", frames)
	}
}

func TestLifecycleEventsForwarded(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.ingestor.Handle(ctx, Event{Method: MethodLogin, Params: []string{"Ragnar"}})
	h.ingestor.Handle(ctx, Event{Method: MethodDeath, Params: []string{"Ragnar"}})
	h.ingestor.Handle(ctx, Event{Method: MethodLogout, Params: []string{"Ragnar"}})
	h.ingestor.Handle(ctx, Event{Method: MethodMessage, Params: []string{"Ragnar", "1", "$msg_boss", "0"}})
	got := strings.Join(h.hub.Frames(), "|")
	want := "login\nRagnar|ondeath\nRagnar|logout\nRagnar|message\nRagnar\n1\n$msg_boss\n0"
	if got != want {
		t.Fatalf("frames = %q, want %q", got, want)
	}
}

func TestMalformedEventIsDropped(t *testing.T) {
	h := newHarness(t, Config{})
	h.ingestor.Handle(context.Background(), Event{Method: MethodSay, Sender: "1", Params: []string{"x"}})
	if len(h.hub.Frames()) != 0 {
		t.Fatalf("expected nothing broadcast")
	}
	if len(*h.events) != 1 || (*h.events)[0].Type != ingestlog.EventDecodeFailed {
		t.Fatalf("expected decode failure event, got %+v", *h.events)
	}
}

func TestPinWithoutSenderPositionIsDropped(t *testing.T) {
	h := newHarness(t, Config{})
	h.ingestor.Handle(context.Background(), say("ghost", "/pin lost"))
	if h.store.Len() != 0 {
		t.Fatalf("expected no pin for unknown sender")
	}
	if len(*h.events) != 1 || (*h.events)[0].Type != ingestlog.EventLookupFailed {
		t.Fatalf("expected lookup failure event, got %+v", *h.events)
	}
}

func TestPinCommandsAreRateLimited(t *testing.T) {
	h := newHarness(t, Config{CommandBurst: 2})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		h.ingestor.Handle(ctx, say("1", fmt.Sprintf("/pin spot %d", i)))
	}
	if h.store.Len() != 2 {
		t.Fatalf("expected burst of 2 pins, got %d", h.store.Len())
	}
	h.ingestor.Handle(ctx, say("2", "/pin other owner"))
	if h.store.Len() != 3 {
		t.Fatalf("expected limits to be per owner")
	}
	throttled := 0
	for _, e := range *h.events {
		if e.Type == ingestlog.EventCommandThrottled {
			throttled++
		}
	}
	if throttled != 2 {
		t.Fatalf("expected 2 throttled events, got %d", throttled)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	h := newHarness(t, Config{Pins: panicStore{}})
	h.ingestor.Handle(context.Background(), say("1", "/undoPin"))
	if len(*h.events) != 1 || (*h.events)[0].Type != ingestlog.EventHandlerPanic {
		t.Fatalf("expected panic event, got %+v", *h.events)
	}
}
