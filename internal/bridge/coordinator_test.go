package bridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nshehadeh/plasmadeck/internal/script"
)

type fakeDevice struct {
	keys    int
	events  chan KeyEvent
	images  map[int]image.Image
	cleared []int
	setErr  error
}

func newFakeDevice(keys int) *fakeDevice {
	return &fakeDevice{
		keys:   keys,
		events: make(chan KeyEvent, 8),
		images: make(map[int]image.Image),
	}
}

func (d *fakeDevice) Keys() int { return d.keys }

func (d *fakeDevice) SetImage(index int, img image.Image) error {
	if d.setErr != nil {
		return d.setErr
	}
	d.images[index] = img
	return nil
}

func (d *fakeDevice) ClearKey(index int) error {
	delete(d.images, index)
	d.cleared = append(d.cleared, index)
	return nil
}

func (d *fakeDevice) Events() <-chan KeyEvent { return d.events }

type fakeScript struct {
	host   *fakeHost
	source string
	runs   int
	stops  int
	runErr error
}

func (s *fakeScript) Run(ctx context.Context) error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.runs++
	s.host.calls = append(s.host.calls, "run")
	return s.runErr
}

func (s *fakeScript) Stop(ctx context.Context) error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.stops++
	s.host.calls = append(s.host.calls, "stop")
	return nil
}

type fakeHost struct {
	mu      sync.Mutex
	loads   []*fakeScript
	unloads []*fakeScript
	calls   []string
	loadErr error
	runErr  error
}

func (h *fakeHost) Load(ctx context.Context, source string) (RunningScript, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	s := &fakeScript{host: h, source: source, runErr: h.runErr}
	h.loads = append(h.loads, s)
	h.calls = append(h.calls, "load")
	return s, nil
}

func (h *fakeHost) Unload(ctx context.Context, rs RunningScript) error {
	s, ok := rs.(*fakeScript)
	if !ok {
		return fmt.Errorf("unexpected handle %T", rs)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloads = append(h.unloads, s)
	h.calls = append(h.calls, "unload")
	return nil
}

func (h *fakeHost) loadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.loads)
}

type fakeIcons struct {
	img image.Image
	err error
}

func (f fakeIcons) Resolve(resourceClass string) (image.Image, error) {
	return f.img, f.err
}

func keyImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func newTestCoordinator(keys int, dev *fakeDevice, host *fakeHost, ic fakeIcons) *Coordinator {
	if dev == nil {
		dev = newFakeDevice(keys)
	}
	cfg := Config{
		Callback: script.CallbackAddress{
			Service:   "net.example.Deck",
			Path:      "/net/example/Deck",
			Interface: "net.example.Deck",
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return New(cfg, dev, host, ic)
}

func TestWindowAdded_CapacityExceeded(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{img: keyImage()})
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		id := fmt.Sprintf("win-%d", i)
		c.handle(ctx, event{kind: evWindowAdded, id: id, caption: id, class: "app"})
	}

	if c.registry.Len() != 9 {
		t.Fatalf("registry has %d windows, want 9", c.registry.Len())
	}
	if c.table.Used() != 8 {
		t.Fatalf("%d slots used, want 8", c.table.Used())
	}
	// The overflow window is registered but holds no key.
	for i := 0; i < 8; i++ {
		if id, _ := c.table.Occupant(i); id == "win-8" {
			t.Fatal("ninth window was assigned a slot")
		}
	}
}

func TestWindowLifecycle_SlotReuse(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{img: keyImage()})
	ctx := context.Background()

	c.handle(ctx, event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})
	if id, ok := c.table.Occupant(0); !ok || id != "W1" {
		t.Fatalf("slot 0 = (%q, %v), want W1", id, ok)
	}
	if dev.images[0] == nil {
		t.Fatal("no image pushed to key 0")
	}

	c.handle(ctx, event{kind: evWindowRemoved, id: "W1"})
	if _, ok := c.table.Occupant(0); ok {
		t.Fatal("slot 0 still occupied after removal")
	}
	if len(dev.cleared) != 1 || dev.cleared[0] != 0 {
		t.Fatalf("cleared keys = %v, want [0]", dev.cleared)
	}
	if _, ok := c.registry.Get("W1"); ok {
		t.Fatal("W1 still registered after removal")
	}

	c.handle(ctx, event{kind: evWindowAdded, id: "W2", caption: "two", class: "app"})
	if id, ok := c.table.Occupant(0); !ok || id != "W2" {
		t.Fatalf("slot 0 = (%q, %v), want W2 (first-empty reuse)", id, ok)
	}
}

func TestKeyPress_EmptySlot_NoLoad(t *testing.T) {
	host := &fakeHost{}
	c := newTestCoordinator(8, nil, host, fakeIcons{})

	c.handle(context.Background(), event{kind: evKey, index: 3, pressed: true})

	if len(host.loads) != 0 {
		t.Fatalf("%d scripts loaded for an empty slot, want 0", len(host.loads))
	}
}

func TestKeyPress_ActivatesOccupant(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{img: keyImage()})
	ctx := context.Background()

	c.handle(ctx, event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})
	c.handle(ctx, event{kind: evKey, index: 0, pressed: true})

	if len(host.loads) != 1 {
		t.Fatalf("%d scripts loaded, want 1", len(host.loads))
	}
	s := host.loads[0]
	if !strings.Contains(s.source, "'W1'") {
		t.Fatalf("activation script does not reference W1:\n%s", s.source)
	}
	if s.runs != 1 {
		t.Fatalf("script ran %d times, want 1", s.runs)
	}
	if s.stops != 0 {
		t.Fatal("one-shot script was stopped")
	}
}

func TestKeyRelease_Ignored(t *testing.T) {
	host := &fakeHost{}
	c := newTestCoordinator(8, nil, host, fakeIcons{img: keyImage()})
	ctx := context.Background()

	c.handle(ctx, event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})
	c.handle(ctx, event{kind: evKey, index: 0, pressed: false})

	if len(host.loads) != 0 {
		t.Fatalf("%d scripts loaded for a key release, want 0", len(host.loads))
	}
}

func TestWindowAdded_IconFailureStillRegisters(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{err: errors.New("decode failed")})
	ctx := context.Background()

	c.handle(ctx, event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})

	if _, ok := c.registry.Get("W1"); !ok {
		t.Fatal("window not registered after icon failure")
	}
	if id, ok := c.table.Occupant(0); !ok || id != "W1" {
		t.Fatalf("slot 0 = (%q, %v), want W1 without an icon", id, ok)
	}
	if len(dev.images) != 0 {
		t.Fatal("an image was pushed despite icon failure")
	}
}

func TestWindowAdded_ImageWriteFailureClearsKey(t *testing.T) {
	dev := newFakeDevice(8)
	dev.setErr = errors.New("usb write failed")
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{img: keyImage()})

	c.handle(context.Background(), event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})

	// No stale partial image: the key is blanked after a failed write.
	if len(dev.cleared) != 1 || dev.cleared[0] != 0 {
		t.Fatalf("cleared keys = %v, want [0]", dev.cleared)
	}
	if _, ok := c.registry.Get("W1"); !ok {
		t.Fatal("window not registered after image write failure")
	}
}

func TestWindowRemoved_UnknownIdentityTolerated(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{})

	c.handle(context.Background(), event{kind: evWindowRemoved, id: "ghost"})

	if len(dev.cleared) != 0 {
		t.Fatalf("cleared keys = %v, want none", dev.cleared)
	}
}

func TestShutdown_StopThenUnloadObserver(t *testing.T) {
	host := &fakeHost{}
	c := newTestCoordinator(8, nil, host, fakeIcons{})

	if err := c.startObserver(context.Background()); err != nil {
		t.Fatalf("start observer: %v", err)
	}
	if len(host.loads) != 1 {
		t.Fatalf("%d scripts loaded, want 1 observer", len(host.loads))
	}
	observer := host.loads[0]
	if !strings.Contains(observer.source, "workspace.windowAdded.connect") {
		t.Fatal("observer script missing subscription")
	}

	if err := c.shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if observer.stops != 1 {
		t.Fatalf("observer stopped %d times, want 1", observer.stops)
	}
	if len(host.unloads) != 1 || host.unloads[0] != observer {
		t.Fatal("observer was not unloaded exactly once")
	}
	// Strict order: stop before unload.
	stop := -1
	unload := -1
	for i, call := range host.calls {
		switch call {
		case "stop":
			stop = i
		case "unload":
			unload = i
		}
	}
	if stop == -1 || unload == -1 || stop > unload {
		t.Fatalf("call order %v, want stop before unload", host.calls)
	}
}

func TestObserverLoadFailure_Fatal(t *testing.T) {
	host := &fakeHost{loadErr: errors.New("no scripting host")}
	c := newTestCoordinator(8, nil, host, fakeIcons{})

	if err := c.startObserver(context.Background()); err == nil {
		t.Fatal("expected observer load failure")
	}
	if len(host.unloads) != 0 {
		t.Fatal("nothing to unload when load itself failed")
	}
}

func TestObserverRunFailure_ReleasesHandle(t *testing.T) {
	host := &fakeHost{runErr: errors.New("host rejected run")}
	c := newTestCoordinator(8, nil, host, fakeIcons{})

	if err := c.startObserver(context.Background()); err == nil {
		t.Fatal("expected observer run failure")
	}
	if len(host.unloads) != 1 {
		t.Fatalf("%d unloads after run failure, want 1 (no leaked handle)", len(host.unloads))
	}
}

func TestStatusEvent_ReportsConsistentSnapshot(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{img: keyImage()})
	ctx := context.Background()

	c.handle(ctx, event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})
	c.handle(ctx, event{kind: evWindowAdded, id: "W2", caption: "two", class: "app"})

	reply := make(chan StatusData, 1)
	c.handle(ctx, event{kind: evStatus, status: reply})

	status := <-reply
	if !status.DaemonRunning {
		t.Fatal("status reports daemon not running")
	}
	if status.Windows != 2 || status.SlotsUsed != 2 || status.SlotsTotal != 8 {
		t.Fatalf("status = %+v, want 2 windows, 2/8 slots", status)
	}
}

func TestRun_SerializesEventSources(t *testing.T) {
	dev := newFakeDevice(8)
	host := &fakeHost{}
	c := newTestCoordinator(8, dev, host, fakeIcons{img: keyImage()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// A window-added callback followed by a press of its key: the
	// mutation must land before the press is handled.
	c.enqueue(event{kind: evWindowAdded, id: "W1", caption: "one", class: "app"})
	dev.events <- KeyEvent{Index: 0, Pressed: true}

	deadline := time.After(2 * time.Second)
	for host.loadCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("activation script never loaded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if !strings.Contains(host.loads[0].source, "'W1'") {
		t.Fatal("activation script loaded before window-added mutation")
	}
}
