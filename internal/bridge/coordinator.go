// Package bridge coordinates the deck device, the slot table and the
// KWin scripting host. All slot and registry mutation happens on a
// single mutator goroutine fed by one event channel; the deck key pump
// and the D-Bus callback methods only enqueue.
package bridge

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nshehadeh/plasmadeck/internal/script"
	"github.com/nshehadeh/plasmadeck/internal/slots"
)

// Device is the deck collaborator: a fixed number of keys, per-key
// images, and a stream of press/release events.
type Device interface {
	Keys() int
	SetImage(index int, img image.Image) error
	ClearKey(index int) error
	Events() <-chan KeyEvent
}

// RunningScript is a loaded script that can be started and, for
// long-lived scripts, stopped.
type RunningScript interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ScriptHost loads script source into the remote host and releases
// loaded scripts again.
type ScriptHost interface {
	Load(ctx context.Context, source string) (RunningScript, error)
	Unload(ctx context.Context, s RunningScript) error
}

// IconResolver maps an application resource class to a key-sized
// image. A nil image with nil error means no icon is available.
type IconResolver interface {
	Resolve(resourceClass string) (image.Image, error)
}

// Config holds coordinator configuration.
type Config struct {
	Callback script.CallbackAddress
	Logger   *slog.Logger
}

// Coordinator owns the slot table, the window registry and the
// observer script handle.
type Coordinator struct {
	cb     script.CallbackAddress
	logger *slog.Logger
	dev    Device
	host   ScriptHost
	icons  IconResolver

	table    *slots.Table
	registry *slots.Registry
	events   chan event
	done     chan struct{}
	observer RunningScript
	started  time.Time
}

// New creates a coordinator with an empty slot table sized to the
// device's key count.
func New(cfg Config, dev Device, host ScriptHost, icons IconResolver) *Coordinator {
	return &Coordinator{
		cb:       cfg.Callback,
		logger:   cfg.Logger,
		dev:      dev,
		host:     host,
		icons:    icons,
		table:    slots.NewTable(dev.Keys()),
		registry: slots.NewRegistry(),
		events:   make(chan event, 64),
		done:     make(chan struct{}),
		started:  time.Now(),
	}
}

// Start exports the callback object, claims the bus name and brings up
// the observer script. Any failure here is fatal to the daemon.
func (c *Coordinator) Start(ctx context.Context, conn *dbus.Conn) error {
	if err := conn.Export(&Listener{co: c}, dbus.ObjectPath(c.cb.Path), c.cb.Interface); err != nil {
		return fmt.Errorf("export callback object: %w", err)
	}
	reply, err := conn.RequestName(c.cb.Service, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name %s: %w", c.cb.Service, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", c.cb.Service)
	}
	return c.startObserver(ctx)
}

func (c *Coordinator) startObserver(ctx context.Context) error {
	obs, err := c.host.Load(ctx, script.Observer(c.cb))
	if err != nil {
		return fmt.Errorf("load observer: %w", err)
	}
	if err := obs.Run(ctx); err != nil {
		if uerr := c.host.Unload(ctx, obs); uerr != nil {
			c.logger.Error("unload failed observer", "error", uerr)
		}
		return fmt.Errorf("run observer: %w", err)
	}
	c.observer = obs
	return nil
}

// Run processes events until ctx is cancelled, then stops and unloads
// the observer and clears the deck. All shared-state mutation happens
// inside this goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	go c.pumpKeys(ctx)
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

// pumpKeys forwards deck key events into the event channel.
func (c *Coordinator) pumpKeys(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.dev.Events():
			if !ok {
				return
			}
			c.enqueue(event{kind: evKey, index: ev.Index, pressed: ev.Pressed})
		}
	}
}

// enqueue queues ev for the mutator goroutine. Events arriving while
// the coordinator is suspended in a host call stay queued; they are
// only discarded once the coordinator has stopped for good.
func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evKey:
		c.handleKey(ctx, ev.index, ev.pressed)
	case evWindowAdded:
		c.handleWindowAdded(ev.id, ev.caption, ev.class)
	case evWindowRemoved:
		c.handleWindowRemoved(ev.id)
	case evLog:
		c.logger.Info("script", "msg", ev.msg)
	case evStatus:
		ev.status <- StatusData{
			DaemonRunning: true,
			Windows:       c.registry.Len(),
			SlotsUsed:     c.table.Used(),
			SlotsTotal:    c.table.Len(),
			UptimeSeconds: int64(time.Since(c.started).Seconds()),
		}
	}
}

// handleKey activates the window assigned to a pressed key through a
// one-shot activation script. Failures are logged and never abort the
// event loop.
func (c *Coordinator) handleKey(ctx context.Context, index int, pressed bool) {
	if !pressed {
		return
	}
	id, ok := c.table.Occupant(index)
	if !ok {
		c.logger.Debug("key press on empty slot", "key", index)
		return
	}

	s, err := c.host.Load(ctx, script.Activation(c.cb, id))
	if err != nil {
		c.logger.Error("load activation script", "window", id, "error", err)
		return
	}
	if err := s.Run(ctx); err != nil {
		c.logger.Error("run activation script", "window", id, "error", err)
	}
	// One-shot: the script body has finished by the time run returns,
	// so the handle can be released immediately.
	if err := c.host.Unload(ctx, s); err != nil {
		c.logger.Error("unload activation script", "window", id, "error", err)
	}
}

// handleWindowAdded registers the window and, if a slot is free, puts
// its icon on the corresponding key. Icon failures leave the window
// registered without a visible icon.
func (c *Coordinator) handleWindowAdded(id, caption, class string) {
	img, err := c.icons.Resolve(class)
	if err != nil {
		c.logger.Warn("icon resolution failed", "class", class, "error", err)
		img = nil
	}

	if index, ok := c.table.Assign(id); ok {
		if img != nil {
			if err := c.dev.SetImage(index, img); err != nil {
				c.logger.Warn("set key image failed", "key", index, "error", err)
				// Do not leave a partial image on the key.
				if cerr := c.dev.ClearKey(index); cerr != nil {
					c.logger.Warn("clear key failed", "key", index, "error", cerr)
				}
			}
		}
	} else {
		c.logger.Debug("no free slot for window", "window", id)
	}

	c.registry.Insert(slots.Window{ID: id, Caption: caption, ResourceClass: class})
	c.logger.Info("window added", "window", id, "caption", caption, "class", class)
}

// handleWindowRemoved clears the window's key and registry entry.
func (c *Coordinator) handleWindowRemoved(id string) {
	if index, ok := c.table.Release(id); ok {
		if err := c.dev.ClearKey(index); err != nil {
			c.logger.Warn("clear key failed", "key", index, "error", err)
		}
	}
	if !c.registry.Remove(id) {
		c.logger.Warn("removal of unknown window", "window", id)
	}
	c.logger.Info("window removed", "window", id)
}

// shutdown stops the observer, then unloads it, in that order, and
// blanks every occupied key. Run with a fresh context because the
// loop's context is already cancelled by the time we get here.
func (c *Coordinator) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	if c.observer != nil {
		if err := c.observer.Stop(ctx); err != nil {
			c.logger.Error("stop observer", "error", err)
			firstErr = err
		}
		if err := c.host.Unload(ctx, c.observer); err != nil {
			c.logger.Error("unload observer", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		c.observer = nil
	}

	for i := 0; i < c.table.Len(); i++ {
		if _, ok := c.table.Occupant(i); ok {
			if err := c.dev.ClearKey(i); err != nil {
				c.logger.Warn("clear key failed", "key", i, "error", err)
			}
		}
	}
	return firstErr
}
