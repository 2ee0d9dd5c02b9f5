// Package deck adapts a Stream Deck device to the coordinator's
// Device interface.
package deck

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/muesli/streamdeck"

	"github.com/nshehadeh/plasmadeck/internal/bridge"
)

// Deck wraps one opened Stream Deck.
type Deck struct {
	dev    streamdeck.Device
	events chan bridge.KeyEvent
	logger *slog.Logger
}

// Open enumerates Stream Decks, opens the first one, resets it and
// sets the configured brightness.
func Open(brightness int, logger *slog.Logger) (*Deck, error) {
	devs, err := streamdeck.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate stream decks: %w", err)
	}
	if len(devs) == 0 {
		return nil, errors.New("no stream deck devices found")
	}

	d := &Deck{dev: devs[0], logger: logger}
	if err := d.dev.Open(); err != nil {
		return nil, fmt.Errorf("open stream deck: %w", err)
	}

	fw, err := d.dev.FirmwareVersion()
	if err != nil {
		fw = "unknown"
	}
	logger.Info("stream deck opened",
		"serial", d.dev.Serial,
		"firmware", fw,
		"keys", int(d.dev.Keys),
		"pixels", d.dev.Pixels)

	if err := d.dev.Reset(); err != nil {
		d.dev.Close()
		return nil, fmt.Errorf("reset stream deck: %w", err)
	}
	if err := d.dev.SetBrightness(uint8(brightness)); err != nil {
		logger.Warn("set brightness failed", "error", err)
	}

	keys, err := d.dev.ReadKeys()
	if err != nil {
		d.dev.Close()
		return nil, fmt.Errorf("read stream deck keys: %w", err)
	}
	d.events = make(chan bridge.KeyEvent, 16)
	go func() {
		defer close(d.events)
		for k := range keys {
			d.events <- bridge.KeyEvent{Index: int(k.Index), Pressed: k.Pressed}
		}
	}()

	return d, nil
}

// Keys returns the number of physical keys on the device.
func (d *Deck) Keys() int {
	return int(d.dev.Keys)
}

// Pixels returns the side length of one key image in pixels.
func (d *Deck) Pixels() int {
	return int(d.dev.Pixels)
}

// SetImage shows img on the given key.
func (d *Deck) SetImage(index int, img image.Image) error {
	return d.dev.SetImage(uint8(index), img)
}

// ClearKey blanks the given key.
func (d *Deck) ClearKey(index int) error {
	size := image.Rect(0, 0, int(d.dev.Pixels), int(d.dev.Pixels))
	black := image.NewRGBA(size)
	return d.dev.SetImage(uint8(index), black)
}

// Events returns the press/release stream. The channel closes when the
// device goes away.
func (d *Deck) Events() <-chan bridge.KeyEvent {
	return d.events
}

// Close blanks the deck and releases the HID handle.
func (d *Deck) Close() error {
	if err := d.dev.Clear(); err != nil {
		d.logger.Warn("clear deck failed", "error", err)
	}
	return d.dev.Close()
}
