package deck

import (
	"testing"

	"github.com/muesli/streamdeck"
)

func TestGeometryAccessors(t *testing.T) {
	d := &Deck{dev: streamdeck.Device{Keys: 15, Pixels: 72}}
	if got := d.Keys(); got != 15 {
		t.Fatalf("Keys() = %d, want 15", got)
	}
	if got := d.Pixels(); got != 72 {
		t.Fatalf("Pixels() = %d, want 72", got)
	}
}
