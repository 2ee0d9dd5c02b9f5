package bridge

import (
	"encoding/json"
	"time"

	"github.com/godbus/dbus/v5"
)

// Listener is the D-Bus object the observer script calls back into.
// Its methods run on godbus dispatch goroutines, so they only enqueue
// events for the coordinator and return; no shared state is touched
// here.
type Listener struct {
	co *Coordinator
}

// Log forwards a diagnostic line produced inside the scripting host.
func (l *Listener) Log(msg string) *dbus.Error {
	l.co.enqueue(event{kind: evLog, msg: msg})
	return nil
}

// WindowAdded reports a window that appeared (or already existed when
// the observer started).
func (l *Listener) WindowAdded(id, caption, resourceClass string) *dbus.Error {
	l.co.enqueue(event{kind: evWindowAdded, id: id, caption: caption, class: resourceClass})
	return nil
}

// WindowRemoved reports a window that went away.
func (l *Listener) WindowRemoved(id string) *dbus.Error {
	l.co.enqueue(event{kind: evWindowRemoved, id: id})
	return nil
}

// Status answers a CLI status query with a JSON snapshot. The snapshot
// is taken by the mutator goroutine so it is always consistent.
func (l *Listener) Status() (string, *dbus.Error) {
	reply := make(chan StatusData, 1)
	l.co.enqueue(event{kind: evStatus, status: reply})
	select {
	case data := <-reply:
		out, err := json.Marshal(data)
		if err != nil {
			return "", dbus.MakeFailedError(err)
		}
		return string(out), nil
	case <-time.After(2 * time.Second):
		return "", dbus.NewError("org.freedesktop.DBus.Error.Timeout", nil)
	}
}
