// Package kwin drives the KWin scripting host over the D-Bus session
// bus: ephemeral script files are handed to org.kde.kwin.Scripting for
// loading, and the returned per-script objects are run and stopped
// through org.kde.kwin.Script.
package kwin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
)

var (
	// ErrHostUnavailable indicates the scripting host could not be
	// reached over the bus.
	ErrHostUnavailable = errors.New("script host unavailable")
	// ErrHostRejected indicates the scripting host returned an error
	// for a load/run/stop/unload call; the handle involved must not be
	// reused.
	ErrHostRejected = errors.New("script host rejected request")
	// ErrResourceExhausted indicates the ephemeral backing file for a
	// script could not be allocated.
	ErrResourceExhausted = errors.New("script storage exhausted")
)

const (
	kwinService    = "org.kde.KWin"
	scriptingPath  = "/Scripting"
	scriptingIface = "org.kde.kwin.Scripting"
	scriptIface    = "org.kde.kwin.Script"
)

// Runner loads and unloads scripts on the KWin scripting host.
type Runner struct {
	conn      *dbus.Conn
	scripting dbus.BusObject
	logger    *slog.Logger
}

// NewRunner wraps an established session-bus connection.
func NewRunner(conn *dbus.Conn, logger *slog.Logger) *Runner {
	return &Runner{
		conn:      conn,
		scripting: conn.Object(kwinService, scriptingPath),
		logger:    logger,
	}
}

// Script is a handle to one loaded script. It owns an ephemeral backing
// file on disk and a script-table entry inside KWin; both are released
// by Runner.Unload, which must be called exactly once per successful
// Load.
type Script struct {
	id   int32
	path string
	obj  dbus.BusObject
}

// ID returns the script identifier issued by the host.
func (s *Script) ID() int32 { return s.id }

// Path returns the backing file the host loaded the script from.
func (s *Script) Path() string { return s.path }

// Load writes source to a fresh temp file and asks KWin to load it.
// The file is removed again if the host call fails.
func (r *Runner) Load(ctx context.Context, source string) (*Script, error) {
	f, err := os.CreateTemp("", "plasmadeck-*.js")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	path := f.Name()
	if _, err := f.WriteString(source); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: write %s: %v", ErrResourceExhausted, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: close %s: %v", ErrResourceExhausted, path, err)
	}

	var id int32
	call := r.scripting.CallWithContext(ctx, scriptingIface+".loadScript", 0, path)
	if err := call.Store(&id); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("loadScript: %w", classify(err))
	}

	r.logger.Info("script loaded", "id", id, "path", path)
	objPath := dbus.ObjectPath(fmt.Sprintf("%s/Script%d", scriptingPath, id))
	return &Script{
		id:   id,
		path: path,
		obj:  r.conn.Object(kwinService, objPath),
	}, nil
}

// Run asks the host to start executing the script. It returns once the
// host acknowledges that invocation has begun; scripts that install
// subscriptions keep running after Run returns.
func (s *Script) Run(ctx context.Context) error {
	if err := s.obj.CallWithContext(ctx, scriptIface+".run", 0).Err; err != nil {
		return fmt.Errorf("run script %d: %w", s.id, classify(err))
	}
	return nil
}

// Stop terminates a long-lived script.
func (s *Script) Stop(ctx context.Context) error {
	if err := s.obj.CallWithContext(ctx, scriptIface+".stop", 0).Err; err != nil {
		return fmt.Errorf("stop script %d: %w", s.id, classify(err))
	}
	return nil
}

// Unload releases both sides of the script handle: the host's script
// table entry and the local backing file. The file is removed even
// when the host call fails, so shutdown never leaves temp files
// behind.
func (r *Runner) Unload(ctx context.Context, s *Script) error {
	var unloaded bool
	callErr := r.scripting.CallWithContext(ctx, scriptingIface+".unloadScript", 0, s.path).Store(&unloaded)
	rmErr := os.Remove(s.path)
	if callErr != nil {
		return fmt.Errorf("unloadScript script %d: %w", s.id, classify(callErr))
	}
	if !unloaded {
		r.logger.Warn("host had no script registered for path", "id", s.id, "path", s.path)
	}
	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("remove script file: %w", rmErr)
	}
	return nil
}

// classify maps a D-Bus call failure onto the error taxonomy: an error
// reply from the host is a rejection, anything else means the host was
// unreachable.
func classify(err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return fmt.Errorf("%w: %s", ErrHostRejected, dbusErr.Name)
	}
	return fmt.Errorf("%w: %v", ErrHostUnavailable, err)
}
