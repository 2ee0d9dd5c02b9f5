package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/nshehadeh/plasmadeck/internal/bridge"
	"github.com/nshehadeh/plasmadeck/internal/config"
	"github.com/nshehadeh/plasmadeck/internal/deck"
	"github.com/nshehadeh/plasmadeck/internal/icons"
	"github.com/nshehadeh/plasmadeck/internal/kwin"
	"github.com/nshehadeh/plasmadeck/internal/script"
)

// scriptHost adapts the KWin runner to the coordinator's ScriptHost
// interface.
type scriptHost struct {
	runner *kwin.Runner
}

func (h scriptHost) Load(ctx context.Context, source string) (bridge.RunningScript, error) {
	s, err := h.runner.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (h scriptHost) Unload(ctx context.Context, rs bridge.RunningScript) error {
	s, ok := rs.(*kwin.Script)
	if !ok {
		return fmt.Errorf("unexpected script handle type %T", rs)
	}
	return h.runner.Unload(ctx, s)
}

// runDaemon returns instead of exiting on failure so the deferred
// device and bus cleanup runs before the process dies.
func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	log.Printf("Configuration loaded (bus: %s, brightness: %d%%)", cfg.BusName, cfg.Brightness)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	defer conn.Close()

	dev, err := deck.Open(cfg.Brightness, logger)
	if err != nil {
		return fmt.Errorf("open stream deck: %w", err)
	}
	defer dev.Close()
	log.Printf("Stream deck opened (%d keys)", dev.Keys())

	runner := kwin.NewRunner(conn, logger)
	resolver := icons.NewResolver(icons.Config{
		DesktopDirs: cfg.DesktopDirs,
		IconDirs:    cfg.IconDirs,
		Size:        dev.Pixels(),
		Logger:      logger,
	})

	co := bridge.New(bridge.Config{
		Callback: script.CallbackAddress{
			Service:   cfg.BusName,
			Path:      cfg.ObjectPath,
			Interface: cfg.BusName,
		},
		Logger: logger,
	}, dev, scriptHost{runner}, resolver)

	if err := co.Start(ctx, conn); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	log.Println("plasmadeck daemon started successfully")

	if err := co.Run(ctx); err != nil {
		log.Printf("Shutdown finished with errors: %v", err)
	}
	log.Println("plasmadeck daemon stopped")
	return nil
}
