package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/nshehadeh/plasmadeck/internal/bridge"
	"github.com/nshehadeh/plasmadeck/internal/config"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: plasmadeck status")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Query the running daemon over D-Bus.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to session bus: %v\n", err)
		return 1
	}
	defer conn.Close()

	obj := conn.Object(cfg.BusName, dbus.ObjectPath(cfg.ObjectPath))
	var payload string
	if err := obj.Call(cfg.BusName+".Status", 0).Store(&payload); err != nil {
		fmt.Fprintf(os.Stderr, "daemon not reachable: %v\n", err)
		return 1
	}

	var status bridge.StatusData
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		fmt.Fprintf(os.Stderr, "malformed status reply: %v\n", err)
		return 1
	}

	fmt.Printf("daemon_running: %v\n", status.DaemonRunning)
	fmt.Printf("windows:        %d\n", status.Windows)
	fmt.Printf("slots_used:     %d\n", status.SlotsUsed)
	fmt.Printf("slots_total:    %d\n", status.SlotsTotal)
	fmt.Printf("uptime_seconds: %d\n", status.UptimeSeconds)
	return 0
}

func runConfig(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: plasmadeck config <validate|print>")
		return 2
	}

	switch args[0] {
	case "validate":
		if _, err := config.Load(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("configuration valid")
		return 0
	case "print":
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("brightness:   %d\n", cfg.Brightness)
		fmt.Printf("log_level:    %s\n", cfg.LogLevel)
		fmt.Printf("bus_name:     %s\n", cfg.BusName)
		fmt.Printf("object_path:  %s\n", cfg.ObjectPath)
		fmt.Printf("desktop_dirs: %v\n", cfg.DesktopDirs)
		fmt.Printf("icon_dirs:    %v\n", cfg.IconDirs)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Usage: plasmadeck config <validate|print>")
		return 2
	}
}
