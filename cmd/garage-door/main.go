// Command garage-door infers garage door state from GPIO sensors, actuates the
// opener's push button and publishes door events to MQTT, HTTP and HomeKit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/garage"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/history"
	"github.com/sweeney/garage-door/internal/homekit"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
	"github.com/sweeney/garage-door/internal/web"
)

// How often the main loop refreshes connection state and checks the heartbeat.
const housekeeping = 5 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the JSON configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	printState := flag.Bool("print-state", false, "Print current sensor state and exit")

	flag.Parse()

	if err := run(*configPath, *debug, *printState); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, debug, printState bool) error {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	opts := cfg.Options

	logger := newLogger(debug || opts.Debug)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn("config", "warning", w)
	}

	// Initialize GPIO
	port, err := gpio.NewRealPort(opts.Chip, cfg.Lines())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer port.Close()

	// Print state mode
	if printState {
		fmt.Println(renderState(cfg, port))
		return nil
	}

	// Commands can arrive (e.g. a retained MQTT set message) before the
	// fleet exists; they are refused until it does.
	cmds := &commander{}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      int64(opts.PollMs),
		DwellMs:     int64(opts.DwellMs),
		HeartbeatMs: opts.Heartbeat().Milliseconds(),
		Broker:      opts.MQTT.Broker,
		HTTPPort:    opts.HTTP,
		HomeKit:     opts.HomeKit.Enabled,
	}, statusDoors(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sinks := garage.Sinks{tracker}

	// History
	var hist *history.Recorder
	if opts.History.File != "" {
		var histFile *os.File
		hist, histFile, err = history.Open(opts.History.File, opts.History.Limit, logger)
		if err != nil {
			return err
		}
		defer histFile.Close()
	} else {
		hist = history.NewRecorder(opts.History.Limit, nil, logger)
	}
	sinks = append(sinks, garage.Edges(hist))

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if opts.MQTT.Broker != "" {
		client, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     opts.MQTT.Broker,
			ClientID:   opts.MQTT.ClientID,
			Prefix:     opts.MQTT.TopicPrefix,
			BufferSize: opts.MQTT.BufferSize,
			OnCommand: func(door string, target logic.Target) {
				if err := cmds.SetTarget(door, target); err != nil {
					logger.Warn("mqtt: command refused", "door", door, "target", target, "error", err)
				}
			},
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()
		publisher, mqttStatus = client, client
		sinks = append(sinks, mqtt.Sink{Publisher: client, Logger: logger})
	} else {
		logger.Info("mqtt disabled: no broker configured")
	}

	// HTTP status server
	var srv *web.Server
	if opts.HTTP != "" {
		srv = web.New(opts.HTTP, tracker, hist, cmds, logger)
		sinks = append(sinks, srv)
	}

	// HomeKit bridge
	var bridge *homekit.Bridge
	if opts.HomeKit.Enabled {
		bridge = homekit.New(homekit.Config{
			PairingCode: opts.HomeKit.PairingCode,
			StoragePath: opts.HomeKit.StoragePath,
			Port:        opts.HomeKit.Port,
		}, homekitDoors(cfg), cmds, logger)
		sinks = append(sinks, bridge)
	}

	doors := make([]*garage.Door, 0, len(cfg.Doors))
	for _, dc := range cfg.Doors {
		doors = append(doors, garage.New(dc.Garage(opts), port, sinks, logger))
	}
	fleet := garage.NewFleet(doors...)
	cmds.fleet.Store(fleet)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	publishSystem(publisher, mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return fleet.Run(gctx) })

	if srv != nil {
		g.Go(func() error {
			logger.Info("http status server listening", "addr", opts.HTTP)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}

	logger.Info("started",
		"doors", len(doors),
		"poll", opts.Poll(),
		"broker", opts.MQTT.Broker,
		"heartbeat", opts.Heartbeat(),
		"homekit", opts.HomeKit.Enabled)

	ticker := time.NewTicker(housekeeping)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(publisher, mqttStatus, tracker, opts.Heartbeat(), time.Now, ticker.C, sigCh, gctx.Done())

	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, done <-chan struct{}) error {
	lastBeat := now()

	shutdown := func(reason string) {
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
		}
		if publishSystem(publisher, event) {
			slog.Info("published shutdown event", "reason", reason)
		}
	}

	for {
		select {
		case s := <-sig:
			slog.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			shutdown(signalName)
			return nil

		case <-done:
			slog.Error("background task stopped, shutting down")
			shutdown("ERROR")
			return nil

		case <-tick:
			t := now()
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if heartbeat <= 0 || t.Sub(lastBeat) < heartbeat {
				continue
			}
			lastBeat = t

			hbEvent := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				for _, d := range snap.Doors {
					slog.Info("heartbeat", "door", d.Info.ID, "status", d.Status, "uptime", snap.Uptime().Round(time.Second))
				}
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			publishSystem(publisher, hbEvent)
		}
	}
}

// publishSystem publishes a lifecycle event, logging failures. A nil
// publisher (MQTT disabled) is a no-op.
func publishSystem(publisher mqtt.Publisher, event mqtt.SystemEvent) bool {
	if publisher == nil {
		return false
	}
	if err := publisher.PublishSystem(event); err != nil {
		slog.Warn("failed to publish system event", "event", event.Event, "error", err)
		return false
	}
	return true
}

// commander forwards commands to the fleet once it is running.
type commander struct {
	fleet atomic.Pointer[garage.Fleet]
}

var errNotReady = errors.New("doors not started")

func (c *commander) SetTarget(door string, target logic.Target) error {
	f := c.fleet.Load()
	if f == nil {
		return errNotReady
	}
	return f.SetTarget(door, target)
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func statusDoors(cfg *config.Config) []status.DoorInfo {
	out := make([]status.DoorInfo, 0, len(cfg.Doors))
	for _, d := range cfg.Doors {
		out = append(out, status.DoorInfo{
			ID:                d.ID,
			Name:              d.Name,
			Manufacturer:      d.Manufacturer,
			Model:             d.Model,
			SerialNumber:      d.SerialNumber,
			Button:            d.PushButton != nil,
			ClosedSensor:      d.ClosedSensor != nil,
			OpenSensor:        d.OpenSensor != nil,
			ObstructionSensor: d.ObstructionSensor != nil,
		})
	}
	return out
}

func homekitDoors(cfg *config.Config) []homekit.DoorInfo {
	out := make([]homekit.DoorInfo, 0, len(cfg.Doors))
	for _, d := range cfg.Doors {
		out = append(out, homekit.DoorInfo{
			ID:           d.ID,
			Name:         d.Name,
			Manufacturer: d.Manufacturer,
			Model:        d.Model,
			SerialNumber: d.SerialNumber,
		})
	}
	return out
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
