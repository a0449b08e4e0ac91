// Package homekit presents the doors as HomeKit garage door openers behind one bridge.
package homekit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	"github.com/brutella/hc/characteristic"
	"github.com/brutella/hc/service"

	"github.com/sweeney/garage-door/internal/logic"
)

// Commander accepts door commands.
type Commander interface {
	SetTarget(door string, target logic.Target) error
}

// Config configures the bridge transport.
type Config struct {
	Name        string
	PairingCode string // XXX-XX-XXX or XXXX-XXXX
	StoragePath string
	Port        string
}

// DoorInfo describes one door accessory.
type DoorInfo struct {
	ID           string
	Name         string
	Manufacturer string
	Model        string
	SerialNumber string
}

// values are the characteristic values of one garage door opener.
type values struct {
	Current    int
	Target     int
	Fault      bool
	Obstructed bool
}

// apply maps a door event onto HomeKit values. Stopped and fault keep the
// last target; fault also keeps the last current state.
func apply(v values, ev logic.Event) values {
	switch ev.Type {
	case logic.EventObstruction:
		v.Obstructed = true
		return v
	case logic.EventClear:
		v.Obstructed = false
		return v
	}

	v.Fault = ev.Status == logic.StatusFault
	switch ev.Status {
	case logic.StatusClosed:
		v.Current, v.Target = characteristic.CurrentDoorStateClosed, characteristic.TargetDoorStateClosed
	case logic.StatusOpened:
		v.Current, v.Target = characteristic.CurrentDoorStateOpen, characteristic.TargetDoorStateOpen
	case logic.StatusOpening:
		v.Current, v.Target = characteristic.CurrentDoorStateOpening, characteristic.TargetDoorStateOpen
	case logic.StatusClosing:
		v.Current, v.Target = characteristic.CurrentDoorStateClosing, characteristic.TargetDoorStateClosed
	case logic.StatusStopped:
		v.Current = characteristic.CurrentDoorStateStopped
	}
	return v
}

type door struct {
	info  DoorInfo
	acc   *accessory.Accessory
	svc   *service.GarageDoorOpener
	fault *characteristic.StatusFault
	v     values
}

// Bridge is an event sink that mirrors door status into HomeKit accessories
// and forwards TargetDoorState writes to the commander.
type Bridge struct {
	cfg       Config
	commander Commander
	log       *slog.Logger

	bridge *accessory.Bridge
	accs   []*accessory.Accessory

	mu    sync.Mutex
	doors map[string]*door
}

// New creates the bridge and one accessory per door. Doors start closed.
func New(cfg Config, doors []DoorInfo, commander Commander, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "Garage Door Bridge"
	}
	b := &Bridge{
		cfg:       cfg,
		commander: commander,
		log:       logger.With("component", "homekit"),
		bridge:    accessory.NewBridge(accessory.Info{Name: cfg.Name, Manufacturer: "sweeney"}),
		doors:     make(map[string]*door, len(doors)),
	}

	for _, info := range doors {
		d := &door{
			info: info,
			acc: accessory.New(accessory.Info{
				Name:         info.Name,
				Manufacturer: info.Manufacturer,
				Model:        info.Model,
				SerialNumber: info.SerialNumber,
			}, accessory.TypeGarageDoorOpener),
			svc:   service.NewGarageDoorOpener(),
			fault: characteristic.NewStatusFault(),
			v: values{
				Current: characteristic.CurrentDoorStateClosed,
				Target:  characteristic.TargetDoorStateClosed,
			},
		}
		d.svc.AddCharacteristic(d.fault.Characteristic)
		d.acc.AddService(d.svc.Service)
		d.write(d.v)

		id := info.ID
		d.svc.TargetDoorState.OnValueRemoteUpdate(func(v int) {
			go b.remoteTarget(id, v)
		})

		b.doors[id] = d
		b.accs = append(b.accs, d.acc)
	}
	return b
}

func (d *door) write(v values) {
	d.svc.CurrentDoorState.SetValue(v.Current)
	d.svc.TargetDoorState.SetValue(v.Target)
	d.svc.ObstructionDetected.SetValue(v.Obstructed)
	fault := characteristic.StatusFaultNoFault
	if v.Fault {
		fault = characteristic.StatusFaultGeneralFault
	}
	d.fault.SetValue(fault)
	d.v = v
}

// Notify updates the accessory of the door.
func (b *Bridge) Notify(id string, ev logic.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.doors[id]
	if !ok {
		return
	}
	if v := apply(d.v, ev); v != d.v {
		d.write(v)
	}
}

// remoteTarget handles a TargetDoorState write from a HomeKit controller.
func (b *Bridge) remoteTarget(id string, v int) {
	target := logic.TargetClose
	if v == characteristic.TargetDoorStateOpen {
		target = logic.TargetOpen
	}
	b.log.Info("homekit: target door state set", "door", id, "target", target)
	if b.commander == nil {
		return
	}
	if err := b.commander.SetTarget(id, target); err != nil {
		b.log.Warn("homekit: command failed", "door", id, "error", err)
	}
}

// Pin converts a pairing code to the 8 digit form the transport expects.
func Pin(code string) string {
	return strings.ReplaceAll(code, "-", "")
}

// Run publishes the bridge until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	t, err := hc.NewIPTransport(hc.Config{
		Pin:         Pin(b.cfg.PairingCode),
		StoragePath: b.cfg.StoragePath,
		Port:        b.cfg.Port,
	}, b.bridge.Accessory, b.accs...)
	if err != nil {
		return fmt.Errorf("homekit transport: %w", err)
	}

	go t.Start()
	b.log.Info("homekit bridge started", "doors", len(b.accs), "pairing_code", b.cfg.PairingCode)

	<-ctx.Done()
	<-t.Stop()
	b.log.Info("homekit bridge stopped")
	return nil
}
