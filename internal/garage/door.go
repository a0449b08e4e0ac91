// Package garage schedules door state engines: one polling goroutine per door,
// command intake, and the push-button pulse sequence.
package garage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultPoll is the sensor polling interval.
const DefaultPoll = time.Second

// commandTimeout bounds how long SetTarget waits for the door loop.
const commandTimeout = 2 * time.Second

// Pins is the GPIO access a door needs.
type Pins interface {
	gpio.Reader
	gpio.Writer
}

// Config is the per-door wiring and timing. Unwired pins are gpio.NoPin.
type Config struct {
	ID   string
	Name string

	Button            int
	ClosedSensor      int
	OpenSensor        int
	ObstructionSensor int

	OpenTime  time.Duration
	CloseTime time.Duration
	Behavior  logic.ButtonBehavior

	Poll  time.Duration
	Dwell time.Duration
}

// Door owns one door's state machine. All state is confined to the Run goroutine.
type Door struct {
	cfg     Config
	pins    Pins
	sink    Sink
	log     *slog.Logger
	now     func() time.Time
	machine *logic.Machine
	seq     *Sequencer

	commands  chan logic.Target
	done      chan struct{}
	pulsing   bool
	pulseDone chan error
	readErrs  map[int]bool
}

// New creates a door and seeds its state from an initial sensor read.
func New(cfg Config, pins Pins, sink Sink, logger *slog.Logger) *Door {
	return newDoor(cfg, pins, sink, logger, time.Now)
}

func newDoor(cfg Config, pins Pins, sink Sink, logger *slog.Logger, now func() time.Time) *Door {
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = Sinks(nil)
	}

	d := &Door{
		cfg:       cfg,
		pins:      pins,
		sink:      sink,
		log:       logger.With("door", cfg.ID),
		now:       now,
		seq:       NewSequencer(pins, cfg.Button, cfg.Dwell),
		commands:  make(chan logic.Target),
		done:      make(chan struct{}),
		pulseDone: make(chan error, 1),
		readErrs:  make(map[int]bool),
	}

	if cfg.Button == gpio.NoPin {
		d.log.Warn("no push button pin configured, unable to operate door")
	}
	if cfg.ClosedSensor == gpio.NoPin && cfg.OpenSensor == gpio.NoPin {
		d.log.Warn("no open or closed sensor configured, door status will not be reported")
	}

	d.machine = logic.NewMachine(logic.Config{
		OpenTime:          cfg.OpenTime,
		CloseTime:         cfg.CloseTime,
		Behavior:          cfg.Behavior,
		ClosedSensor:      cfg.ClosedSensor != gpio.NoPin,
		OpenSensor:        cfg.OpenSensor != gpio.NoPin,
		ObstructionSensor: cfg.ObstructionSensor != gpio.NoPin,
		Button:            cfg.Button != gpio.NoPin,
	}, d.sample(now()))

	return d
}

// ID returns the door identifier.
func (d *Door) ID() string { return d.cfg.ID }

// Name returns the display name.
func (d *Door) Name() string { return d.cfg.Name }

// Config returns the door configuration.
func (d *Door) Config() Config { return d.cfg }

// Run polls the sensors every Poll interval until ctx is cancelled.
func (d *Door) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Poll)
	defer ticker.Stop()
	return d.run(ctx, ticker.C)
}

func (d *Door) run(ctx context.Context, tick <-chan time.Time) error {
	defer close(d.done)

	d.notify(d.machine.Initial(d.now()))
	d.log.Info("door started", "status", d.machine.State().Current, "poll", d.cfg.Poll)

	cancelPulse := context.CancelFunc(func() {})
	defer func() { cancelPulse() }()

	for {
		select {
		case <-ctx.Done():
			if d.pulsing {
				cancelPulse()
				if err := <-d.pulseDone; err != nil && (!errors.Is(err, context.Canceled) || errors.Is(err, ErrRelease)) {
					d.log.Warn("button sequence failed during shutdown", "error", err)
				}
			}
			return nil

		case <-tick:
			d.poll(d.now())

		case target := <-d.commands:
			if cancel := d.command(ctx, target); cancel != nil {
				cancelPulse = cancel
			}

		case err := <-d.pulseDone:
			d.pulsing = false
			cancelPulse()
			if err != nil {
				d.log.Warn("button sequence failed", "error", err)
			}
		}
	}
}

// SetTarget asks the door to move to target. It never reports failure to
// the caller; outcomes are visible through status events and logs.
func (d *Door) SetTarget(target logic.Target) {
	t := time.NewTimer(commandTimeout)
	defer t.Stop()
	select {
	case d.commands <- target:
	case <-d.done:
		d.log.Warn("command dropped, door stopped", "target", target)
	case <-t.C:
		d.log.Warn("command dropped, door busy", "target", target)
	}
}

// command applies a target and starts the pulse sequence. Overlapping
// commands are rejected while a sequence is in flight.
func (d *Door) command(ctx context.Context, target logic.Target) context.CancelFunc {
	if d.pulsing {
		d.log.Warn("command rejected, button sequence in progress", "target", target)
		return nil
	}

	dec := d.machine.Command(target, d.now())
	if dec.Pulses == 0 {
		d.log.Debug("command ignored", "target", target, "reason", dec.Reason)
		return nil
	}

	d.log.Info("pressing button", "target", target, "presses", dec.Pulses, "reversal", dec.Reversal)
	pctx, cancel := context.WithCancel(ctx)
	d.pulsing = true
	go func(n int) {
		d.pulseDone <- d.seq.Run(pctx, n)
	}(dec.Pulses)
	return cancel
}

func (d *Door) poll(now time.Time) {
	for _, ev := range d.machine.Process(d.sample(now)) {
		d.notify(ev)
	}
}

func (d *Door) sample(now time.Time) logic.Input {
	return logic.Input{
		Closed:      d.read(d.cfg.ClosedSensor, "closed"),
		Open:        d.read(d.cfg.OpenSensor, "open"),
		Obstruction: d.read(d.cfg.ObstructionSensor, "obstruction"),
		Time:        now,
	}
}

// read returns Unknown for unwired pins and failed reads. A failing pin is
// logged once until it recovers.
func (d *Door) read(pin int, sensor string) logic.Reading {
	if pin == gpio.NoPin {
		return logic.ReadingUnknown
	}
	v, err := d.pins.Read(pin)
	if err != nil {
		if !d.readErrs[pin] {
			d.readErrs[pin] = true
			d.log.Warn("sensor read failed", "sensor", sensor, "pin", pin, "error", err)
		}
		return logic.ReadingUnknown
	}
	if d.readErrs[pin] {
		delete(d.readErrs, pin)
		d.log.Info("sensor read recovered", "sensor", sensor, "pin", pin)
	}
	return logic.ReadingOf(v)
}

func (d *Door) notify(ev logic.Event) {
	d.logEvent(ev)
	d.sink.Notify(d.cfg.ID, ev)
}

func (d *Door) logEvent(ev logic.Event) {
	if ev.Repeat {
		return
	}
	switch ev.Type {
	case logic.EventClosed, logic.EventOpened:
		if ev.Assumed {
			d.log.Warn("door assumed "+strings.ToLower(string(ev.Status))+", no sensor confirmation received",
				"after", ev.Duration)
			return
		}
		if ev.Type == logic.EventOpened {
			d.log.Warn("door is open")
		} else {
			d.log.Info("door is closed")
		}
	case logic.EventMoving:
		d.log.Debug("door is "+strings.ToLower(string(ev.Status)), "last", ev.LastStatus)
	case logic.EventStopped:
		d.log.Debug("door has stopped moving")
	case logic.EventFault:
		d.log.Error("door is reporting fault with sensors", "last", ev.LastStatus)
	case logic.EventObstruction:
		d.log.Warn("door is reporting an obstruction")
	case logic.EventClear:
		d.log.Info("door obstruction clear")
	}
}
