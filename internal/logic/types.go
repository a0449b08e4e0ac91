// Package logic contains the pure door state engine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"strings"
	"time"
)

// Status is the externally reported status of a door.
type Status string

const (
	StatusClosed  Status = "CLOSED"
	StatusOpened  Status = "OPEN"
	StatusOpening Status = "OPENING"
	StatusClosing Status = "CLOSING"
	StatusStopped Status = "STOPPED"
	StatusFault   Status = "FAULT"

	// StatusUnknown is only used for the last confirmed resting state
	// before any sensor has confirmed one.
	StatusUnknown Status = "UNKNOWN"
)

// Direction is the best-guess direction of door travel.
type Direction string

const (
	DirectionOpening Direction = "OPENING"
	DirectionClosing Direction = "CLOSING"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionOpening {
		return DirectionClosing
	}
	return DirectionOpening
}

// Moving returns the in-transit status for this direction.
func (d Direction) Moving() Status {
	if d == DirectionOpening {
		return StatusOpening
	}
	return StatusClosing
}

// Destination returns the resting status reached by travelling in this direction.
func (d Direction) Destination() Status {
	if d == DirectionOpening {
		return StatusOpened
	}
	return StatusClosed
}

// Origin returns the resting status a door leaves when travelling in this direction.
func (d Direction) Origin() Status {
	return d.Opposite().Destination()
}

// Reading is a tri-state sensor value.
type Reading int8

const (
	ReadingUnknown Reading = iota
	ReadingFalse
	ReadingTrue
)

// ReadingOf converts a sampled boolean into a Reading.
func ReadingOf(b bool) Reading {
	if b {
		return ReadingTrue
	}
	return ReadingFalse
}

func (r Reading) String() string {
	switch r {
	case ReadingTrue:
		return "true"
	case ReadingFalse:
		return "false"
	}
	return "unknown"
}

// ButtonBehavior selects how a reversal is actuated.
type ButtonBehavior string

const (
	// StopThenReverse presses twice: the first press stops the door, the second reverses it.
	StopThenReverse ButtonBehavior = "stop-then-reverse"
	// AutoReverse openers reverse on a single press.
	AutoReverse ButtonBehavior = "auto-reverse"
	// AlwaysToggle openers toggle direction on every press.
	AlwaysToggle ButtonBehavior = "always-toggle"
)

// ParseButtonBehavior returns the behavior named by s, or false if s is not recognised.
func ParseButtonBehavior(s string) (ButtonBehavior, bool) {
	switch b := ButtonBehavior(strings.ToLower(strings.TrimSpace(s))); b {
	case StopThenReverse, AutoReverse, AlwaysToggle:
		return b, true
	}
	return "", false
}

// Target is a commanded door position.
type Target string

const (
	TargetOpen  Target = "OPEN"
	TargetClose Target = "CLOSE"
)

// ErrInvalidTarget is returned by ParseTarget for unrecognised input.
var ErrInvalidTarget = errors.New("invalid target: want OPEN or CLOSE")

// ParseTarget accepts OPEN/CLOSE (any case, also "closed").
func ParseTarget(s string) (Target, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPEN":
		return TargetOpen, nil
	case "CLOSE", "CLOSED":
		return TargetClose, nil
	}
	return "", ErrInvalidTarget
}

// Direction returns the direction of travel needed to reach the target.
func (t Target) Direction() Direction {
	if t == TargetOpen {
		return DirectionOpening
	}
	return DirectionClosing
}

// EventType is the kind of a status notification.
type EventType string

const (
	EventClosed      EventType = "CLOSED"
	EventOpened      EventType = "OPENED"
	EventMoving      EventType = "MOVING"
	EventStopped     EventType = "STOPPED"
	EventFault       EventType = "FAULT"
	EventObstruction EventType = "OBSTRUCTION"
	EventClear       EventType = "CLEAR"
)

// Event is a status notification for the event sinks.
type Event struct {
	Timestamp time.Time
	Type      EventType
	// Status is the door's reported status after the event was applied.
	Status Status
	// Direction and Duration are set for MOVING events (Duration also for assumed resting states).
	Direction Direction
	Duration  time.Duration
	// LastStatus carries the last confirmed resting state for MOVING and FAULT events.
	LastStatus Status
	// Assumed marks a resting state reached by timeout fallback without sensor confirmation.
	Assumed bool
	// Repeat marks a level-triggered re-emission of the previous event of the same kind.
	Repeat bool
}

// Config is the immutable per-door engine configuration.
type Config struct {
	OpenTime  time.Duration
	CloseTime time.Duration
	Behavior  ButtonBehavior

	// Which inputs and outputs are wired.
	ClosedSensor      bool
	OpenSensor        bool
	ObstructionSensor bool
	Button            bool
}

// Input is a single poll sample.
type Input struct {
	Closed      Reading
	Open        Reading
	Obstruction Reading
	Time        time.Time
}

// State is the mutable door state owned by one Machine.
type State struct {
	Current       Status
	LastConfirmed Status
	LastDirection Direction
	// MoveStarted is zero unless the door is believed to be in transit.
	MoveStarted time.Time
	// Assumed is set while the current resting state came from timeout fallback.
	Assumed bool
	// LastObstruction only suppresses duplicate obstruction logging.
	LastObstruction *bool
}

// EventCounts tracks the number of non-repeat events since startup.
type EventCounts struct {
	Opened       int
	Closed       int
	Moving       int
	Faults       int
	Fallbacks    int
	Obstructions int
}

// Add counts a non-repeat event.
func (c *EventCounts) Add(ev Event) {
	if ev.Repeat {
		return
	}
	switch ev.Type {
	case EventOpened:
		c.Opened++
	case EventClosed:
		c.Closed++
	case EventMoving:
		c.Moving++
	case EventFault:
		c.Faults++
	case EventObstruction:
		c.Obstructions++
	}
	if ev.Assumed {
		c.Fallbacks++
	}
}

// Decision is the outcome of a commanded target.
type Decision struct {
	// Pulses is the number of button presses to issue; zero means no-op.
	Pulses   int
	Reversal bool
	// Reason explains a no-op.
	Reason string
}
