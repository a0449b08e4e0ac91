package logic

import "time"

// Machine fuses sensor samples into a door status.
type Machine struct {
	cfg    Config
	state  State
	counts EventCounts
}

// NewMachine creates a machine seeded from an initial sensor sample:
// closed → CLOSED, open → OPEN, both → FAULT, otherwise STOPPED with an
// assumed opening direction.
func NewMachine(cfg Config, initial Input) *Machine {
	m := &Machine{
		cfg: cfg,
		state: State{
			Current:       StatusStopped,
			LastConfirmed: StatusUnknown,
			LastDirection: DirectionOpening,
		},
	}

	closed, open, ok := m.resolve(initial)
	switch {
	case !ok:
	case closed && open:
		m.state.Current = StatusFault
	case closed:
		m.confirm(StatusClosed)
		m.state.Current = StatusClosed
	case open:
		m.confirm(StatusOpened)
		m.state.Current = StatusOpened
	}
	return m
}

// Initial returns the event announcing the seeded status.
func (m *Machine) Initial(now time.Time) Event {
	ev := Event{Timestamp: now, Status: m.state.Current, LastStatus: m.state.LastConfirmed}
	switch m.state.Current {
	case StatusClosed:
		ev.Type = EventClosed
	case StatusOpened:
		ev.Type = EventOpened
	case StatusFault:
		ev.Type = EventFault
	default:
		ev.Type = EventStopped
	}
	return ev
}

// Process takes a new poll sample and returns the events to emit.
// Resting and fault events are only returned on a change of status;
// MOVING and obstruction events are returned on every tick.
func (m *Machine) Process(in Input) []Event {
	var events []Event

	if ev, ok := m.processObstruction(in); ok {
		events = append(events, ev)
	}

	// Without resting sensors the status can never be inferred.
	if !m.cfg.ClosedSensor && !m.cfg.OpenSensor {
		return events
	}

	closed, open, ok := m.resolve(in)
	var ev *Event
	switch {
	case !ok, closed && open:
		ev = m.fault(in.Time)
	case closed:
		ev = m.rest(StatusClosed, in.Time)
	case open:
		ev = m.rest(StatusOpened, in.Time)
	default:
		ev = m.transit(in.Time)
	}
	if ev != nil {
		m.counts.Add(*ev)
		events = append(events, *ev)
	}
	return events
}

// resolve maps the resting sensors to booleans. An unconfigured sensor reads
// as false; a configured sensor that returned no value makes the sample unusable.
func (m *Machine) resolve(in Input) (closed, open, ok bool) {
	if m.cfg.ClosedSensor {
		if in.Closed == ReadingUnknown {
			return false, false, false
		}
		closed = in.Closed == ReadingTrue
	}
	if m.cfg.OpenSensor {
		if in.Open == ReadingUnknown {
			return false, false, false
		}
		open = in.Open == ReadingTrue
	}
	return closed, open, m.cfg.ClosedSensor || m.cfg.OpenSensor
}

func (m *Machine) processObstruction(in Input) (Event, bool) {
	if !m.cfg.ObstructionSensor || in.Obstruction == ReadingUnknown {
		return Event{}, false
	}

	obstructed := in.Obstruction == ReadingTrue
	repeat := m.state.LastObstruction != nil && *m.state.LastObstruction == obstructed
	m.state.LastObstruction = &obstructed

	ev := Event{
		Timestamp: in.Time,
		Type:      EventClear,
		Status:    m.state.Current,
		Repeat:    repeat,
	}
	if obstructed {
		ev.Type = EventObstruction
	}
	m.counts.Add(ev)
	return ev, true
}

func (m *Machine) fault(now time.Time) *Event {
	// A contradicting door is not in transit, and no longer rests on an assumption.
	m.state.MoveStarted = time.Time{}
	m.state.Assumed = false
	if m.state.Current == StatusFault {
		return nil
	}
	m.state.Current = StatusFault
	return &Event{
		Timestamp:  now,
		Type:       EventFault,
		Status:     StatusFault,
		LastStatus: m.state.LastConfirmed,
	}
}

func (m *Machine) rest(s Status, now time.Time) *Event {
	m.confirm(s)
	if m.state.Current == s {
		return nil
	}
	m.state.Current = s
	return &Event{Timestamp: now, Type: restingEvent(s), Status: s}
}

// confirm records a sensor-confirmed resting state.
func (m *Machine) confirm(s Status) {
	m.state.MoveStarted = time.Time{}
	m.state.Assumed = false
	m.state.LastConfirmed = s
	if s == StatusClosed {
		m.state.LastDirection = DirectionOpening
	} else {
		m.state.LastDirection = DirectionClosing
	}
}

func (m *Machine) transit(now time.Time) *Event {
	// An assumed resting state holds until a sensor or a command says otherwise.
	if m.state.Assumed && m.state.MoveStarted.IsZero() {
		return nil
	}
	if m.state.MoveStarted.IsZero() {
		m.state.MoveStarted = now
	}

	dir := m.direction()
	elapsed := now.Sub(m.state.MoveStarted)

	limit := m.cfg.CloseTime
	if dir == DirectionOpening {
		limit = m.cfg.OpenTime
	}
	if elapsed >= limit {
		return m.fallback(dir, elapsed, now)
	}

	status := dir.Moving()
	repeat := m.state.Current == status
	m.state.Current = status
	return &Event{
		Timestamp:  now,
		Type:       EventMoving,
		Status:     status,
		Direction:  dir,
		Duration:   elapsed,
		LastStatus: m.state.LastConfirmed,
		Repeat:     repeat,
	}
}

// direction infers travel from the last confirmed resting state, which also
// covers doors moved by a remote outside this process.
func (m *Machine) direction() Direction {
	switch m.state.LastConfirmed {
	case StatusClosed:
		return DirectionOpening
	case StatusOpened:
		return DirectionClosing
	}
	return m.state.LastDirection
}

func (m *Machine) fallback(dir Direction, elapsed time.Duration, now time.Time) *Event {
	s := dir.Destination()
	m.confirm(s)
	m.state.Assumed = true
	m.state.Current = s
	return &Event{
		Timestamp: now,
		Type:      restingEvent(s),
		Status:    s,
		Duration:  elapsed,
		Assumed:   true,
	}
}

func restingEvent(s Status) EventType {
	if s == StatusClosed {
		return EventClosed
	}
	return EventOpened
}

// State returns a copy of the current door state.
func (m *Machine) State() State {
	s := m.state
	if s.LastObstruction != nil {
		v := *s.LastObstruction
		s.LastObstruction = &v
	}
	return s
}

// Counts returns the event counts since startup.
func (m *Machine) Counts() EventCounts {
	return m.counts
}

// Config returns the machine configuration.
func (m *Machine) Config() Config {
	return m.cfg
}
