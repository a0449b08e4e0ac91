package logic

import "time"

// Command decides how to actuate a commanded target and updates the expected
// direction bookkeeping for the next poll. It never changes the reported status;
// confirmation comes from the sensors.
func (m *Machine) Command(target Target, now time.Time) Decision {
	if !m.cfg.Button {
		return Decision{Reason: "no push button configured"}
	}
	dir := target.Direction()
	if m.state.Current == dir.Destination() {
		return Decision{Reason: "door already " + string(m.state.Current)}
	}

	reversal := m.state.Current == dir.Opposite().Moving()
	pulses := 1
	if reversal && m.cfg.Behavior == StopThenReverse {
		pulses = 2
	}

	m.expect(dir, now)
	return Decision{Pulses: pulses, Reversal: reversal}
}

// expect records the intended direction before the sensors see it, so the next
// poll infers travel from intent rather than stale history.
func (m *Machine) expect(dir Direction, now time.Time) {
	m.state.LastConfirmed = dir.Origin()
	m.state.LastDirection = dir
	m.state.MoveStarted = now
	m.state.Assumed = false
}
