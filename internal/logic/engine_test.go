package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func fullConfig() Config {
	return Config{
		OpenTime:          30 * time.Second,
		CloseTime:         30 * time.Second,
		Behavior:          StopThenReverse,
		ClosedSensor:      true,
		OpenSensor:        true,
		ObstructionSensor: false,
		Button:            true,
	}
}

func sample(closed, open bool, at time.Time) Input {
	return Input{Closed: ReadingOf(closed), Open: ReadingOf(open), Time: at}
}

func TestNewMachineSeed(t *testing.T) {
	tests := []struct {
		name          string
		closed, open  bool
		wantStatus    Status
		wantConfirmed Status
		wantDirection Direction
		wantEvent     EventType
	}{
		{"closed", true, false, StatusClosed, StatusClosed, DirectionOpening, EventClosed},
		{"open", false, true, StatusOpened, StatusOpened, DirectionClosing, EventOpened},
		{"neither", false, false, StatusStopped, StatusUnknown, DirectionOpening, EventStopped},
		{"both", true, true, StatusFault, StatusUnknown, DirectionOpening, EventFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(fullConfig(), sample(tt.closed, tt.open, t0))
			s := m.State()
			assert.Equal(t, tt.wantStatus, s.Current)
			assert.Equal(t, tt.wantConfirmed, s.LastConfirmed)
			assert.Equal(t, tt.wantDirection, s.LastDirection)
			assert.True(t, s.MoveStarted.IsZero())

			ev := m.Initial(t0)
			assert.Equal(t, tt.wantEvent, ev.Type)
			assert.Equal(t, tt.wantStatus, ev.Status)
		})
	}
}

func TestClosedConfirmation(t *testing.T) {
	m := NewMachine(fullConfig(), sample(false, true, t0))

	// Start moving, then confirm closed.
	m.Process(sample(false, false, t0.Add(time.Second)))
	require.False(t, m.State().MoveStarted.IsZero())

	events := m.Process(sample(true, false, t0.Add(2*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)
	assert.Equal(t, StatusClosed, events[0].Status)
	assert.False(t, events[0].Assumed)

	s := m.State()
	assert.Equal(t, StatusClosed, s.Current)
	assert.Equal(t, StatusClosed, s.LastConfirmed)
	assert.Equal(t, DirectionOpening, s.LastDirection)
	assert.True(t, s.MoveStarted.IsZero())
}

func TestOpenedConfirmation(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))

	m.Process(sample(false, false, t0.Add(time.Second)))
	events := m.Process(sample(false, true, t0.Add(2*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventOpened, events[0].Type)

	s := m.State()
	assert.Equal(t, StatusOpened, s.Current)
	assert.Equal(t, StatusOpened, s.LastConfirmed)
	assert.Equal(t, DirectionClosing, s.LastDirection)
	assert.True(t, s.MoveStarted.IsZero())
}

func TestFaultRegardlessOfPriorState(t *testing.T) {
	seeds := []struct {
		name         string
		closed, open bool
	}{
		{"from closed", true, false},
		{"from open", false, true},
		{"from stopped", false, false},
	}

	for _, seed := range seeds {
		t.Run(seed.name, func(t *testing.T) {
			m := NewMachine(fullConfig(), sample(seed.closed, seed.open, t0))
			before := m.State()

			events := m.Process(sample(true, true, t0.Add(time.Second)))
			require.Len(t, events, 1)
			assert.Equal(t, EventFault, events[0].Type)
			assert.Equal(t, before.LastConfirmed, events[0].LastStatus)

			s := m.State()
			assert.Equal(t, StatusFault, s.Current)
			assert.Equal(t, before.LastDirection, s.LastDirection, "fault must not alter direction")
		})
	}
}

func TestFaultFromTransit(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))
	m.Process(sample(false, false, t0.Add(time.Second)))

	events := m.Process(sample(true, true, t0.Add(2*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventFault, events[0].Type)
	assert.Equal(t, StatusFault, m.State().Current)
	assert.True(t, m.State().MoveStarted.IsZero())
}

func TestFaultNotRepeated(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))

	assert.Len(t, m.Process(sample(true, true, t0.Add(1*time.Second))), 1)
	assert.Empty(t, m.Process(sample(true, true, t0.Add(2*time.Second))))
	assert.Empty(t, m.Process(sample(true, true, t0.Add(3*time.Second))))
	assert.Equal(t, 1, m.Counts().Faults)
}

func TestFaultSelfHeals(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))
	m.Process(sample(true, true, t0.Add(time.Second)))

	events := m.Process(sample(true, false, t0.Add(2*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)
	assert.Equal(t, StatusClosed, m.State().Current)
}

func TestFaultAfterFallbackResumesTransit(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))
	m.Process(sample(false, false, t0.Add(time.Second)))

	events := m.Process(sample(false, false, t0.Add(32*time.Second)))
	require.Len(t, events, 1)
	require.True(t, events[0].Assumed)
	require.Equal(t, StatusOpened, m.State().Current)

	events = m.Process(sample(true, true, t0.Add(33*time.Second)))
	require.Len(t, events, 1)
	require.Equal(t, EventFault, events[0].Type)

	events = m.Process(sample(false, false, t0.Add(34*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventMoving, events[0].Type)
	assert.Equal(t, DirectionClosing, events[0].Direction)
	assert.Equal(t, StatusClosing, m.State().Current)

	events = m.Process(sample(false, false, t0.Add(64*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)
	assert.True(t, events[0].Assumed)
}

func TestUnreadableConfiguredSensorIsFault(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))

	events := m.Process(Input{Closed: ReadingTrue, Open: ReadingUnknown, Time: t0.Add(time.Second)})
	require.Len(t, events, 1)
	assert.Equal(t, EventFault, events[0].Type)
}

func TestRestingStateNotReEmitted(t *testing.T) {
	m := NewMachine(fullConfig(), sample(false, false, t0))

	events := m.Process(sample(true, false, t0.Add(time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)

	for i := 2; i < 10; i++ {
		events := m.Process(sample(true, false, t0.Add(time.Duration(i)*time.Second)))
		assert.Empty(t, events, "tick %d", i)
	}
	assert.Equal(t, 1, m.Counts().Closed)
}

func TestMovingEmittedEveryTick(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))

	for i := 1; i <= 5; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		events := m.Process(sample(false, false, now))
		require.Len(t, events, 1, "tick %d", i)
		ev := events[0]
		assert.Equal(t, EventMoving, ev.Type)
		assert.Equal(t, DirectionOpening, ev.Direction)
		assert.Equal(t, StatusOpening, ev.Status)
		assert.Equal(t, StatusClosed, ev.LastStatus)
		assert.Equal(t, time.Duration(i-1)*time.Second, ev.Duration)
		assert.Equal(t, i > 1, ev.Repeat)
	}
	assert.Equal(t, 1, m.Counts().Moving)
}

func TestDirectionFromLastConfirmed(t *testing.T) {
	m := NewMachine(fullConfig(), sample(false, true, t0))

	events := m.Process(sample(false, false, t0.Add(time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, DirectionClosing, events[0].Direction)
	assert.Equal(t, StatusClosing, m.State().Current)
}

func TestDirectionFallsBackToLastDirection(t *testing.T) {
	// Seeded between sensors: no confirmed state, assumed opening.
	m := NewMachine(fullConfig(), sample(false, false, t0))

	events := m.Process(sample(false, false, t0.Add(time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, DirectionOpening, events[0].Direction)
}

func TestTimeoutFallbackOpening(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))

	m.Process(sample(false, false, t0))
	events := m.Process(sample(false, false, t0.Add(29999*time.Millisecond)))
	require.Len(t, events, 1)
	assert.Equal(t, EventMoving, events[0].Type)

	events = m.Process(sample(false, false, t0.Add(30*time.Second)))
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventOpened, ev.Type)
	assert.Equal(t, StatusOpened, ev.Status)
	assert.True(t, ev.Assumed)
	assert.Equal(t, 30*time.Second, ev.Duration)

	s := m.State()
	assert.Equal(t, StatusOpened, s.Current)
	assert.Equal(t, StatusOpened, s.LastConfirmed)
	assert.Equal(t, DirectionClosing, s.LastDirection)
	assert.True(t, s.MoveStarted.IsZero())
	assert.True(t, s.Assumed)
	assert.Equal(t, 1, m.Counts().Fallbacks)
}

func TestTimeoutFallbackClosingUsesCloseTime(t *testing.T) {
	cfg := fullConfig()
	cfg.OpenTime = 100 * time.Second
	cfg.CloseTime = 5 * time.Second
	m := NewMachine(cfg, sample(false, true, t0))

	m.Process(sample(false, false, t0))
	events := m.Process(sample(false, false, t0.Add(5*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)
	assert.True(t, events[0].Assumed)
}

func TestAssumedStateHoldsWhileSensorsSilent(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))
	m.Process(sample(false, false, t0))
	m.Process(sample(false, false, t0.Add(30*time.Second)))
	require.Equal(t, StatusOpened, m.State().Current)

	for i := 31; i < 120; i++ {
		events := m.Process(sample(false, false, t0.Add(time.Duration(i)*time.Second)))
		assert.Empty(t, events, "tick %d", i)
	}
	assert.Equal(t, StatusOpened, m.State().Current)
	assert.True(t, m.State().MoveStarted.IsZero())
}

func TestAssumedStateClearedBySensor(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))
	m.Process(sample(false, false, t0))
	m.Process(sample(false, false, t0.Add(30*time.Second)))

	events := m.Process(sample(false, true, t0.Add(31*time.Second)))
	assert.Empty(t, events, "already reporting OPEN")
	assert.False(t, m.State().Assumed)

	events = m.Process(sample(true, false, t0.Add(40*time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)
}

func TestZeroTravelTimeFallsBackImmediately(t *testing.T) {
	cfg := fullConfig()
	cfg.OpenTime = 0
	m := NewMachine(cfg, sample(true, false, t0))

	events := m.Process(sample(false, false, t0.Add(time.Second)))
	require.Len(t, events, 1)
	assert.Equal(t, EventOpened, events[0].Type)
	assert.True(t, events[0].Assumed)
}

func TestClosedSensorOnly(t *testing.T) {
	cfg := fullConfig()
	cfg.OpenSensor = false
	cfg.OpenTime = 10 * time.Second
	m := NewMachine(cfg, Input{Closed: ReadingTrue, Time: t0})
	require.Equal(t, StatusClosed, m.State().Current)

	events := m.Process(Input{Closed: ReadingFalse, Time: t0.Add(time.Second)})
	require.Len(t, events, 1)
	assert.Equal(t, EventMoving, events[0].Type)

	events = m.Process(Input{Closed: ReadingFalse, Time: t0.Add(11 * time.Second)})
	require.Len(t, events, 1)
	assert.Equal(t, EventOpened, events[0].Type)
	assert.True(t, events[0].Assumed)

	events = m.Process(Input{Closed: ReadingTrue, Time: t0.Add(60 * time.Second)})
	require.Len(t, events, 1)
	assert.Equal(t, EventClosed, events[0].Type)
}

func TestNoRestingSensorsNeverResolves(t *testing.T) {
	cfg := fullConfig()
	cfg.ClosedSensor = false
	cfg.OpenSensor = false
	m := NewMachine(cfg, Input{Time: t0})
	require.Equal(t, StatusStopped, m.State().Current)

	for i := 1; i < 100; i++ {
		events := m.Process(Input{Time: t0.Add(time.Duration(i) * time.Second)})
		assert.Empty(t, events)
	}
	assert.Equal(t, StatusStopped, m.State().Current)
}

func TestObstructionLevelTriggered(t *testing.T) {
	cfg := fullConfig()
	cfg.ObstructionSensor = true
	m := NewMachine(cfg, sample(true, false, t0))

	in := sample(true, false, t0.Add(time.Second))
	in.Obstruction = ReadingTrue
	events := m.Process(in)
	require.Len(t, events, 1)
	assert.Equal(t, EventObstruction, events[0].Type)
	assert.False(t, events[0].Repeat)
	assert.Equal(t, StatusClosed, events[0].Status)

	in.Time = t0.Add(2 * time.Second)
	events = m.Process(in)
	require.Len(t, events, 1)
	assert.Equal(t, EventObstruction, events[0].Type)
	assert.True(t, events[0].Repeat)

	in.Obstruction = ReadingFalse
	in.Time = t0.Add(3 * time.Second)
	events = m.Process(in)
	require.Len(t, events, 1)
	assert.Equal(t, EventClear, events[0].Type)
	assert.False(t, events[0].Repeat)

	assert.Equal(t, 1, m.Counts().Obstructions)
	require.NotNil(t, m.State().LastObstruction)
	assert.False(t, *m.State().LastObstruction)
}

func TestObstructionBeforeStatus(t *testing.T) {
	cfg := fullConfig()
	cfg.ObstructionSensor = true
	m := NewMachine(cfg, sample(false, true, t0))

	in := sample(true, false, t0.Add(time.Second))
	in.Obstruction = ReadingFalse
	events := m.Process(in)
	require.Len(t, events, 2)
	assert.Equal(t, EventClear, events[0].Type)
	assert.Equal(t, EventClosed, events[1].Type)
}

func TestObstructionUnconfiguredIgnored(t *testing.T) {
	m := NewMachine(fullConfig(), sample(true, false, t0))

	in := sample(true, false, t0.Add(time.Second))
	in.Obstruction = ReadingTrue
	assert.Empty(t, m.Process(in))
}

func TestStateReturnsCopy(t *testing.T) {
	cfg := fullConfig()
	cfg.ObstructionSensor = true
	m := NewMachine(cfg, sample(true, false, t0))
	in := sample(true, false, t0)
	in.Obstruction = ReadingTrue
	m.Process(in)

	s := m.State()
	*s.LastObstruction = false
	assert.True(t, *m.State().LastObstruction)
}
