// Package status provides a thread-safe per-door status tracker for the garage door daemon.
// It is read by the HTTP handlers, the heartbeat and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/sweeney/garage-door/internal/logic"
)

// NetworkInfo contains network state as reported by the host environment.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	DwellMs     int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	HomeKit     bool
}

// DoorInfo is the static description of a door.
type DoorInfo struct {
	ID           string
	Name         string
	Manufacturer string
	Model        string
	SerialNumber string

	// Which inputs and outputs are wired.
	Button            bool
	ClosedSensor      bool
	OpenSensor        bool
	ObstructionSensor bool
}

// DoorSnapshot is the tracked state of one door.
type DoorSnapshot struct {
	Info DoorInfo

	Status     logic.Status
	LastStatus logic.Status
	Direction  logic.Direction
	Assumed    bool
	// Obstructed is nil until an obstruction sensor has been read.
	Obstructed *bool
	// Since is when Status last changed.
	Since     time.Time
	LastEvent *logic.Event
	Counts    logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a deep copy, safe to use after the lock is released.
type Snapshot struct {
	Doors         []DoorSnapshot
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Door returns the snapshot of the door with the given id.
func (s Snapshot) Door(id string) (DoorSnapshot, bool) {
	for _, d := range s.Doors {
		if d.Info.ID == id {
			return d, true
		}
	}
	return DoorSnapshot{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
// It is an event sink: every door notifies it from its own goroutine.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	index map[string]int
}

// NewTracker creates a Tracker for the given doors.
func NewTracker(startTime time.Time, cfg Config, doors []DoorInfo) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		index: make(map[string]int, len(doors)),
	}
	for i, d := range doors {
		t.snap.Doors = append(t.snap.Doors, DoorSnapshot{
			Info:       d,
			Status:     logic.StatusUnknown,
			LastStatus: logic.StatusUnknown,
		})
		t.index[d.ID] = i
	}
	return t
}

// Notify applies a door event. Events for unknown doors are ignored.
func (t *Tracker) Notify(door string, ev logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[door]
	if !ok {
		return
	}
	d := &t.snap.Doors[i]
	d.Counts.Add(ev)
	last := ev
	d.LastEvent = &last

	switch ev.Type {
	case logic.EventObstruction, logic.EventClear:
		obstructed := ev.Type == logic.EventObstruction
		d.Obstructed = &obstructed
		return
	case logic.EventMoving:
		d.Direction = ev.Direction
		d.LastStatus = ev.LastStatus
	case logic.EventFault, logic.EventStopped:
		d.LastStatus = ev.LastStatus
	default:
		d.LastStatus = ev.Status
	}

	if d.Status != ev.Status {
		d.Since = ev.Timestamp
	}
	d.Status = ev.Status
	d.Assumed = ev.Assumed
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	var s Snapshot
	t.mu.RLock()
	if err := deepcopy.Copy(&s, &t.snap); err != nil {
		s = t.snap
		s.Doors = append([]DoorSnapshot(nil), t.snap.Doors...)
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
