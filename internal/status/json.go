package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Doors         []DoorJSON   `json:"doors"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// DoorJSON is the JSON representation of one door.
type DoorJSON struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty"`
	Status       string     `json:"status"`
	LastStatus   string     `json:"last_status"`
	Direction    string     `json:"direction,omitempty"`
	Assumed      bool       `json:"assumed,omitempty"`
	Obstructed   *bool      `json:"obstructed,omitempty"`
	Since        string     `json:"since,omitempty"`
	Wiring       WiringJSON `json:"wiring"`
	Counts       CountsJSON `json:"event_counts"`
}

// WiringJSON reports which inputs and outputs a door has.
type WiringJSON struct {
	Button            bool `json:"button"`
	ClosedSensor      bool `json:"closed_sensor"`
	OpenSensor        bool `json:"open_sensor"`
	ObstructionSensor bool `json:"obstruction_sensor"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Opened       int `json:"opened"`
	Closed       int `json:"closed"`
	Moving       int `json:"moving"`
	Faults       int `json:"faults"`
	Fallbacks    int `json:"fallbacks"`
	Obstructions int `json:"obstructions"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	DwellMs     int64  `json:"dwell_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	HomeKit     bool   `json:"homekit"`
}

// EventJSON is the JSON representation of a door event, shared by the
// MQTT, websocket and history surfaces.
type EventJSON struct {
	Door       string `json:"door"`
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Status     string `json:"status"`
	Direction  string `json:"direction,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	LastStatus string `json:"last_status,omitempty"`
	Assumed    bool   `json:"assumed,omitempty"`
}

// NewEventJSON converts a door event for output.
func NewEventJSON(door string, ev logic.Event) EventJSON {
	return EventJSON{
		Door:       door,
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
		Event:      string(ev.Type),
		Status:     string(ev.Status),
		Direction:  string(ev.Direction),
		DurationMs: ev.Duration.Milliseconds(),
		LastStatus: string(ev.LastStatus),
		Assumed:    ev.Assumed,
	}
}

func buildDoor(d DoorSnapshot) DoorJSON {
	out := DoorJSON{
		ID:           d.Info.ID,
		Name:         d.Info.Name,
		Manufacturer: d.Info.Manufacturer,
		Model:        d.Info.Model,
		SerialNumber: d.Info.SerialNumber,
		Status:       string(d.Status),
		LastStatus:   string(d.LastStatus),
		Assumed:      d.Assumed,
		Obstructed:   d.Obstructed,
		Wiring: WiringJSON{
			Button:            d.Info.Button,
			ClosedSensor:      d.Info.ClosedSensor,
			OpenSensor:        d.Info.OpenSensor,
			ObstructionSensor: d.Info.ObstructionSensor,
		},
		Counts: CountsJSON{
			Opened:       d.Counts.Opened,
			Closed:       d.Counts.Closed,
			Moving:       d.Counts.Moving,
			Faults:       d.Counts.Faults,
			Fallbacks:    d.Counts.Fallbacks,
			Obstructions: d.Counts.Obstructions,
		},
	}
	if d.Status == logic.StatusOpening || d.Status == logic.StatusClosing {
		out.Direction = string(d.Direction)
	}
	if !d.Since.IsZero() {
		out.Since = d.Since.UTC().Format(time.RFC3339)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	doors := make([]DoorJSON, 0, len(snap.Doors))
	for _, d := range snap.Doors {
		doors = append(doors, buildDoor(d))
	}

	return StatusInner{
		Doors:         doors,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			DwellMs:     snap.Config.DwellMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			HomeKit:     snap.Config.HomeKit,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
