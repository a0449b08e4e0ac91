// Package mqtt publishes door events to MQTT and accepts door commands from it.
package mqtt

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/status"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "garage"

// Topics builds the topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Events is the topic for a door's event stream.
func (t Topics) Events(door string) string { return t.prefix() + "/" + door + "/events" }

// Status is the retained topic holding a door's current status.
func (t Topics) Status(door string) string { return t.prefix() + "/" + door + "/status" }

// Obstruction is the retained topic holding a door's obstruction flag.
func (t Topics) Obstruction(door string) string { return t.prefix() + "/" + door + "/obstruction" }

// Set is the topic a door listens on for OPEN/CLOSE commands.
func (t Topics) Set(door string) string { return t.prefix() + "/" + door + "/set" }

// SetAll matches the command topic of every door.
func (t Topics) SetAll() string { return t.prefix() + "/+/set" }

// System is the topic for system lifecycle events.
func (t Topics) System() string { return t.prefix() + "/system" }

// DoorFromSet extracts the door id from a command topic.
func (t Topics) DoorFromSet(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok {
		return "", false
	}
	door, ok := strings.CutSuffix(rest, "/set")
	if !ok || door == "" || strings.Contains(door, "/") {
		return "", false
	}
	return door, true
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a door event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(door string, event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandFunc receives a parsed command for a door.
type CommandFunc func(door string, target logic.Target)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// FormatPayload creates the JSON payload for a door event.
func FormatPayload(door string, event logic.Event) ([]byte, error) {
	return json.Marshal(status.NewEventJSON(door, event))
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ParseCommand parses a command payload (OPEN or CLOSE, any case).
func ParseCommand(payload []byte) (logic.Target, error) {
	target, err := logic.ParseTarget(string(payload))
	if err != nil {
		return "", fmt.Errorf("command %q: %w", payload, err)
	}
	return target, nil
}

// dispatch routes an inbound command message. It reports whether the message
// was a valid command.
func dispatch(topics Topics, topic string, payload []byte, onCommand CommandFunc, logger *slog.Logger) bool {
	door, ok := topics.DoorFromSet(topic)
	if !ok {
		logger.Warn("mqtt: ignoring message on unexpected topic", "topic", topic)
		return false
	}
	target, err := ParseCommand(payload)
	if err != nil {
		logger.Warn("mqtt: invalid command", "door", door, "error", err)
		return false
	}
	logger.Info("mqtt: command received", "door", door, "target", target)
	if onCommand != nil {
		onCommand(door, target)
	}
	return true
}

// Sink adapts a Publisher to the door event sink. Repeated level-triggered
// events are not published.
type Sink struct {
	Publisher Publisher
	Logger    *slog.Logger
}

// Notify publishes the event, logging failures.
func (s Sink) Notify(door string, event logic.Event) {
	if event.Repeat {
		return
	}
	if err := s.Publisher.Publish(door, event); err != nil {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("mqtt: publish failed", "door", door, "event", event.Type, "error", err)
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))
