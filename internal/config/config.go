// Package config loads and validates the garage door configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/sweeney/garage-door/internal/garage"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultPath is the configuration file read when -config is not given.
const DefaultPath = "GarageDoor.json"

// Travel time bounds in seconds.
const (
	DefaultTravelTime = 30
	MaxTravelTime     = 300
)

// DefaultPairingCode is used when the configured HomeKit code is malformed.
const DefaultPairingCode = "031-45-154"

// ErrPinReuse is returned when a pin is assigned more than once.
var ErrPinReuse = errors.New("pin assigned more than once")

// ErrDuplicateID is returned when two doors share an identifier.
var ErrDuplicateID = errors.New("duplicate door id")

var pairingCode = regexp.MustCompile(`^(\d{3}-\d{2}-\d{3}|\d{4}-\d{4})$`)

// Config is the full configuration file.
type Config struct {
	Doors   []DoorConfig `json:"doors"`
	Options Options      `json:"options"`
}

// DoorConfig describes one door. Pins are BCM numbers; nil means not wired.
type DoorConfig struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serialNumber"`

	PushButton        *int `json:"pushButton"`
	ClosedSensor      *int `json:"closedSensor"`
	OpenSensor        *int `json:"openSensor"`
	ObstructionSensor *int `json:"obstructionSensor"`

	// Travel times in seconds.
	OpenTime  *int `json:"openTime"`
	CloseTime *int `json:"closeTime"`

	ButtonBehavior string `json:"buttonBehavior"`

	// ActiveLow inverts every sensor input of this door.
	ActiveLow bool `json:"activeLow"`
}

// Options holds process-wide settings.
type Options struct {
	Debug       bool   `json:"debug"`
	PollMs      int    `json:"pollMs"`
	DwellMs     int    `json:"dwellMs"`
	HeartbeatMs *int   `json:"heartbeatMs"` // nil: default, 0: disabled
	HTTP        string `json:"http"`
	Chip        string `json:"chip"`

	History HistoryOptions `json:"history"`
	MQTT    MQTTOptions    `json:"mqtt"`
	HomeKit HomeKitOptions `json:"homekit"`
}

// HistoryOptions configures the resting-state history.
type HistoryOptions struct {
	File  string `json:"file"`
	Limit int    `json:"limit"`
}

// MQTTOptions configures the broker connection. An empty broker disables MQTT.
type MQTTOptions struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"clientId"`
	TopicPrefix string `json:"topicPrefix"`
	BufferSize  int    `json:"bufferSize"`
}

// HomeKitOptions configures the HomeKit bridge.
type HomeKitOptions struct {
	Enabled     bool   `json:"enabled"`
	PairingCode string `json:"pairingCode"`
	StoragePath string `json:"storagePath"`
	Port        string `json:"port"`
}

// DefaultConfig returns the options used for anything the file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Options: Options{
			PollMs:      1000,
			DwellMs:     500,
			HeartbeatMs: intPtr(int((15 * time.Minute).Milliseconds())),
			HTTP:        ":80",
			Chip:        "gpiochip0",
			History: HistoryOptions{
				Limit: 50,
			},
			MQTT: MQTTOptions{
				ClientID:    "garage-door",
				TopicPrefix: "garage",
				BufferSize:  1000,
			},
			HomeKit: HomeKitOptions{
				PairingCode: DefaultPairingCode,
				StoragePath: "homekit",
			},
		},
	}
}

// Load reads and validates the configuration at path. Warnings describe
// settings that were ignored or corrected.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, merges with defaults and validates a configuration.
func Parse(data []byte) (*Config, []string, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	merged := MergeWithDefaults(&cfg)
	warnings, err := merged.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return merged, warnings, nil
}

// MergeWithDefaults fills zero-valued options from DefaultConfig.
func MergeWithDefaults(cfg *Config) *Config {
	def := DefaultConfig()
	out := *cfg
	out.Doors = append([]DoorConfig(nil), cfg.Doors...)

	o := &out.Options
	d := def.Options
	if o.PollMs <= 0 {
		o.PollMs = d.PollMs
	}
	if o.DwellMs <= 0 {
		o.DwellMs = d.DwellMs
	}
	switch {
	case o.HeartbeatMs == nil:
		o.HeartbeatMs = intPtr(*d.HeartbeatMs)
	case *o.HeartbeatMs < 0:
		o.HeartbeatMs = intPtr(0)
	default:
		o.HeartbeatMs = intPtr(*o.HeartbeatMs)
	}
	if o.HTTP == "" {
		o.HTTP = d.HTTP
	}
	if o.Chip == "" {
		o.Chip = d.Chip
	}
	if o.History.Limit <= 0 {
		o.History.Limit = d.History.Limit
	}
	if o.MQTT.ClientID == "" {
		o.MQTT.ClientID = d.MQTT.ClientID
	}
	if o.MQTT.TopicPrefix == "" {
		o.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if o.MQTT.BufferSize <= 0 {
		o.MQTT.BufferSize = d.MQTT.BufferSize
	}
	if o.HomeKit.PairingCode == "" {
		o.HomeKit.PairingCode = d.HomeKit.PairingCode
	}
	if o.HomeKit.StoragePath == "" {
		o.HomeKit.StoragePath = d.HomeKit.StoragePath
	}

	for i := range out.Doors {
		door := &out.Doors[i]
		if door.ID == "" {
			door.ID = fmt.Sprintf("door%d", i+1)
		}
		if door.Name == "" {
			door.Name = fmt.Sprintf("Door %d", i+1)
		}
	}
	return &out
}

// Validate corrects recoverable problems in place and returns warnings for
// them. Pin reuse and duplicate door ids are fatal.
func (c *Config) Validate() ([]string, error) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if len(c.Doors) == 0 {
		warn("no doors configured")
	}
	if !pairingCode.MatchString(c.Options.HomeKit.PairingCode) {
		warn("invalid homekit pairing code %q, using %s", c.Options.HomeKit.PairingCode, DefaultPairingCode)
		c.Options.HomeKit.PairingCode = DefaultPairingCode
	}

	ids := make(map[string]bool)
	owners := make(map[int]string)
	for i := range c.Doors {
		door := &c.Doors[i]
		if ids[door.ID] {
			return warnings, fmt.Errorf("%w: %q", ErrDuplicateID, door.ID)
		}
		ids[door.ID] = true

		for _, p := range door.pins() {
			if *p.pin == nil {
				continue
			}
			pin := **p.pin
			if !gpio.ValidPin(pin) {
				warn("door %s: %s pin %d outside %d..%d, ignoring", door.ID, p.name, pin, gpio.MinPin, gpio.MaxPin)
				*p.pin = nil
				continue
			}
			label := door.ID + " " + p.name
			if prev, used := owners[pin]; used {
				return warnings, fmt.Errorf("%w: pin %d used by %s and %s", ErrPinReuse, pin, prev, label)
			}
			owners[pin] = label
		}

		door.OpenTime = clampTravel(door.OpenTime)
		door.CloseTime = clampTravel(door.CloseTime)

		if _, ok := logic.ParseButtonBehavior(door.ButtonBehavior); !ok {
			if door.ButtonBehavior != "" {
				warn("door %s: unknown button behavior %q, using %s", door.ID, door.ButtonBehavior, logic.StopThenReverse)
			}
			door.ButtonBehavior = string(logic.StopThenReverse)
		}
	}
	return warnings, nil
}

type pinRef struct {
	name string
	pin  **int
}

func (d *DoorConfig) pins() []pinRef {
	return []pinRef{
		{"push button", &d.PushButton},
		{"closed sensor", &d.ClosedSensor},
		{"open sensor", &d.OpenSensor},
		{"obstruction sensor", &d.ObstructionSensor},
	}
}

func clampTravel(secs *int) *int {
	v := DefaultTravelTime
	if secs != nil {
		v = max(0, min(*secs, MaxTravelTime))
	}
	return &v
}

func intPtr(v int) *int { return &v }

func pinOrNone(p *int) int {
	if p == nil {
		return gpio.NoPin
	}
	return *p
}

func seconds(p *int) time.Duration {
	if p == nil {
		return DefaultTravelTime * time.Second
	}
	return time.Duration(*p) * time.Second
}

// Garage returns the scheduler configuration for a validated door.
func (d DoorConfig) Garage(o Options) garage.Config {
	behavior, ok := logic.ParseButtonBehavior(d.ButtonBehavior)
	if !ok {
		behavior = logic.StopThenReverse
	}
	return garage.Config{
		ID:                d.ID,
		Name:              d.Name,
		Button:            pinOrNone(d.PushButton),
		ClosedSensor:      pinOrNone(d.ClosedSensor),
		OpenSensor:        pinOrNone(d.OpenSensor),
		ObstructionSensor: pinOrNone(d.ObstructionSensor),
		OpenTime:          seconds(d.OpenTime),
		CloseTime:         seconds(d.CloseTime),
		Behavior:          behavior,
		Poll:              o.Poll(),
		Dwell:             time.Duration(o.DwellMs) * time.Millisecond,
	}
}

// Poll returns the polling interval.
func (o Options) Poll() time.Duration {
	return time.Duration(o.PollMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval; zero disables it.
func (o Options) Heartbeat() time.Duration {
	if o.HeartbeatMs == nil {
		return 0
	}
	return time.Duration(*o.HeartbeatMs) * time.Millisecond
}

// Lines returns every GPIO line the configured doors use.
func (c *Config) Lines() gpio.Lines {
	lines := gpio.Lines{ActiveLow: make(map[int]bool)}
	for _, d := range c.Doors {
		if d.PushButton != nil {
			lines.Outputs = append(lines.Outputs, *d.PushButton)
		}
		for _, p := range []*int{d.ClosedSensor, d.OpenSensor, d.ObstructionSensor} {
			if p == nil {
				continue
			}
			lines.Inputs = append(lines.Inputs, *p)
			if d.ActiveLow {
				lines.ActiveLow[*p] = true
			}
		}
	}
	return lines
}
