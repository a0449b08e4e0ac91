package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/garage"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" {
		t.Errorf("expected empty Type and IP, got %q %q", info.Type, info.IP)
	}
}

// --- runLoop tests ---

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func testTracker() *status.Tracker {
	return status.NewTracker(t0, status.Config{HeartbeatMs: 15 * 60 * 1000}, []status.DoorInfo{
		{ID: "door1", Name: "Main", Button: true, ClosedSensor: true},
	})
}

// runRunLoop drives runLoop with nTicks ticks followed by the given signal.
func runRunLoop(t *testing.T, pub mqtt.Publisher, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})

	var conn mqtt.ConnectionStatus
	if f, ok := pub.(*mqtt.FakePublisher); ok {
		conn = f
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(pub, conn, tracker, heartbeat, clock, tick, sig, done)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func decodeStatus(t *testing.T, raw []byte) status.StatusInner {
	t.Helper()
	var s status.StatusJSON
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("invalid status payload %s: %v", raw, err)
	}
	return s.Status
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := testTracker()
	tracker.Notify("door1", logic.Event{Timestamp: t0, Type: logic.EventClosed, Status: logic.StatusClosed})

	err := runRunLoop(t, pub, tracker, 0, fakeClock(t0, time.Second), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	se := pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}

	inner := decodeStatus(t, se.RawPayload)
	if inner.Event != "SHUTDOWN" || inner.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: got %q/%q", inner.Event, inner.Reason)
	}
	if len(inner.Doors) != 1 || inner.Doors[0].Status != "CLOSED" {
		t.Errorf("payload doors: %+v", inner.Doors)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()

	err := runRunLoop(t, pub, testTracker(), 0, fakeClock(t0, time.Second), 0, syscall.SIGINT)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if se := pub.SystemEvents[0]; se.Event != "SHUTDOWN" || se.Reason != "SIGINT" {
		t.Errorf("expected SHUTDOWN/SIGINT, got %q/%q", se.Event, se.Reason)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: t0 (start), then +5m per tick. The third tick is 15m after
	// start and fires; the fourth is only 5m after that one.
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := testTracker()

	err := runRunLoop(t, pub, tracker, 15*time.Minute, fakeClock(t0, 5*time.Minute), 4, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for _, se := range pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			if se.Retained {
				t.Error("HEARTBEAT should not be retained")
			}
			inner := decodeStatus(t, se.RawPayload)
			if inner.Event != "HEARTBEAT" {
				t.Errorf("payload event: got %q", inner.Event)
			}
			if !inner.MQTT.Connected {
				t.Error("expected mqtt connected in heartbeat payload")
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	pub := mqtt.NewFakePublisher()

	err := runRunLoop(t, pub, testTracker(), 0, fakeClock(t0, time.Hour), 5, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	for _, se := range pub.SystemEvents {
		if se.Event == "HEARTBEAT" {
			t.Error("heartbeat fired while disabled")
		}
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "associated")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	pub := mqtt.NewFakePublisher()
	err := runRunLoop(t, pub, testTracker(), time.Minute, fakeClock(t0, time.Minute), 1, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var hb *mqtt.SystemEvent
	for i := range pub.SystemEvents {
		if pub.SystemEvents[i].Event == "HEARTBEAT" {
			hb = &pub.SystemEvents[i]
			break
		}
	}
	if hb == nil {
		t.Fatal("expected a HEARTBEAT system event")
	}

	inner := decodeStatus(t, hb.RawPayload)
	if inner.Network == nil {
		t.Fatal("HEARTBEAT payload missing network info")
	}
	if inner.Network.IP != "192.168.1.42" || inner.Network.SSID != "HomeNet" {
		t.Errorf("unexpected network info: %+v", inner.Network)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker unavailable")

	err := runRunLoop(t, pub, testTracker(), time.Minute, fakeClock(t0, time.Minute), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop should not fail on publish errors: %v", err)
	}
	if len(pub.SystemEvents) != 0 {
		t.Errorf("failed publishes should not be recorded, got %d", len(pub.SystemEvents))
	}
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	err := runRunLoop(t, nil, testTracker(), time.Minute, fakeClock(t0, time.Minute), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopBackgroundFailure(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	done := make(chan struct{})
	close(done)

	err := runLoop(pub, pub, testTracker(), 0, fakeClock(t0, time.Second), make(chan time.Time), make(chan os.Signal), done)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Reason != "ERROR" {
		t.Errorf("expected SHUTDOWN/ERROR, got %+v", pub.SystemEvents)
	}
}

// --- commander ---

func TestCommanderRefusesUntilFleetSet(t *testing.T) {
	c := &commander{}
	if err := c.SetTarget("door1", logic.TargetOpen); !errors.Is(err, errNotReady) {
		t.Fatalf("expected errNotReady, got %v", err)
	}

	c.fleet.Store(garage.NewFleet())
	if err := c.SetTarget("door1", logic.TargetOpen); !errors.Is(err, garage.ErrUnknownDoor) {
		t.Errorf("expected ErrUnknownDoor, got %v", err)
	}
}

// --- print-state ---

func intp(v int) *int { return &v }

func stateConfig() *config.Config {
	return &config.Config{Doors: []config.DoorConfig{
		{ID: "door1", ClosedSensor: intp(17), OpenSensor: intp(27), PushButton: intp(23)},
		{ID: "door2", ObstructionSensor: intp(22)},
	}}
}

func TestReadState(t *testing.T) {
	port := gpio.NewFakePort()
	port.Set(17, true)
	port.SetError(22, errors.New("line busy"))

	rows := readState(stateConfig(), port)
	want := []stateRow{
		{door: "door1", sensor: "closed", pin: 17, value: valueActive},
		{door: "door1", sensor: "open", pin: 27, value: valueInactive},
		{door: "door2", sensor: "obstruction", pin: 22, value: valueError},
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(rows), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestRenderState(t *testing.T) {
	port := gpio.NewFakePort()
	port.Set(27, true)

	out := renderState(stateConfig(), port)
	for _, s := range []string{"DOOR", "door1", "door2", "closed", "obstruction", "27", valueActive, valueInactive} {
		if !strings.Contains(out, s) {
			t.Errorf("rendered state missing %q:\n%s", s, out)
		}
	}
}

func TestRenderStateNoSensors(t *testing.T) {
	out := renderState(&config.Config{}, gpio.NewFakePort())
	if !strings.Contains(out, "no sensors configured") {
		t.Errorf("unexpected output: %q", out)
	}
}
