package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/gate-opener/internal/door"
	"github.com/sweeney/gate-opener/internal/gpio"
	"github.com/sweeney/gate-opener/internal/logger"
	"github.com/sweeney/gate-opener/internal/logic"
	"github.com/sweeney/gate-opener/internal/mqtt"
	"github.com/sweeney/gate-opener/internal/sched"
	"github.com/sweeney/gate-opener/internal/status"
)

const (
	switchPin = 5
	closedPin = 17
	openPin   = 27
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

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

// --- runLoop tests ---

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

type harness struct {
	pins  *gpio.FakePins
	clock *sched.Fake
	ctrl  *door.Controller
	pub   *mqtt.FakePublisher
}

// newHarness builds a controller on fake pins. A nil sensor level means the
// sensor is not configured.
func newHarness(t *testing.T, open, closed *bool) *harness {
	t.Helper()
	h := &harness{
		pins:  gpio.NewFakePins(),
		clock: sched.NewFake(epoch),
		pub:   mqtt.NewFakePublisher(),
	}

	cfg := door.Config{
		Name:             "Gate",
		SwitchPin:        switchPin,
		SwitchActiveHigh: true,
		PulseDuration:    time.Second,
		TravelTime:       10 * time.Second,
	}
	if open != nil {
		h.pins.Set(openPin, *open)
		cfg.OpenSensor = &door.Sensor{Pin: openPin, ActiveHigh: true}
	}
	if closed != nil {
		h.pins.Set(closedPin, *closed)
		cfg.ClosedSensor = &door.Sensor{Pin: closedPin, ActiveHigh: true}
	}

	ctrl, err := door.New(cfg, h.pins, h.pins, h.clock, logger.Discard())
	if err != nil {
		t.Fatalf("door.New: %v", err)
	}
	ctrl.SetNotifier(newNotifier(h.pub, logger.Discard()))
	h.ctrl = ctrl
	h.pub.Commander = ctrl
	return h
}

func level(v bool) *bool { return &v }

// runRunLoop drives runLoop for nTicks, calling between(i) before tick i,
// then delivers signal and returns runLoop's error.
func runRunLoop(t *testing.T, h *harness, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time, nTicks int, between func(i int), signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(h.ctrl, h.pub, h.pub, tracker, logger.Discard(), heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		if between != nil {
			between(i)
		}
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopNoSensorsShutdown(t *testing.T) {
	h := newHarness(t, nil, nil)
	clock := fakeClock(epoch, 4*time.Second)

	err := runRunLoop(t, h, nil, 0, clock, 3, nil, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Events) != 0 {
		t.Errorf("expected no gate events, got %d", len(h.pub.Events))
	}
	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Fatalf("expected only SHUTDOWN, got %v", names)
	}
	if !h.pub.SystemEvents[0].Retained {
		t.Error("SHUTDOWN should be retained")
	}
	if got := h.pins.WritesFor(switchPin); len(got) != 1 || got[0] {
		t.Errorf("expected relay released on shutdown, writes %v", got)
	}
}

func TestRunLoopDetectsManualOpening(t *testing.T) {
	h := newHarness(t, nil, level(true))
	clock := fakeClock(epoch, 4*time.Second)

	between := func(i int) {
		if i == 2 {
			h.pins.Set(closedPin, false)
		}
	}
	if err := runRunLoop(t, h, nil, 0, clock, 4, between, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := h.pub.Published()
	if len(events) != 1 {
		t.Fatalf("expected 1 gate event, got %d", len(events))
	}
	e := events[0]
	if e.State != logic.StateOpening || e.Previous != logic.StateClosed || e.Source != logic.SourcePoll {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Target != logic.StateOpen {
		t.Errorf("manual opening should target OPEN, got %s", e.Target)
	}
}

func TestRunLoopSensorReadErrorRecovery(t *testing.T) {
	h := newHarness(t, nil, level(true))
	clock := fakeClock(epoch, 4*time.Second)

	between := func(i int) {
		switch i {
		case 0:
			h.pins.FailReads(closedPin, errors.New("gpio fault"))
		case 2:
			h.pins.FailReads(closedPin, nil)
			h.pins.Set(closedPin, false)
		}
	}
	if err := runRunLoop(t, h, nil, 0, clock, 4, between, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.ctrl.GetCurrentState() != logic.StateOpening {
		t.Errorf("expected OPENING after recovery, got %s", h.ctrl.GetCurrentState())
	}
	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN after GPIO errors, got %v", names)
	}
}

func TestRunLoopPublishErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, nil, level(true))
	h.pub.PublishError = errors.New("broker down")
	clock := fakeClock(epoch, 4*time.Second)

	between := func(i int) {
		if i == 1 {
			h.pins.Set(closedPin, false)
		}
	}
	if err := runRunLoop(t, h, nil, 0, clock, 3, between, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.ctrl.GetCurrentState() != logic.StateOpening {
		t.Errorf("state should still advance, got %s", h.ctrl.GetCurrentState())
	}
	if len(h.pub.SystemEvents) != 1 {
		t.Errorf("expected SHUTDOWN to be published, got %v", h.pub.SystemEventNames())
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: start (0m), ticks at 5m, 10m, 15m, 20m.
	// The 15m tick is the first at least one interval after start.
	h := newHarness(t, nil, level(true))
	tracker := status.NewTracker(epoch, status.Config{Name: "Gate"})
	clock := fakeClock(epoch, 5*time.Minute)

	if err := runRunLoop(t, h, tracker, 15*time.Minute, clock, 4, nil, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := h.pub.SystemEventNames()
	if len(names) != 2 || names[0] != "HEARTBEAT" || names[1] != "SHUTDOWN" {
		t.Fatalf("expected HEARTBEAT then SHUTDOWN, got %v", names)
	}

	hb := h.pub.SystemEvents[0]
	if !hb.Timestamp.Equal(epoch.Add(15 * time.Minute)) {
		t.Errorf("heartbeat timestamp: got %v", hb.Timestamp)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &sj); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" || sj.Status.State != "CLOSED" {
		t.Errorf("unexpected heartbeat status: event=%s state=%s", sj.Status.Event, sj.Status.State)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkType, "ethernet")
	t.Setenv(envNetworkIP, "10.0.0.9")
	t.Setenv(envNetworkStatus, "connected")

	h := newHarness(t, nil, level(true))
	tracker := status.NewTracker(epoch, status.Config{})
	clock := fakeClock(epoch, 20*time.Minute)

	if err := runRunLoop(t, h, tracker, 15*time.Minute, clock, 1, nil, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(h.pub.SystemEvents[0].RawPayload, &sj); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if sj.Status.Network == nil || sj.Status.Network.IP != "10.0.0.9" {
		t.Errorf("expected network info in heartbeat, got %+v", sj.Status.Network)
	}
}

func TestRunLoopShutdownReason(t *testing.T) {
	tests := []struct {
		signal os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			h.pub.Connected = true
			tracker := status.NewTracker(epoch, status.Config{})

			if err := runRunLoop(t, h, tracker, 0, fakeClock(epoch, time.Second), 0, nil, tt.signal); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			var sj status.StatusJSON
			if err := json.Unmarshal(h.pub.SystemEvents[0].RawPayload, &sj); err != nil {
				t.Fatalf("shutdown payload: %v", err)
			}
			if sj.Status.Reason != tt.reason {
				t.Errorf("reason: got %q, want %q", sj.Status.Reason, tt.reason)
			}
			if !sj.Status.MQTT.Connected {
				t.Error("expected MQTT connection state in shutdown payload")
			}
		})
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	h := newHarness(t, level(true), level(false))
	tracker := status.NewTracker(epoch, status.Config{})

	if err := runRunLoop(t, h, tracker, 0, fakeClock(epoch, time.Second), 1, nil, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	snap := tracker.Snapshot()
	if snap.StateName() != "OPEN" {
		t.Errorf("tracker state: got %s, want OPEN", snap.StateName())
	}
	if !snap.Door.HasOpen || !snap.Door.HasClosed {
		t.Error("tracker should report both sensors configured")
	}
}

func TestCommandPublishesTransit(t *testing.T) {
	h := newHarness(t, nil, level(true))

	if err := h.pub.Deliver("open"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	events := h.pub.Published()
	if len(events) != 1 || events[0].State != logic.StateOpening || events[0].Source != logic.SourceCommand {
		t.Fatalf("expected OPENING command event, got %+v", events)
	}
	if got := h.pins.WritesFor(switchPin); len(got) != 1 || !got[0] {
		t.Errorf("expected relay pulse, writes %v", got)
	}

	h.pins.Set(closedPin, false)
	h.clock.Advance(10 * time.Second)
	events = h.pub.Published()
	if len(events) != 2 || events[1].State != logic.StateOpen || events[1].Source != logic.SourceTransit {
		t.Errorf("expected OPEN transit event, got %+v", events)
	}
}

func TestCommandRejectedWhileMoving(t *testing.T) {
	h := newHarness(t, nil, level(true))

	if err := h.pub.Deliver("OPEN"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	err := h.pub.Deliver("CLOSE")
	if !errors.Is(err, door.ErrCommandRejected) {
		t.Errorf("expected ErrCommandRejected, got %v", err)
	}
	if err := h.pub.Deliver("toggle"); !errors.Is(err, mqtt.ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestPrintGateState(t *testing.T) {
	tests := []struct {
		name   string
		open   *bool
		closed *bool
		want   string
	}{
		{"no sensors", nil, nil, "Gate: CLOSED (open=mock closed=mock)\n"},
		{"closed only, closed", nil, level(true), "Gate: CLOSED (open=mock closed=true)\n"},
		{"closed only, away", nil, level(false), "Gate: OPEN (open=mock closed=false)\n"},
		{"both, conflict", level(true), level(true), "Gate: STOPPED (open=true closed=true)\n"},
		{"open only, open", level(true), nil, "Gate: OPEN (open=true closed=mock)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pins := gpio.NewFakePins()
			dc := door.Config{Name: "Gate", SwitchPin: switchPin, SwitchActiveHigh: true, PulseDuration: time.Second, TravelTime: 10 * time.Second}
			if tt.open != nil {
				pins.Set(openPin, *tt.open)
				dc.OpenSensor = &door.Sensor{Pin: openPin, ActiveHigh: true}
			}
			if tt.closed != nil {
				pins.Set(closedPin, *tt.closed)
				dc.ClosedSensor = &door.Sensor{Pin: closedPin, ActiveHigh: true}
			}

			var buf bytes.Buffer
			if err := printGateState(&buf, dc, pins); err != nil {
				t.Fatalf("printGateState: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
			if len(pins.Writes) != 0 {
				t.Error("print-state must not touch the relay")
			}
		})
	}
}

func TestPrintGateStateReadError(t *testing.T) {
	pins := gpio.NewFakePins()
	pins.FailReads(closedPin, errors.New("bus"))
	dc := door.Config{Name: "Gate", SwitchPin: switchPin, ClosedSensor: &door.Sensor{Pin: closedPin, ActiveHigh: true}}

	if err := printGateState(&bytes.Buffer{}, dc, pins); err == nil {
		t.Error("expected read error")
	}
}
