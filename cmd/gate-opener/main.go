// Command gate-opener drives a momentary-relay gate opener from GPIO,
// tracks the gate position with up to two proximity sensors, and publishes
// state changes and accepts OPEN/CLOSE commands over MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/gate-opener/internal/config"
	"github.com/sweeney/gate-opener/internal/door"
	"github.com/sweeney/gate-opener/internal/gpio"
	"github.com/sweeney/gate-opener/internal/logger"
	"github.com/sweeney/gate-opener/internal/logic"
	"github.com/sweeney/gate-opener/internal/mqtt"
	"github.com/sweeney/gate-opener/internal/sched"
	"github.com/sweeney/gate-opener/internal/status"
	"github.com/sweeney/gate-opener/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/gate-opener/gate.yaml", "Gate configuration file (YAML)")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	printState := flag.Bool("print-state", false, "Print current state and exit")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	level := logger.LevelInfo
	if cfg.Debug {
		level = logger.LevelDebug
	}
	l := logger.NewLogger(log.New(os.Stderr, "", log.LstdFlags), level)

	if err := run(cfg, *broker, *heartbeat, *printState, *httpAddr, l); err != nil {
		l.Fatalf("%v", err)
	}
}

func run(cfg *config.Config, broker string, heartbeat time.Duration, printState bool, httpAddr string, l *logger.Logger) error {
	if os.Geteuid() != 0 {
		l.Warnf("not running as root, GPIO access may fail")
	}

	// Initialize GPIO
	pins, err := gpio.NewRealPins(cfg.GPIOChip, cfg.Inputs(), cfg.Outputs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	// Print state mode
	if printState {
		return printGateState(os.Stdout, cfg.DoorConfig(), pins)
	}

	logConfig(l, cfg)

	ctrl, err := door.New(cfg.DoorConfig(), pins, pins, sched.Real{}, l.WithTag(cfg.Name))
	if err != nil {
		return fmt.Errorf("init gate: %w", err)
	}

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(mqtt.Options{
		Broker:    broker,
		ClientID:  cfg.MQTT.ClientID,
		Topics:    mqtt.NewTopics(cfg.MQTT.TopicPrefix),
		Commander: ctrl,
		Log:       l.WithTag("MQTT"),
	})
	defer publisher.Close()

	ctrl.SetNotifier(newNotifier(publisher, l))

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Name:           cfg.Name,
		PollMs:         cfg.PollInterval().Milliseconds(),
		PressMs:        int64(cfg.SwitchPressTimeMs),
		OpensInSeconds: int64(cfg.OpensInSeconds),
		HeartbeatMs:    heartbeat.Milliseconds(),
		Broker:         broker,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		HTTPAddr:       httpAddr,
	})
	tracker.Update(ctrl.Status())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		l.Errorf("failed to publish startup event: %v", err)
	} else {
		l.Infof("published startup event")
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				l.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		l.Infof("http status server listening on %s", httpAddr)
	}

	l.Infof("started: state=%s poll=%v broker=%s heartbeat=%v", ctrl.GetCurrentState(), cfg.PollInterval(), broker, heartbeat)

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, publisher, publisher, tracker, l, heartbeat, time.Now, ticker.C, sigCh)
}

// gate is the part of door.Controller the loop drives.
type gate interface {
	HasSensors() bool
	Poll() error
	Status() door.Status
	Close() error
}

func runLoop(g gate, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, l *logger.Logger, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(now())

	for {
		select {
		case s := <-sig:
			l.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			if err := g.Close(); err != nil {
				l.Errorf("release relay: %v", err)
			}

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				tracker.Update(g.Status())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				l.Errorf("failed to publish shutdown event: %v", err)
			} else {
				l.Infof("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			// Without sensors the position is only ever what we last commanded.
			if g.HasSensors() {
				if err := g.Poll(); err != nil {
					l.Errorf("%v", err)
				}
			}

			st := g.Status()
			if tracker != nil {
				tracker.Update(st)
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			// Check for heartbeat
			hbData := hb.Check(t, heartbeat, st.Counts)
			if hbData == nil {
				continue
			}
			l.Infof("heartbeat: uptime=%v state=%s opened=%d closed=%d stopped=%d timeouts=%d",
				hbData.Uptime, st.State, hbData.Counts.Opened, hbData.Counts.Closed, hbData.Counts.Stopped, hbData.Counts.Timeouts)

			hbEvent := mqtt.SystemEvent{
				Timestamp: hbData.Timestamp,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				l.Errorf("heartbeat publish error: %v", err)
			}
		}
	}
}

// newNotifier publishes committed state changes. Publish failures are
// logged and never stop the gate.
func newNotifier(publisher mqtt.Publisher, l *logger.Logger) door.Notifier {
	return door.NotifierFunc(func(e logic.Event) {
		l.Infof("event: %s -> %s (target %s, %s)", e.Previous, e.State, e.Target, e.Source)
		if err := publisher.Publish(e); err != nil {
			l.Errorf("publish error: %v", err)
		}
	})
}

func logConfig(l *logger.Logger, cfg *config.Config) {
	l.Infof("Gate: %s", cfg.Name)
	l.Infof("    Switch Pin: %d", *cfg.SwitchPin)
	l.Infof("    Switch Val: %s", cfg.SwitchActiveValue)
	l.Infof("    Switch Active Time: %dms", cfg.SwitchPressTimeMs)
	if cfg.ClosedSensorPin != nil {
		l.Infof("    Closed Sensor Pin: %d", *cfg.ClosedSensorPin)
		l.Infof("    Closed Sensor Val: %s", cfg.ClosedSensorActiveValue)
	} else {
		l.Infof("    Closed Sensor: not configured")
	}
	if cfg.OpenSensorPin != nil {
		l.Infof("    Open Sensor Pin: %d", *cfg.OpenSensorPin)
		l.Infof("    Open Sensor Val: %s", cfg.OpenSensorActiveValue)
	} else {
		l.Infof("    Open Sensor: not configured")
	}
	if cfg.HasSensors() {
		l.Infof("    Sensor Poll: %v", cfg.PollInterval())
	}
	l.Infof("    Opens in: %ds", cfg.OpensInSeconds)
}

// printGateState reads the sensors once and writes a one-line summary.
func printGateState(w io.Writer, dc door.Config, pins gpio.Pins) error {
	ctrl, err := door.New(dc, pins, pins, sched.Real{}, logger.Discard())
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}

	raw, err := door.NewReconciler(pins, dc.OpenSensor, dc.ClosedSensor).Resolve(door.Mocks{})
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}

	st := ctrl.Status()
	fmt.Fprintf(w, "%s: %s (open=%s closed=%s)\n", dc.Name, st.State,
		sensorString(st.HasOpen, raw.IsOpen), sensorString(st.HasClosed, raw.IsClosed))
	return nil
}

func sensorString(configured, triggered bool) string {
	if !configured {
		return "mock"
	}
	return fmt.Sprintf("%v", triggered)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
