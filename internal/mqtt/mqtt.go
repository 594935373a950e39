// Package mqtt publishes gate events and receives gate commands over MQTT,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/gate-opener/internal/logic"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "home/garage/gate"

// Topics is the topic layout under one prefix.
type Topics struct {
	Events string // committed state changes
	System string // lifecycle events
	Set    string // incoming OPEN/CLOSE commands
}

// NewTopics derives the topic layout from prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events: prefix + "/events",
		System: prefix + "/system",
		Set:    prefix + "/set",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a gate state change to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Commander accepts target states received on the command topic.
type Commander interface {
	SetTargetState(target logic.DoorState) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Gate GatePayload `json:"gate"`
}

// GatePayload contains the gate event details.
type GatePayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	State     string `json:"state"`
	Previous  string `json:"previous"`
	Target    string `json:"target"`
	Source    string `json:"source"`
}

// EventStateChanged is the event name carried by every gate payload.
const EventStateChanged = "STATE_CHANGED"

// FormatPayload creates the JSON payload for a gate event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Gate: GatePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventStateChanged,
			State:     event.State.String(),
			Previous:  event.Previous.String(),
			Target:    event.Target.String(),
			Source:    string(event.Source),
		},
	}
	return json.Marshal(payload)
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

// ErrUnknownCommand is returned for command payloads other than OPEN or CLOSE.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand maps a command payload to a target state. OPEN, CLOSE and
// CLOSED are accepted in any case.
func ParseCommand(payload []byte) (logic.DoorState, error) {
	s, err := logic.ParseDoorState(string(payload))
	if err != nil || !s.IsResting() {
		return logic.StateOpen, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(string(payload)))
	}
	return s, nil
}

// HandleCommand parses payload and forwards the target to c.
func HandleCommand(c Commander, payload []byte) error {
	target, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("no command handler")
	}
	return c.SetTargetState(target)
}
