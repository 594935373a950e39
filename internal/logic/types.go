// Package logic contains the pure gate state reconciliation rules.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// DoorState is the externally observable position of the gate.
// Values match the HomeKit CurrentDoorState characteristic.
type DoorState int

const (
	StateOpen DoorState = iota
	StateClosed
	StateOpening
	StateClosing
	StateStopped
)

func (s DoorState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateClosing:
		return "CLOSING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("DoorState(%d)", int(s))
	}
}

// IsResting reports whether s is OPEN or CLOSED.
func (s DoorState) IsResting() bool {
	return s == StateOpen || s == StateClosed
}

// IsTransit reports whether s is OPENING or CLOSING.
func (s DoorState) IsTransit() bool {
	return s == StateOpening || s == StateClosing
}

// ParseDoorState parses a state name as produced by String.
// "CLOSE" is accepted as an alias for CLOSED.
func ParseDoorState(s string) (DoorState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPEN":
		return StateOpen, nil
	case "CLOSED", "CLOSE":
		return StateClosed, nil
	case "OPENING":
		return StateOpening, nil
	case "CLOSING":
		return StateClosing, nil
	case "STOPPED":
		return StateStopped, nil
	}
	return StateOpen, fmt.Errorf("unknown door state %q", s)
}

// TransitFor returns the motion state that leads to the resting target.
func TransitFor(target DoorState) DoorState {
	if target == StateClosed {
		return StateClosing
	}
	return StateOpening
}

// Readings is one resolved sample of the two logical sensors.
// A value comes from the physical sensor when it is configured and from
// the mocked flag otherwise.
type Readings struct {
	IsOpen   bool
	IsClosed bool
}

// Source identifies what caused a committed state change.
type Source string

const (
	SourcePoll    Source = "poll"
	SourceCommand Source = "command"
	SourceTransit Source = "transit"
)

// Event represents a committed state change to be published.
type Event struct {
	Timestamp time.Time
	State     DoorState
	Previous  DoorState
	Target    DoorState
	Source    Source
}

// EventCounts tracks notable occurrences since startup.
type EventCounts struct {
	Opened      int
	Closed      int
	Stopped     int
	RelayPulses int
	Timeouts    int
	Rejected    int
}

// Record counts the resting or fault state an event reports.
func (c *EventCounts) Record(e Event) {
	switch e.State {
	case StateOpen:
		c.Opened++
	case StateClosed:
		c.Closed++
	case StateStopped:
		c.Stopped++
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
