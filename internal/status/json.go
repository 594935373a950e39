package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Name          string       `json:"name"`
	State         string       `json:"state"`
	Target        string       `json:"target"`
	Operating     bool         `json:"operating"`
	Sensors       SensorsJSON  `json:"sensors"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SensorsJSON reports how each position is sensed.
type SensorsJSON struct {
	Open   SensorJSON `json:"open"`
	Closed SensorJSON `json:"closed"`
}

// SensorJSON describes one logical sensor. Mock is present only when the
// sensor is not configured.
type SensorJSON struct {
	Configured bool  `json:"configured"`
	Mock       *bool `json:"mock,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Opened      int `json:"opened"`
	Closed      int `json:"closed"`
	Stopped     int `json:"stopped"`
	RelayPulses int `json:"relay_pulses"`
	Timeouts    int `json:"timeouts"`
	Rejected    int `json:"rejected"`
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
	PollMs         int64  `json:"poll_ms"`
	PressMs        int64  `json:"press_ms"`
	OpensInSeconds int64  `json:"opens_in_seconds"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker"`
	TopicPrefix    string `json:"topic_prefix"`
	HTTPAddr       string `json:"http_addr"`
}

func sensorJSON(configured, mock bool) SensorJSON {
	if configured {
		return SensorJSON{Configured: true}
	}
	return SensorJSON{Mock: &mock}
}

// StateName returns the committed state, or UNKNOWN before the first update.
func (s Snapshot) StateName() string {
	if !s.Updated {
		return "UNKNOWN"
	}
	return s.Door.State.String()
}

// TargetName returns the target state, or UNKNOWN before the first update.
func (s Snapshot) TargetName() string {
	if !s.Updated {
		return "UNKNOWN"
	}
	return s.Door.Target.String()
}

func buildInner(snap Snapshot) StatusInner {
	d := snap.Door
	return StatusInner{
		Name:      snap.Config.Name,
		State:     snap.StateName(),
		Target:    snap.TargetName(),
		Operating: d.Operating,
		Sensors: SensorsJSON{
			Open:   sensorJSON(d.HasOpen, d.MockedOpen),
			Closed: sensorJSON(d.HasClosed, d.MockedClosed),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Opened:      d.Counts.Opened,
			Closed:      d.Counts.Closed,
			Stopped:     d.Counts.Stopped,
			RelayPulses: d.Counts.RelayPulses,
			Timeouts:    d.Counts.Timeouts,
			Rejected:    d.Counts.Rejected,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			PressMs:        snap.Config.PressMs,
			OpensInSeconds: snap.Config.OpensInSeconds,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			TopicPrefix:    snap.Config.TopicPrefix,
			HTTPAddr:       snap.Config.HTTPAddr,
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
