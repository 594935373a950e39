package door

import "github.com/VictoriaMetrics/metrics"

var (
	relayPulses      = metrics.NewCounter("gate_relay_pulses_total")
	transitTimeouts  = metrics.NewCounter("gate_transit_timeouts_total")
	stateChanges     = metrics.NewCounter("gate_state_changes_total")
	sensorReadErrors = metrics.NewCounter("gate_sensor_read_errors_total")
	commandsRejected = metrics.NewCounter("gate_commands_rejected_total")
	transitSeconds   = metrics.NewSummary("gate_transit_duration_seconds")
)
