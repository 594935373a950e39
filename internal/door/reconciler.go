package door

import (
	"github.com/sweeney/gate-opener/internal/gpio"
	"github.com/sweeney/gate-opener/internal/logic"
)

// Sensor is a configured proximity sensor.
type Sensor struct {
	Pin        int
	ActiveHigh bool // raw level that means "triggered"
}

// Mocks holds simulated values for sensors that are not configured.
type Mocks struct {
	Open   bool
	Closed bool
}

// Reconciler resolves the logical open/closed readings from the physical
// sensors, substituting the mocked value for a sensor that is absent.
type Reconciler struct {
	port   gpio.SensorPort
	open   *Sensor
	closed *Sensor
}

// NewReconciler creates a Reconciler. A nil sensor is not configured.
func NewReconciler(port gpio.SensorPort, open, closed *Sensor) *Reconciler {
	return &Reconciler{port: port, open: open, closed: closed}
}

// HasOpen reports whether the open sensor is configured.
func (r *Reconciler) HasOpen() bool { return r.open != nil }

// HasClosed reports whether the closed sensor is configured.
func (r *Reconciler) HasClosed() bool { return r.closed != nil }

// Resolve reads the configured sensors. Read failures are returned as is.
func (r *Reconciler) Resolve(m Mocks) (logic.Readings, error) {
	var out logic.Readings

	if r.closed != nil {
		v, err := r.triggered(r.closed)
		if err != nil {
			return logic.Readings{}, err
		}
		out.IsClosed = v
	} else {
		out.IsClosed = m.Closed
	}

	if r.open != nil {
		v, err := r.triggered(r.open)
		if err != nil {
			return logic.Readings{}, err
		}
		out.IsOpen = v
	} else {
		out.IsOpen = m.Open
	}

	return out, nil
}

// Tidy clears the mock of an absent sensor once the opposite resting
// position is observed, and returns the readings with the mock reapplied.
func (r *Reconciler) Tidy(in logic.Readings, m *Mocks) logic.Readings {
	out := in
	if r.closed == nil && in.IsOpen {
		m.Closed = false
		out.IsClosed = false
	}
	if r.open == nil && in.IsClosed {
		m.Open = false
		out.IsOpen = false
	}
	return out
}

func (r *Reconciler) triggered(s *Sensor) (bool, error) {
	level, err := r.port.Read(s.Pin)
	if err != nil {
		return false, err
	}
	return level == s.ActiveHigh, nil
}
