// Package door reconciles the gate's position from its sensors and drives
// the momentary relay that moves it.
//
// All mutable state lives in Controller and is guarded by its mutex, so
// poll ticks, commands and timer callbacks never interleave mid-update.
// Notifications are dispatched after the lock is released.
package door

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/gate-opener/internal/gpio"
	"github.com/sweeney/gate-opener/internal/logger"
	"github.com/sweeney/gate-opener/internal/logic"
	"github.com/sweeney/gate-opener/internal/sched"
)

var (
	// ErrCommandRejected is returned when a move to a different target
	// is requested while another move is in flight.
	ErrCommandRejected = errors.New("command rejected: gate is operating")

	// ErrInvalidTarget is returned for targets other than OPEN or CLOSED.
	ErrInvalidTarget = errors.New("invalid target state")
)

// Config describes one gate.
type Config struct {
	Name string

	SwitchPin        int
	SwitchActiveHigh bool
	PulseDuration    time.Duration

	OpenSensor   *Sensor // nil when not configured
	ClosedSensor *Sensor // nil when not configured

	TravelTime time.Duration
}

// Notifier receives committed state changes.
type Notifier interface {
	Notify(event logic.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(event logic.Event)

func (f NotifierFunc) Notify(event logic.Event) { f(event) }

// Status is a point-in-time copy of the controller state.
type Status struct {
	State        logic.DoorState
	Target       logic.DoorState
	Operating    bool
	WasClosed    bool
	MockedOpen   bool
	MockedClosed bool
	HasOpen      bool
	HasClosed    bool
	Counts       logic.EventCounts
}

// Controller owns the gate state.
type Controller struct {
	name       string
	travelTime time.Duration
	recon      *Reconciler
	relay      *Relay
	sched      sched.Scheduler
	log        *logger.Logger

	mu        sync.Mutex
	notifier  Notifier
	current   logic.DoorState
	target    logic.DoorState
	wasClosed bool
	operating bool
	mocks     Mocks
	filter    *logic.ChangeFilter
	counts    logic.EventCounts

	transit      sched.Timer
	transitGen   uint64
	transitStart time.Time
}

// New creates a Controller and derives the initial state from one
// synchronous sensor read.
func New(cfg Config, sensors gpio.SensorPort, actuator gpio.ActuatorPort, s sched.Scheduler, log *logger.Logger) (*Controller, error) {
	c := &Controller{
		name:       cfg.Name,
		travelTime: cfg.TravelTime,
		recon:      NewReconciler(sensors, cfg.OpenSensor, cfg.ClosedSensor),
		relay:      NewRelay(actuator, cfg.SwitchPin, cfg.SwitchActiveHigh, cfg.PulseDuration, s, log.WithTag("Relay")),
		sched:      s,
		log:        log,
	}

	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) init() error {
	if !c.recon.HasOpen() && !c.recon.HasClosed() {
		c.log.Warnf("neither open nor closed sensor is configured; %s position cannot be sensed and will rely on last known state", c.name)
		c.wasClosed = true
		c.mocks = Mocks{Closed: true}
		c.current = logic.StateClosed
		c.target = logic.StateClosed
		c.filter = logic.NewChangeFilter(c.current)
		return nil
	}

	raw, err := c.recon.Resolve(Mocks{})
	if err != nil {
		return fmt.Errorf("initial sensor read: %w", err)
	}

	// A single sensor implies the other position.
	switch {
	case !c.recon.HasOpen():
		c.mocks.Open = !raw.IsClosed
		raw.IsOpen = c.mocks.Open
	case !c.recon.HasClosed():
		c.mocks.Closed = !raw.IsOpen
		raw.IsClosed = c.mocks.Closed
	}

	c.wasClosed = raw.IsClosed
	c.current = logic.Next(raw, c.wasClosed, logic.StateOpen)
	if c.current.IsTransit() {
		// No history to tell motion from a gate left ajar.
		c.current = logic.StateOpen
	}
	c.target = logic.StateOpen
	if c.current == logic.StateClosed {
		c.target = logic.StateClosed
	}
	c.filter = logic.NewChangeFilter(c.current)
	return nil
}

// SetNotifier sets the receiver of state change notifications.
func (c *Controller) SetNotifier(n Notifier) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

// HasSensors reports whether at least one physical sensor is configured.
func (c *Controller) HasSensors() bool {
	return c.recon.HasOpen() || c.recon.HasClosed()
}

// GetCurrentState returns the last committed state.
func (c *Controller) GetCurrentState() logic.DoorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// GetTargetState returns the last requested end state.
func (c *Controller) GetTargetState() logic.DoorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:        c.current,
		Target:       c.target,
		Operating:    c.operating,
		WasClosed:    c.wasClosed,
		MockedOpen:   c.mocks.Open,
		MockedClosed: c.mocks.Closed,
		HasOpen:      c.recon.HasOpen(),
		HasClosed:    c.recon.HasClosed(),
		Counts:       c.counts,
	}
}

// SetTargetState requests a move to OPEN or CLOSED. The relay is pulsed
// only if the gate is not already at the target. While a move is in
// flight, the same target is accepted as a no-op and a different one is
// rejected with ErrCommandRejected.
func (c *Controller) SetTargetState(target logic.DoorState) error {
	c.mu.Lock()
	events, err := c.setTargetLocked(target)
	c.mu.Unlock()

	c.dispatch(events)
	return err
}

func (c *Controller) setTargetLocked(target logic.DoorState) ([]logic.Event, error) {
	if !target.IsResting() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
	}

	c.log.Infof("set target state to %s", target)

	if c.operating {
		if target == c.target {
			c.log.Infof("already moving to %s", target)
			return nil, nil
		}
		c.counts.Rejected++
		commandsRejected.Inc()
		return nil, fmt.Errorf("%w: moving to %s, requested %s", ErrCommandRejected, c.target, target)
	}

	r, err := c.resolveLocked()
	if err != nil {
		return nil, fmt.Errorf("set target %s: %w", target, err)
	}

	previousTarget := c.target
	c.target = target
	// a stopped gate is at neither position
	atTarget := c.current != logic.StateStopped &&
		((target == logic.StateOpen && !r.IsClosed) || (target == logic.StateClosed && r.IsClosed))
	if atTarget {
		c.log.Infof("%s is already %s, relay not triggered", c.name, target)
		return nil, nil
	}

	previous := c.current
	c.operating = true
	c.current = logic.TransitFor(target)

	c.log.Infof("triggering %s relay", c.name)
	if err := c.relay.Trigger(); err != nil {
		c.operating = false
		c.current = previous
		c.target = previousTarget
		return nil, fmt.Errorf("set target %s: %w", target, err)
	}
	c.counts.RelayPulses++
	c.filter.Reset(c.current)

	c.armTransitLocked()
	return []logic.Event{c.eventLocked(previous, logic.SourceCommand)}, nil
}

// Poll reconciles the committed state with the sensors. It is called on
// every poll tick. A read failure leaves the committed state untouched.
func (c *Controller) Poll() error {
	c.mu.Lock()
	events, err := c.pollLocked()
	c.mu.Unlock()

	c.dispatch(events)
	return err
}

func (c *Controller) pollLocked() ([]logic.Event, error) {
	r, err := c.resolveLocked()
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}

	previous := c.current
	next := logic.Next(r, c.wasClosed, previous)

	// A commanded move has not left its starting position yet.
	if c.operating && next == c.origin() {
		c.log.Debugf("waiting for %s to leave %s", c.name, next)
		c.filter.Observe(previous, previous)
		return nil, nil
	}

	// The direction of a commanded move is known; wasClosed may be stale
	// after a STOPPED.
	if c.operating && next.IsTransit() {
		next = logic.TransitFor(c.target)
	}

	switch {
	case next.IsResting():
		c.wasClosed = next == logic.StateClosed
		c.operating = false
		c.target = next
	case next.IsTransit() && !c.operating:
		// moved by something other than us
		if next == logic.StateOpening {
			c.target = logic.StateOpen
		} else {
			c.target = logic.StateClosed
		}
	}

	announce := c.filter.Observe(previous, next)
	c.current = next
	if next != previous {
		stateChanges.Inc()
	}
	c.log.Debugf("%s state %s (open=%v closed=%v operating=%v wasClosed=%v)",
		c.name, next, r.IsOpen, r.IsClosed, c.operating, c.wasClosed)

	if next.IsTransit() && next != previous && !c.operating {
		c.armTransitLocked()
	}

	if !announce {
		return nil, nil
	}
	c.log.Infof("%s state changed to %s", c.name, next)
	return []logic.Event{c.eventLocked(previous, logic.SourcePoll)}, nil
}

// Close cancels any pending transit check and releases the relay.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.transit != nil {
		c.transit.Stop()
		c.transit = nil
	}
	c.transitGen++
	c.mu.Unlock()

	return c.relay.Release()
}

// resolveLocked reads the sensors and tidies the mocks of absent ones.
func (c *Controller) resolveLocked() (logic.Readings, error) {
	r, err := c.recon.Resolve(c.mocks)
	if err != nil {
		sensorReadErrors.Inc()
		return logic.Readings{}, err
	}
	return c.recon.Tidy(r, &c.mocks), nil
}

// origin is the resting position a commanded move starts from.
func (c *Controller) origin() logic.DoorState {
	if c.target == logic.StateOpen {
		return logic.StateClosed
	}
	return logic.StateOpen
}

func (c *Controller) eventLocked(previous logic.DoorState, source logic.Source) logic.Event {
	e := logic.Event{
		Timestamp: c.sched.Now(),
		State:     c.current,
		Previous:  previous,
		Target:    c.target,
		Source:    source,
	}
	c.counts.Record(e)
	return e
}

func (c *Controller) dispatch(events []logic.Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	n := c.notifier
	c.mu.Unlock()
	if n == nil {
		return
	}
	for _, e := range events {
		n.Notify(e)
	}
}
