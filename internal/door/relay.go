package door

import (
	"sync"
	"time"

	"github.com/sweeney/gate-opener/internal/gpio"
	"github.com/sweeney/gate-opener/internal/logger"
	"github.com/sweeney/gate-opener/internal/sched"
)

// Relay pulses a momentary relay to simulate a button press.
type Relay struct {
	port       gpio.ActuatorPort
	pin        int
	activeHigh bool
	pulse      time.Duration
	sched      sched.Scheduler
	log        *logger.Logger

	mu      sync.Mutex
	release sched.Timer
	gen     uint64
}

// NewRelay creates a Relay on pin. activeHigh is the relay-on level.
func NewRelay(port gpio.ActuatorPort, pin int, activeHigh bool, pulse time.Duration, s sched.Scheduler, log *logger.Logger) *Relay {
	return &Relay{
		port:       port,
		pin:        pin,
		activeHigh: activeHigh,
		pulse:      pulse,
		sched:      s,
		log:        log,
	}
}

// Trigger energises the relay and schedules its release after the pulse
// duration. It does not wait for the release. Triggering again while a
// pulse is active restarts the pulse.
func (r *Relay) Trigger() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.port.Write(r.pin, r.activeHigh); err != nil {
		return err
	}
	r.log.Infof("relay on, pin %d = %s", r.pin, levelName(r.activeHigh))
	relayPulses.Inc()

	if r.release != nil {
		r.release.Stop()
	}
	r.gen++
	gen := r.gen
	r.release = r.sched.AfterFunc(r.pulse, func() { r.releaseFor(gen) })
	return nil
}

// Release cancels any pending pulse and drives the relay off.
func (r *Relay) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.release != nil {
		r.release.Stop()
		r.release = nil
	}
	r.gen++
	return r.port.Write(r.pin, !r.activeHigh)
}

// Active reports whether a pulse is in progress.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.release != nil
}

func (r *Relay) releaseFor(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// superseded by a later Trigger or Release
	if gen != r.gen {
		return
	}
	r.release = nil

	if err := r.port.Write(r.pin, !r.activeHigh); err != nil {
		r.log.Errorf("relay release failed: %v", err)
		return
	}
	r.log.Infof("relay off, pin %d = %s", r.pin, levelName(!r.activeHigh))
}

func levelName(high bool) string {
	if high {
		return "1"
	}
	return "0"
}
