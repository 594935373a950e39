package door

import (
	"github.com/sweeney/gate-opener/internal/logic"
)

// armTransitLocked schedules the end-of-travel check, superseding any
// check already pending.
func (c *Controller) armTransitLocked() {
	if c.transit != nil {
		c.transit.Stop()
	}
	c.transitGen++
	gen := c.transitGen
	c.transitStart = c.sched.Now()
	c.transit = c.sched.AfterFunc(c.travelTime, func() { c.finalize(gen) })
	c.log.Debugf("transit check armed for %s (target %s)", c.travelTime, c.target)
}

// finalize runs once the assumed travel time has elapsed. It commits the
// target if the sensors confirm it and STOPPED otherwise. A check that has
// been superseded does nothing; running the same check twice commits the
// same outcome.
func (c *Controller) finalize(gen uint64) {
	c.mu.Lock()
	events := c.finalizeLocked(gen)
	c.mu.Unlock()

	c.dispatch(events)
}

func (c *Controller) finalizeLocked(gen uint64) []logic.Event {
	if gen != c.transitGen {
		c.log.Debugf("stale transit check ignored")
		return nil
	}
	c.transit = nil

	target := c.target
	saved := c.mocks
	c.arriveMocked(target)

	r, err := c.resolveLocked()
	if err != nil {
		c.mocks = saved
		c.operating = false
		c.log.Errorf("transit check: %v", err)
		return nil
	}

	previous := c.current
	reached := logic.Next(r, c.wasClosed, previous) == target

	if reached {
		c.log.Infof("%s reached %s", c.name, target)
		c.current = target
		c.wasClosed = target == logic.StateClosed
		if !c.recon.HasOpen() {
			c.mocks.Open = !c.wasClosed
		}
		if !c.recon.HasClosed() {
			c.mocks.Closed = c.wasClosed
		}
		if previous != target {
			transitSeconds.Update(c.sched.Now().Sub(c.transitStart).Seconds())
		}
	} else {
		// Position unknown: absent sensors report neither end until a
		// configured one triggers or a move completes.
		c.mocks = Mocks{}
		c.log.Warnf("was trying to move %s to %s, but it did not get there (open=%v closed=%v)",
			c.name, target, r.IsOpen, r.IsClosed)
		c.current = logic.StateStopped
		if previous != logic.StateStopped {
			c.counts.Timeouts++
			transitTimeouts.Inc()
		}
	}
	c.operating = false
	c.filter.Reset(c.current)

	if c.current == previous {
		return nil
	}
	stateChanges.Inc()
	return []logic.Event{c.eventLocked(previous, logic.SourceTransit)}
}

// arriveMocked advances the mocks of absent sensors to the target
// position, standing in for the arrival they cannot observe.
func (c *Controller) arriveMocked(target logic.DoorState) {
	closed := target == logic.StateClosed
	if !c.recon.HasOpen() {
		c.mocks.Open = !closed
	}
	if !c.recon.HasClosed() {
		c.mocks.Closed = closed
	}
}
