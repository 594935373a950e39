package logic

// Next maps a sensor sample onto a door state.
//
//	open  closed
//	 1      0     OPEN
//	 0      1     CLOSED
//	 0      0     OPENING if wasClosed, else CLOSING
//	 1      1     STOPPED (sensor conflict)
//
// A gate already reported STOPPED stays STOPPED while neither sensor is
// triggered; only a resting position clears the fault.
func Next(r Readings, wasClosed bool, previous DoorState) DoorState {
	switch {
	case r.IsOpen && !r.IsClosed:
		return StateOpen
	case r.IsClosed && !r.IsOpen:
		return StateClosed
	case !r.IsOpen && !r.IsClosed:
		if previous == StateStopped {
			return StateStopped
		}
		if wasClosed {
			return StateOpening
		}
		return StateClosing
	}
	return StateStopped
}

// ChangeFilter decides which polled state changes are announced.
// A change is announced only when the state it replaces was committed
// on each of the two preceding ticks, so a single-tick flicker and the
// return from it produce at most one notification.
type ChangeFilter struct {
	history [2]DoorState
}

// NewChangeFilter returns a filter that treats initial as stable.
func NewChangeFilter(initial DoorState) *ChangeFilter {
	return &ChangeFilter{history: [2]DoorState{initial, initial}}
}

// Observe records next as committed on this tick, replacing previous.
// It reports whether the change should be announced.
func (f *ChangeFilter) Observe(previous, next DoorState) bool {
	announce := next != previous &&
		f.history[0] == previous && f.history[1] == previous
	f.history[0] = f.history[1]
	f.history[1] = next
	return announce
}

// Reset records s as held on both preceding ticks. It is used when a
// state is committed outside the poll, so the next polled change away
// from it is announced.
func (f *ChangeFilter) Reset(s DoorState) {
	f.history = [2]DoorState{s, s}
}
