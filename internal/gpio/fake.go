package gpio

import (
	"errors"
	"sync"
)

// FakePins is a test double that returns scripted input levels and
// records output writes.
type FakePins struct {
	mu sync.Mutex

	// Samples contains scripted raw levels per input pin.
	// Each Read of a pin consumes its next sample; the last one repeats.
	Samples map[int][]bool

	index map[int]int

	// ReadErrors, if set for a pin, is returned (wrapped) by Read.
	ReadErrors map[int]error

	// Writes records every successful Write in order.
	Writes []WriteCall

	// WriteError, if set, is returned (wrapped) by Write.
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// WriteCall is a single recorded output write.
type WriteCall struct {
	Pin   int
	Level bool
}

// NewFakePins creates FakePins with no scripted inputs.
func NewFakePins() *FakePins {
	return &FakePins{
		Samples:    make(map[int][]bool),
		index:      make(map[int]int),
		ReadErrors: make(map[int]error),
	}
}

// Set replaces the script for pin with a single repeating level.
func (f *FakePins) Set(pin int, level bool) {
	f.Script(pin, level)
}

// Script replaces the script for pin with the given levels.
func (f *FakePins) Script(pin int, levels ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples[pin] = levels
	f.index[pin] = 0
}

// FailReads makes subsequent reads of pin fail with err (nil clears it).
func (f *FakePins) FailReads(pin int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.ReadErrors, pin)
		return
	}
	f.ReadErrors[pin] = err
}

// Read returns the next scripted level for pin.
func (f *FakePins) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ReadErrors[pin]; err != nil {
		return false, &ReadError{Pin: pin, Err: err}
	}

	samples := f.Samples[pin]
	if len(samples) == 0 {
		return false, &ReadError{Pin: pin, Err: errors.New("no samples configured")}
	}

	i := f.index[pin]
	if i < len(samples)-1 {
		f.index[pin] = i + 1
	}
	return samples[i], nil
}

// Write records the write unless WriteError is set.
func (f *FakePins) Write(pin int, level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return &WriteError{Pin: pin, Err: f.WriteError}
	}
	f.Writes = append(f.Writes, WriteCall{Pin: pin, Level: level})
	return nil
}

// WritesFor returns the recorded levels written to pin.
func (f *FakePins) WritesFor(pin int) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	var levels []bool
	for _, w := range f.Writes {
		if w.Pin == pin {
			levels = append(levels, w.Level)
		}
	}
	return levels
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
