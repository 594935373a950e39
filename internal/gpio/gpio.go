// Package gpio provides pin-level GPIO access with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "fmt"

// SensorPort reads digital inputs.
type SensorPort interface {
	// Read returns the raw level of an input pin (true = high).
	// Failures are reported as *ReadError.
	Read(pin int) (bool, error)
}

// ActuatorPort drives digital outputs.
type ActuatorPort interface {
	// Write sets an output pin to level (true = high).
	// Failures are reported as *WriteError.
	Write(pin int, level bool) error
}

// Pins is a SensorPort and ActuatorPort that holds hardware resources.
type Pins interface {
	SensorPort
	ActuatorPort

	// Close releases GPIO resources.
	Close() error
}

// Input describes an input line to request.
type Input struct {
	Pin        int
	ActiveHigh bool // biases the line away from its active level
}

// Output describes an output line to request.
type Output struct {
	Pin     int
	Initial bool // level driven as soon as the line is requested
}

// ReadError reports a failed input read.
type ReadError struct {
	Pin int
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read pin %d: %v", e.Pin, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failed output write.
type WriteError struct {
	Pin int
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write pin %d: %v", e.Pin, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func levelToValue(level bool) int {
	if level {
		return 1
	}
	return 0
}
