//go:build !linux

package gpio

import "errors"

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(chipName string, inputs []Input, outputs []Output) (*RealPins, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (p *RealPins) Read(pin int) (bool, error) {
	return false, &ReadError{Pin: pin, Err: errors.New("gpio: not supported")}
}

// Write is not implemented on non-Linux platforms.
func (p *RealPins) Write(pin int, level bool) error {
	return &WriteError{Pin: pin, Err: errors.New("gpio: not supported")}
}

// Close is not implemented on non-Linux platforms.
func (p *RealPins) Close() error {
	return nil
}
