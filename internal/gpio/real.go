//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "gate-opener"

// RealPins accesses actual hardware using Linux GPIO character device.
type RealPins struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
}

// NewRealPins opens chipName and requests the given lines.
func NewRealPins(chipName string, inputs []Input, outputs []Output) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPins{
		chip:    chip,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
	}

	// Outputs first so the relay is driven inactive as early as possible.
	for _, out := range outputs {
		line, err := chip.RequestLine(out.Pin,
			gpiocdev.AsOutput(levelToValue(out.Initial)),
			gpiocdev.WithConsumer(consumer))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request output pin %d: %w", out.Pin, err)
		}
		p.outputs[out.Pin] = line
	}

	for _, in := range inputs {
		// Bias toward the inactive level so a disconnected sensor reads as
		// not triggered.
		bias := gpiocdev.WithPullDown
		if !in.ActiveHigh {
			bias = gpiocdev.WithPullUp
		}
		line, err := chip.RequestLine(in.Pin, gpiocdev.AsInput, bias, gpiocdev.WithConsumer(consumer))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request input pin %d: %w", in.Pin, err)
		}
		p.inputs[in.Pin] = line
	}

	return p, nil
}

// Read returns the raw level of a requested input pin.
func (p *RealPins) Read(pin int) (bool, error) {
	line, ok := p.inputs[pin]
	if !ok {
		return false, &ReadError{Pin: pin, Err: errors.New("pin not requested as input")}
	}
	v, err := line.Value()
	if err != nil {
		return false, &ReadError{Pin: pin, Err: err}
	}
	return v != 0, nil
}

// Write drives a requested output pin.
func (p *RealPins) Write(pin int, level bool) error {
	line, ok := p.outputs[pin]
	if !ok {
		return &WriteError{Pin: pin, Err: errors.New("pin not requested as output")}
	}
	if err := line.SetValue(levelToValue(level)); err != nil {
		return &WriteError{Pin: pin, Err: err}
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (p *RealPins) Close() error {
	var errs []error

	for pin, line := range p.outputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	for pin, line := range p.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin %d: %w", pin, err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
