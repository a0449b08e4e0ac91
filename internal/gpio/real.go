//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPort drives GPIO on actual hardware using Linux GPIO character device.
type RealPort struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
}

// NewRealPort opens the named chip (e.g. "gpiochip0") and requests the given lines.
func NewRealPort(chipName string, lines Lines) (*RealPort, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPort{
		chip:    chip,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
	}

	// Inputs with pull-down to match Pi boot defaults, so a disconnected
	// reed switch reads inactive.
	for _, pin := range lines.Inputs {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
		if lines.ActiveLow[pin] {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		l, err := chip.RequestLine(pin, opts...)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request input pin %d: %w", pin, err)
		}
		p.inputs[pin] = l
	}

	// Relay outputs start released.
	for _, pin := range lines.Outputs {
		l, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		p.outputs[pin] = l
	}

	return p, nil
}

// Read returns the logical level of an input pin.
func (p *RealPort) Read(pin int) (bool, error) {
	l, ok := p.inputs[pin]
	if !ok {
		return false, fmt.Errorf("read pin %d: %w", pin, ErrUnknownPin)
	}
	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v == 1, nil
}

// Write drives an output pin.
func (p *RealPort) Write(pin int, active bool) error {
	l, ok := p.outputs[pin]
	if !ok {
		return fmt.Errorf("write pin %d: %w", pin, ErrUnknownPin)
	}
	v := 0
	if active {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// Every line is reconfigured to input with pull-down (matching Pi boot
// defaults) before closing, so a relay is never left energised.
func (p *RealPort) Close() error {
	var errs []error

	for pin, l := range p.outputs {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release output pin %d: %w", pin, err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	for pin, l := range p.inputs {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure input pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
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
