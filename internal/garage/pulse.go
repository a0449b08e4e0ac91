package garage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/garage-door/internal/gpio"
)

// DefaultDwell is how long the relay is held active, and then released, per press.
const DefaultDwell = 500 * time.Millisecond

// ErrRelease reports that the relay could not be released after a cancelled press.
var ErrRelease = errors.New("relay release failed")

// Sequencer presses the push-button relay.
type Sequencer struct {
	port  gpio.Writer
	pin   int
	dwell time.Duration
}

// NewSequencer creates a sequencer for the relay on pin.
func NewSequencer(port gpio.Writer, pin int, dwell time.Duration) *Sequencer {
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	return &Sequencer{port: port, pin: pin, dwell: dwell}
}

// Run issues n presses: active for one dwell, inactive for one dwell.
// On cancellation the relay is released before returning.
func (s *Sequencer) Run(ctx context.Context, n int) error {
	if s.pin == gpio.NoPin {
		return nil
	}
	for i := 0; i < n; i++ {
		if err := s.port.Write(s.pin, true); err != nil {
			return fmt.Errorf("press %d: %w", i+1, err)
		}
		if err := s.wait(ctx); err != nil {
			if werr := s.port.Write(s.pin, false); werr != nil {
				return errors.Join(err, fmt.Errorf("%w on cancel: %w", ErrRelease, werr))
			}
			return err
		}
		if err := s.port.Write(s.pin, false); err != nil {
			return fmt.Errorf("release %d: %w", i+1, err)
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) wait(ctx context.Context) error {
	t := time.NewTimer(s.dwell)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
