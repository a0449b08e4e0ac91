package garage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/garage-door/internal/logic"
)

// ErrUnknownDoor is returned when a command names no configured door.
var ErrUnknownDoor = errors.New("unknown door")

// Fleet addresses independent doors by identifier.
type Fleet struct {
	doors []*Door
	byID  map[string]*Door
}

// NewFleet creates a fleet from doors with unique identifiers.
func NewFleet(doors ...*Door) *Fleet {
	f := &Fleet{byID: make(map[string]*Door, len(doors))}
	for _, d := range doors {
		f.doors = append(f.doors, d)
		f.byID[d.ID()] = d
	}
	return f
}

// Doors returns the doors in configuration order.
func (f *Fleet) Doors() []*Door {
	return f.doors
}

// Door looks up a door by identifier.
func (f *Fleet) Door(id string) (*Door, bool) {
	d, ok := f.byID[id]
	return d, ok
}

// SetTarget forwards a command to the named door.
func (f *Fleet) SetTarget(id string, target logic.Target) error {
	d, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("set target %s: %w: %q", target, ErrUnknownDoor, id)
	}
	d.SetTarget(target)
	return nil
}

// Run runs every door until ctx is cancelled or one door fails.
func (f *Fleet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range f.doors {
		d := d
		g.Go(func() error {
			if err := d.Run(ctx); err != nil {
				return fmt.Errorf("door %s: %w", d.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
