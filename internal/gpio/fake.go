package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakePort is a test double with settable input levels that records writes.
// It is safe for concurrent use: pulse sequences write while polls read.
type FakePort struct {
	mu sync.Mutex

	levels map[int]bool
	errs   map[int]error

	// writes records every output change in order.
	writes []Write

	// Closed tracks if Close was called.
	Closed bool
}

// Write is one recorded output change.
type Write struct {
	Pin    int
	Active bool
	Time   time.Time
}

// NewFakePort creates a FakePort with all inputs inactive.
func NewFakePort() *FakePort {
	return &FakePort{
		levels: make(map[int]bool),
		errs:   make(map[int]error),
	}
}

// Set sets the level returned for pin.
func (f *FakePort) Set(pin int, active bool) {
	f.mu.Lock()
	f.levels[pin] = active
	f.mu.Unlock()
}

// SetError makes reads of pin fail until cleared with a nil error.
func (f *FakePort) SetError(pin int, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.errs, pin)
	} else {
		f.errs[pin] = err
	}
	f.mu.Unlock()
}

// Read returns the level set for pin (false if never set).
func (f *FakePort) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return false, errors.New("gpio: port closed")
	}
	if err := f.errs[pin]; err != nil {
		return false, err
	}
	return f.levels[pin], nil
}

// Write records an output change.
func (f *FakePort) Write(pin int, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return errors.New("gpio: port closed")
	}
	f.writes = append(f.writes, Write{Pin: pin, Active: active, Time: time.Now()})
	return nil
}

// Writes returns a copy of the recorded output changes.
func (f *FakePort) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// Pulses counts completed active→inactive cycles on pin.
func (f *FakePort) Pulses(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	high := false
	for _, w := range f.writes {
		if w.Pin != pin {
			continue
		}
		if w.Active {
			high = true
		} else if high {
			high = false
			n++
		}
	}
	return n
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded writes, errors and the closed flag.
func (f *FakePort) Reset() {
	f.mu.Lock()
	f.writes = nil
	f.errs = make(map[int]error)
	f.Closed = false
	f.mu.Unlock()
}
