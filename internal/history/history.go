// Package history records the resting states each door has passed through.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// DefaultLimit is the number of entries kept per door.
const DefaultLimit = 50

// Entry is one resting-state change.
type Entry struct {
	Door      string       `json:"door"`
	Timestamp time.Time    `json:"timestamp"`
	Status    logic.Status `json:"status"`
	Assumed   bool         `json:"assumed,omitempty"`
}

// Recorder is an event sink keeping a bounded per-door history.
// Entries are only added when the status differs from the door's last entry.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]Entry
	w       io.Writer
	log     *slog.Logger
}

// NewRecorder creates a recorder. If w is non-nil every new entry is
// appended to it as a JSON line.
func NewRecorder(limit int, w io.Writer, logger *slog.Logger) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		limit:   limit,
		entries: make(map[string][]Entry),
		w:       w,
		log:     logger,
	}
}

// Notify records resting-state events.
func (r *Recorder) Notify(door string, ev logic.Event) {
	if ev.Repeat || !resting(ev.Type) {
		return
	}
	e := Entry{Door: door, Timestamp: ev.Timestamp, Status: ev.Status, Assumed: ev.Assumed}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.add(e) {
		return
	}
	if r.w == nil {
		return
	}
	if err := json.NewEncoder(r.w).Encode(e); err != nil {
		r.log.Warn("history write failed", "door", door, "error", err)
	}
}

func resting(t logic.EventType) bool {
	switch t {
	case logic.EventClosed, logic.EventOpened, logic.EventStopped, logic.EventFault:
		return true
	}
	return false
}

// add appends e unless it repeats the door's last status. Caller holds mu.
func (r *Recorder) add(e Entry) bool {
	list := r.entries[e.Door]
	if n := len(list); n > 0 && list[n-1].Status == e.Status {
		return false
	}
	list = append(list, e)
	if len(list) > r.limit {
		list = append([]Entry(nil), list[len(list)-r.limit:]...)
	}
	r.entries[e.Door] = list
	return true
}

// Restore loads previously written JSON lines without rewriting them.
func (r *Recorder) Restore(src io.Reader) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	scanner := bufio.NewScanner(src)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return n, fmt.Errorf("history line %d: %w", line, err)
		}
		if r.add(e) {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read history: %w", err)
	}
	return n, nil
}

// Entries returns a copy of a door's history, oldest first.
func (r *Recorder) Entries(door string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries[door]...)
}

// All returns a copy of every door's history.
func (r *Recorder) All() map[string][]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]Entry, len(r.entries))
	for door, list := range r.entries {
		out[door] = append([]Entry(nil), list...)
	}
	return out
}
