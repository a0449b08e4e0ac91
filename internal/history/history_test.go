package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/garage-door/internal/logic"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ev(typ logic.EventType, status logic.Status, at time.Duration) logic.Event {
	return logic.Event{Timestamp: t0.Add(at), Type: typ, Status: status}
}

func TestRecorder_Dedupes(t *testing.T) {
	r := NewRecorder(10, nil, quiet())

	r.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 0))
	r.Notify("door1", ev(logic.EventMoving, logic.StatusOpening, time.Second))
	r.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 2*time.Second))
	r.Notify("door1", ev(logic.EventOpened, logic.StatusOpened, 10*time.Second))
	r.Notify("door1", ev(logic.EventFault, logic.StatusFault, 20*time.Second))

	got := r.Entries("door1")
	require.Len(t, got, 3)
	assert.Equal(t, logic.StatusClosed, got[0].Status)
	assert.Equal(t, logic.StatusOpened, got[1].Status)
	assert.Equal(t, logic.StatusFault, got[2].Status)
	assert.Equal(t, t0.Add(10*time.Second), got[1].Timestamp)
}

func TestRecorder_SkipsRepeatsAndObstruction(t *testing.T) {
	r := NewRecorder(10, nil, quiet())

	stop := ev(logic.EventStopped, logic.StatusStopped, 0)
	stop.Repeat = true
	r.Notify("door1", stop)
	r.Notify("door1", ev(logic.EventObstruction, logic.StatusClosed, 0))
	r.Notify("door1", ev(logic.EventClear, logic.StatusClosed, 0))

	assert.Empty(t, r.Entries("door1"))
}

func TestRecorder_PerDoor(t *testing.T) {
	r := NewRecorder(10, nil, quiet())

	r.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 0))
	r.Notify("door2", ev(logic.EventClosed, logic.StatusClosed, 0))

	all := r.All()
	assert.Len(t, all, 2)
	assert.Len(t, all["door1"], 1)
	assert.Len(t, all["door2"], 1)
}

func TestRecorder_Limit(t *testing.T) {
	r := NewRecorder(3, nil, quiet())

	for i := 0; i < 6; i++ {
		typ, st := logic.EventClosed, logic.StatusClosed
		if i%2 == 1 {
			typ, st = logic.EventOpened, logic.StatusOpened
		}
		r.Notify("door1", ev(typ, st, time.Duration(i)*time.Minute))
	}

	got := r.Entries("door1")
	require.Len(t, got, 3)
	assert.Equal(t, t0.Add(3*time.Minute), got[0].Timestamp)
	assert.Equal(t, t0.Add(5*time.Minute), got[2].Timestamp)
}

func TestRecorder_DefaultLimit(t *testing.T) {
	r := NewRecorder(0, nil, nil)
	assert.Equal(t, DefaultLimit, r.limit)
}

func TestRecorder_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewRecorder(10, &buf, quiet())

	r.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 0))
	assumed := ev(logic.EventOpened, logic.StatusOpened, 30*time.Second)
	assumed.Assumed = true
	r.Notify("door1", assumed)
	r.Notify("door1", ev(logic.EventOpened, logic.StatusOpened, 31*time.Second))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, "door1", e.Door)
	assert.Equal(t, logic.StatusOpened, e.Status)
	assert.True(t, e.Assumed)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRecorder_WriteErrorKeepsEntry(t *testing.T) {
	r := NewRecorder(10, failingWriter{}, quiet())

	r.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 0))

	assert.Len(t, r.Entries("door1"), 1)
}

func TestRecorder_Restore(t *testing.T) {
	var buf bytes.Buffer
	src := NewRecorder(10, &buf, quiet())
	src.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 0))
	src.Notify("door1", ev(logic.EventOpened, logic.StatusOpened, time.Minute))
	src.Notify("door2", ev(logic.EventFault, logic.StatusFault, time.Minute))

	var out bytes.Buffer
	r := NewRecorder(10, &out, quiet())
	n, err := r.Restore(strings.NewReader(buf.String() + "\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, src.All(), r.All())
	assert.Zero(t, out.Len(), "restore must not rewrite the file")

	// A restored status is not recorded again.
	r.Notify("door1", ev(logic.EventOpened, logic.StatusOpened, 2*time.Minute))
	assert.Len(t, r.Entries("door1"), 2)
}

func TestRecorder_RestoreBadLine(t *testing.T) {
	r := NewRecorder(10, nil, quiet())

	n, err := r.Restore(strings.NewReader(`{"door":"door1","status":"CLOSED","timestamp":"2026-03-01T08:00:00Z"}` + "\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, 1, n)
}

func TestEntriesIsCopy(t *testing.T) {
	r := NewRecorder(10, nil, quiet())
	r.Notify("door1", ev(logic.EventClosed, logic.StatusClosed, 0))

	got := r.Entries("door1")
	got[0].Status = logic.StatusFault

	assert.Equal(t, logic.StatusClosed, r.Entries("door1")[0].Status)
}
