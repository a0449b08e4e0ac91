package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
)

// WriteTo writes every retained entry as a JSON line, oldest first.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	var all []Entry
	for _, list := range r.entries {
		all = append(all, list...)
	}
	r.mu.Unlock()

	slices.SortStableFunc(all, func(a, b Entry) int { return a.Timestamp.Compare(b.Timestamp) })

	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	enc := json.NewEncoder(bw)
	for _, e := range all {
		if err := enc.Encode(e); err != nil {
			return cw.n, err
		}
	}
	err := bw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Open restores the history file at path, rewrites it with only the entries
// within the per-door limit, and returns a recorder appending to it. The
// caller closes the returned file.
func Open(path string, limit int, logger *slog.Logger) (*Recorder, *os.File, error) {
	r := NewRecorder(limit, nil, logger)

	switch f, err := os.Open(path); {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, nil, fmt.Errorf("open history: %w", err)
	default:
		n, err := r.Restore(f)
		f.Close()
		if err != nil {
			r.log.Warn("history restore incomplete", "file", path, "error", err)
		}
		r.log.Info("history restored", "file", path, "entries", n)
	}

	if err := r.compact(path); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	r.mu.Lock()
	r.w = f
	r.mu.Unlock()
	return r, f, nil
}

// compact replaces the file at path with the retained entries.
func (r *Recorder) compact(path string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("compact history: %w", err)
	}
	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("compact history: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compact history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("compact history: %w", err)
	}
	return nil
}
