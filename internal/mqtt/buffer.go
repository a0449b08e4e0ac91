package mqtt

// message is a serialized MQTT publish held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ring is a fixed-capacity FIFO that keeps the newest items.
// Not safe for concurrent use; caller must synchronize.
type ring[T any] struct {
	items   []T
	head    int // next write position
	count   int
	dropped int // items overwritten since the last drain
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

// push appends item, overwriting the oldest when full. It reports whether
// this push caused the first drop since the last drain.
func (r *ring[T]) push(item T) (firstDrop bool) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
		return false
	}
	r.dropped++
	return r.dropped == 1
}

// drain removes and returns every item, oldest first, plus the drop count.
func (r *ring[T]) drain() ([]T, int) {
	if r.count == 0 {
		return nil, 0
	}
	out := make([]T, r.count)
	start := (r.head - r.count + len(r.items)) % len(r.items)
	for i := range out {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	dropped := r.dropped
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.count, r.dropped = 0, 0, 0
	return out, dropped
}

func (r *ring[T]) len() int {
	return r.count
}
