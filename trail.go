package flock

import "gonum.org/v1/gonum/spatial/r2"

// A Trail is a ring buffer of the most recent positions of a boid.
// The zero value has capacity zero and records nothing.
type Trail struct {
	buf   []r2.Vec
	start int // index of the oldest point
	n     int // number of points held
}

// NewTrail returns an empty trail holding at most capacity points.
func NewTrail(capacity int) Trail {
	if capacity < 0 {
		capacity = 0
	}
	return Trail{buf: make([]r2.Vec, capacity)}
}

// Cap returns the maximum number of points held.
func (t *Trail) Cap() int { return len(t.buf) }

// Len returns the number of points held.
func (t *Trail) Len() int { return t.n }

// Push appends p, evicting the oldest point when the trail is full.
func (t *Trail) Push(p r2.Vec) {
	if len(t.buf) == 0 {
		return
	}
	if t.n < len(t.buf) {
		t.buf[(t.start+t.n)%len(t.buf)] = p
		t.n++
		return
	}
	t.buf[t.start] = p
	t.start = (t.start + 1) % len(t.buf)
}

// At returns the i-th point, oldest first.
func (t *Trail) At(i int) r2.Vec {
	if i < 0 || i >= t.n {
		panic("flock: trail index out of range")
	}
	return t.buf[(t.start+i)%len(t.buf)]
}

// Points appends the points to dst, oldest first, and returns the extended slice.
func (t *Trail) Points(dst []r2.Vec) []r2.Vec {
	for i := 0; i < t.n; i++ {
		dst = append(dst, t.buf[(t.start+i)%len(t.buf)])
	}
	return dst
}

// Resize changes the capacity, keeping the most recent points.
func (t *Trail) Resize(capacity int) {
	if capacity < 0 {
		capacity = 0
	}
	if capacity == len(t.buf) {
		return
	}
	old := t.Points(nil)
	if len(old) > capacity {
		old = old[len(old)-capacity:]
	}
	t.buf = make([]r2.Vec, capacity)
	t.start = 0
	t.n = copy(t.buf, old)
}
