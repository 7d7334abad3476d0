package history

import "encoding/binary"

// #region window
// Window is a fixed-capacity ring buffer over the most recent steps.
// Pushing into a full window evicts the oldest step.
type Window struct {
	buf  []Step
	head int // next write position
	n    int
}

// NewWindow creates a window holding at most capacity steps.
// A zero capacity window accepts pushes and keeps nothing.
func NewWindow(capacity int) *Window {
	if capacity < 0 {
		capacity = 0
	}
	return &Window{buf: make([]Step, capacity)}
}

// Push appends a step, evicting the oldest one when the window is full.
func (w *Window) Push(s Step) {
	if len(w.buf) == 0 {
		return
	}
	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
	if w.n < len(w.buf) {
		w.n++
	}
}

// Len returns the number of steps currently held.
func (w *Window) Len() int { return w.n }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// At returns the i-th most recent step; At(0) is the last pushed step.
func (w *Window) At(i int) Step {
	if i < 0 || i >= w.n {
		panic("history: window index out of range")
	}
	c := len(w.buf)
	return w.buf[((w.head-1-i)%c+c)%c]
}

// Steps returns a copy of the held steps, most recent first.
func (w *Window) Steps() []Step {
	out := make([]Step, w.n)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

// Reset drops every held step.
func (w *Window) Reset() {
	clear(w.buf)
	w.head = 0
	w.n = 0
}

// #endregion window

// #region key
// Key encodes the context of the given order for the current action: the
// action itself followed by the min(order, Len) most recent steps. Histories
// sharing a suffix of that length map to the same key regardless of what came
// before it.
func (w *Window) Key(order, action int) Key {
	n := min(order, w.n)
	buf := make([]byte, 0, binary.MaxVarintLen64*(1+2*n))
	buf = binary.AppendUvarint(buf, uint64(action))
	for i := 0; i < n; i++ {
		s := w.At(i)
		buf = binary.AppendUvarint(buf, uint64(s.Action))
		buf = binary.AppendUvarint(buf, uint64(s.Symbol))
	}
	return Key(buf)
}

// #endregion key
