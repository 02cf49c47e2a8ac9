package fairvalue

import "github.com/atmx/quote-engine/internal/model"

// Window is a fixed-capacity FIFO of price points. Pushing onto a full
// window evicts the oldest point.
type Window struct {
	buf   []model.PricePoint
	start int
	size  int
}

// NewWindow creates a window holding at most capacity points.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]model.PricePoint, capacity)}
}

// Push appends p, evicting the oldest point when full.
func (w *Window) Push(p model.PricePoint) {
	capacity := len(w.buf)
	if w.size < capacity {
		w.buf[(w.start+w.size)%capacity] = p
		w.size++
		return
	}
	w.buf[w.start] = p
	w.start = (w.start + 1) % capacity
}

// Len returns the number of stored points.
func (w *Window) Len() int { return w.size }

// Points returns the stored points oldest first.
func (w *Window) Points() []model.PricePoint {
	out := make([]model.PricePoint, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
