package stats

// DefaultCapacity bounds every detector history unless configured otherwise.
const DefaultCapacity = 100

// Window is a bounded FIFO history. Pushing into a full window evicts the
// oldest sample. It is not safe for concurrent use.
type Window struct {
	buf   []float64
	start int
	size  int
}

// NewWindow returns an empty window. A non-positive capacity uses DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]float64, capacity)}
}

func (w *Window) Cap() int { return len(w.buf) }
func (w *Window) Len() int { return w.size }

// Push appends v, evicting the oldest sample when the window is full.
func (w *Window) Push(v float64) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// At returns the i-th oldest sample.
func (w *Window) At(i int) float64 {
	return w.buf[(w.start+i)%len(w.buf)]
}

// Last returns the newest sample; ok is false on an empty window.
func (w *Window) Last() (float64, bool) {
	if w.size == 0 {
		return 0, false
	}
	return w.At(w.size - 1), true
}

// Values copies the window contents, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

// Head returns up to n of the oldest samples.
func (w *Window) Head(n int) []float64 {
	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = w.At(i)
	}
	return out
}

// Recent returns up to n of the newest samples, oldest first.
func (w *Window) Recent(n int) []float64 {
	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	offset := w.size - n
	for i := range out {
		out[i] = w.At(offset + i)
	}
	return out
}

// Mean of the current contents, 0 when empty.
func (w *Window) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += w.At(i)
	}
	return sum / float64(w.size)
}

// Stats computes rolling statistics over the current contents.
func (w *Window) Stats() Statistics {
	return Rolling(w.Values())
}
