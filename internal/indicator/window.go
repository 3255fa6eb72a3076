package indicator

// window is a bounded FIFO of the most recent committed values.
type window struct {
	buf   []float64
	start int // index of the oldest value
	count int
}

func newWindow(size int) window {
	return window{buf: make([]float64, size)}
}

func (w *window) full() bool { return w.count == len(w.buf) }

// push appends v, evicting the oldest value when full.
func (w *window) push(v float64) {
	if w.count < len(w.buf) {
		w.buf[(w.start+w.count)%len(w.buf)] = v
		w.count++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// tail calls fn for the newest n values, oldest first.
func (w *window) tail(n int, fn func(v float64)) {
	if n > w.count {
		n = w.count
	}
	for i := w.count - n; i < w.count; i++ {
		fn(w.buf[(w.start+i)%len(w.buf)])
	}
}

func (w *window) reset() {
	w.start = 0
	w.count = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
