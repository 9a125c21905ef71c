package segseq

// Writer instances append to a sequence. There is exactly one writer per
// sequence; it must not be used from multiple goroutines at the same time.
type Writer[T any] struct {
	g   *guard[T]
	tip *segment[T] // the segment currently being filled

	capacity int
	size     int // number of elements appended
}

// Append appends values to the sequence. Values become visible to readers
// segment by segment, a concurrent reader may observe a partially applied
// Append. Append panics if the writer is closed.
func (w *Writer[T]) Append(values ...T) {
	if w.g == nil {
		panic(errClosed)
	}

	for len(values) != 0 {
		tip := w.tip
		if n := int(tip.n.Load()); n < w.capacity {
			m := copy(tip.values[n:], values)
			values = values[m:]
			w.size += m

			// publish after the copy
			tip.n.Store(int64(n + m))
			continue
		}

		next := tip.next.Load()
		if next == nil {
			next = w.g.grow()
			tip.next.Store(next)
		}
		w.tip = next
	}
}

// Len returns the number of elements appended so far.
func (w *Writer[T]) Len() int { return w.size }

// Close closes the writer. Data remains readable until all readers and
// iterators are released.
func (w *Writer[T]) Close() error {
	if w.g == nil {
		return errClosed
	}

	g := w.g
	w.g, w.tip = nil, nil
	g.release()
	return nil
}
