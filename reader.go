package segseq

import (
	"iter"
	"slices"
	"sort"
)

// Reader instances can search and iterate across a sequence while it is being
// appended to. Queries are lock-free and may be issued from many goroutines.
// A reader must not be released while it is still in use, give each goroutine
// its own Clone instead.
type Reader[T any] struct {
	g    *guard[T]
	head *segment[T]

	capacity int
	compare  func(a, b T) int
}

// Clone returns a new reader which shares the underlying sequence.
func (r *Reader[T]) Clone() *Reader[T] {
	r.check()
	r.g.acquire()

	c := *r
	return &c
}

// Release releases the reader. The reader must not be used after this method
// is called.
func (r *Reader[T]) Release() {
	if r.g == nil {
		return
	}

	g := r.g
	r.g, r.head = nil, nil
	g.release()
}

// Len returns the number of currently visible elements.
func (r *Reader[T]) Len() int {
	r.check()

	var sz int
	for s := r.head; s != nil; {
		values, next := s.load()
		sz += len(values)
		s = next
	}
	return sz
}

// Position returns the position of key in the sequence. If the key occurs
// more than once, the first position is returned.
// The result is only meaningful if values were appended in non-decreasing order.
func (r *Reader[T]) Position(key T) (int, bool) {
	r.check()

	var offset int
	for s := r.head; s != nil; {
		values, next := s.load()
		if len(values) == 0 {
			break
		}

		// segments are packed in order, the last value is an upper bound
		if r.compare(values[len(values)-1], key) < 0 {
			offset += len(values)
			s = next
			continue
		}

		if r.compare(key, values[0]) < 0 {
			break
		}
		if pos, ok := slices.BinarySearchFunc(values, key, r.compare); ok {
			return offset + pos, true
		}
		break
	}
	return 0, false
}

// NextPosition returns the position of the first value in the sequence which
// is greater than key.
// The result is only meaningful if values were appended in non-decreasing order.
func (r *Reader[T]) NextPosition(key T) (int, bool) {
	r.check()

	var offset int
	for s := r.head; s != nil; {
		values, next := s.load()
		if len(values) == 0 {
			break
		}

		if r.compare(values[len(values)-1], key) <= 0 {
			offset += len(values)
			s = next
			continue
		}

		pos := sort.Search(len(values), func(i int) bool {
			return r.compare(values[i], key) > 0
		})
		if pos < len(values) {
			return offset + pos, true
		}
		break
	}
	return 0, false
}

// Last returns the most recently appended value.
func (r *Reader[T]) Last() (T, bool) {
	r.check()

	var last T
	var ok bool
	for s := r.head; s != nil; {
		values, next := s.load()
		if n := len(values); n != 0 { // a freshly linked tip may still be empty
			last, ok = values[n-1], true
		}
		s = next
	}
	return last, ok
}

// IterFrom returns an iterator starting at position index. The iterator
// yields nothing if index is beyond the currently visible length. The
// iterator must be released after use.
func (r *Reader[T]) IterFrom(index int) *Iterator[T] {
	r.check()
	if index < 0 {
		index = 0
	}

	r.g.acquire()
	it := &Iterator[T]{g: r.g}

	s := r.head
	for n := index / r.capacity; n > 0; n-- {
		if s = s.next.Load(); s == nil {
			it.release()
			return it
		}
	}

	values, next := s.load()
	offset := min(index%r.capacity, len(values))
	it.values, it.next = values[offset:], next
	return it
}

// Values returns a range function over values starting at position index.
func (r *Reader[T]) Values(index int) iter.Seq[T] {
	return func(yield func(T) bool) {
		it := r.IterFrom(index)
		defer it.Release()

		for it.Next() {
			if !yield(it.Value()) {
				return
			}
		}
	}
}

func (r *Reader[T]) check() {
	if r.g == nil {
		panic(errReleased)
	}
}

// --------------------------------------------------------------------

// Iterator (forward-) iterates across segment boundaries. It is not a
// snapshot: each segment's occupied count is read when the iterator enters
// it, values appended before that point are observed.
type Iterator[T any] struct {
	g *guard[T]

	values []T         // remainder of the current segment
	next   *segment[T] // the segment to enter next
	value  T           // the current value

	err error
}

// Next advances the cursor to the next value and returns true if successful.
// Once Next returns false the iterator is exhausted.
func (i *Iterator[T]) Next() bool {
	if i.g == nil {
		return false
	}

	for len(i.values) == 0 {
		if i.next == nil {
			i.release()
			return false
		}
		i.values, i.next = i.next.load()
	}

	i.value, i.values = i.values[0], i.values[1:]
	return true
}

// Value returns the current value.
func (i *Iterator[T]) Value() T { return i.value }

// Err returns errReleased once Release was called. Iteration itself cannot
// fail, Err is nil until then.
func (i *Iterator[T]) Err() error { return i.err }

// Release releases the iterator and frees up resources. The iterator must not be used
// after this method is called.
func (i *Iterator[T]) Release() {
	if i.g != nil {
		i.release()
	}
	i.err = errReleased
}

func (i *Iterator[T]) release() {
	g := i.g
	i.g, i.values, i.next = nil, nil, nil
	g.release()
}
