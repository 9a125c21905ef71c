package segseq

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"
)

// alignment is the cache line size segment buffers are laid out for.
const alignment = 64

var (
	errClosed   = errors.New("segseq: writer is closed")
	errReleased = errors.New("segseq: handle was released")
)

// New creates a sequence of naturally ordered elements, split into segments
// of segmentCapacity elements each. It returns the only Writer for the sequence
// and a Reader which can be cloned freely.
//
// New panics if segmentCapacity is less than 1.
func New[T cmp.Ordered](segmentCapacity int) (*Writer[T], *Reader[T]) {
	return NewFunc(segmentCapacity, cmp.Compare[T])
}

// NewFunc is like New but orders elements using the compare function, which
// must return a negative number when a < b, a positive number when a > b and
// zero when a == b.
//
// NewFunc panics if segmentCapacity is less than 1, if compare is nil or if
// the element alignment cannot be satisfied within a 64-byte cache line.
func NewFunc[T any](segmentCapacity int, compare func(a, b T) int) (*Writer[T], *Reader[T]) {
	if segmentCapacity < 1 {
		panic(fmt.Sprintf("segseq: invalid segment capacity %d", segmentCapacity))
	}
	if compare == nil {
		panic("segseq: nil compare function")
	}

	var zero T
	if a := unsafe.Alignof(zero); a > alignment || alignment%a != 0 {
		panic(fmt.Sprintf("segseq: element alignment %d is incompatible with %d-byte segments", a, alignment))
	}

	g := &guard[T]{
		capacity: segmentCapacity,
		pool:     poolFor[T](),
	}
	g.head = g.grow()
	g.refs.Store(2)

	w := &Writer[T]{
		g:        g,
		tip:      g.head,
		capacity: segmentCapacity,
	}
	r := &Reader[T]{
		g:        g,
		head:     g.head,
		capacity: segmentCapacity,
		compare:  compare,
	}
	return w, r
}

// --------------------------------------------------------------------

type segment[T any] struct {
	values []T                        // fixed capacity buffer
	n      atomic.Int64               // occupied count
	next   atomic.Pointer[segment[T]] // successor, nil until linked
}

// load returns the occupied prefix and the successor. The successor is loaded
// first, a linked segment is always observed as full.
func (s *segment[T]) load() ([]T, *segment[T]) {
	next := s.next.Load()
	return s.values[:s.n.Load()], next
}

// --------------------------------------------------------------------

// guard holds the shared ownership of a chain. Writer, readers and live
// iterators each hold one reference; the chain is torn down once the last
// reference is dropped.
type guard[T any] struct {
	refs     atomic.Int64
	head     *segment[T]
	capacity int
	pool     *sync.Pool

	allocated atomic.Int64 // segments allocated
	freed     atomic.Int64 // segments recycled on teardown
}

func (g *guard[T]) acquire() {
	for {
		n := g.refs.Load()
		if n < 1 {
			panic(errReleased)
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

func (g *guard[T]) release() {
	switch n := g.refs.Add(-1); {
	case n == 0:
		g.teardown()
	case n < 0:
		panic("segseq: released too many times")
	}
}

// grow allocates a new, zeroed segment.
func (g *guard[T]) grow() *segment[T] {
	g.allocated.Add(1)
	return &segment[T]{values: fetchBuffer[T](g.pool, g.capacity)}
}

func (g *guard[T]) teardown() {
	for s := g.head; s != nil; {
		next := s.next.Load()
		s.next.Store(nil)
		releaseBuffer(g.pool, s.values)
		s.values = nil
		g.freed.Add(1)
		s = next
	}
	g.head = nil
}

// --------------------------------------------------------------------

// segmentPools holds a *sync.Pool of segment buffers per element type.
// Buffers of a different capacity are dropped on fetch.
var segmentPools sync.Map

func poolFor[T any]() *sync.Pool {
	key := reflect.TypeFor[T]()
	if p, ok := segmentPools.Load(key); ok {
		return p.(*sync.Pool)
	}
	p, _ := segmentPools.LoadOrStore(key, new(sync.Pool))
	return p.(*sync.Pool)
}

func fetchBuffer[T any](pool *sync.Pool, capacity int) []T {
	if v := pool.Get(); v != nil {
		if p, ok := v.([]T); ok && len(p) == capacity {
			return p
		}
	}
	return make([]T, capacity)
}

// releaseBuffer zeroes p and returns it to the pool.
func releaseBuffer[T any](pool *sync.Pool, p []T) {
	if cap(p) != 0 {
		clear(p)
		pool.Put(p)
	}
}
