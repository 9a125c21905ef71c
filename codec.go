package segseq

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"unsafe"

	"github.com/golang/snappy"
)

var magic = []byte{83, 69, 71, 83, 69, 81, 48, 49}

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
)

const (
	littleEndian = 1
	bigEndian    = 2
)

var (
	errBadMagic       = errors.New("segseq: bad magic byte sequence")
	errBadCompression = errors.New("segseq: bad compression codec")
	errBadByteOrder   = errors.New("segseq: incompatible byte order")
	errBadBlock       = errors.New("segseq: bad block")
	errPointerElement = errors.New("segseq: element type contains pointers")
)

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)

// ExportOptions define export specific options.
type ExportOptions struct {
	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression
}

func (o *ExportOptions) norm() *ExportOptions {
	var oo ExportOptions
	if o != nil {
		oo = *o
	}

	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	return &oo
}

// --------------------------------------------------------------------

// Export encodes the currently visible values to w, one block per segment.
// The stream can be appended to another sequence with Writer.ReadFrom.
// Only element types without pointers can be exported.
func (r *Reader[T]) Export(w io.Writer, o *ExportOptions) (int64, error) {
	r.check()
	o = o.norm()

	size, err := elementSize[T]()
	if err != nil {
		return 0, err
	}

	enc := &encoder{w: w, o: o, tmp: make([]byte, 2*binary.MaxVarintLen64)}
	if err := enc.writeHeader(size); err != nil {
		return enc.n, err
	}
	for s := r.head; s != nil; {
		values, next := s.load()
		if len(values) == 0 {
			break
		}
		if err := enc.writeBlock(len(values), asBytes(values)); err != nil {
			return enc.n, err
		}
		s = next
	}
	err = enc.writeUvarint(0)
	return enc.n, err
}

// WriteTo implements io.WriterTo. It is a shortcut for Export(w, nil).
func (r *Reader[T]) WriteTo(w io.Writer) (int64, error) {
	return r.Export(w, nil)
}

// ReadFrom implements io.ReaderFrom. It decodes a stream produced by
// Reader.Export and appends its values. The whole stream is decoded before
// anything is appended, nothing is appended if the stream is invalid.
func (w *Writer[T]) ReadFrom(src io.Reader) (int64, error) {
	if w.g == nil {
		return 0, errClosed
	}

	size, err := elementSize[T]()
	if err != nil {
		return 0, err
	}

	cr := &countingReader{r: src}
	dec := &decoder{r: bufio.NewReader(cr)}
	if err := dec.readHeader(size); err != nil {
		return cr.n, err
	}

	var staged []T
	for {
		num, block, err := dec.readBlock(size)
		if err != nil {
			return cr.n, err
		}
		if num == 0 {
			break
		}

		n := len(staged)
		staged = slices.Grow(staged, num)[:n+num]
		copy(asBytes(staged[n:]), block)
	}
	w.Append(staged...)

	// exclude bytes buffered beyond the terminator
	return cr.n - int64(dec.r.Buffered()), nil
}

// --------------------------------------------------------------------

type encoder struct {
	w io.Writer
	o *ExportOptions
	n int64

	snp []byte // snappy  buffer
	tmp []byte // scratch buffer
}

func (e *encoder) writeHeader(size int) error {
	if err := e.writeRaw(magic); err != nil {
		return err
	}
	if err := e.writeUvarint(uint64(size)); err != nil {
		return err
	}
	return e.writeRaw([]byte{nativeByteOrder()})
}

func (e *encoder) writeBlock(num int, plain []byte) error {
	block, codec := plain, byte(blockNoCompression)
	if e.o.Compression == SnappyCompression {
		e.snp = snappy.Encode(e.snp[:cap(e.snp)], plain)
		if len(e.snp) < len(plain)-len(plain)/4 {
			block, codec = e.snp, blockSnappyCompression
		}
	}

	n := binary.PutUvarint(e.tmp[0:], uint64(num))
	n += binary.PutUvarint(e.tmp[n:], uint64(len(block)+1))
	if err := e.writeRaw(e.tmp[:n]); err != nil {
		return err
	}
	if err := e.writeRaw(block); err != nil {
		return err
	}
	return e.writeRaw([]byte{codec})
}

func (e *encoder) writeUvarint(u uint64) error {
	n := binary.PutUvarint(e.tmp, u)
	return e.writeRaw(e.tmp[:n])
}

func (e *encoder) writeRaw(p []byte) error {
	n, err := e.w.Write(p)
	e.n += int64(n)
	return err
}

// --------------------------------------------------------------------

type decoder struct {
	r *bufio.Reader

	raw   []byte // stored block buffer
	plain []byte // decompressed block buffer
}

func (d *decoder) readHeader(size int) error {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(d.r, head); err != nil {
		return unexpectedEOF(err)
	}
	if !bytes.Equal(head, magic) {
		return errBadMagic
	}

	u, err := binary.ReadUvarint(d.r)
	if err != nil {
		return unexpectedEOF(err)
	}
	if u != uint64(size) {
		return fmt.Errorf("segseq: element size mismatch, %d must be %d", u, size)
	}

	order, err := d.r.ReadByte()
	if err != nil {
		return unexpectedEOF(err)
	}
	if order != nativeByteOrder() {
		return errBadByteOrder
	}
	return nil
}

// readBlock reads the next block. It returns a zero num at the end of the
// stream.
func (d *decoder) readBlock(size int) (int, []byte, error) {
	num, err := binary.ReadUvarint(d.r)
	if err != nil {
		return 0, nil, unexpectedEOF(err)
	}
	if num == 0 {
		return 0, nil, nil
	}

	blen, err := binary.ReadUvarint(d.r)
	if err != nil {
		return 0, nil, unexpectedEOF(err)
	}

	plen := num * uint64(size)
	if size != 0 && plen/uint64(size) != num {
		return 0, nil, errBadBlock
	}
	maxLen := snappy.MaxEncodedLen(int(plen))
	if maxLen < 0 || blen < 1 || blen > uint64(maxLen)+1 {
		return 0, nil, errBadBlock
	}

	d.raw = grow(d.raw, int(blen))
	if _, err := io.ReadFull(d.r, d.raw); err != nil {
		return 0, nil, unexpectedEOF(err)
	}

	var block []byte
	switch cBitPos := len(d.raw) - 1; d.raw[cBitPos] {
	case blockNoCompression:
		block = d.raw[:cBitPos]
	case blockSnappyCompression:
		sz, err := snappy.DecodedLen(d.raw[:cBitPos])
		if err != nil {
			return 0, nil, err
		}
		if uint64(sz) != plen {
			return 0, nil, errBadBlock
		}

		d.plain = grow(d.plain, sz)
		if block, err = snappy.Decode(d.plain, d.raw[:cBitPos]); err != nil {
			return 0, nil, err
		}
	default:
		return 0, nil, errBadCompression
	}

	if uint64(len(block)) != plen {
		return 0, nil, errBadBlock
	}
	return int(num), block, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// --------------------------------------------------------------------

// elementSize returns the encoded size of T.
func elementSize[T any]() (int, error) {
	t := reflect.TypeFor[T]()
	if hasPointers(t) {
		return 0, errPointerElement
	}
	return int(t.Size()), nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() != 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// asBytes reinterprets values as raw bytes. T must not contain pointers.
func asBytes[T any](values []T) []byte {
	if len(values) == 0 {
		return nil
	}

	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}

func nativeByteOrder() byte {
	x := uint16(1)
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		return littleEndian
	}
	return bigEndian
}

func grow(p []byte, sz int) []byte {
	if cap(p) < sz {
		return make([]byte, sz)
	}
	return p[:sz]
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
