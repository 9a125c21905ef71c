package segseq_test

import (
	"slices"

	"github.com/bsm/segseq"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var writer *segseq.Writer[int]
	var subject *segseq.Reader[int]

	// The following will seed 4 values into 2 segments:
	//
	// S0: 0, 13, 26
	// S1: 39
	//
	BeforeEach(func() {
		writer, subject = segseq.New[int](3)
		writer.Append(0, 13, 26, 39)
	})

	AfterEach(func() {
		_ = writer.Close()
		subject.Release()
	})

	It("should have len", func() {
		Expect(subject.Len()).To(Equal(4))
	})

	It("should find positions", func() {
		Expect(pos(subject.Position(0))).To(Equal(0))
		Expect(pos(subject.Position(13))).To(Equal(1))
		Expect(pos(subject.Position(26))).To(Equal(2))
		Expect(pos(subject.Position(39))).To(Equal(3))

		Expect(pos(subject.Position(-1))).To(Equal(-1))
		Expect(pos(subject.Position(12))).To(Equal(-1))
		Expect(pos(subject.Position(27))).To(Equal(-1))
		Expect(pos(subject.Position(40))).To(Equal(-1))
	})

	It("should find next positions", func() {
		Expect(pos(subject.NextPosition(-1))).To(Equal(0))
		Expect(pos(subject.NextPosition(0))).To(Equal(1))
		Expect(pos(subject.NextPosition(12))).To(Equal(1))
		Expect(pos(subject.NextPosition(13))).To(Equal(2))
		Expect(pos(subject.NextPosition(26))).To(Equal(3))
		Expect(pos(subject.NextPosition(39))).To(Equal(-1))
		Expect(pos(subject.NextPosition(40))).To(Equal(-1))
	})

	It("should return the last value", func() {
		last, ok := subject.Last()
		Expect(ok).To(BeTrue())
		Expect(last).To(Equal(39))

		writer.Append(40, 41)
		last, ok = subject.Last()
		Expect(ok).To(BeTrue())
		Expect(last).To(Equal(41))
	})

	It("should return the first of duplicate positions", func() {
		writer.Append(39, 39, 39, 39, 52)
		Expect(pos(subject.Position(39))).To(Equal(3))
		Expect(pos(subject.NextPosition(39))).To(Equal(8))
		Expect(pos(subject.Position(52))).To(Equal(8))
	})

	It("should clone", func() {
		clone := subject.Clone()
		defer clone.Release()

		writer.Append(52)
		Expect(clone.Len()).To(Equal(5))
		Expect(subject.Len()).To(Equal(5))

		clone.Release()
		Expect(subject.Len()).To(Equal(5))
	})

	It("should search one value at a time", func() {
		w, r := segseq.New[int](3)
		defer r.Release()
		defer w.Close()

		for v := 0; v < 1131; v++ {
			w.Append(v)
			Expect(pos(r.Position(v))).To(Equal(v), "for %d", v)

			last, ok := r.Last()
			Expect(ok).To(BeTrue())
			Expect(last).To(Equal(v))
		}
		Expect(drain(r.IterFrom(33))).To(Equal(seq(33, 1131)))
	})

	It("should search in bulk", func() {
		for _, capacity := range []int{1, 3, 13, 33, 1131, 5000} {
			w, r := segseq.New[int](capacity)
			vals := seq(0, 1131)
			w.Append(vals...)

			for _, v := range vals {
				Expect(pos(r.Position(v))).To(Equal(v), "for %d (capacity %d)", v, capacity)
				if v < 1130 {
					Expect(pos(r.NextPosition(v))).To(Equal(v+1), "for %d (capacity %d)", v, capacity)
				}
			}
			Expect(pos(r.NextPosition(1130))).To(Equal(-1))
			Expect(drain(r.IterFrom(31))).To(Equal(seq(31, 1131)))

			_ = w.Close()
			r.Release()
		}
	})

	It("should find next positions on sparse values", func() {
		w, r := segseq.New[int](7)
		defer r.Release()
		defer w.Close()

		vals := make([]int, 0, 500)
		for i := 0; i < 500; i++ {
			vals = append(vals, i*4)
		}
		w.Append(vals...)

		for key := -1; key < 2000; key++ {
			want, _ := slices.BinarySearch(vals, key+1)
			if want == len(vals) {
				Expect(pos(r.NextPosition(key))).To(Equal(-1), "for %d", key)
				continue
			}
			Expect(pos(r.NextPosition(key))).To(Equal(want), "for %d", key)
		}
	})

	Describe("Iterator", func() {
		It("should iterate from beginning", func() {
			iter := subject.IterFrom(0)
			defer iter.Release()

			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(0))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(13))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(26))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(39))

			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should iterate from middle", func() {
			Expect(drain(subject.IterFrom(1))).To(Equal([]int{13, 26, 39}))
			Expect(drain(subject.IterFrom(2))).To(Equal([]int{26, 39}))
			Expect(drain(subject.IterFrom(3))).To(Equal([]int{39}))
		})

		It("should clamp negative offsets", func() {
			Expect(drain(subject.IterFrom(-5))).To(Equal([]int{0, 13, 26, 39}))
		})

		It("should not iterate when past the end", func() {
			Expect(drain(subject.IterFrom(4))).To(BeEmpty())
			Expect(drain(subject.IterFrom(5))).To(BeEmpty())
			Expect(drain(subject.IterFrom(6))).To(BeEmpty())
			Expect(drain(subject.IterFrom(1000))).To(BeEmpty())
		})

		It("should observe values appended before a segment is entered", func() {
			iter := subject.IterFrom(2)
			defer iter.Release()

			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(26))

			writer.Append(52, 65, 78)
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(39))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(52))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(65))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Value()).To(Equal(78))
			Expect(iter.Next()).To(BeFalse())
		})

		It("should release", func() {
			iter := subject.IterFrom(0)
			Expect(iter.Next()).To(BeTrue())
			Expect(iter.Err()).NotTo(HaveOccurred())

			iter.Release()
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).To(MatchError(`segseq: handle was released`))
		})

		It("should range over values", func() {
			var vals []int
			for v := range subject.Values(1) {
				vals = append(vals, v)
			}
			Expect(vals).To(Equal([]int{13, 26, 39}))

			for v := range subject.Values(0) {
				if v == 13 {
					break
				}
			}
		})
	})
})
