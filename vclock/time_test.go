package vclock

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Time", func() {
	It("should start at zero", func() {
		t := Zero()

		Expect(t.Seconds).To(Equal(int64(0)))
		Expect(t.Nanos).To(Equal(int64(0)))
	})

	It("should carry nanoseconds into seconds", func() {
		t := Time{Seconds: 0, Nanos: 999_999_999}

		t.Advance(2)

		Expect(t.Seconds).To(Equal(int64(1)))
		Expect(t.Nanos).To(Equal(int64(1)))
	})

	It("should carry deltas larger than one second in a single call", func() {
		t := Zero()

		t.Advance(3*NanosPerSec + 500)

		Expect(t.Seconds).To(Equal(int64(3)))
		Expect(t.Nanos).To(Equal(int64(500)))
	})

	It("should keep nanoseconds normalized over random increments", func() {
		t := Zero()
		total := int64(0)

		for i := 0; i < 10000; i++ {
			delta := rand.Int63n(3 * NanosPerSec)
			t.Advance(delta)
			total += delta

			Expect(t.Nanos).To(BeNumerically(">=", 0))
			Expect(t.Nanos).To(BeNumerically("<", NanosPerSec))
		}

		Expect(t.Seconds).To(Equal(total / NanosPerSec))
		Expect(t.Nanos).To(Equal(total % NanosPerSec))
	})

	It("should advance the same regardless of delta split", func() {
		a := Zero()
		b := Zero()

		a.Advance(100)
		a.Advance(200)
		b.Advance(300)

		Expect(a).To(Equal(b))
	})

	It("should add budgets with carry", func() {
		t := Time{Seconds: 6, Nanos: 999_999_999}

		sum := t.Add(Time{Seconds: 0, Nanos: 2})

		Expect(sum).To(Equal(Time{Seconds: 7, Nanos: 1}))
	})

	It("should add the documented example", func() {
		t := Time{Seconds: 6, Nanos: 100}

		sum := t.Add(Time{Seconds: 5, Nanos: 500000})

		Expect(sum).To(Equal(Time{Seconds: 11, Nanos: 500100}))
	})

	It("should compare lexicographically", func() {
		Expect(Time{Seconds: 1, Nanos: 0}.
			Compare(Time{Seconds: 0, Nanos: 999_999_999})).To(Equal(1))
		Expect(Time{Seconds: 1, Nanos: 5}.
			Compare(Time{Seconds: 1, Nanos: 5})).To(Equal(0))
		Expect(Time{Seconds: 1, Nanos: 4}.
			Compare(Time{Seconds: 1, Nanos: 5})).To(Equal(-1))

		Expect(Time{Seconds: 1, Nanos: 4}.
			Before(Time{Seconds: 1, Nanos: 5})).To(BeTrue())
		Expect(Time{Seconds: 1, Nanos: 5}.
			Before(Time{Seconds: 1, Nanos: 5})).To(BeFalse())
	})

	It("should measure differences in nanoseconds", func() {
		a := Time{Seconds: 2, Nanos: 500}
		b := Time{Seconds: 1, Nanos: NanosPerSec - 100}

		Expect(a.Sub(b)).To(Equal(int64(600)))
	})

	It("should panic on a backward advance", func() {
		t := Zero()

		Expect(func() { t.Advance(-1) }).To(Panic())
	})
})
