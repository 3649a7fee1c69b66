package worker

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ossim/vclock"
)

// scriptedClock replays a fixed sequence of snapshots, holding the
// last one once the script runs out.
type scriptedClock struct {
	script []vclock.Time
	index  int
}

func (c *scriptedClock) Snapshot() vclock.Time {
	t := c.script[c.index]
	if c.index < len(c.script)-1 {
		c.index++
	}

	return t
}

var _ = Describe("DeadlineFrom", func() {
	It("should add the budget to the current time", func() {
		deadline := DeadlineFrom(
			vclock.Time{Seconds: 3, Nanos: 100},
			vclock.Time{Seconds: 2, Nanos: 50},
		)

		Expect(deadline).To(Equal(vclock.Time{Seconds: 5, Nanos: 150}))
	})

	It("should carry nanoseconds into seconds", func() {
		deadline := DeadlineFrom(
			vclock.Time{Seconds: 6, Nanos: 999_999_999},
			vclock.Time{Seconds: 1, Nanos: 2},
		)

		Expect(deadline).To(Equal(vclock.Time{Seconds: 8, Nanos: 1}))
	})
})

var _ = Describe("Waiter", func() {
	It("should panic without a clock view", func() {
		Expect(func() {
			NewWaiter(nil, vclock.Zero(), nil)
		}).To(Panic())
	})

	It("should return once the clock passes the deadline", func() {
		clock := &scriptedClock{script: []vclock.Time{
			{Seconds: 0, Nanos: 0},
			{Seconds: 0, Nanos: 400_000_000},
			{Seconds: 0, Nanos: 900_000_000},
			{Seconds: 1, Nanos: 200_000_000},
		}}
		w := NewWaiter(clock,
			vclock.Time{Seconds: 1, Nanos: 0}, nil)

		final := w.Wait()

		Expect(final).To(
			Equal(vclock.Time{Seconds: 1, Nanos: 200_000_000}))
	})

	It("should return immediately when the deadline has passed", func() {
		clock := &scriptedClock{script: []vclock.Time{
			{Seconds: 5, Nanos: 0},
		}}
		w := NewWaiter(clock, vclock.Time{Seconds: 2, Nanos: 0}, nil)

		final := w.Wait()

		Expect(final).To(Equal(vclock.Time{Seconds: 5, Nanos: 0}))
	})

	It("should observe each whole second and the termination", func() {
		clock := &scriptedClock{script: []vclock.Time{
			{Seconds: 10, Nanos: 500},
			{Seconds: 10, Nanos: 900},
			{Seconds: 11, Nanos: 100},
			{Seconds: 11, Nanos: 800},
			{Seconds: 12, Nanos: 0},
			{Seconds: 13, Nanos: 700},
		}}

		var seen []Observation
		w := NewWaiter(clock,
			vclock.Time{Seconds: 13, Nanos: 0},
			func(o Observation) { seen = append(seen, o) })

		w.Wait()

		Expect(seen).To(HaveLen(3))
		Expect(seen[0].SecondsElapsed).To(Equal(int64(1)))
		Expect(seen[0].Terminating).To(BeFalse())
		Expect(seen[1].SecondsElapsed).To(Equal(int64(2)))
		Expect(seen[2].SecondsElapsed).To(Equal(int64(3)))
		Expect(seen[2].Terminating).To(BeTrue())
		Expect(seen[2].Now).To(
			Equal(vclock.Time{Seconds: 13, Nanos: 700}))
	})
})
