package ratectrl

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Controller", func() {
	var c *Controller

	BeforeEach(func() {
		c = New(DefaultConfig())
	})

	It("should start at the initial increment", func() {
		Expect(c.Increment()).To(Equal(int64(DefaultInitialIncrement)))
	})

	It("should request recalibration once per feedback period", func() {
		for i := 0; i < DefaultFeedbackPeriod-1; i++ {
			c.Tick()
			Expect(c.ShouldRecalibrate()).To(BeFalse())
		}

		c.Tick()
		Expect(c.ShouldRecalibrate()).To(BeTrue())

		c.Recalibrate(1000, 1000)
		Expect(c.ShouldRecalibrate()).To(BeFalse())
	})

	It("should hold the increment inside the dead band", func() {
		for i := 0; i < 100; i++ {
			c.Recalibrate(1_000_000_000, 1_000_000_000)
			Expect(c.Increment()).To(Equal(int64(DefaultInitialIncrement)))
		}
	})

	It("should monotonically shrink the increment when running fast", func() {
		prev := c.Increment()

		for i := 0; i < 200; i++ {
			c.Recalibrate(3_000_000_000, 1_000_000_000)

			Expect(c.Increment()).To(BeNumerically("<=", prev))
			Expect(c.Increment()).To(BeNumerically(">=", int64(DefaultMinIncrement)))
			prev = c.Increment()
		}
	})

	It("should never shrink below the minimum increment", func() {
		for i := 0; i < 10000; i++ {
			c.Recalibrate(100_000_000_000, 1_000_000_000)
		}

		Expect(c.Increment()).To(Equal(int64(DefaultMinIncrement)))
	})

	It("should grow the increment when running slow", func() {
		prev := c.Increment()

		for i := 0; i < 200; i++ {
			c.Recalibrate(100_000_000, 1_000_000_000)

			Expect(c.Increment()).To(BeNumerically(">=", prev))
			Expect(c.Increment()).To(BeNumerically("<=", int64(DefaultMaxIncrement)))
			prev = c.Increment()
		}
	})

	It("should clamp one adjustment to the step fraction", func() {
		before := c.Increment()

		// A wildly fast ratio must still move the increment by at most
		// the configured fraction.
		c.Recalibrate(1_000_000_000_000, 1_000_000_000)

		minAllowed := before - int64(float64(before)*DefaultMaxStepFraction)
		Expect(c.Increment()).To(BeNumerically(">=", minAllowed))
	})

	It("should ignore a feedback cycle with no real time elapsed", func() {
		c.Recalibrate(1_000_000_000, 0)

		Expect(c.Increment()).To(Equal(int64(DefaultInitialIncrement)))
	})

	It("should reject unordered bounds", func() {
		cfg := DefaultConfig()
		cfg.MinIncrement = 100
		cfg.MaxIncrement = 10

		Expect(func() { New(cfg) }).To(Panic())
	})
})
