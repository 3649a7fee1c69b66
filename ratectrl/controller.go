// Package ratectrl adjusts the per-iteration clock increment so that
// simulated time loosely tracks real elapsed time without the
// controller ever sleeping.
package ratectrl

import "log"

// Reference constants. They are starting points, not contracts; tests
// assert only the qualitative stability properties.
const (
	DefaultInitialIncrement = 100_000        // 100us of simulated time per tick
	DefaultMinIncrement     = 1_000          // 1us
	DefaultMaxIncrement     = 10_000_000_000 // 10s
	DefaultAdjustFactor     = 0.5
	DefaultDeadBandLow      = 0.95
	DefaultDeadBandHigh     = 1.05
	DefaultMaxStepFraction  = 0.25
	DefaultFeedbackPeriod   = 500
)

// Config holds the tuning knobs of the proportional controller.
type Config struct {
	// InitialIncrement is the nanoseconds of simulated time added per
	// tick before any feedback has been observed.
	InitialIncrement int64

	// MinIncrement and MaxIncrement are the hard bounds the increment
	// never leaves.
	MinIncrement int64
	MaxIncrement int64

	// AdjustFactor scales the proportional error into an increment
	// adjustment.
	AdjustFactor float64

	// DeadBandLow and DeadBandHigh bound the ratio band inside which no
	// adjustment happens, absorbing measurement noise.
	DeadBandLow  float64
	DeadBandHigh float64

	// MaxStepFraction clamps a single adjustment to this fraction of
	// the current increment, preventing overshoot on transient extreme
	// ratios.
	MaxStepFraction float64

	// FeedbackPeriod is the number of ticks between recalibrations.
	FeedbackPeriod int
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		InitialIncrement: DefaultInitialIncrement,
		MinIncrement:     DefaultMinIncrement,
		MaxIncrement:     DefaultMaxIncrement,
		AdjustFactor:     DefaultAdjustFactor,
		DeadBandLow:      DefaultDeadBandLow,
		DeadBandHigh:     DefaultDeadBandHigh,
		MaxStepFraction:  DefaultMaxStepFraction,
		FeedbackPeriod:   DefaultFeedbackPeriod,
	}
}

// A Controller carries the adaptive rate state across iterations. It
// is owned by the controller loop and never shared.
type Controller struct {
	cfg       Config
	increment int64
	ticks     int
}

// New creates a Controller. The configuration must satisfy
// 0 < Min <= Initial <= Max and a positive feedback period.
func New(cfg Config) *Controller {
	if cfg.MinIncrement <= 0 || cfg.MaxIncrement < cfg.MinIncrement {
		log.Panic("rate controller increment bounds are not ordered")
	}

	if cfg.InitialIncrement < cfg.MinIncrement ||
		cfg.InitialIncrement > cfg.MaxIncrement {
		log.Panic("initial increment outside the configured bounds")
	}

	if cfg.FeedbackPeriod <= 0 {
		log.Panic("feedback period must be positive")
	}

	return &Controller{
		cfg:       cfg,
		increment: cfg.InitialIncrement,
	}
}

// Increment returns the simulated nanoseconds the clock should advance
// on the current tick.
func (c *Controller) Increment() int64 {
	return c.increment
}

// Tick counts one loop iteration.
func (c *Controller) Tick() {
	c.ticks++
}

// ShouldRecalibrate reports whether a feedback cycle has completed
// since the last recalibration.
func (c *Controller) ShouldRecalibrate() bool {
	return c.ticks >= c.cfg.FeedbackPeriod
}

// Recalibrate compares the simulated nanoseconds advanced since the
// last feedback point with the real nanoseconds elapsed and nudges the
// increment toward a 1:1 ratio. The adjustment is dead-banded, clamped
// to MaxStepFraction of the current increment, and bounded into
// [MinIncrement, MaxIncrement].
func (c *Controller) Recalibrate(simElapsedNanos, realElapsedNanos int64) {
	c.ticks = 0

	if realElapsedNanos <= 0 {
		return
	}

	ratio := float64(simElapsedNanos) / float64(realElapsedNanos)
	if ratio >= c.cfg.DeadBandLow && ratio <= c.cfg.DeadBandHigh {
		return
	}

	err := ratio - 1.0
	delta := float64(c.increment) * c.cfg.AdjustFactor * err

	maxStep := float64(c.increment) * c.cfg.MaxStepFraction
	if delta > maxStep {
		delta = maxStep
	}
	if delta < -maxStep {
		delta = -maxStep
	}

	c.increment -= int64(delta)
	if c.increment < c.cfg.MinIncrement {
		c.increment = c.cfg.MinIncrement
	}
	if c.increment > c.cfg.MaxIncrement {
		c.increment = c.cfg.MaxIncrement
	}
}
