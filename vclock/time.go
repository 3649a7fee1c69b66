// Package vclock defines the simulated time value that stands in for
// real time in all scheduling decisions.
package vclock

import (
	"fmt"
	"log"
)

// NanosPerSec is the number of nanoseconds in one simulated second.
const NanosPerSec = 1_000_000_000

// A Time is a simulated clock value. The nanosecond field is always
// normalized into [0, NanosPerSec) and neither field is ever negative.
type Time struct {
	Seconds int64
	Nanos   int64
}

// Zero returns the simulated time at controller startup.
func Zero() Time {
	return Time{}
}

// Advance adds deltaNanos to the clock, carrying into seconds. Deltas
// larger than one second are handled in a single call.
func (t *Time) Advance(deltaNanos int64) {
	if deltaNanos < 0 {
		log.Panic("cannot advance the simulated clock backwards")
	}

	t.Nanos += deltaNanos
	for t.Nanos >= NanosPerSec {
		t.Nanos -= NanosPerSec
		t.Seconds++
	}
}

// Add returns the sum of two simulated times, carrying nanoseconds
// into seconds. It is used to turn a lifetime budget into an absolute
// deadline.
func (t Time) Add(d Time) Time {
	sum := Time{
		Seconds: t.Seconds + d.Seconds,
		Nanos:   t.Nanos + d.Nanos,
	}
	for sum.Nanos >= NanosPerSec {
		sum.Nanos -= NanosPerSec
		sum.Seconds++
	}

	return sum
}

// Compare orders two simulated times lexicographically. It returns -1
// if t is earlier than u, 0 if they are equal, and 1 if t is later.
func (t Time) Compare(u Time) int {
	switch {
	case t.Seconds < u.Seconds:
		return -1
	case t.Seconds > u.Seconds:
		return 1
	case t.Nanos < u.Nanos:
		return -1
	case t.Nanos > u.Nanos:
		return 1
	}

	return 0
}

// Before reports whether t is strictly earlier than u.
func (t Time) Before(u Time) bool {
	return t.Compare(u) < 0
}

// TotalNanos returns the clock value as a single nanosecond count.
func (t Time) TotalNanos() int64 {
	return t.Seconds*NanosPerSec + t.Nanos
}

// Sub returns t-u in nanoseconds. It panics if u is later than t.
func (t Time) Sub(u Time) int64 {
	d := t.TotalNanos() - u.TotalNanos()
	if d < 0 {
		log.Panic("negative simulated time difference")
	}

	return d
}

func (t Time) String() string {
	return fmt.Sprintf("%d.%09ds", t.Seconds, t.Nanos)
}
