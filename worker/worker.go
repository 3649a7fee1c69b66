// Package worker implements the termination logic of a worker
// process: derive an absolute simulated deadline once at startup, then
// poll the shared clock until the deadline passes.
package worker

import (
	"log"
	"runtime"

	"github.com/sarchlab/ossim/vclock"
)

// A ClockReader is the worker's view of the shared clock. It is
// satisfied by *shmclock.View.
type ClockReader interface {
	Snapshot() vclock.Time
}

// DeadlineFrom computes the absolute simulated deadline from the clock
// value observed at startup and the lifetime budget handed to the
// worker, carrying nanoseconds into seconds.
func DeadlineFrom(now, budget vclock.Time) vclock.Time {
	return now.Add(budget)
}

// An Observation is reported each time the waiter notices the
// simulated seconds value advance, and once more on termination.
type Observation struct {
	Now            vclock.Time
	Deadline       vclock.Time
	SecondsElapsed int64
	Terminating    bool
}

// A Waiter polls the shared clock until an absolute deadline is
// reached. The loop never sleeps; busy-polling is what makes the
// absence of real-time sleeps meaningful. It yields the processor
// between polls, which does not materially delay deadline detection.
type Waiter struct {
	clock    ClockReader
	deadline vclock.Time
	observer func(Observation)
}

// NewWaiter creates a waiter for the given deadline. The observer may
// be nil.
func NewWaiter(clock ClockReader, deadline vclock.Time, observer func(Observation)) *Waiter {
	if clock == nil {
		log.Panic("waiter requires a clock view")
	}

	return &Waiter{
		clock:    clock,
		deadline: deadline,
		observer: observer,
	}
}

// Wait blocks until the shared clock reaches the deadline and returns
// the final clock value observed.
func (w *Waiter) Wait() vclock.Time {
	start := w.clock.Snapshot()
	lastSec := start.Seconds

	now := start
	for now.Before(w.deadline) {
		if now.Seconds > lastSec {
			w.observe(Observation{
				Now:            now,
				Deadline:       w.deadline,
				SecondsElapsed: now.Seconds - start.Seconds,
			})
			lastSec = now.Seconds
		}

		runtime.Gosched()
		now = w.clock.Snapshot()
	}

	w.observe(Observation{
		Now:            now,
		Deadline:       w.deadline,
		SecondsElapsed: now.Seconds - start.Seconds,
		Terminating:    true,
	})

	return now
}

func (w *Waiter) observe(o Observation) {
	if w.observer != nil {
		w.observer(o)
	}
}
