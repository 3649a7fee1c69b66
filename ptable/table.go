// Package ptable implements the fixed-capacity process table that
// tracks live workers and their simulated launch times. Slots are
// reused once a worker exits.
package ptable

import "github.com/sarchlab/ossim/vclock"

// DefaultCapacity is the number of PCB slots a table holds unless
// configured otherwise.
const DefaultCapacity = 20

// A PCB is one process-control-block entry. A freed entry is
// indistinguishable from one that was never used.
type PCB struct {
	Occupied bool
	Pid      int
	Start    vclock.Time
}

// A Table is an ordered sequence of PCB slots owned by the controller.
// It is not safe for concurrent use; the controller loop is the only
// writer.
type Table struct {
	slots []PCB
}

// New creates a table with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Table{slots: make([]PCB, capacity)}
}

// Capacity returns the fixed number of slots.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Allocate claims the first free slot and returns its index. A full
// table reports ok=false; the caller retries on a later iteration.
func (t *Table) Allocate() (slot int, ok bool) {
	for i := range t.slots {
		if !t.slots[i].Occupied {
			t.slots[i].Occupied = true
			return i, true
		}
	}

	return -1, false
}

// Bind records the identity and simulated launch time of the worker
// occupying a previously allocated slot.
func (t *Table) Bind(slot int, pid int, start vclock.Time) {
	t.slots[slot].Pid = pid
	t.slots[slot].Start = start
}

// Free clears a slot that was allocated but never bound, such as when
// process creation fails after a slot was reserved.
func (t *Table) Free(slot int) {
	t.slots[slot] = PCB{}
}

// Release scans for the occupied entry with the given identity and
// clears it. It reports whether such an entry existed.
func (t *Table) Release(pid int) bool {
	for i := range t.slots {
		if t.slots[i].Occupied && t.slots[i].Pid == pid {
			t.slots[i] = PCB{}
			return true
		}
	}

	return false
}

// Occupied counts the slots currently claimed by live workers.
func (t *Table) Occupied() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].Occupied {
			n++
		}
	}

	return n
}

// Pids returns the identities of all occupied slots in order.
func (t *Table) Pids() []int {
	pids := make([]int, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].Occupied {
			pids = append(pids, t.slots[i].Pid)
		}
	}

	return pids
}

// Reset clears every slot.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = PCB{}
	}
}

// Snapshot copies all slots for reporting.
func (t *Table) Snapshot() []PCB {
	out := make([]PCB, len(t.slots))
	copy(out, t.slots)

	return out
}
