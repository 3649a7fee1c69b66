// Package shmclock stores the simulated clock in a System V shared
// memory segment so that worker processes can read the time the
// controller publishes.
//
// The controller is the only writer. Workers attach read-only, so no
// lock guards the clock fields themselves; a reader may observe a
// value from the middle of an increment and that is tolerated. The
// bookkeeping lock in this package serializes only the attach and
// detach calls.
package shmclock

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/ossim/vclock"
)

// DefaultKey identifies the clock segment to both the controller and
// every worker it launches.
const DefaultKey = 0x5353

// rawClock is the fixed wire layout of the segment: seconds first,
// then nanoseconds.
type rawClock struct {
	seconds int64
	nanos   int64
}

const segmentSize = int(unsafe.Sizeof(rawClock{}))

// A Segment is a handle on the shared clock region. The controller
// creates it, workers open the same key, and exactly one owner
// destroys it.
type Segment struct {
	key int
	id  int

	destroyOnce sync.Once
	destroyErr  error
}

// Create obtains the shared region for the given key, creating it if
// it does not exist yet.
func Create(key int) (*Segment, error) {
	id, err := unix.SysvShmGet(key, segmentSize, unix.IPC_CREAT|0o666)
	if err != nil {
		return nil, fmt.Errorf("shmclock: get segment for key %#x: %w", key, err)
	}

	return &Segment{key: key, id: id}, nil
}

// Open obtains an existing shared region without creating it. Workers
// use it so that a missing controller is a clean startup error rather
// than a zero-valued orphan segment.
func Open(key int) (*Segment, error) {
	id, err := unix.SysvShmGet(key, segmentSize, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmclock: open segment for key %#x: %w", key, err)
	}

	return &Segment{key: key, id: id}, nil
}

// Key returns the key the segment was created with.
func (s *Segment) Key() int {
	return s.key
}

// AttachReadWrite maps the segment writable. Only the controller may
// hold a MutableView.
func (s *Segment) AttachReadWrite() (*MutableView, error) {
	data, err := s.attach(0)
	if err != nil {
		return nil, err
	}

	return &MutableView{View{seg: s, data: data}}, nil
}

// AttachReadOnly maps the segment for reading. Workers use this view;
// the capability split is enforced by the kernel mapping as well as
// the type.
func (s *Segment) AttachReadOnly() (*View, error) {
	data, err := s.attach(unix.SHM_RDONLY)
	if err != nil {
		return nil, err
	}

	return &View{seg: s, data: data}, nil
}

func (s *Segment) attach(flag int) ([]byte, error) {
	lock, err := acquireBookkeepingLock(s.key)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	data, err := unix.SysvShmAttach(s.id, 0, flag)
	if err != nil {
		return nil, fmt.Errorf("shmclock: attach segment %d: %w", s.id, err)
	}

	return data, nil
}

// Destroy removes the backing region. It is idempotent and safe to
// call from the teardown path after all workers have exited or been
// killed; repeated calls return the first result.
func (s *Segment) Destroy() error {
	s.destroyOnce.Do(func() {
		_, err := unix.SysvShmCtl(s.id, unix.IPC_RMID, nil)
		if err != nil {
			s.destroyErr = fmt.Errorf(
				"shmclock: remove segment %d: %w", s.id, err)
		}
	})

	return s.destroyErr
}

// A View is a read-only mapping of the shared clock.
type View struct {
	seg  *Segment
	data []byte
}

func (v *View) raw() *rawClock {
	return (*rawClock)(unsafe.Pointer(&v.data[0]))
}

// Snapshot reads the clock. The two fields are read without a lock by
// design; a snapshot may therefore straddle an increment.
func (v *View) Snapshot() vclock.Time {
	c := v.raw()

	return vclock.Time{Seconds: c.seconds, Nanos: c.nanos}
}

// Detach unmaps the view. The mapping must not be used afterwards.
func (v *View) Detach() error {
	lock, err := acquireBookkeepingLock(v.seg.key)
	if err != nil {
		return err
	}
	defer lock.release()

	if err := unix.SysvShmDetach(v.data); err != nil {
		return fmt.Errorf("shmclock: detach segment %d: %w", v.seg.id, err)
	}

	v.data = nil

	return nil
}

// A MutableView is the controller's writable mapping.
type MutableView struct {
	View
}

// Set publishes an absolute clock value. Used once at startup to zero
// the clock regardless of what a previous run left behind.
func (v *MutableView) Set(t vclock.Time) {
	c := v.raw()
	c.seconds = t.Seconds
	c.nanos = t.Nanos
}

// Advance adds deltaNanos to the published clock, carrying into
// seconds.
func (v *MutableView) Advance(deltaNanos int64) {
	c := v.raw()

	t := vclock.Time{Seconds: c.seconds, Nanos: c.nanos}
	t.Advance(deltaNanos)

	// Nanoseconds are published before seconds so a torn read near a
	// carry shows a clock that is at most one increment behind, never
	// almost a second ahead.
	c.nanos = t.Nanos
	c.seconds = t.Seconds
}
