// Package simulation composes the shared clock, scheduler, monitor and
// data recorder into one controller run with exactly-once teardown.
package simulation

import (
	"log"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/ossim/datarecording"
	"github.com/sarchlab/ossim/monitoring"
	"github.com/sarchlab/ossim/sched"
	"github.com/sarchlab/ossim/shmclock"
)

// A Simulation provides the services required to run the controller.
type Simulation struct {
	id string

	segment   *shmclock.Segment
	view      *shmclock.MutableView
	scheduler *sched.Scheduler
	monitor   *monitoring.Monitor
	recorder  *datarecording.Recorder

	terminateOnce sync.Once
}

// ID returns the unique name of the run.
func (s *Simulation) ID() string {
	return s.id
}

// GetScheduler returns the controller loop of the run.
func (s *Simulation) GetScheduler() *sched.Scheduler {
	return s.scheduler
}

// GetMonitor returns the monitor used in the run. It is nil when
// monitoring is disabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// GetDataRecorder returns the data recorder used in the run. It is nil
// when recording is disabled.
func (s *Simulation) GetDataRecorder() *datarecording.Recorder {
	return s.recorder
}

// Run registers teardown with the exit path, executes the controller
// loop, and tears down. It returns the terminal state.
func (s *Simulation) Run() sched.State {
	atexit.Register(s.Terminate)

	state := s.scheduler.Run()

	s.Terminate()

	return state
}

// NotifySignal forwards an asynchronous termination request to the
// loop. It is the only call a signal watcher should make.
func (s *Simulation) NotifySignal() {
	s.scheduler.NotifySignal()
}

// Terminate kills and reaps surviving workers, detaches the clock
// view, and releases the shared segment. It is idempotent and safe on
// every exit path, including signal-driven ones.
func (s *Simulation) Terminate() {
	s.terminateOnce.Do(s.terminate)
}

func (s *Simulation) terminate() {
	s.scheduler.Teardown()

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			log.Printf("simulation: close recorder: %v", err)
		}
	}

	if err := s.view.Detach(); err != nil {
		log.Printf("simulation: detach shared clock: %v", err)
	}

	if err := s.segment.Destroy(); err != nil {
		log.Printf("simulation: destroy shared clock: %v", err)
	}
}
