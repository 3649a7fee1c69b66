// Package sched implements the controller main loop: it advances the
// shared simulated clock, reaps finished workers without blocking,
// launches new workers under a concurrency cap and a minimum
// simulated spawn interval, reports the process table periodically,
// and recalibrates the adaptive clock rate.
package sched

import (
	"log"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/ossim/ptable"
	"github.com/sarchlab/ossim/ratectrl"
	"github.com/sarchlab/ossim/vclock"
)

// State is the controller's lifecycle state. All states other than
// StateRunning are terminal.
type State int

// The controller states.
const (
	StateRunning State = iota
	StateTimeExpired
	StateAllWorkersDone
	StateSignalTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateTimeExpired:
		return "TIME_EXPIRED"
	case StateAllWorkersDone:
		return "ALL_WORKERS_DONE"
	case StateSignalTerminated:
		return "SIGNAL_TERMINATED"
	}

	return "UNKNOWN"
}

// DefaultWallClockBudget bounds the whole run in real time.
const DefaultWallClockBudget = 60 * time.Second

// DefaultReportInterval is the simulated time between table dumps.
const DefaultReportInterval = vclock.NanosPerSec / 2

// Config describes one controller run.
type Config struct {
	// TotalWorkers is the number of workers to launch over the run.
	TotalWorkers int

	// MaxConcurrent caps the number of simultaneously live workers.
	MaxConcurrent int

	// LifetimeBound is the upper bound, in simulated seconds, of a
	// worker's randomly drawn lifetime. Lifetimes are drawn from
	// [1, LifetimeBound] seconds with a random nanosecond component.
	LifetimeBound int

	// SpawnIntervalMs is the minimum simulated time, in milliseconds,
	// between two spawns.
	SpawnIntervalMs int64

	// WallClockBudget is the real-time bound of the run. Zero selects
	// DefaultWallClockBudget.
	WallClockBudget time.Duration

	// TableCapacity is the number of PCB slots. Zero selects
	// ptable.DefaultCapacity.
	TableCapacity int

	// ReportIntervalNanos is the simulated time between table reports.
	// Zero selects DefaultReportInterval.
	ReportIntervalNanos int64
}

// A ClockWriter is the controller's writable view of the shared clock.
// It is satisfied by *shmclock.MutableView.
type ClockWriter interface {
	Set(t vclock.Time)
	Advance(deltaNanos int64)
	Snapshot() vclock.Time
}

// A Spawner launches and kills worker processes.
type Spawner interface {
	// Spawn starts one worker with the given simulated lifetime budget
	// and returns its identity.
	Spawn(budget vclock.Time) (pid int, err error)

	// Kill forcibly terminates a previously spawned worker.
	Kill(pid int) error
}

// A Reaper collects exited workers. ReapOne must never block: it
// reports ok=false immediately when no child has exited.
type Reaper interface {
	ReapOne() (pid int, ok bool)
}

// SpawnInfo is the hook payload for HookPosAfterSpawn.
type SpawnInfo struct {
	Pid    int
	Slot   int
	Start  vclock.Time
	Budget vclock.Time
}

// ReapInfo is the hook payload for HookPosAfterReap.
type ReapInfo struct {
	Pid int
	Now vclock.Time
}

// TableReport is the hook payload for HookPosTableReport.
type TableReport struct {
	Now      vclock.Time
	Occupied int
	Entries  []ptable.PCB
}

// A Scheduler runs the controller loop. It owns the clock view, the
// process table and the rate controller; nothing in this package is
// global state.
type Scheduler struct {
	HookableBase

	cfg     Config
	clock   ClockWriter
	table   *ptable.Table
	rate    *ratectrl.Controller
	spawner Spawner
	reaper  Reaper
	rng     *rand.Rand

	launched    int
	finished    int
	lastSpawn   vclock.Time
	haveSpawned bool
	lastReport  vclock.Time
	state       State

	realStart    time.Time
	fbRealBase   time.Time
	fbSimBase    vclock.Time
	iterations   uint64
	interrupted  atomic.Bool
	teardownOnce sync.Once
}

// New creates a scheduler. All collaborators are required; the rate
// controller may be nil to select ratectrl.DefaultConfig.
func New(
	cfg Config,
	clock ClockWriter,
	spawner Spawner,
	reaper Reaper,
	rate *ratectrl.Controller,
) *Scheduler {
	if clock == nil || spawner == nil || reaper == nil {
		log.Panic("scheduler requires a clock, a spawner, and a reaper")
	}

	if cfg.TotalWorkers <= 0 || cfg.MaxConcurrent <= 0 {
		log.Panic("worker target and concurrency cap must be positive")
	}

	if cfg.LifetimeBound <= 0 {
		cfg.LifetimeBound = 1
	}

	if cfg.WallClockBudget <= 0 {
		cfg.WallClockBudget = DefaultWallClockBudget
	}

	if cfg.ReportIntervalNanos <= 0 {
		cfg.ReportIntervalNanos = DefaultReportInterval
	}

	if rate == nil {
		rate = ratectrl.New(ratectrl.DefaultConfig())
	}

	return &Scheduler{
		cfg:     cfg,
		clock:   clock,
		table:   ptable.New(cfg.TableCapacity),
		rate:    rate,
		spawner: spawner,
		reaper:  reaper,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NotifySignal records an asynchronous termination request. It is the
// only thing a signal handler should do; the loop observes the flag at
// the top of the next iteration and tears down in normal control flow.
func (s *Scheduler) NotifySignal() {
	s.interrupted.Store(true)
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return s.state
}

// Launched returns the number of workers started so far.
func (s *Scheduler) Launched() int {
	return s.launched
}

// Finished returns the number of workers reaped so far.
func (s *Scheduler) Finished() int {
	return s.finished
}

// Table exposes the process table for inspection after Run returns.
// The loop is the only writer while running.
func (s *Scheduler) Table() *ptable.Table {
	return s.table
}

// Run executes the controller loop until a terminal state is reached,
// then performs teardown of the workers it owns. It returns the
// terminal state.
func (s *Scheduler) Run() State {
	s.clock.Set(vclock.Zero())
	s.realStart = time.Now()
	s.fbRealBase = s.realStart
	s.fbSimBase = vclock.Zero()
	s.state = StateRunning

	for s.state == StateRunning {
		s.iterate()
	}

	s.Teardown()

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosTerminate, Item: s.state})

	return s.state
}

func (s *Scheduler) iterate() {
	s.iterations++

	if s.interrupted.Load() {
		s.state = StateSignalTerminated
		return
	}

	if time.Since(s.realStart) >= s.cfg.WallClockBudget {
		s.state = StateTimeExpired
		return
	}

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosBeforeTick})

	s.clock.Advance(s.rate.Increment())
	s.rate.Tick()

	s.reap()
	s.spawn()
	s.report()

	if s.launched >= s.cfg.TotalWorkers && s.table.Occupied() == 0 {
		s.state = StateAllWorkersDone
		return
	}

	if s.rate.ShouldRecalibrate() {
		s.recalibrate()
	}
}

// reap releases the slot of every worker reporting exit. It never
// blocks; reap runs before spawn so a just-freed slot can be reused in
// the same iteration.
func (s *Scheduler) reap() {
	for {
		pid, ok := s.reaper.ReapOne()
		if !ok {
			return
		}

		if s.table.Release(pid) {
			s.finished++
			s.InvokeHook(HookCtx{
				Domain: s,
				Pos:    HookPosAfterReap,
				Item:   ReapInfo{Pid: pid, Now: s.clock.Snapshot()},
			})
		}
	}
}

func (s *Scheduler) spawn() {
	if s.launched >= s.cfg.TotalWorkers {
		return
	}

	if s.table.Occupied() >= s.cfg.MaxConcurrent {
		return
	}

	now := s.clock.Snapshot()
	if s.haveSpawned {
		elapsed := now.Sub(s.lastSpawn)
		if elapsed < s.cfg.SpawnIntervalMs*1_000_000 {
			return
		}
	}

	slot, ok := s.table.Allocate()
	if !ok {
		// Table full is a scheduling miss, not an error. Retry on a
		// later iteration.
		return
	}

	budget := s.drawLifetime()

	pid, err := s.spawner.Spawn(budget)
	if err != nil {
		// A failed launch does not count toward the launch total.
		log.Printf("sched: spawn failed: %v", err)
		s.table.Free(slot)
		return
	}

	s.table.Bind(slot, pid, now)
	s.launched++
	s.lastSpawn = now
	s.haveSpawned = true

	s.InvokeHook(HookCtx{
		Domain: s,
		Pos:    HookPosAfterSpawn,
		Item:   SpawnInfo{Pid: pid, Slot: slot, Start: now, Budget: budget},
	})
}

// drawLifetime picks a simulated lifetime between 1 second and the
// configured bound, with a fractional-second component.
func (s *Scheduler) drawLifetime() vclock.Time {
	return vclock.Time{
		Seconds: 1 + s.rng.Int63n(int64(s.cfg.LifetimeBound)),
		Nanos:   s.rng.Int63n(vclock.NanosPerSec),
	}
}

func (s *Scheduler) report() {
	now := s.clock.Snapshot()
	if now.Sub(s.lastReport) < s.cfg.ReportIntervalNanos {
		return
	}

	s.lastReport = now
	s.InvokeHook(HookCtx{
		Domain: s,
		Pos:    HookPosTableReport,
		Item: TableReport{
			Now:      now,
			Occupied: s.table.Occupied(),
			Entries:  s.table.Snapshot(),
		},
	})
}

func (s *Scheduler) recalibrate() {
	nowReal := time.Now()
	nowSim := s.clock.Snapshot()

	s.rate.Recalibrate(
		nowSim.Sub(s.fbSimBase),
		nowReal.Sub(s.fbRealBase).Nanoseconds(),
	)

	s.fbRealBase = nowReal
	s.fbSimBase = nowSim
}

// Teardown kills every occupied worker, performs a final non-blocking
// reap sweep, and clears the table. It is idempotent and runs in
// normal control flow, never inside a signal handler.
func (s *Scheduler) Teardown() {
	s.teardownOnce.Do(s.teardown)
}

func (s *Scheduler) teardown() {
	for _, pid := range s.table.Pids() {
		if err := s.spawner.Kill(pid); err != nil {
			log.Printf("sched: kill worker %d: %v", pid, err)
		}
	}

	// Killed children exit promptly; sweep with a bounded number of
	// misses and a real-time window so teardown cannot hang on a child
	// that is already gone.
	deadline := time.Now().Add(2 * time.Second)
	misses := 0
	for s.table.Occupied() > 0 && misses < 10000 && time.Now().Before(deadline) {
		pid, ok := s.reaper.ReapOne()
		if !ok {
			misses++
			runtime.Gosched()
			continue
		}

		misses = 0
		if s.table.Release(pid) {
			s.finished++
		}
	}

	// Whatever was not collected in the window is dead regardless; the
	// table must end empty.
	s.table.Reset()
}
