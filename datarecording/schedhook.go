package datarecording

import "github.com/sarchlab/ossim/sched"

// A SchedulerHook feeds scheduler events into a Recorder. Attach it to
// the scheduler with AcceptHook.
type SchedulerHook struct {
	recorder *Recorder
}

// NewSchedulerHook creates a hook writing into recorder.
func NewSchedulerHook(recorder *Recorder) *SchedulerHook {
	return &SchedulerHook{recorder: recorder}
}

// Func records spawn, reap and report events.
func (h *SchedulerHook) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case sched.HookPosAfterSpawn:
		info := ctx.Item.(sched.SpawnInfo)
		h.recorder.RecordSpawn(SpawnRow{
			Pid:           info.Pid,
			Slot:          info.Slot,
			StartSec:      info.Start.Seconds,
			StartNanos:    info.Start.Nanos,
			LifetimeSec:   info.Budget.Seconds,
			LifetimeNanos: info.Budget.Nanos,
		})
	case sched.HookPosAfterReap:
		info := ctx.Item.(sched.ReapInfo)
		h.recorder.RecordExit(ExitRow{
			Pid:      info.Pid,
			SimSec:   info.Now.Seconds,
			SimNanos: info.Now.Nanos,
		})
	case sched.HookPosTableReport:
		report := ctx.Item.(sched.TableReport)
		h.recorder.RecordReport(ReportRow{
			SimSec:   report.Now.Seconds,
			SimNanos: report.Now.Nanos,
			Occupied: report.Occupied,
		})
	}
}
