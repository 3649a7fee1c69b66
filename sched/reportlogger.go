package sched

import "log"

// A TableReportLogger is a hook that prints the periodic process-table
// dump: controller identity, clock value, and one row per occupied
// slot.
type TableReportLogger struct {
	*log.Logger

	// ControllerPid labels the dump with the controller's identity.
	ControllerPid int
}

// NewTableReportLogger creates a logger hook writing into logger.
func NewTableReportLogger(logger *log.Logger, controllerPid int) *TableReportLogger {
	return &TableReportLogger{Logger: logger, ControllerPid: controllerPid}
}

// Func writes the table dump when attached to HookPosTableReport. It
// also prints launch and exit lines for the spawn and reap positions.
func (l *TableReportLogger) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTableReport:
		l.printReport(ctx.Item.(TableReport))
	case HookPosAfterSpawn:
		info := ctx.Item.(SpawnInfo)
		l.Printf("OSS PID:%d launched worker PID:%d slot:%d at %s for %s",
			l.ControllerPid, info.Pid, info.Slot, info.Start, info.Budget)
	case HookPosAfterReap:
		info := ctx.Item.(ReapInfo)
		l.Printf("OSS PID:%d reaped worker PID:%d at %s",
			l.ControllerPid, info.Pid, info.Now)
	case HookPosTerminate:
		l.Printf("OSS PID:%d terminated in state %s",
			l.ControllerPid, ctx.Item.(State))
	}
}

func (l *TableReportLogger) printReport(r TableReport) {
	l.Printf("OSS PID:%d SysClockS:%d SysClockNano:%d",
		l.ControllerPid, r.Now.Seconds, r.Now.Nanos)
	l.Printf("Process Table (%d occupied):", r.Occupied)
	l.Printf("%-5s %-10s %-8s %-12s %-12s",
		"Entry", "Occupied", "PID", "StartS", "StartN")

	for i, e := range r.Entries {
		occupied := 0
		if e.Occupied {
			occupied = 1
		}

		l.Printf("%-5d %-10d %-8d %-12d %-12d",
			i, occupied, e.Pid, e.Start.Seconds, e.Start.Nanos)
	}
}
