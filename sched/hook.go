package sched

// HookPos names a position in the controller loop where hooks fire.
type HookPos struct {
	Name string
}

// Hook positions exposed by the scheduler.
var (
	// HookPosBeforeTick triggers before the clock advances.
	HookPosBeforeTick = &HookPos{Name: "BeforeTick"}

	// HookPosAfterSpawn triggers after a worker is launched and bound
	// into the process table.
	HookPosAfterSpawn = &HookPos{Name: "AfterSpawn"}

	// HookPosAfterReap triggers after an exited worker's slot is
	// released.
	HookPosAfterReap = &HookPos{Name: "AfterReap"}

	// HookPosTableReport triggers on the periodic process-table dump.
	HookPosTableReport = &HookPos{Name: "TableReport"}

	// HookPosTerminate triggers once when the loop reaches a terminal
	// state.
	HookPosTerminate = &HookPos{Name: "Terminate"}
)

// HookCtx carries the information about the site where a hook fires.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable is an object that accepts Hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)
}

// A Hook is a short piece of program invoked by a hookable object.
type Hook interface {
	// Func determines what to do when the hook is invoked.
	Func(ctx HookCtx)
}

// HookableBase provides the utility functions for types that implement
// the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// InvokeHook triggers the registered hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
