package ooo

import "github.com/suprax-sim/suprax/internal/errkind"

// ExecResult is what an execution unit hands back to the wakeup/commit
// path once an instruction finishes.
type ExecResult struct {
	ROBIndex  int
	Inst      Inst
	Exception errkind.Kind
}

// exuEntry is one in-flight instruction inside a fixed-latency pipe.
type exuEntry struct {
	busy      bool
	robIndex  int
	inst      Inst
	ticksLeft int
	exec      func(Inst) errkind.Kind
}

// EXU is a single fixed-latency execution unit: Dispatch admits one
// instruction per tick if the pipe is free (not pipelined across
// latency -- a new EXU instance per issue slot models superscalar width
// instead), and OnCurrentTick/ApplyNextTick follow the same two-phase
// discipline as every other clocked component so issue and completion
// land on tick boundaries consistently.
type EXU struct {
	cur  exuEntry
	next exuEntry
	out  *ExecResult
}

func NewEXU() *EXU { return &EXU{} }

// Busy reports whether this EXU can accept a new instruction this tick.
func (e *EXU) Busy() bool { return e.cur.busy || e.next.busy }

// Dispatch admits in for execution, completing after latency ticks (a
// latency of 1 completes on the next ApplyNextTick). exec computes the
// instruction's exception/side effects once, in the OnCurrentTick where
// the countdown reaches zero.
func (e *EXU) Dispatch(robIndex int, in Inst, latency int, exec func(Inst) errkind.Kind) bool {
	if e.cur.busy || e.next.busy {
		return false
	}
	if latency < 1 {
		latency = 1
	}
	e.next = exuEntry{busy: true, robIndex: robIndex, inst: in, ticksLeft: latency, exec: exec}
	return true
}

// OnCurrentTick starts a just-dispatched instruction if the pipe is idle,
// advances the busy pipe's countdown and, on reaching zero, computes the
// result for ApplyNextTick to publish.
func (e *EXU) OnCurrentTick() {
	e.out = nil
	if !e.cur.busy && e.next.busy {
		e.cur, e.next = e.next, exuEntry{}
	}
	if !e.cur.busy {
		return
	}
	e.cur.ticksLeft--
	if e.cur.ticksLeft <= 0 {
		exc := errkind.Success
		if e.cur.exec != nil {
			exc = e.cur.exec(e.cur.inst)
		}
		e.out = &ExecResult{ROBIndex: e.cur.robIndex, Inst: e.cur.inst, Exception: exc}
	}
}

// ApplyNextTick commits any just-dispatched instruction into the busy
// slot and frees the slot if it completed this tick.
func (e *EXU) ApplyNextTick() *ExecResult {
	res := e.out
	if res != nil {
		e.cur = exuEntry{}
	}
	if e.next.busy {
		e.cur = e.next
		e.next = exuEntry{}
	}
	return res
}
