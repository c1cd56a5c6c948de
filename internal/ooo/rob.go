package ooo

import "github.com/suprax-sim/suprax/internal/errkind"

// robEntry is one reorder-buffer slot tracking an in-flight
// instruction's completion/exception state until it is its turn to
// commit.
type robEntry struct {
	valid     bool
	inst      Inst
	done      bool
	exception errkind.Kind
}

// ROB is a circular, arena-indexed reorder buffer: entries are
// allocated at dispatch in program order and retired strictly in
// order, so a single head/tail pair (no free list) suffices.
type ROB struct {
	entries []robEntry
	head    int // oldest, next to commit
	tail    int // next free slot
	count   int
}

func NewROB(capacity int) *ROB {
	return &ROB{entries: make([]robEntry, capacity)}
}

func (r *ROB) Capacity() int { return len(r.entries) }
func (r *ROB) Count() int    { return r.count }
func (r *ROB) Full() bool    { return r.count == len(r.entries) }
func (r *ROB) Empty() bool   { return r.count == 0 }

// Allocate reserves the next slot for in, returning its arena index for
// later Complete/Commit calls. Callers must check Full first.
func (r *ROB) Allocate(in Inst) int {
	idx := r.tail
	r.entries[idx] = robEntry{valid: true, inst: in}
	r.tail = (r.tail + 1) % len(r.entries)
	r.count++
	return idx
}

// Complete marks an entry's execution result, recorded out of order as
// EXUs finish; exception is errkind.Success for a clean result.
func (r *ROB) Complete(idx int, exception errkind.Kind) {
	e := &r.entries[idx]
	e.done = true
	e.exception = exception
}

// CommitHead returns the oldest entry if it has finished executing,
// advancing head. ok=false if the ROB is empty or the head instruction
// has not finished executing yet.
func (r *ROB) CommitHead() (inst Inst, exception errkind.Kind, ok bool) {
	if r.count == 0 {
		return Inst{}, errkind.Success, false
	}
	e := &r.entries[r.head]
	if !e.done {
		return Inst{}, errkind.Success, false
	}
	inst, exception = e.inst, e.exception
	*e = robEntry{}
	r.head = (r.head + 1) % len(r.entries)
	r.count--
	return inst, exception, true
}

// SquashFrom discards every allocated entry from idx (inclusive) to the
// current tail, rewinding the ROB as if they had never been dispatched.
// Used on a branch misprediction or an earlier-instruction exception;
// the caller is responsible for also squashing any rename/reservation-
// station state for the same instruction range.
func (r *ROB) SquashFrom(idx int) {
	capacity := len(r.entries)
	for i := idx; i != r.tail; i = (i + 1) % capacity {
		r.entries[i] = robEntry{}
	}
	r.tail = idx
	r.count = (idx - r.head + capacity) % capacity
}
