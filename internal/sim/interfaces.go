// Package sim wires every component package into one ticking Core: the
// two-phase OnCurrentTick/ApplyNextTick discipline, in the fixed stage
// order spec.md §5 specifies (fetch, decode, rename, dispatch, issue,
// execute, writeback, commit), driving internal/bpu, internal/rename,
// internal/isa, internal/alu, internal/ooo, internal/lsu, and
// internal/cache against a shared internal/bus, generalized from a
// single flat cycle method mixing fetch/dispatch/issue/execute/
// writeback into the full two-phase, multi-stage pipeline this design
// needs.
package sim

import "github.com/suprax-sim/suprax/internal/errkind"

// Translator resolves a virtual fetch/load/store address to a physical
// one, standing in for a TLB/page table walker the core treats as an
// external collaborator (never modeled in detail, per spec.md's
// Non-goals).
type Translator interface {
	Translate(virt uint64, forWrite bool) (phys uint64, kind errkind.Kind)
}

// DeviceMemory serves fetch requests for addresses outside ordinary
// cached DRAM (e.g. boot ROM, MMIO), again an external collaborator the
// Core defers to rather than modeling itself.
type DeviceMemory interface {
	// Contains reports whether addr is this device's address range.
	Contains(addr uint64) bool
	FetchWord(addr uint64) (raw32 uint32, kind errkind.Kind)
}

// SystemHandler is invoked on commit when an instruction raises an
// architectural exception (ECALL, EBREAK, page fault, illegal
// instruction, ...). It decides where the core resumes (e.g. a trap
// vector) or whether to halt.
type SystemHandler interface {
	HandleTrap(core int, pc uint64, cause errkind.Kind) (resumePC uint64, halt bool)
}

// CPUControl lets an external controller pause a core -- the
// simulator's equivalent of a debug harness poking at the CPU from
// outside the clock domain the rest of the Core lives in. A core whose
// Halted reports true skips both tick phases; there is no reset or
// redirect call.
type CPUControl interface {
	Halted(core int) bool
}
