package sim

import "github.com/suprax-sim/suprax/internal/errkind"

// HaltOnTrap is the simplest SystemHandler: any architectural exception
// halts the offending core in place, useful for a CLI front-end that
// just wants to run a program to completion (or to its first fault)
// without a real trap vector to resume into.
type HaltOnTrap struct{}

func (HaltOnTrap) HandleTrap(core int, pc uint64, cause errkind.Kind) (uint64, bool) {
	return pc, true
}

// AlwaysRunning reports every core as runnable, for a front-end with no
// external debug harness pausing cores.
type AlwaysRunning struct{}

func (AlwaysRunning) Halted(core int) bool { return false }
