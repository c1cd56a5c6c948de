// Package simtest provides minimal fake implementations of internal/sim's
// collaborator interfaces (Translator, DeviceMemory, SystemHandler,
// CPUControl) for driving a Core end-to-end in tests without a real MMU,
// boot ROM, or trap handler.
package simtest

import "github.com/suprax-sim/suprax/internal/errkind"

// IdentityTranslator performs no address translation; every virtual
// address maps to the identical physical address.
type IdentityTranslator struct{}

func (IdentityTranslator) Translate(virt uint64, forWrite bool) (uint64, errkind.Kind) {
	return virt, errkind.Success
}

// ROM is a fixed-size, fixed-base instruction memory a Core fetches from
// before its L1/bus path is exercised, standing in for a boot ROM or
// preloaded instruction image.
type ROM struct {
	Base  uint64
	Words []uint32
}

func (r *ROM) Contains(addr uint64) bool {
	if addr < r.Base {
		return false
	}
	idx := (addr - r.Base) / 4
	return idx < uint64(len(r.Words))
}

func (r *ROM) FetchWord(addr uint64) (uint32, errkind.Kind) {
	if !r.Contains(addr) {
		return 0, errkind.InvalidPC
	}
	return r.Words[(addr-r.Base)/4], errkind.Success
}

// RecordingHandler remembers every trap it was asked to handle, and
// always resumes at ResumePC, halting the core when Halt is set.
type RecordingHandler struct {
	ResumePC uint64
	Halt     bool
	Traps    []TrapCall
}

type TrapCall struct {
	Core  int
	PC    uint64
	Cause errkind.Kind
}

func (h *RecordingHandler) HandleTrap(core int, pc uint64, cause errkind.Kind) (uint64, bool) {
	h.Traps = append(h.Traps, TrapCall{Core: core, PC: pc, Cause: cause})
	return h.ResumePC, h.Halt
}

// NeverHalt reports every core as always runnable.
type NeverHalt struct{}

func (NeverHalt) Halted(core int) bool { return false }
