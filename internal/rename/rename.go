// Package rename implements the integer and floating-point register
// renaming tables of spec.md §4.6: each virtual (architectural) register
// maps to a physical register from a free list; the mapping displaced by
// a fresh rename is retained as "stale" and only returned to the free
// list once the renaming instruction commits. A full-map checkpoint
// (Snapshot) can be restored in one step (Restore); internal/sim's core
// does not take checkpoints, at branch dispatch or elsewhere. This generalizes a single flat register-alias table with no
// physical register file or checkpoint/restore of its own into the two
// banks and two recovery paths this design needs.
package rename

// PhysReg is a physical register tag; 0 is reserved as "always zero" for
// the integer bank, matching RISC-V x0.
type PhysReg uint16

// VirtReg is an architectural register index (0-31 for both banks).
type VirtReg uint8

const NumVirtRegs = 32

// Params sizes one rename unit's physical register file.
type Params struct {
	NumPhysRegs int
}

// staleEntry remembers the physical register an instruction's rename
// displaced, so it can be freed once that instruction commits (not
// before: an earlier in-flight reader may still need it).
type staleEntry struct {
	virt VirtReg
	phys PhysReg
}

// Unit is one rename table (callers instantiate one for integer
// registers and one for floating-point).
type Unit struct {
	numPhys int
	rat     [NumVirtRegs]PhysReg
	free    []PhysReg
	stale   map[uint64]staleEntry // keyed by the renaming instruction's id
}

// New builds a rename unit with numPhys physical registers, the first
// NumVirtRegs of which start pre-mapped 1:1 to the architectural
// registers (a reset-to-identity RAT init) and the remainder seeded onto
// the free list.
func New(p Params) *Unit {
	if p.NumPhysRegs <= NumVirtRegs {
		p.NumPhysRegs = NumVirtRegs * 4
	}
	u := &Unit{numPhys: p.NumPhysRegs, stale: make(map[uint64]staleEntry)}
	for i := 0; i < NumVirtRegs; i++ {
		u.rat[i] = PhysReg(i)
	}
	for i := NumVirtRegs; i < p.NumPhysRegs; i++ {
		u.free = append(u.free, PhysReg(i))
	}
	return u
}

// Lookup returns the physical register currently backing a virtual
// register, for reading a source operand.
func (u *Unit) Lookup(v VirtReg) PhysReg { return u.rat[v] }

// Rename allocates a fresh physical register for dst, remembers the
// displaced mapping under instID so it can be recycled at commit, and
// returns the new physical register. Returns ok=false if the free list
// is exhausted (the caller should stall dispatch).
func (u *Unit) Rename(instID uint64, dst VirtReg) (PhysReg, bool) {
	if len(u.free) == 0 {
		return 0, false
	}
	n := len(u.free) - 1
	newPhys := u.free[n]
	u.free = u.free[:n]

	old := u.rat[dst]
	u.rat[dst] = newPhys
	u.stale[instID] = staleEntry{virt: dst, phys: old}
	return newPhys, true
}

// Commit releases the physical register an instruction's rename
// displaced, returning it to the free list. No-op for instructions that
// never renamed a destination.
func (u *Unit) Commit(instID uint64) {
	e, ok := u.stale[instID]
	if !ok {
		return
	}
	delete(u.stale, instID)
	u.free = append(u.free, e.phys)
}

// Squash discards a pending rename without ever committing it, so a
// later Commit will not free the mapping it displaced. It neither rolls
// back the RAT nor returns the register the rename allocated to the free
// list; a checkpoint Restore does both.
func (u *Unit) Squash(instID uint64) {
	delete(u.stale, instID)
}

// Checkpoint is a full copy of the rename table and free-list state, so
// recovery is one Restore call instead of per-entry undo.
type Checkpoint struct {
	rat  [NumVirtRegs]PhysReg
	free []PhysReg
}

// Snapshot captures a checkpoint of the current map.
func (u *Unit) Snapshot() Checkpoint {
	free := make([]PhysReg, len(u.free))
	copy(free, u.free)
	return Checkpoint{rat: u.rat, free: free}
}

// Restore rewinds to a previously captured checkpoint. Physical
// registers allocated by instructions after the checkpoint (and now
// squashed) are implicitly reclaimed because the free list itself is
// restored wholesale.
func (u *Unit) Restore(c Checkpoint) {
	u.rat = c.rat
	u.free = make([]PhysReg, len(c.free))
	copy(u.free, c.free)
}

// FreeCount reports how many physical registers are currently
// unallocated, exercised by internal/metrics.
func (u *Unit) FreeCount() int { return len(u.free) }
