// Package ooo implements the out-of-order core of spec.md §4.7: an
// arena-indexed reorder buffer, an age-ordered reservation station,
// fixed-latency execution units, and a physical-register
// wakeup network. The reservation station's ready-bitmap/dependency
// classification/issue-select pipeline is adapted from a bitmap
// Tomasulo scheduler (ComputeReadyBitmap / BuildDependencyMatrix /
// ClassifyPriority / SelectIssueBundle), generalized from a fixed
// 32-entry single-bank window addressed by architectural registers to
// an arbitrarily sized window addressed by the renamer's physical
// registers, with wakeup driven by execution completion instead of a
// same-cycle scoreboard recompute.
package ooo

import "math/bits"

// InstID is a monotonically increasing, wrapping instruction sequence
// number. Comparisons must go through Before/After rather than raw <,
// since the counter wraps.
type InstID uint64

// Before reports whether a precedes b in program order, tolerant of
// InstID wraparound, mirroring inst_later_than's signed-difference
// trick.
func (a InstID) Before(b InstID) bool {
	return int64(a-b) < 0
}

// PhysReg is a renamed physical register tag, shared with package rename.
type PhysReg uint16

// DispatchClass is which execution resource an instruction needs.
type DispatchClass uint8

const (
	ClassALU DispatchClass = iota
	ClassMem
	ClassFP
	ClassBranch
)

// Inst is one in-flight instruction as the OOO core tracks it, carrying
// just the fields scheduling and completion need; isa.Inst/the decoded
// operation itself is threaded through opaquely via Payload.
type Inst struct {
	ID      InstID
	PC      uint64
	Class   DispatchClass
	Dst     PhysReg
	HasDst  bool
	Src1    PhysReg
	HasSrc1 bool
	Src2    PhysReg
	HasSrc2 bool
	Latency int
	Payload any
}

// rsSlot is one reservation-station entry.
type rsSlot struct {
	valid      bool
	issued     bool
	inst       Inst
	src1Ready  bool
	src2Ready  bool
}

const rsCapacity = 64

// Scoreboard tracks physical-register readiness with a bitmap fast path
// for the common case (<=256 physical registers per bank); beyond that
// it falls back to a set, since a single uint256 bitmap stops being the
// cheap option.
type Scoreboard struct {
	bitmap [4]uint64 // 256 bits
	extra  map[PhysReg]bool
}

func (s *Scoreboard) IsReady(r PhysReg) bool {
	if int(r) < 256 {
		return s.bitmap[r/64]&(1<<(r%64)) != 0
	}
	return s.extra[r]
}

func (s *Scoreboard) MarkReady(r PhysReg) {
	if int(r) < 256 {
		s.bitmap[r/64] |= 1 << (r % 64)
		return
	}
	if s.extra == nil {
		s.extra = make(map[PhysReg]bool)
	}
	s.extra[r] = true
}

func (s *Scoreboard) MarkPending(r PhysReg) {
	if int(r) < 256 {
		s.bitmap[r/64] &^= 1 << (r % 64)
		return
	}
	delete(s.extra, r)
}

// wakeupMultimap links a producing physical register to the reservation
// station slots still waiting on it, so completion only re-checks the
// instructions that actually depend on it rather than the whole window.
type wakeupMultimap struct {
	waiters map[PhysReg][]int
}

func (w *wakeupMultimap) add(r PhysReg, slot int) {
	if w.waiters == nil {
		w.waiters = make(map[PhysReg][]int)
	}
	w.waiters[r] = append(w.waiters[r], slot)
}

func (w *wakeupMultimap) drain(r PhysReg) []int {
	s := w.waiters[r]
	delete(w.waiters, r)
	return s
}

// ReservationStation is an age-ordered issue window: every cycle it
// computes which valid, unissued slots have both sources ready
// (ComputeReadyBitmap's generalization) and selects up to width of them
// per tick, oldest instruction first. There is no separate priority tier.
type ReservationStation struct {
	slots   [rsCapacity]rsSlot
	score   Scoreboard
	wakeup  wakeupMultimap
	pending []Inst // dispatched but not yet admitted (backpressure buffer)
}

func NewReservationStation() *ReservationStation {
	return &ReservationStation{}
}

// Dispatch admits a freshly renamed instruction into the station,
// snapshotting source readiness from the scoreboard and registering
// wakeup interest for any source not yet ready. Returns false if the
// window is full (caller should stall dispatch).
func (rs *ReservationStation) Dispatch(in Inst) bool {
	slot := -1
	for i := range rs.slots {
		if !rs.slots[i].valid {
			slot = i
			break
		}
	}
	if slot == -1 {
		return false
	}
	s := rsSlot{valid: true, inst: in}
	s.src1Ready = !in.HasSrc1 || rs.score.IsReady(in.Src1)
	s.src2Ready = !in.HasSrc2 || rs.score.IsReady(in.Src2)
	rs.slots[slot] = s
	if in.HasSrc1 && !s.src1Ready {
		rs.wakeup.add(in.Src1, slot)
	}
	if in.HasSrc2 && !s.src2Ready {
		rs.wakeup.add(in.Src2, slot)
	}
	return true
}

// ComputeReadyBitmap returns which slots are valid, unissued, and have
// both sources ready, a parallel dependency check generalized from a
// fixed 32-wide window to this station's capacity.
func (rs *ReservationStation) ComputeReadyBitmap() uint64 {
	var ready uint64
	for i := range rs.slots {
		s := &rs.slots[i]
		if s.valid && !s.issued && s.src1Ready && s.src2Ready {
			ready |= 1 << uint(i)
		}
	}
	return ready
}

// SelectIssue picks up to width ready slots, oldest-first by InstID
// (slot index says nothing about age, since freed slots are reused by
// later dispatches). A two-tier ClassifyPriority/SelectIssueBundle split
// collapses to this single age-ordered scan because the window has no
// has-dependents classification of its own.
func (rs *ReservationStation) SelectIssue(width int) []int {
	ready := rs.ComputeReadyBitmap()
	var chosen []int
	for len(chosen) < width && ready != 0 {
		i := -1
		for r := ready; r != 0; r &= r - 1 {
			j := bits.TrailingZeros64(r)
			if i < 0 || rs.slots[j].inst.ID.Before(rs.slots[i].inst.ID) {
				i = j
			}
		}
		ready &^= 1 << uint(i)
		chosen = append(chosen, i)
		rs.slots[i].issued = true
	}
	return chosen
}

// SlotInst returns the instruction occupying a slot (valid only for
// indices returned by SelectIssue in the same tick).
func (rs *ReservationStation) SlotInst(slot int) Inst { return rs.slots[slot].inst }

// Retire frees a slot. internal/sim calls it as soon as the slot's
// instruction is handed to an EXU; Complete wakes dependents through the
// scoreboard and the wakeup multimap, not through the producer's slot.
func (rs *ReservationStation) Retire(slot int) {
	rs.slots[slot] = rsSlot{}
}

// Complete marks a destination register ready, wakes every waiting slot
// via the multimap, and flips their corresponding source-ready bit.
func (rs *ReservationStation) Complete(dst PhysReg) {
	rs.score.MarkReady(dst)
	for _, slot := range rs.wakeup.drain(dst) {
		s := &rs.slots[slot]
		if !s.valid {
			continue
		}
		if s.inst.HasSrc1 && s.inst.Src1 == dst {
			s.src1Ready = true
		}
		if s.inst.HasSrc2 && s.inst.Src2 == dst {
			s.src2Ready = true
		}
	}
}

// MarkPending clears a physical register's readiness, used when a
// checkpoint restore reintroduces a not-yet-produced register into the
// live set.
func (rs *ReservationStation) MarkPending(r PhysReg) { rs.score.MarkPending(r) }

// Occupancy reports how many slots are currently in use, exercised by
// internal/metrics.
func (rs *ReservationStation) Occupancy() int {
	n := 0
	for i := range rs.slots {
		if rs.slots[i].valid {
			n++
		}
	}
	return n
}
