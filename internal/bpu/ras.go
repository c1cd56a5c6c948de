package bpu

// RAS sizing, ported from xsbpu's ras_ps_size/ras_cs_size.
const (
	rasPredStackSize      = 32
	rasCommittedStackSize = 16
)

// RASSnapshot captures the four pointers needed to checkpoint and restore
// RAS state around a speculative call/return: bos is the predicted stack's
// "base of speculative" marker, tosr/tosw are the prediction stack's
// read/write cursors, and ssp is the committed stack's pointer.
type RASSnapshot struct {
	Bos  uint32
	Tosr uint32
	Tosw uint32
	Ssp  uint32
}

type rasPSEntry struct {
	Target uint64
	Next   uint32
}

type rasCSEntry struct {
	Target uint64
}

// RAS is the split speculative/committed return-address-stack predictor:
// speculative calls push onto a chained prediction stack (ras_ps) so
// mispredicted callers can be unwound without disturbing committed state;
// commit_ras_call promotes the predicted entry into the circular committed
// stack (ras_cs), which backs pred_ras_ret once the prediction stack has
// been unwound past it.
type RAS struct {
	ps  [rasPredStackSize]rasPSEntry
	cs  [rasCommittedStackSize]rasCSEntry
	Bos uint32
	Tosr uint32
	Tosw uint32
	Ssp uint32
}

// Snapshot captures the RAS pointers for later restore.
func (r *RAS) Snapshot() RASSnapshot {
	return RASSnapshot{Bos: r.Bos, Tosr: r.Tosr, Tosw: r.Tosw, Ssp: r.Ssp}
}

// Restore rewinds the RAS to a previously captured pointer set, on
// misprediction redirect.
func (r *RAS) Restore(s RASSnapshot) {
	r.Bos, r.Tosr, r.Tosw, r.Ssp = s.Bos, s.Tosr, s.Tosw, s.Ssp
}

// PredictedCall pushes a speculative return address, to be used as the
// predicted next-PC when the matching return retires the RAS.
func (r *RAS) PredictedCall(nextPC uint64) {
	r.Tosw = (r.Tosw + 1) % rasPredStackSize
	newptr := r.Tosw
	r.ps[newptr] = rasPSEntry{Target: nextPC, Next: r.Tosr}
	r.Tosr = newptr
}

// PredictedReturn pops the current speculative top, falling back to the
// committed stack once the prediction stack has been fully unwound.
func (r *RAS) PredictedReturn() uint64 {
	if r.Bos == r.Tosr {
		ret := r.cs[r.Ssp].Target
		if r.Ssp == 0 {
			r.Ssp = rasCommittedStackSize - 1
		} else {
			r.Ssp--
		}
		return ret
	}
	ret := r.ps[r.Tosr].Target
	r.Tosr = r.ps[r.Tosr].Next
	return ret
}

// CommitCall promotes the call predicted under snapshot s into the
// committed stack once it retires.
func (r *RAS) CommitCall(s RASSnapshot) {
	pos := (s.Tosw + 1) % rasPredStackSize
	r.Bos = pos
	r.Ssp = (r.Ssp + 1) % rasCommittedStackSize
	r.cs[r.Ssp] = rasCSEntry{Target: r.ps[pos].Target}
	r.ps[pos].Next = pos // break the chain so a stale tosr can't walk through it
}

// CommitReturn retires a return whose actual target matches the committed
// top, popping it.
func (r *RAS) CommitReturn(nextPC uint64) {
	if r.cs[r.Ssp].Target == nextPC {
		if r.Ssp == 0 {
			r.Ssp = rasCommittedStackSize - 1
		} else {
			r.Ssp--
		}
	}
}
