package bpu

import "github.com/sirupsen/logrus"

// Unit is the whole three-stage branch prediction pipeline of spec.md
// §4.5: S1's uBTB gives a same-cycle redirect guess, S2 runs the full
// FTB+TAGE+SC+ITTAGE+RAS ensemble, and S3 (CrossCheck) compares the two
// and signals a fetch redirect if S1 already committed to the wrong PC.
type Unit struct {
	UBTB   *UBTB
	FTB    *FTB
	Tage   *TAGE
	SC     *SC
	ITTage *ITTAGE
	RAS    *RAS
	Hist   BrHist

	log *logrus.Entry
}

// NewUnit builds a fresh BPU with all sub-predictors cold.
func NewUnit() *Unit {
	return &Unit{
		UBTB:   &UBTB{},
		FTB:    &FTB{},
		Tage:   NewTAGE(),
		SC:     NewSC(),
		ITTage: NewITTAGE(),
		RAS:    &RAS{},
		log:    logrus.WithField("component", "bpu"),
	}
}

// S1Result is the uBTB's same-cycle guess.
type S1Result struct {
	Hit         bool
	PredictedPC uint64
}

// PredictS1 runs the fast redirect stage.
func (u *Unit) PredictS1(pc, ftLen uint64) S1Result {
	hit, predicted := u.UBTB.Lookup(pc, ftLen)
	return S1Result{Hit: hit, PredictedPC: predicted}
}

// BranchOutcome is one conditional branch's S2 prediction, carried
// forward so Update can train the providing table once the real outcome
// is known at commit.
type BranchOutcome struct {
	InstOffset uint16
	Taken      bool
	Target     uint64
	Tage       TagePrediction
}

// S2Result is the full-ensemble prediction for one fetch package.
type S2Result struct {
	FTBHit    bool
	Entry     FTBEntry
	Branches  []BranchOutcome
	Indirect  ITTagePrediction
	NextPC    uint64
	HistSnap  BrHist
	RASSnap   RASSnapshot
	UsedRAS   bool
}

// PredictS2 runs the authoritative ensemble for a fetch package starting
// at pc. It snapshots history and RAS state before speculatively
// mutating either, so a later misprediction can restore exactly this
// point.
func (u *Unit) PredictS2(pc uint64, ftLen uint64) S2Result {
	res := S2Result{HistSnap: u.Hist.Snapshot(), RASSnap: u.RAS.Snapshot()}

	entry, hit := u.FTB.Lookup(pc)
	res.FTBHit = hit
	res.Entry = entry
	if !hit {
		res.NextPC = pc + ftLen
		return res
	}

	for _, br := range entry.Branches {
		brPC := entry.StartPC + uint64(br.InstOffset)
		tagePred := u.Tage.Predict(brPC, &u.Hist)
		taken := u.SC.Correct(brPC, &u.Hist, tagePred)
		target := uint64(int64(brPC) + int64(br.JmpOffset))
		u.Hist.Push(taken)
		res.Branches = append(res.Branches, BranchOutcome{InstOffset: br.InstOffset, Taken: taken, Target: target, Tage: tagePred})
		if taken {
			res.NextPC = target
			return res
		}
	}

	switch entry.Jmp {
	case JmpCall:
		res.NextPC = entry.JmpTarget
		u.RAS.PredictedCall(entry.EndPC)
		res.UsedRAS = true
	case JmpRet:
		res.NextPC = u.RAS.PredictedReturn()
		res.UsedRAS = true
	case JmpJAL:
		res.NextPC = entry.JmpTarget
	case JmpJALR:
		pred := u.ITTage.Predict(entry.EndPC, &u.Hist)
		res.Indirect = pred
		if pred.Hit {
			res.NextPC = pred.Target
		} else {
			res.NextPC = entry.JmpTarget
		}
	default:
		res.NextPC = entry.EndPC
	}
	return res
}

// CrossCheck is S3: it reports whether S1's guess disagrees with the
// authoritative S2 result and returns S2's PC for fetch to follow. It
// does not retrain S1; the uBTB is trained only by CommitBranch.
func (u *Unit) CrossCheck(pc uint64, s1 S1Result, s2 S2Result) (redirect bool, correctPC uint64) {
	if s1.PredictedPC != s2.NextPC {
		return true, s2.NextPC
	}
	return false, s2.NextPC
}

// Redirect restores history and RAS state to a previously captured
// snapshot, on a pipeline flush triggered by a later misprediction
// (e.g. from execute finding a taken branch the BPU called not-taken).
func (u *Unit) Redirect(hist BrHist, ras RASSnapshot) {
	u.Hist.Restore(hist)
	u.RAS.Restore(ras)
}

// CommitBranch trains TAGE/SC/uBTB with a conditional branch's real
// outcome once it reaches commit.
func (u *Unit) CommitBranch(pc uint64, taken bool, target uint64, provider TagePrediction) {
	u.Tage.Update(pc, &u.Hist, taken, provider.Provider)
	u.SC.Update(pc, &u.Hist, taken, provider)
	u.UBTB.Update(pc, taken, target)
}

// CommitIndirect trains ITTAGE with a resolved indirect jump's actual
// target.
func (u *Unit) CommitIndirect(pc uint64, target uint64, pred ITTagePrediction) {
	u.ITTage.Update(pc, &u.Hist, target, pred)
}

// CommitCall promotes a predicted call's return address into the RAS's
// committed stack.
func (u *Unit) CommitCall(snap RASSnapshot) { u.RAS.CommitCall(snap) }

// CommitReturn retires a return against the committed stack.
func (u *Unit) CommitReturn(target uint64) { u.RAS.CommitReturn(target) }

// LearnShape records the fetch package shape (branch offsets, terminating
// jump kind/target) the fetch stage actually observed, so later lookups
// at this PC hit the FTB.
func (u *Unit) LearnShape(e FTBEntry) { u.FTB.Update(e) }
