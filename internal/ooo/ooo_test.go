package ooo

import (
	"testing"

	"github.com/suprax-sim/suprax/internal/errkind"
)

func TestReservationStationIssuesReadyInstFirst(t *testing.T) {
	rs := NewReservationStation()
	rs.score.MarkReady(1)
	rs.score.MarkReady(2)

	rs.Dispatch(Inst{ID: 1, HasSrc1: true, Src1: 1, HasSrc2: true, Src2: 2})
	rs.Dispatch(Inst{ID: 2, HasSrc1: true, Src1: 9}) // src1 not ready

	chosen := rs.SelectIssue(4)
	if len(chosen) != 1 {
		t.Fatalf("expected exactly one ready instruction, got %d", len(chosen))
	}
	if rs.SlotInst(chosen[0]).ID != 1 {
		t.Fatalf("expected inst 1 to issue, got %+v", rs.SlotInst(chosen[0]))
	}
}

func TestReservationStationWakeupOnComplete(t *testing.T) {
	rs := NewReservationStation()
	rs.Dispatch(Inst{ID: 5, HasSrc1: true, Src1: 7})
	if len(rs.SelectIssue(4)) != 0 {
		t.Fatalf("should not be issuable before src1 is ready")
	}
	rs.Complete(7)
	chosen := rs.SelectIssue(4)
	if len(chosen) != 1 {
		t.Fatalf("expected instruction to become issuable after wakeup, got %d ready", len(chosen))
	}
}

func TestReservationStationDispatchFailsWhenFull(t *testing.T) {
	rs := NewReservationStation()
	for i := 0; i < rsCapacity; i++ {
		if !rs.Dispatch(Inst{ID: InstID(i)}) {
			t.Fatalf("dispatch %d should have succeeded", i)
		}
	}
	if rs.Dispatch(Inst{ID: 999}) {
		t.Fatalf("dispatch should fail once the window is full")
	}
}

func TestInstIDBeforeToleratesWraparound(t *testing.T) {
	a := InstID(0)
	b := InstID(^uint64(0)) // one less than a, having wrapped
	if !b.Before(a) {
		t.Fatalf("expected wrapped id to compare as before")
	}
}

func TestROBCommitsInOrder(t *testing.T) {
	rob := NewROB(4)
	i0 := rob.Allocate(Inst{ID: 0})
	i1 := rob.Allocate(Inst{ID: 1})

	rob.Complete(i1, errkind.Success)
	if _, _, ok := rob.CommitHead(); ok {
		t.Fatalf("commit should stall until the older instruction finishes")
	}

	rob.Complete(i0, errkind.Success)
	inst, exc, ok := rob.CommitHead()
	if !ok || inst.ID != 0 || exc != errkind.Success {
		t.Fatalf("expected inst 0 to commit first, got inst=%+v exc=%v ok=%v", inst, exc, ok)
	}
	inst, _, ok = rob.CommitHead()
	if !ok || inst.ID != 1 {
		t.Fatalf("expected inst 1 to commit second, got %+v ok=%v", inst, ok)
	}
}

func TestROBSquashFromDiscardsYoungerEntries(t *testing.T) {
	rob := NewROB(4)
	rob.Allocate(Inst{ID: 0})
	squashIdx := rob.Allocate(Inst{ID: 1})
	rob.Allocate(Inst{ID: 2})

	rob.SquashFrom(squashIdx)
	if rob.Count() != 1 {
		t.Fatalf("expected only the pre-squash entry to remain, got count=%d", rob.Count())
	}
}

func TestEXUFixedLatency(t *testing.T) {
	e := NewEXU()
	ok := e.Dispatch(3, Inst{ID: 42}, 2, func(Inst) errkind.Kind { return errkind.Success })
	if !ok {
		t.Fatalf("dispatch should succeed on an idle EXU")
	}
	e.OnCurrentTick()
	if res := e.ApplyNextTick(); res != nil {
		t.Fatalf("should not complete before latency elapses, got %+v", res)
	}
	e.OnCurrentTick()
	res := e.ApplyNextTick()
	if res == nil || res.ROBIndex != 3 {
		t.Fatalf("expected completion after 2 ticks, got %+v", res)
	}
}

func TestEXUBusyRejectsSecondDispatch(t *testing.T) {
	e := NewEXU()
	e.Dispatch(0, Inst{ID: 1}, 3, nil)
	if e.Dispatch(1, Inst{ID: 2}, 1, nil) {
		t.Fatalf("a busy EXU should reject a second dispatch")
	}
}
