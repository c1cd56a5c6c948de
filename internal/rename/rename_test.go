package rename

import "testing"

func TestRenameThenCommitRecyclesStale(t *testing.T) {
	u := New(Params{NumPhysRegs: 40})
	before := u.FreeCount()

	oldPhys := u.Lookup(5)
	newPhys, ok := u.Rename(100, 5)
	if !ok {
		t.Fatalf("rename should have succeeded")
	}
	if newPhys == oldPhys {
		t.Fatalf("rename should allocate a distinct physical register")
	}
	if u.Lookup(5) != newPhys {
		t.Fatalf("RAT should now point at the new physical register")
	}
	if u.FreeCount() != before-1 {
		t.Fatalf("free list should have shrunk by one")
	}

	u.Commit(100)
	if u.FreeCount() != before {
		t.Fatalf("commit should return the displaced register to the free list")
	}
}

func TestSquashDiscardsRenameWithoutRecyclingOldMapping(t *testing.T) {
	u := New(Params{NumPhysRegs: 40})
	newPhys, _ := u.Rename(200, 7)
	u.Squash(200)
	// The RAT entry is left pointing at the squashed rename's physical
	// register; it is the checkpoint restore's job (not Squash's) to
	// undo the RAT mutation itself.
	if u.Lookup(7) != newPhys {
		t.Fatalf("squash should not itself roll back the RAT mapping")
	}
}

func TestCheckpointRestoreUndoesSpeculativeRenames(t *testing.T) {
	u := New(Params{NumPhysRegs: 40})
	snap := u.Snapshot()
	orig := u.Lookup(3)

	u.Rename(300, 3)
	u.Rename(301, 3)
	if u.Lookup(3) == orig {
		t.Fatalf("renames should have changed the mapping")
	}

	u.Restore(snap)
	if u.Lookup(3) != orig {
		t.Fatalf("restore should undo speculative renames")
	}
	if u.FreeCount() != len(snap.free) {
		t.Fatalf("restore should also undo free-list consumption")
	}
}

func TestRenameFailsWhenFreeListExhausted(t *testing.T) {
	u := New(Params{NumPhysRegs: NumVirtRegs + 1})
	if _, ok := u.Rename(1, 0); !ok {
		t.Fatalf("first rename should succeed")
	}
	if _, ok := u.Rename(2, 1); ok {
		t.Fatalf("rename should fail once the free list is exhausted")
	}
}
