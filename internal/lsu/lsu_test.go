package lsu

import (
	"testing"

	"github.com/suprax-sim/suprax/internal/errkind"
)

type fakeCache struct {
	mem    [256]byte
	loadKs []errkind.Kind // queued kinds to return, success if empty
}

func (c *fakeCache) nextKind() errkind.Kind {
	if len(c.loadKs) == 0 {
		return errkind.Success
	}
	k := c.loadKs[0]
	c.loadKs = c.loadKs[1:]
	return k
}

func (c *fakeCache) Load(addr uint64, length uint32, out []byte) errkind.Kind {
	if k := c.nextKind(); k != errkind.Success {
		return k
	}
	copy(out, c.mem[addr:addr+uint64(length)])
	return errkind.Success
}

func (c *fakeCache) Store(addr uint64, length uint32, data []byte) errkind.Kind {
	copy(c.mem[addr:addr+uint64(length)], data)
	return errkind.Success
}

func (c *fakeCache) LoadReserved(addr uint64, length uint32, out []byte) errkind.Kind {
	return c.Load(addr, length, out)
}

func (c *fakeCache) StoreConditional(addr uint64, length uint32, data []byte) errkind.Kind {
	return c.Store(addr, length, data)
}

func TestLoadForwardsFromUncommittedStore(t *testing.T) {
	cache := &fakeCache{}
	u := New(cache)

	u.DispatchStore(1, 0x10, []byte{0xAA, 0xBB, 0xCC, 0xDD})
	e, k := u.DispatchLoad(2, 0x10, 4)
	if k != errkind.Success {
		t.Fatalf("unexpected error kind %v", k)
	}
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	for i := range want {
		if e.Bytes()[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, e.Bytes()[i], want[i])
		}
	}
}

func TestLoadFallsBackToCacheForUncoveredBytes(t *testing.T) {
	cache := &fakeCache{}
	cache.mem[0x20] = 0x11
	cache.mem[0x21] = 0x22
	u := New(cache)

	// store only covers the first byte
	u.DispatchStore(1, 0x20, []byte{0x99})
	e, k := u.DispatchLoad(2, 0x20, 2)
	if k != errkind.Success {
		t.Fatalf("unexpected error kind %v", k)
	}
	if e.Bytes()[0] != 0x99 {
		t.Fatalf("expected bypass byte 0x99, got %#x", e.Bytes()[0])
	}
	if e.Bytes()[1] != 0x22 {
		t.Fatalf("expected cache byte 0x22, got %#x", e.Bytes()[1])
	}
}

func TestCommitStoreMovesBypassAndFillsStoreBuffer(t *testing.T) {
	cache := &fakeCache{}
	u := New(cache)
	u.DispatchStore(1, 0x30, []byte{0x7E})
	if k := u.CommitStore(1); k != errkind.Success {
		t.Fatalf("commit store failed: %v", k)
	}
	if len(u.uncommittedBypass[lineOf(0x30)]) != 0 {
		t.Fatalf("expected uncommitted bypass entry to move")
	}
	if len(u.committedBypass[lineOf(0x30)]) != 1 {
		t.Fatalf("expected committed bypass entry")
	}
	u.OnCurrentTick()
	if cache.mem[0x30] != 0x7E {
		t.Fatalf("expected store buffer to flush to cache, got %#x", cache.mem[0x30])
	}
}

func TestCommitLoadDetectsOrderingViolation(t *testing.T) {
	cache := &fakeCache{}
	u := New(cache)
	_, _ = u.DispatchLoad(1, 0x40, 4)
	k := u.CommitLoad(1, func(addr uint64, length uint32) bool { return true })
	if k != errkind.SLReorder {
		t.Fatalf("expected SLReorder, got %v", k)
	}
	if u.Violations() != 1 {
		t.Fatalf("expected violation counter to increment")
	}
}

func TestCommitLoadSucceedsWithoutViolation(t *testing.T) {
	cache := &fakeCache{}
	u := New(cache)
	_, _ = u.DispatchLoad(1, 0x40, 4)
	k := u.CommitLoad(1, func(addr uint64, length uint32) bool { return false })
	if k != errkind.Success {
		t.Fatalf("unexpected kind %v", k)
	}
}

func TestAMOStateMachineRunsToCompletion(t *testing.T) {
	cache := &fakeCache{}
	cache.mem[0x50] = 5
	u := New(cache)
	combine := func(old, operand []byte) []byte { return []byte{old[0] + operand[0]} }

	var done bool
	var result errkind.Kind
	for i := 0; i < 10 && !done; i++ {
		done, _, result = u.CommitAMO(1, 0x50, []byte{3}, combine)
	}
	if !done {
		t.Fatalf("AMO state machine did not finish in time")
	}
	if result != errkind.Success {
		t.Fatalf("unexpected AMO result %v", result)
	}
	if cache.mem[0x50] != 8 {
		t.Fatalf("expected combined value 8, got %d", cache.mem[0x50])
	}
}
