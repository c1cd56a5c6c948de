package bpu

// JmpKind classifies the terminating control-flow instruction of a fetch
// package, mirroring FetchPackJmp from the original design.
type JmpKind uint8

const (
	JmpNormal JmpKind = iota
	JmpJAL
	JmpJALR
	JmpCall
	JmpRet
)

// FTBBranch records one conditional branch within a fetch package: its
// byte offset from the package start and its statically-known target
// offset (for a relative branch, filled in at decode/pre-decode time).
type FTBBranch struct {
	InstOffset uint16
	JmpOffset  int32
}

// FTBEntry is the Fetch Target Buffer's per-package shape record: where
// the package starts and ends, which branches it contains, and how it
// terminates.
type FTBEntry struct {
	Valid    bool
	StartPC  uint64
	EndPC    uint64
	Branches []FTBBranch
	Jmp      JmpKind
	JmpTarget uint64
}

const (
	FTBSets = 512
	FTBWays = 4
)

// FTB is a set-associative fetch-target buffer, one entry per fetch
// package previously seen starting at a given PC.
type FTB struct {
	sets [FTBSets][FTBWays]FTBEntry
	lru  [FTBSets][FTBWays]uint8
}

func ftbSet(pc uint64) uint64 { return (pc >> 4) % FTBSets }

// Lookup finds the entry (if any) for a fetch package starting at pc.
func (f *FTB) Lookup(pc uint64) (FTBEntry, bool) {
	set := &f.sets[ftbSet(pc)]
	for i := range set {
		if set[i].Valid && set[i].StartPC == pc {
			return set[i], true
		}
	}
	return FTBEntry{}, false
}

// Update records (or replaces, LRU) the shape of a fetch package that was
// actually fetched and pre-decoded.
func (f *FTB) Update(e FTBEntry) {
	idx := ftbSet(e.StartPC)
	set := &f.sets[idx]
	for i := range set {
		if set[i].Valid && set[i].StartPC == e.StartPC {
			set[i] = e
			f.touch(idx, i)
			return
		}
	}
	victim := 0
	maxLRU := uint8(0)
	for i := range set {
		if !set[i].Valid {
			victim = i
			break
		}
		if f.lru[idx][i] > maxLRU {
			maxLRU = f.lru[idx][i]
			victim = i
		}
	}
	set[victim] = e
	f.touch(idx, victim)
}

func (f *FTB) touch(set uint64, way int) {
	for i := range f.lru[set] {
		if f.lru[set][i] < 255 {
			f.lru[set][i]++
		}
	}
	f.lru[set][way] = 0
}
