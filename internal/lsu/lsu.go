// Package lsu implements the load/store unit of spec.md §4.8: a load
// queue and store queue addressed by cache line index, uncommitted and
// committed store-to-load bypass tables, a write-combined committed
// store buffer, load/store ordering-violation detection triggering a
// squash-and-refire, and an atomic-memory-operation state machine. The
// queue/bypass-table shapes are grounded on xslsu.h's LDQEntry/STByPass/
// StoreBufEntry and the AMOState machine; the two-phase tick and
// error-kind conventions are adapted from internal/cache.
package lsu

import "github.com/suprax-sim/suprax/internal/errkind"

const cacheLineBytes = 64

// LineIndex is a cache-line-granular address, matching coherence.LineIndex.
type LineIndex uint64

func lineOf(addr uint64) LineIndex { return LineIndex(addr / cacheLineBytes) }
func offsetOf(addr uint64) uint32  { return uint32(addr % cacheLineBytes) }

// storeBypass is one committed-or-uncommitted store's forwardable bytes,
// kept ordered by instruction id within a line so a later load sees the
// most recent prior store that covers its bytes.
type storeBypass struct {
	instID uint64
	offset uint32
	length uint32
	data   []byte
}

// LDQEntry is one outstanding load, tracking which bytes have been
// filled (from cache or bypass) so a load that straddles a store still
// in flight can complete incrementally.
type LDQEntry struct {
	InstID uint64
	Addr   uint64
	Length uint32
	data   []byte
	valid  []bool
	fired  bool
}

func (e *LDQEntry) complete() bool {
	for _, v := range e.valid {
		if !v {
			return false
		}
	}
	return true
}

// Bytes returns the load's filled data once Complete is true.
func (e *LDQEntry) Bytes() []byte { return e.data }

// STQEntry is one outstanding store awaiting commit.
type STQEntry struct {
	InstID   uint64
	Addr     uint64
	Length   uint32
	Data     []byte
	Retired  bool
}

// storeBufEntry is a write-combined, line-granular pending write to the
// cache: one valid bit per byte (StoreBufEntry's linebuf/valid pair),
// merging multiple committed stores to the same line before the cache
// ever sees a request.
type storeBufEntry struct {
	line  LineIndex
	bytes [cacheLineBytes]byte
	valid [cacheLineBytes]bool
}

func (e *storeBufEntry) anyValid() bool {
	for _, v := range e.valid {
		if v {
			return true
		}
	}
	return false
}

// CacheClient is the subset of cache.Client the LSU needs; kept as an
// interface so tests can substitute a fake without wiring a real bus.
type CacheClient interface {
	Load(addr uint64, length uint32, out []byte) errkind.Kind
	Store(addr uint64, length uint32, data []byte) errkind.Kind
	LoadReserved(addr uint64, length uint32, out []byte) errkind.Kind
	StoreConditional(addr uint64, length uint32, data []byte) errkind.Kind
}

// Unit is one core's load/store unit.
type Unit struct {
	cache CacheClient

	loadQueue  map[LineIndex][]*LDQEntry
	storeQueue []*STQEntry

	uncommittedBypass map[LineIndex][]storeBypass
	committedBypass   map[LineIndex][]storeBypass

	storeBuf map[LineIndex]*storeBufEntry

	amo amoState

	violations uint64
}

func New(cache CacheClient) *Unit {
	return &Unit{
		cache:             cache,
		loadQueue:         make(map[LineIndex][]*LDQEntry),
		uncommittedBypass: make(map[LineIndex][]storeBypass),
		committedBypass:   make(map[LineIndex][]storeBypass),
		storeBuf:          make(map[LineIndex]*storeBufEntry),
	}
}

// Violations reports how many ordering violations have been detected.
func (u *Unit) Violations() uint64 { return u.violations }

// DispatchStore admits a store into the store queue and publishes it to
// the uncommitted bypass table in the same step, mirroring xslsu.h's
// comment that a store is sent to st_bypass the instant it enters the
// queue, not at commit.
func (u *Unit) DispatchStore(instID, addr uint64, data []byte) {
	e := &STQEntry{InstID: instID, Addr: addr, Length: uint32(len(data)), Data: append([]byte(nil), data...)}
	u.storeQueue = append(u.storeQueue, e)

	line := lineOf(addr)
	u.uncommittedBypass[line] = append(u.uncommittedBypass[line], storeBypass{
		instID: instID, offset: offsetOf(addr), length: uint32(len(data)), data: e.Data,
	})
}

// DispatchLoad admits a load, forwarding from the committed and then the
// uncommitted bypass table (so the newer uncommitted bytes win) before
// falling back to the cache for any bytes neither table covers.
func (u *Unit) DispatchLoad(instID, addr uint64, length uint32) (*LDQEntry, errkind.Kind) {
	e := &LDQEntry{InstID: instID, Addr: addr, Length: length, data: make([]byte, length), valid: make([]bool, length)}

	line := lineOf(addr)
	u.forwardFrom(u.committedBypass[line], addr, e)
	u.forwardFrom(u.uncommittedBypass[line], addr, e)

	if !e.complete() {
		buf := make([]byte, length)
		if k := u.cache.Load(addr, length, buf); k != errkind.Success {
			return e, k
		}
		for i := range e.valid {
			if !e.valid[i] {
				e.data[i] = buf[i]
				e.valid[i] = true
			}
		}
	}
	e.fired = true
	u.loadQueue[line] = append(u.loadQueue[line], e)
	return e, errkind.Success
}

// forwardFrom applies every bypass entry on a line from a store older
// than the load, oldest first, that overlaps [addr, addr+len) into e's
// byte array, matching _do_store_bypass's per-byte overwrite semantics (a
// later store in the list always wins over an earlier one for the bytes
// it covers).
func (u *Unit) forwardFrom(entries []storeBypass, addr uint64, e *LDQEntry) {
	lineBase := (addr / cacheLineBytes) * cacheLineBytes
	loadOff := addr - lineBase
	for _, sb := range entries {
		if int64(sb.instID-e.InstID) >= 0 {
			continue // not older than the load
		}
		for i := uint32(0); i < sb.length; i++ {
			byteAddr := int64(sb.offset) + int64(i)
			rel := byteAddr - int64(loadOff)
			if rel < 0 || rel >= int64(len(e.data)) {
				continue
			}
			e.data[rel] = sb.data[i]
			e.valid[rel] = true
		}
	}
}

// CommitStore retires the oldest store queue entry (callers must ensure
// program order), moving its bypass entry from uncommitted to committed
// and merging its bytes into the write-combined store buffer.
func (u *Unit) CommitStore(instID uint64) errkind.Kind {
	if len(u.storeQueue) == 0 || u.storeQueue[0].InstID != instID {
		return errkind.Unsupported
	}
	st := u.storeQueue[0]
	u.storeQueue = u.storeQueue[1:]

	line := lineOf(st.Addr)
	bypasses := u.uncommittedBypass[line]
	for i, b := range bypasses {
		if b.instID == instID {
			u.uncommittedBypass[line] = append(bypasses[:i], bypasses[i+1:]...)
			u.committedBypass[line] = append(u.committedBypass[line], b)
			break
		}
	}

	buf := u.storeBuf[line]
	if buf == nil {
		buf = &storeBufEntry{line: line}
		u.storeBuf[line] = buf
	}
	off := offsetOf(st.Addr)
	for i := uint32(0); i < st.Length; i++ {
		buf.bytes[off+i] = st.Data[i]
		buf.valid[off+i] = true
	}
	return errkind.Success
}

// CommitLoad retires a completed load from the load queue, checking for
// an ordering violation first: if any store that commits-before this
// load in program order but issued after the load fired targets an
// overlapping address the load didn't see, the load must be squashed
// and refired rather than allowed to commit with stale data.
func (u *Unit) CommitLoad(instID uint64, storeInFlight func(addr uint64, length uint32) bool) errkind.Kind {
	line, idx := u.findLoad(instID)
	if idx < 0 {
		return errkind.Unsupported
	}
	e := u.loadQueue[line][idx]
	if storeInFlight != nil && storeInFlight(e.Addr, e.Length) {
		u.violations++
		u.removeLoad(line, idx)
		return errkind.SLReorder
	}
	u.removeLoad(line, idx)
	return errkind.Success
}

func (u *Unit) findLoad(instID uint64) (LineIndex, int) {
	for line, entries := range u.loadQueue {
		for i, e := range entries {
			if e.InstID == instID {
				return line, i
			}
		}
	}
	return 0, -1
}

func (u *Unit) removeLoad(line LineIndex, idx int) {
	entries := u.loadQueue[line]
	u.loadQueue[line] = append(entries[:idx], entries[idx+1:]...)
	if len(u.loadQueue[line]) == 0 {
		delete(u.loadQueue, line)
	}
}

// OnCurrentTick writes one contiguous run of valid bytes from one
// store-buffer line to the cache per tick (matching xslsu.h's
// always_on_current_tick comment that committed-store writeback runs
// every tick, halted or not). The line is whichever the map yields
// first, not the oldest; a rejected store is retried on a later tick.
func (u *Unit) OnCurrentTick() {
	for line, buf := range u.storeBuf {
		if !buf.anyValid() {
			delete(u.storeBuf, line)
			continue
		}
		start, length := contiguousValidRun(buf.valid[:])
		if length == 0 {
			delete(u.storeBuf, line)
			continue
		}
		addr := uint64(line)*cacheLineBytes + uint64(start)
		if k := u.cache.Store(addr, uint32(length), buf.bytes[start:start+length]); k == errkind.Success {
			for i := start; i < start+length; i++ {
				buf.valid[i] = false
			}
			if !buf.anyValid() {
				delete(u.storeBuf, line)
			}
		}
		return // one line's writeback admitted per tick
	}
}

func contiguousValidRun(valid []bool) (start, length int) {
	for i, v := range valid {
		if v {
			start = i
			break
		}
	}
	for i := start; i < len(valid) && valid[i]; i++ {
		length++
	}
	return start, length
}

// ApplyNextTick is a placeholder two-phase hook for symmetry with the
// rest of the core; the store buffer's writeback commit happens
// synchronously inside OnCurrentTick since cache.Client.Store already
// applies atomically within one tick once accepted.
func (u *Unit) ApplyNextTick() {}
