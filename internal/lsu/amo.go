package lsu

import "github.com/suprax-sim/suprax/internal/errkind"

// amoStateKind mirrors AMOState from xslsu.h: an AMO only actually
// executes once it reaches the head of the ROB (to guarantee it
// appears atomic to the rest of the system), so the LSU advances it
// through an explicit state machine across commit attempts instead of
// completing it in one call.
type amoStateKind uint8

const (
	amoFree amoStateKind = iota
	amoTLB
	amoPM
	amoFlushSBufferReq
	amoFlushSBufferResp
	amoCacheReq
	amoCacheResp
	amoFinish
)

type amoState struct {
	kind   amoStateKind
	instID uint64
	addr   uint64
	length uint32
	data   []byte
	old    []byte
	result errkind.Kind
}

// CommitAMO attempts to advance the in-flight AMO state machine for the
// instruction at the head of the ROB. The caller must keep calling this
// once per tick with the same instID until it reports done=true; a call
// with a different instID before then returns errkind.Unsupported,
// matching the head-of-ROB serialization xslsu.h documents.
func (u *Unit) CommitAMO(instID, addr uint64, data []byte, combine func(old, operand []byte) []byte) (done bool, old []byte, result errkind.Kind) {
	if u.amo.kind == amoFree {
		u.amo = amoState{kind: amoTLB, instID: instID, addr: addr, length: uint32(len(data)), data: append([]byte(nil), data...)}
	}
	if u.amo.instID != instID {
		// A different instruction reached commit while an AMO was mid-flight;
		// this should never happen under in-order commit, but refuse to
		// silently interleave two atomics' state.
		return false, nil, errkind.Unsupported
	}

	switch u.amo.kind {
	case amoTLB:
		u.amo.kind = amoPM
	case amoPM:
		u.amo.kind = amoFlushSBufferReq
	case amoFlushSBufferReq:
		// Write the AMO line's committed stores out before the atomic reads
		// it; stay in this state until the cache has accepted all of them.
		line := lineOf(u.amo.addr)
		if buf := u.storeBuf[line]; buf != nil {
			for buf.anyValid() {
				start, length := contiguousValidRun(buf.valid[:])
				addr := uint64(line)*cacheLineBytes + uint64(start)
				if u.cache.Store(addr, uint32(length), buf.bytes[start:start+length]) != errkind.Success {
					return false, nil, errkind.Success
				}
				for i := start; i < start+length; i++ {
					buf.valid[i] = false
				}
			}
			delete(u.storeBuf, line)
		}
		u.amo.kind = amoFlushSBufferResp
	case amoFlushSBufferResp:
		u.amo.kind = amoCacheReq
	case amoCacheReq:
		old := make([]byte, u.amo.length)
		k := u.cache.Load(u.amo.addr, u.amo.length, old)
		if k != errkind.Success {
			u.amo.result = k
			u.amo.kind = amoFinish
			break
		}
		u.amo.old = old
		combined := old
		if combine != nil {
			combined = combine(old, u.amo.data)
		}
		k = u.cache.Store(u.amo.addr, u.amo.length, combined)
		u.amo.result = k
		u.amo.kind = amoCacheResp
	case amoCacheResp:
		u.amo.kind = amoFinish
	case amoFinish:
		result = u.amo.result
		old = u.amo.old
		u.amo = amoState{}
		return true, old, result
	}
	return false, nil, errkind.Success
}
