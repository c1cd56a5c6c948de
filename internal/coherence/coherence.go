// Package coherence defines the MOESI message vocabulary, per-line states,
// and MSHR bookkeeping shared by internal/cache's L1 and L2 nodes.
package coherence

import "github.com/suprax-sim/suprax/internal/simid"

// LineBytes is the fixed cache line size the whole core addresses memory in
// outside of the LSU/L1 request interface.
const LineBytes = 64

// LineAddrOffset is CACHE_LINE_ADDR_OFFSET: line_index = paddr >> LineAddrOffset.
const LineAddrOffset = 6

// LineIndex converts a physical address to its containing line index.
func LineIndex(paddr uint64) uint64 { return paddr >> LineAddrOffset }

// LineState is a cache line's MOESI coherence state.
type LineState uint8

const (
	Invalid LineState = iota
	Exclusive
	Shared
	Modified
	Owned
)

func (s LineState) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	case Modified:
		return "modified"
	case Owned:
		return "owned"
	default:
		return "unknown"
	}
}

// Dirty reports whether a line in this state must eventually be written
// back rather than silently dropped.
func (s LineState) Dirty() bool { return s == Modified || s == Owned }

// Writable reports whether a core holding the line in this state may store
// to it without further coherence traffic.
func (s LineState) Writable() bool { return s == Modified || s == Exclusive }

// CacheLine is the fixed 64-byte payload plus MOESI state tracked by L1/L2.
type CacheLine struct {
	Data  [LineBytes]byte
	State LineState
}

// MSHRState names the pending transaction kind an MSHR entry is driving,
// matching spec.md's exhaustive transaction-kind list.
type MSHRState uint8

const (
	MSHRNone MSHRState = iota
	ItoI
	ItoS
	ItoM
	StoM
	MtoI
	StoI
	EtoI
	OtoM
	OtoI
)

func (s MSHRState) String() string {
	switch s {
	case MSHRNone:
		return "invalid"
	case ItoI:
		return "itoi"
	case ItoS:
		return "itos"
	case ItoM:
		return "itom"
	case StoM:
		return "stom"
	case MtoI:
		return "mtoi"
	case StoI:
		return "stoi"
	case EtoI:
		return "etoi"
	case OtoM:
		return "otom"
	case OtoI:
		return "otoi"
	default:
		return "unknown"
	}
}

// MsgType is the MOESI message vocabulary of spec.md §4.3, exhaustive.
type MsgType uint8

const (
	MsgInvalid MsgType = iota
	MsgInvalidAck
	MsgGetS
	MsgGetSForward
	MsgGetM
	MsgGetMForward
	MsgGetMAck
	MsgGetSResp
	MsgGetMResp
	MsgGetRespMem
	MsgGetAck
	MsgPutS
	MsgPutM
	MsgPutE
	MsgPutAck
	MsgPutO
)

func (t MsgType) String() string {
	switch t {
	case MsgInvalid:
		return "invalid"
	case MsgInvalidAck:
		return "invalid_ack"
	case MsgGetS:
		return "gets"
	case MsgGetSForward:
		return "gets_forward"
	case MsgGetM:
		return "getm"
	case MsgGetMForward:
		return "getm_forward"
	case MsgGetMAck:
		return "getm_ack"
	case MsgGetSResp:
		return "gets_resp"
	case MsgGetMResp:
		return "getm_resp"
	case MsgGetRespMem:
		return "get_resp_mem"
	case MsgGetAck:
		return "get_ack"
	case MsgPutS:
		return "puts"
	case MsgPutM:
		return "putm"
	case MsgPutE:
		return "pute"
	case MsgPutAck:
		return "put_ack"
	case MsgPutO:
		return "puto"
	default:
		return "unknown"
	}
}

// Msg is a coherence-channel message. Arg carries either a bus-port id (to
// route forwarded responses) or an expected-invalidation-ack count,
// depending on Type. Payload is non-nil only for fills and writebacks.
type Msg struct {
	Type    MsgType
	Arg     uint32
	TxnID   simid.TxnID
	Line    uint64
	Payload *[LineBytes]byte
}

// MSHREntry records a pending transaction for one line.
type MSHREntry struct {
	Line                uint64
	State               MSHRState
	Buf                 [LineBytes]byte
	DataReady           bool
	AckCountReady       bool
	InvalidAcksExpected uint16
	InvalidAcksReceived uint16
	StartTick           uint64
}

// Done reports whether the transaction has collected everything it needs to
// retire: its fill data and, if it was waiting on invalidation acks from
// sharers, all of those acks.
func (e *MSHREntry) Done() bool {
	if !e.DataReady {
		return false
	}
	if e.AckCountReady && e.InvalidAcksReceived < e.InvalidAcksExpected {
		return false
	}
	return true
}

// MSHRTable is a bounded-capacity map from line index to MSHR entry. A
// cache may not hold two live transactions for the same line, and an
// allocation past capacity reports busy rather than silently growing —
// mirrors the original simulator's MSHRArray.
type MSHRTable struct {
	capacity int
	entries  map[uint64]*MSHREntry
}

// NewMSHRTable builds a table that can hold at most capacity simultaneous
// transactions.
func NewMSHRTable(capacity int) *MSHRTable {
	return &MSHRTable{capacity: capacity, entries: make(map[uint64]*MSHREntry, capacity)}
}

// Get returns the live MSHR for a line, if any.
func (t *MSHRTable) Get(line uint64) (*MSHREntry, bool) {
	e, ok := t.entries[line]
	return e, ok
}

// Alloc allocates a new MSHR for line. Returns nil if the line already has
// a live MSHR, or if the table is at capacity.
func (t *MSHRTable) Alloc(line uint64, state MSHRState, startTick uint64) *MSHREntry {
	if _, exists := t.entries[line]; exists {
		return nil
	}
	if len(t.entries) >= t.capacity {
		return nil
	}
	e := &MSHREntry{Line: line, State: state, StartTick: startTick}
	t.entries[line] = e
	return e
}

// Release frees the MSHR for line, permitting a fresh request to be issued
// for it.
func (t *MSHRTable) Release(line uint64) {
	delete(t.entries, line)
}

// Len reports the number of live transactions.
func (t *MSHRTable) Len() int { return len(t.entries) }

// Full reports whether a new Alloc would currently fail for lack of room.
func (t *MSHRTable) Full() bool { return len(t.entries) >= t.capacity }

// Lines returns the set of lines with a live MSHR, for iteration by the
// owning cache (e.g. to decide LRU pinning).
func (t *MSHRTable) Lines() []uint64 {
	out := make([]uint64, 0, len(t.entries))
	for l := range t.entries {
		out = append(out, l)
	}
	return out
}
