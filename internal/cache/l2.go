package cache

import (
	"github.com/sirupsen/logrus"

	"github.com/suprax-sim/suprax/internal/bus"
	"github.com/suprax-sim/suprax/internal/coherence"
)

const waitingListDepth = 8

type dirLine struct {
	State   coherence.LineState
	Owner   bus.Port
	HasOwner bool
	Sharers map[bus.Port]bool
	Data    [coherence.LineBytes]byte
	Valid   bool
}

type txnKind uint8

const (
	txnGetS txnKind = iota
	txnGetM
)

// txn is the L2-side in-flight transaction for one line: it may be waiting
// on invalidation acks from sharers, a forward from the current owner, or a
// fill from the memory node before it can answer the original requester.
type txn struct {
	kind        txnKind
	line        uint64
	requester   bus.Port
	indexLeft   int
	acksExpect  int
	acksGot     int
	needMem     bool
	memReady    bool
	needForward bool
	fwdReady    bool
	fwdData     [coherence.LineBytes]byte
	memData     [coherence.LineBytes]byte
}

func (t *txn) ready() bool {
	if t.indexLeft > 0 {
		return false
	}
	if t.acksGot < t.acksExpect {
		return false
	}
	if t.needMem && !t.memReady {
		return false
	}
	if t.needForward && !t.fwdReady {
		return false
	}
	return true
}

// L2Params sizes the shared directory.
type L2Params struct {
	IndexLatency int
	IndexWidth   int
	// NumLines bounds the directory's tracked-line table. Unlike an L1,
	// the directory can only ever reclaim a line with no owner and no
	// sharers: forgetting a line any core still holds would leave that
	// core's copy uncoordinated, not just cold. Zero means unbounded.
	NumLines int
}

// Directory is the shared L2 MOESI directory of spec.md §4.3: for every
// tracked line it records the owner port and sharer set, forwards GETS to
// a dirty owner, invalidates sharers on GETM, and serialises a second
// request for a busy line onto an 8-deep waiting list.
type Directory struct {
	Port    bus.Port
	MemPort bus.Port
	bus     *bus.Bus

	params L2Params

	lines   map[uint64]*dirLine
	txns    map[uint64]*txn
	waiting map[uint64][]coherence.Msg

	admitted []coherence.Msg
	log      *logrus.Entry
}

// NewDirectory builds an L2 directory.
func NewDirectory(b *bus.Bus, port, memPort bus.Port, p L2Params) *Directory {
	if p.IndexLatency <= 0 {
		p.IndexLatency = 4
	}
	if p.IndexWidth <= 0 {
		p.IndexWidth = 1
	}
	return &Directory{
		Port: port, MemPort: memPort, bus: b, params: p,
		lines:   make(map[uint64]*dirLine),
		txns:    make(map[uint64]*txn),
		waiting: make(map[uint64][]coherence.Msg),
		log:     logrus.WithField("component", "l2"),
	}
}

func (d *Directory) dirLineFor(line uint64) *dirLine {
	l, ok := d.lines[line]
	if !ok {
		d.reclaimIdleLine()
		l = &dirLine{State: coherence.Invalid, Sharers: make(map[bus.Port]bool)}
		d.lines[line] = l
	}
	return l
}

// reclaimIdleLine drops one tracked line with no owner and no sharers once
// the table is at capacity, so a directory backing a long-running program
// doesn't grow one entry per line ever touched. A line anyone still holds
// is never a candidate; losing track of it would desynchronize that core's
// copy rather than just force a cold refill.
func (d *Directory) reclaimIdleLine() {
	if d.params.NumLines <= 0 || len(d.lines) < d.params.NumLines {
		return
	}
	for idx, l := range d.lines {
		if l.State == coherence.Invalid && !l.HasOwner && len(l.Sharers) == 0 {
			if _, busy := d.txns[idx]; busy {
				continue
			}
			delete(d.lines, idx)
			return
		}
	}
}

// OnCurrentTick admits up to IndexWidth new requests per tick and advances
// index-latency counters for txns already admitted; it reads only state
// latched at tick start.
func (d *Directory) OnCurrentTick() {
	d.admitted = nil
	admittedThisTick := 0
	for admittedThisTick < d.params.IndexWidth && d.bus.CanRecv(d.Port, bus.ChanRequest) {
		msg, ok := d.bus.Recv(d.Port, bus.ChanRequest)
		if !ok {
			break
		}
		d.admitted = append(d.admitted, msg)
		admittedThisTick++
	}
	for _, t := range d.txns {
		if t.indexLeft > 0 {
			t.indexLeft--
		}
	}
}

// ApplyNextTick processes bus acks/responses that resolve in-flight txns,
// starts any newly admitted requests, and finalises ready transactions.
func (d *Directory) ApplyNextTick() {
	for d.bus.CanRecv(d.Port, bus.ChanResponse) {
		msg, ok := d.bus.Recv(d.Port, bus.ChanResponse)
		if !ok {
			break
		}
		d.handleResponse(msg)
	}
	for d.bus.CanRecv(d.Port, bus.ChanAck) {
		msg, ok := d.bus.Recv(d.Port, bus.ChanAck)
		if !ok {
			break
		}
		d.handleAck(msg)
	}

	for _, msg := range d.admitted {
		d.startOrQueue(msg)
	}
	d.admitted = nil

	for line, t := range d.txns {
		if t.ready() {
			d.finish(line, t)
		}
	}
}

func (d *Directory) handleResponse(msg coherence.Msg) {
	if msg.Type != coherence.MsgGetRespMem {
		return
	}
	t, ok := d.txns[msg.Line]
	if !ok {
		return
	}
	if msg.Payload != nil {
		t.memData = *msg.Payload
	}
	t.memReady = true
}

func (d *Directory) handleAck(msg coherence.Msg) {
	t, ok := d.txns[msg.Line]
	if !ok {
		return
	}
	switch msg.Type {
	case coherence.MsgInvalidAck:
		t.acksGot++
	}
}

// startOrQueue begins processing msg, or defers it onto the per-line
// waiting list if the line already has a live transaction.
func (d *Directory) startOrQueue(msg coherence.Msg) {
	if _, busy := d.txns[msg.Line]; busy {
		q := d.waiting[msg.Line]
		if len(q) >= waitingListDepth {
			d.log.WithField("line", msg.Line).Warn("l2 waiting list full, dropping request")
			return
		}
		d.waiting[msg.Line] = append(q, msg)
		return
	}
	d.begin(msg)
}

func (d *Directory) begin(msg coherence.Msg) {
	line := d.dirLineFor(msg.Line)
	requester := bus.Port(msg.Arg)
	t := &txn{line: msg.Line, requester: requester, indexLeft: d.params.IndexLatency}

	switch msg.Type {
	case coherence.MsgGetS:
		t.kind = txnGetS
		switch {
		case line.State == coherence.Modified || line.State == coherence.Owned:
			t.needForward = true
			if d.bus.CanSend(d.Port, bus.ChanRequest) {
				d.bus.Send(d.Port, line.Owner, bus.ChanRequest, coherence.Msg{
					Type: coherence.MsgGetSForward, Line: msg.Line, Arg: uint32(requester),
				})
			}
			t.fwdReady = true // owner replies directly to requester; directory need not wait further
		case line.Valid:
			t.fwdReady = true
		default:
			t.needMem = true
			if d.bus.CanSend(d.Port, bus.ChanRequest) {
				d.bus.Send(d.Port, d.MemPort, bus.ChanRequest, coherence.Msg{
					Type: coherence.MsgGetSForward, Line: msg.Line, Arg: uint32(d.Port),
				})
			}
		}
	case coherence.MsgGetM:
		t.kind = txnGetM
		for sharer := range line.Sharers {
			if sharer == requester {
				continue
			}
			t.acksExpect++
			if d.bus.CanSend(d.Port, bus.ChanRequest) {
				d.bus.Send(d.Port, sharer, bus.ChanRequest, coherence.Msg{
					Type: coherence.MsgInvalid, Line: msg.Line, Arg: uint32(d.Port),
				})
			}
		}
		switch {
		case (line.State == coherence.Modified || line.State == coherence.Owned) && line.Owner != requester:
			t.needForward = true
			if d.bus.CanSend(d.Port, bus.ChanRequest) {
				d.bus.Send(d.Port, line.Owner, bus.ChanRequest, coherence.Msg{
					Type: coherence.MsgGetMForward, Line: msg.Line, Arg: uint32(requester),
				})
			}
			t.fwdReady = true
		case line.Valid:
			t.fwdReady = true
		default:
			t.needMem = true
			if d.bus.CanSend(d.Port, bus.ChanRequest) {
				d.bus.Send(d.Port, d.MemPort, bus.ChanRequest, coherence.Msg{
					Type: coherence.MsgGetSForward, Line: msg.Line, Arg: uint32(d.Port),
				})
			}
		}
	case coherence.MsgPutS, coherence.MsgPutE, coherence.MsgPutM, coherence.MsgPutO:
		d.handlePut(msg)
		return
	case coherence.MsgGetAck:
		// Requester has filled locally; nothing further for the directory.
		return
	default:
		return
	}
	d.txns[msg.Line] = t
}

func (d *Directory) handlePut(msg coherence.Msg) {
	line := d.dirLineFor(msg.Line)
	src := bus.Port(msg.Arg)
	delete(line.Sharers, src)
	if line.Owner == src {
		line.HasOwner = false
	}
	if msg.Payload != nil {
		line.Data = *msg.Payload
		line.Valid = true
		if d.bus.CanSend(d.Port, bus.ChanRequest) {
			d.bus.Send(d.Port, d.MemPort, bus.ChanRequest, coherence.Msg{
				Type: coherence.MsgPutM, Line: msg.Line, Payload: &line.Data,
			})
		}
	}
	if len(line.Sharers) == 0 && !line.HasOwner {
		line.State = coherence.Invalid
	}
	if d.bus.CanSend(d.Port, bus.ChanAck) {
		d.bus.Send(d.Port, src, bus.ChanAck, coherence.Msg{Type: coherence.MsgPutAck, Line: msg.Line})
	}
}

func (d *Directory) finish(lineIdx uint64, t *txn) {
	line := d.dirLineFor(lineIdx)
	var payload [coherence.LineBytes]byte
	if t.needMem {
		payload = t.memData
		line.Data = payload
		line.Valid = true
	} else {
		payload = line.Data
	}

	switch t.kind {
	case txnGetS:
		line.Sharers[t.requester] = true
		if line.State == coherence.Invalid {
			line.State = coherence.Shared
		}
		if !t.needForward && d.bus.CanSend(d.Port, bus.ChanResponse) {
			d.bus.Send(d.Port, t.requester, bus.ChanResponse, coherence.Msg{
				Type: coherence.MsgGetSResp, Line: lineIdx, Payload: &payload,
			})
		}
	case txnGetM:
		for s := range line.Sharers {
			delete(line.Sharers, s)
		}
		line.Owner = t.requester
		line.HasOwner = true
		line.State = coherence.Modified
		if !t.needForward && d.bus.CanSend(d.Port, bus.ChanResponse) {
			d.bus.Send(d.Port, t.requester, bus.ChanResponse, coherence.Msg{
				Type: coherence.MsgGetMResp, Line: lineIdx, Payload: &payload,
			})
		}
	}

	delete(d.txns, lineIdx)
	if q := d.waiting[lineIdx]; len(q) > 0 {
		next := q[0]
		d.waiting[lineIdx] = q[1:]
		d.begin(next)
	}
}
