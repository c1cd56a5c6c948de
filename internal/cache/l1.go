// Package cache implements the private L1 MOESI client and the shared L2
// directory described in spec.md §4.3/§4.4, wired together over
// internal/bus and carrying internal/coherence's message vocabulary.
package cache

import (
	"github.com/sirupsen/logrus"

	"github.com/suprax-sim/suprax/internal/bus"
	"github.com/suprax-sim/suprax/internal/coherence"
	"github.com/suprax-sim/suprax/internal/errkind"
)

// AMOOp identifies an atomic read-modify-write operation. The arithmetic
// itself lives in internal/alu; L1 only needs to know how to combine the
// old and operand values once it has exclusive ownership of the line.
type AMOOp uint8

const (
	AMOSwap AMOOp = iota
	AMOAdd
	AMOAnd
	AMOOr
	AMOXor
	AMOMax
	AMOMin
	AMOMaxU
	AMOMinU
)

// L1Params sizes one private L1 client.
type L1Params struct {
	MSHRCapacity int
	NumLines     int
}

// Client is a per-core private L1 cache (used for both L1I and L1D; the
// LSU is the only caller that ever invokes Store/AMO/reservations).
type Client struct {
	Port   bus.Port
	L2Port bus.Port
	bus    *bus.Bus

	lines *lineSet
	mshr  *coherence.MSHRTable

	reservedValid bool
	reservedLine  uint64

	// deferredForwards holds forward/invalidate messages that targeted a
	// line already LRU-evicted but still draining its writeback; they are
	// serviced once the writeback's PutAck confirms L2 has the data,
	// rather than being answered from (or silently dropping against) a
	// line this client no longer holds.
	deferredForwards []coherence.Msg
	// draining holds an evicted dirty line's last-known data, keyed by
	// line index, until its writeback is acknowledged.
	draining map[uint64]coherence.CacheLine

	arrivals    []uint64
	newArrivals []uint64
	pendingWBs  map[uint64]bool // lines currently draining a writeback
	log         *logrus.Entry
	hitCount    uint64
	missCount   uint64
}

// NewClient builds an L1 client attached to bus on port, talking to the L2
// directory at l2Port.
func NewClient(b *bus.Bus, port, l2Port bus.Port, p L1Params, name string) *Client {
	if p.MSHRCapacity <= 0 {
		p.MSHRCapacity = 4
	}
	return &Client{
		Port:       port,
		L2Port:     l2Port,
		bus:        b,
		lines:      newLineSet(p.NumLines),
		mshr:       coherence.NewMSHRTable(p.MSHRCapacity),
		pendingWBs: make(map[uint64]bool),
		draining:   make(map[uint64]coherence.CacheLine),
		log:        logrus.WithField("component", name),
	}
}

func crossesLine(paddr uint64, length uint32) bool {
	start := coherence.LineIndex(paddr)
	end := coherence.LineIndex(paddr + uint64(length) - 1)
	return start != end
}

func (c *Client) lineOffset(paddr uint64) uint64 {
	return paddr & (coherence.LineBytes - 1)
}

// ensureReadable returns the cached line if present and in a readable
// state, kicking off a GETS miss transaction otherwise.
func (c *Client) ensureReadable(paddr uint64) (*coherence.CacheLine, errkind.Kind) {
	line := coherence.LineIndex(paddr)
	if l, ok := c.lines.get(line); ok && l.State != coherence.Invalid {
		return l, errkind.Success
	}
	return nil, c.requestMiss(line, coherence.ItoS, coherence.MsgGetS)
}

func (c *Client) ensureWritable(paddr uint64) (*coherence.CacheLine, errkind.Kind) {
	line := coherence.LineIndex(paddr)
	if l, ok := c.lines.get(line); ok && l.State.Writable() {
		return l, errkind.Success
	}
	if l, ok := c.lines.get(line); ok && l.State == coherence.Owned {
		return nil, c.requestMiss(line, coherence.OtoM, coherence.MsgGetM)
	}
	if l, ok := c.lines.get(line); ok && l.State == coherence.Shared {
		return nil, c.requestMiss(line, coherence.StoM, coherence.MsgGetM)
	}
	return nil, c.requestMiss(line, coherence.ItoM, coherence.MsgGetM)
}

func (c *Client) requestMiss(line uint64, kind coherence.MSHRState, mt coherence.MsgType) errkind.Kind {
	if e, live := c.mshr.Get(line); live {
		if e.Done() {
			return errkind.Processing
		}
		return errkind.Miss
	}
	if c.pendingWBs[line] {
		return errkind.Busy
	}
	if c.mshr.Full() {
		return errkind.Busy
	}
	if !c.bus.CanSend(c.Port, bus.ChanRequest) {
		return errkind.Busy
	}
	c.mshr.Alloc(line, kind, 0)
	// An existing line (Shared->StoM, Owned->OtoM) must survive LRU
	// eviction for as long as its upgrade transaction is in flight; a
	// cold line isn't in the set yet, so pin is a harmless no-op.
	c.lines.pin(line)
	c.missCount++
	c.bus.Send(c.Port, c.L2Port, bus.ChanRequest, coherence.Msg{
		Type: mt, Line: line, Arg: uint32(c.Port),
	})
	return errkind.Miss
}

// Load reads len bytes at paddr into buf. Partial reads are not supported:
// a request crossing a line boundary reports Unaligned.
func (c *Client) Load(paddr uint64, length uint32, buf []byte) errkind.Kind {
	if crossesLine(paddr, length) {
		return errkind.Unaligned
	}
	l, k := c.ensureReadable(paddr)
	if k != errkind.Success {
		return k
	}
	off := c.lineOffset(paddr)
	copy(buf[:length], l.Data[off:off+uint64(length)])
	c.hitCount++
	return errkind.Success
}

// Store writes len bytes at paddr from buf.
func (c *Client) Store(paddr uint64, length uint32, buf []byte) errkind.Kind {
	if crossesLine(paddr, length) {
		return errkind.Unaligned
	}
	l, k := c.ensureWritable(paddr)
	if k != errkind.Success {
		return k
	}
	off := c.lineOffset(paddr)
	copy(l.Data[off:off+uint64(length)], buf[:length])
	l.State = coherence.Modified
	c.hitCount++
	c.invalidateReservationOnLine(coherence.LineIndex(paddr))
	return errkind.Success
}

// LoadReserved behaves like Load but additionally records a reservation on
// the accessed line for a later StoreConditional.
func (c *Client) LoadReserved(paddr uint64, length uint32, buf []byte) errkind.Kind {
	k := c.Load(paddr, length, buf)
	if k == errkind.Success {
		c.reservedValid = true
		c.reservedLine = coherence.LineIndex(paddr)
	}
	return k
}

// StoreConditional succeeds only if the reservation set by LoadReserved is
// still live for this line. The reservation is cleared when the store
// succeeds or fails as Unconditional; a Miss or Busy result leaves it in
// place so the store can be retried once the line is writable.
func (c *Client) StoreConditional(paddr uint64, length uint32, buf []byte) errkind.Kind {
	line := coherence.LineIndex(paddr)
	if !c.reservedValid || c.reservedLine != line {
		c.reservedValid = false
		return errkind.Unconditional
	}
	k := c.Store(paddr, length, buf)
	if k == errkind.Success {
		c.reservedValid = false
	}
	return k
}

// AMO performs an atomic read-modify-write. old receives the pre-image.
func (c *Client) AMO(paddr uint64, length uint32, operand []byte, op AMOOp, old []byte) errkind.Kind {
	if crossesLine(paddr, length) {
		return errkind.Unaligned
	}
	l, k := c.ensureWritable(paddr)
	if k != errkind.Success {
		return k
	}
	off := c.lineOffset(paddr)
	copy(old[:length], l.Data[off:off+uint64(length)])
	result := amoCombine(op, old[:length], operand[:length])
	copy(l.Data[off:off+uint64(length)], result)
	l.State = coherence.Modified
	c.invalidateReservationOnLine(coherence.LineIndex(paddr))
	return errkind.Success
}

func amoCombine(op AMOOp, oldBytes, operandBytes []byte) []byte {
	old := leToU64(oldBytes)
	opnd := leToU64(operandBytes)
	var res uint64
	switch op {
	case AMOSwap:
		res = opnd
	case AMOAdd:
		res = old + opnd
	case AMOAnd:
		res = old & opnd
	case AMOOr:
		res = old | opnd
	case AMOXor:
		res = old ^ opnd
	case AMOMax:
		if int64(old) > int64(opnd) {
			res = old
		} else {
			res = opnd
		}
	case AMOMin:
		if int64(old) < int64(opnd) {
			res = old
		} else {
			res = opnd
		}
	case AMOMaxU:
		if old > opnd {
			res = old
		} else {
			res = opnd
		}
	case AMOMinU:
		if old < opnd {
			res = old
		} else {
			res = opnd
		}
	default:
		res = opnd
	}
	out := make([]byte, len(oldBytes))
	u64ToLE(res, out)
	return out
}

func leToU64(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(b[i])
	}
	return v
}

func u64ToLE(v uint64, out []byte) {
	for i := range out {
		out[i] = byte(v)
		v >>= 8
	}
}

func (c *Client) invalidateReservationOnLine(line uint64) {
	if c.reservedValid && c.reservedLine == line {
		c.reservedValid = false
	}
}

// ArrivalLines reports which lines newly arrived (were filled) this tick,
// so the LSU can wake loads waiting on them.
func (c *Client) ArrivalLines() []uint64 { return c.arrivals }

// OnCurrentTick only clears the list of lines arriving this tick; every
// inbound message is received and handled in ApplyNextTick.
func (c *Client) OnCurrentTick() {
	c.newArrivals = nil
	if !c.bus.CanRecv(c.Port, bus.ChanRequest) && !c.bus.CanRecv(c.Port, bus.ChanResponse) && !c.bus.CanRecv(c.Port, bus.ChanAck) {
		return
	}
}

// ApplyNextTick receives and processes every arrived message on the ack,
// response and request channels, in that order, then replays deferred
// forwards and publishes this tick's arrivals.
func (c *Client) ApplyNextTick() {
	for c.bus.CanRecv(c.Port, bus.ChanAck) {
		msg, ok := c.bus.Recv(c.Port, bus.ChanAck)
		if !ok {
			break
		}
		if msg.Type == coherence.MsgPutAck {
			delete(c.pendingWBs, msg.Line)
		}
	}
	for c.bus.CanRecv(c.Port, bus.ChanResponse) {
		msg, ok := c.bus.Recv(c.Port, bus.ChanResponse)
		if !ok {
			break
		}
		c.handleResponse(msg)
	}
	for c.bus.CanRecv(c.Port, bus.ChanRequest) {
		msg, ok := c.bus.Recv(c.Port, bus.ChanRequest)
		if !ok {
			break
		}
		c.handleForwardOrInvalidate(msg)
	}
	c.serviceDeferredForwards()
	c.arrivals = c.newArrivals
}

func (c *Client) handleResponse(msg coherence.Msg) {
	e, ok := c.mshr.Get(msg.Line)
	if !ok {
		return
	}
	switch msg.Type {
	case coherence.MsgGetSResp, coherence.MsgGetMResp, coherence.MsgGetRespMem:
		if msg.Payload != nil {
			copy(e.Buf[:], msg.Payload[:])
		}
		e.DataReady = true
	}
	if e.Done() {
		c.fillFromMSHR(msg.Line, e)
	}
}

func (c *Client) fillFromMSHR(line uint64, e *coherence.MSHREntry) {
	// An Owned holder upgrading to Modified already has the line's current
	// data; the directory's own copy is stale (never refreshed except by a
	// Put writeback), so this path must not let the response's payload
	// clobber what's already in c.lines. It only needs the permission
	// upgrade, gated on the same invalidation-ack wait every GETM uses.
	if e.State == coherence.OtoM {
		if l, ok := c.lines.get(line); ok {
			l.State = coherence.Modified
		}
		c.mshr.Release(line)
		c.lines.unpin(line)
		if c.bus.CanSend(c.Port, bus.ChanAck) {
			c.bus.Send(c.Port, c.L2Port, bus.ChanAck, coherence.Msg{Type: coherence.MsgGetAck, Line: line})
		}
		return
	}

	var state coherence.LineState
	switch e.State {
	case coherence.ItoS:
		state = coherence.Shared
	case coherence.ItoM, coherence.StoM:
		state = coherence.Modified
	default:
		state = coherence.Shared
	}
	l := &coherence.CacheLine{State: state}
	copy(l.Data[:], e.Buf[:])
	c.evictIfNeeded(line)
	c.lines.put(line, l)
	c.lines.unpin(line)
	c.mshr.Release(line)
	c.newArrivals = append(c.newArrivals, line)
	if c.bus.CanSend(c.Port, bus.ChanAck) {
		c.bus.Send(c.Port, c.L2Port, bus.ChanAck, coherence.Msg{Type: coherence.MsgGetAck, Line: line})
	}
}

// evictIfNeeded chooses an LRU victim (if the set is full and not already
// holding line) and writes it back if dirty, porting
// GenericLRUCacheBlock's insert_line replacement logic; a pinned line
// (one with a transient MSHR of its own) is never picked.
func (c *Client) evictIfNeeded(line uint64) {
	victim, ok := c.lines.victim(line)
	if !ok {
		return
	}
	vl, _ := c.lines.get(victim)
	c.lines.remove(victim)
	c.invalidateReservationOnLine(victim)
	if vl.Dirty() {
		c.draining[victim] = *vl
		c.pendingWBs[victim] = true
		c.writeback(victim, vl)
	}
}

func (c *Client) handleForwardOrInvalidate(msg coherence.Msg) {
	switch msg.Type {
	case coherence.MsgInvalid:
		l, ok := c.lines.get(msg.Line)
		if !ok {
			c.deferIfDraining(msg)
			return
		}
		if l.Dirty() {
			c.writeback(msg.Line, l)
		}
		c.lines.remove(msg.Line)
		c.invalidateReservationOnLine(msg.Line)
		if c.bus.CanSend(c.Port, bus.ChanAck) {
			c.bus.Send(c.Port, bus.Port(msg.Arg), bus.ChanAck, coherence.Msg{Type: coherence.MsgInvalidAck, Line: msg.Line})
		}
	case coherence.MsgGetSForward:
		l, ok := c.lines.get(msg.Line)
		if !ok {
			c.deferIfDraining(msg)
			return
		}
		var payload coherence.CacheLine
		payload.Data = l.Data
		if l.State == coherence.Modified {
			l.State = coherence.Owned
		}
		if c.bus.CanSend(c.Port, bus.ChanResponse) {
			c.bus.Send(c.Port, bus.Port(msg.Arg), bus.ChanResponse, coherence.Msg{
				Type: coherence.MsgGetSResp, Line: msg.Line, Payload: &payload.Data,
			})
		}
	case coherence.MsgGetMForward:
		l, ok := c.lines.get(msg.Line)
		if !ok {
			c.deferIfDraining(msg)
			return
		}
		var payload coherence.CacheLine
		payload.Data = l.Data
		c.lines.remove(msg.Line)
		c.invalidateReservationOnLine(msg.Line)
		if c.bus.CanSend(c.Port, bus.ChanResponse) {
			c.bus.Send(c.Port, bus.Port(msg.Arg), bus.ChanResponse, coherence.Msg{
				Type: coherence.MsgGetMResp, Line: msg.Line, Payload: &payload.Data,
			})
		}
	}
}

// deferIfDraining queues msg for replay once the in-flight writeback for
// msg.Line is acknowledged, rather than dropping a forward/invalidate
// that raced an LRU eviction still in flight. A message for a line this
// client never held (and isn't draining) is simply not ours to answer.
func (c *Client) deferIfDraining(msg coherence.Msg) {
	if c.pendingWBs[msg.Line] {
		c.deferredForwards = append(c.deferredForwards, msg)
	}
}

// serviceDeferredForwards replays any forward/invalidate that arrived
// for lines whose writeback just completed, answering from the retained
// draining data since the line itself is already gone from c.lines.
func (c *Client) serviceDeferredForwards() {
	if len(c.deferredForwards) == 0 {
		return
	}
	var remaining []coherence.Msg
	for _, msg := range c.deferredForwards {
		if c.pendingWBs[msg.Line] {
			remaining = append(remaining, msg)
			continue
		}
		dl, ok := c.draining[msg.Line]
		if !ok {
			continue
		}
		switch msg.Type {
		case coherence.MsgInvalid:
			if c.bus.CanSend(c.Port, bus.ChanAck) {
				c.bus.Send(c.Port, bus.Port(msg.Arg), bus.ChanAck, coherence.Msg{Type: coherence.MsgInvalidAck, Line: msg.Line})
				delete(c.draining, msg.Line)
			} else {
				remaining = append(remaining, msg)
			}
		case coherence.MsgGetSForward, coherence.MsgGetMForward:
			payload := dl.Data
			respType := coherence.MsgGetSResp
			if msg.Type == coherence.MsgGetMForward {
				respType = coherence.MsgGetMResp
			}
			if c.bus.CanSend(c.Port, bus.ChanResponse) {
				c.bus.Send(c.Port, bus.Port(msg.Arg), bus.ChanResponse, coherence.Msg{
					Type: respType, Line: msg.Line, Payload: &payload,
				})
				delete(c.draining, msg.Line)
			} else {
				remaining = append(remaining, msg)
			}
		}
	}
	c.deferredForwards = remaining
}

func (c *Client) writeback(line uint64, l *coherence.CacheLine) {
	if !c.bus.CanSend(c.Port, bus.ChanRequest) {
		return
	}
	mt := coherence.MsgPutM
	if l.State == coherence.Owned {
		mt = coherence.MsgPutO
	}
	var payload coherence.CacheLine
	payload.Data = l.Data
	c.bus.Send(c.Port, c.L2Port, bus.ChanRequest, coherence.Msg{Type: mt, Line: line, Arg: uint32(c.Port), Payload: &payload.Data})
}

// Stats reports simple hit/miss counters, exercised by internal/metrics.
func (c *Client) Stats() (hits, misses uint64) { return c.hitCount, c.missCount }
