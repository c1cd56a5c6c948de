package bus

import (
	"testing"

	"github.com/suprax-sim/suprax/internal/coherence"
)

func tick(b *Bus) {
	b.OnCurrentTick()
	b.ApplyNextTick()
}

func TestSendRecvSingleTick(t *testing.T) {
	b := New(64, 4)
	if !b.Send(1, 2, ChanRequest, coherence.Msg{Type: coherence.MsgGetS, Line: 7}) {
		t.Fatalf("send should succeed with empty queue")
	}
	tick(b) // commit the packet into the send queue
	tick(b) // arbitrate + transfer (1-byte msg, width 64 -> 1 tick occupancy)

	if !b.CanRecv(2, ChanRequest) {
		t.Fatalf("expected message to have arrived")
	}
	msg, ok := b.Recv(2, ChanRequest)
	if !ok {
		t.Fatalf("recv failed")
	}
	if msg.Type != coherence.MsgGetS || msg.Line != 7 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestSendBackpressure(t *testing.T) {
	b := New(64, 1)
	if !b.Send(1, 2, ChanRequest, coherence.Msg{Type: coherence.MsgGetS}) {
		t.Fatalf("first send should succeed")
	}
	if b.Send(1, 2, ChanRequest, coherence.Msg{Type: coherence.MsgGetM}) {
		t.Fatalf("second send should be backpressured")
	}
}

func TestChannelsIndependent(t *testing.T) {
	b := New(64, 4)
	b.Send(1, 2, ChanRequest, coherence.Msg{Type: coherence.MsgGetS})
	tick(b)
	tick(b)
	if b.CanRecv(2, ChanResponse) {
		t.Fatalf("response channel should be empty")
	}
	if !b.CanRecv(2, ChanRequest) {
		t.Fatalf("request channel should have the message")
	}
}

func TestFIFOOrderPerTriple(t *testing.T) {
	b := New(64, 4)
	b.Send(1, 2, ChanRequest, coherence.Msg{Type: coherence.MsgGetS, Line: 1})
	b.Send(1, 2, ChanRequest, coherence.Msg{Type: coherence.MsgGetM, Line: 2})
	tick(b)
	for i := 0; i < 4; i++ {
		tick(b)
	}
	m1, ok1 := b.Recv(2, ChanRequest)
	m2, ok2 := b.Recv(2, ChanRequest)
	if !ok1 || !ok2 {
		t.Fatalf("expected both messages to arrive in order")
	}
	if m1.Line != 1 || m2.Line != 2 {
		t.Fatalf("FIFO order violated: %+v then %+v", m1, m2)
	}
}

func TestRoundRobinArbitration(t *testing.T) {
	b := New(64, 4)
	// Two ports both contend for the request channel toward the same dest.
	b.Send(1, 3, ChanRequest, coherence.Msg{Type: coherence.MsgGetS, Line: 100})
	b.Send(2, 3, ChanRequest, coherence.Msg{Type: coherence.MsgGetS, Line: 200})
	tick(b) // commit both sends
	tick(b) // port 1 (lowest) should win arbitration and transfer first
	if !b.CanRecv(3, ChanRequest) {
		t.Fatalf("expected first winner's packet to have arrived")
	}
	m, _ := b.Recv(3, ChanRequest)
	if m.Line != 100 {
		t.Fatalf("expected lowest-numbered port to win first, got line %d", m.Line)
	}
}
