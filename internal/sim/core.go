package sim

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/suprax-sim/suprax/internal/alu"
	"github.com/suprax-sim/suprax/internal/bpu"
	"github.com/suprax-sim/suprax/internal/bus"
	"github.com/suprax-sim/suprax/internal/cache"
	"github.com/suprax-sim/suprax/internal/config"
	"github.com/suprax-sim/suprax/internal/errkind"
	"github.com/suprax-sim/suprax/internal/isa"
	"github.com/suprax-sim/suprax/internal/lsu"
	"github.com/suprax-sim/suprax/internal/metrics"
	"github.com/suprax-sim/suprax/internal/ooo"
	"github.com/suprax-sim/suprax/internal/rename"
)

// Core is one RV64GC hardware thread: its own fetch PC, rename tables,
// reservation station, ROB, load/store unit and L1 cache client, all
// sharing the system bus (and therefore the L2 directory and memory
// node) with every other Core in a System.
type Core struct {
	id int
	pc uint64

	l1     *cache.Client
	lsu    *lsu.Unit
	bpu    *bpu.Unit
	intRen *rename.Unit
	fpRen  *rename.Unit
	rob    *ooo.ROB
	rs     *ooo.ReservationStation
	exus   []*ooo.EXU

	translator Translator
	device     DeviceMemory
	sysHandler SystemHandler
	control    CPUControl

	metrics *metrics.Registry
	log     *logrus.Entry

	halted bool

	inflight    map[ooo.InstID]*pipelineInst
	robIndexOf  map[ooo.InstID]int
	pendingDisp []ooo.Inst

	nextInstID  uint64
	commitWidth int
}

// pipelineInst is everything later stages need about an instruction
// that isn't already captured by ooo.Inst (isa decode, branch
// prediction snapshot, load/store queue linkage).
type pipelineInst struct {
	decoded  isa.Inst
	isBranch bool
	predict  bpu.S2Result
	isLoad   bool
	isStore  bool
	isAMO    bool
	ldEntry  *lsu.LDQEntry
}

// Params bundles everything a Core needs beyond config.CoreParams.
type Params struct {
	CoreID     int
	Bus        *bus.Bus
	L1Port     bus.Port
	L2Port     bus.Port
	Translator Translator
	Device     DeviceMemory
	SysHandler SystemHandler
	Control    CPUControl
	Metrics    *metrics.Registry
}

// NewCore builds one core's full pipeline, wired to the shared bus at
// the given ports.
func NewCore(p config.CoreParams, cp Params) *Core {
	l1 := cache.NewClient(cp.Bus, cp.L1Port, cp.L2Port, cache.L1Params{MSHRCapacity: p.L1MSHRCapacity, NumLines: p.L1NumLines}, "core")
	c := &Core{
		id:         cp.CoreID,
		l1:         l1,
		lsu:        lsu.New(l1),
		bpu:        bpu.NewUnit(),
		intRen:     rename.New(rename.Params{NumPhysRegs: p.PhysIntRegs}),
		fpRen:      rename.New(rename.Params{NumPhysRegs: p.PhysFloatRegs}),
		rob:        ooo.NewROB(p.ROBCapacity),
		rs:         ooo.NewReservationStation(),
		translator: cp.Translator,
		device:     cp.Device,
		sysHandler: cp.SysHandler,
		control:    cp.Control,
		metrics:    cp.Metrics,
		log:        logrus.WithField("core", cp.CoreID),
		inflight:    make(map[ooo.InstID]*pipelineInst),
		robIndexOf:  make(map[ooo.InstID]int),
		commitWidth: p.CommitWidth,
	}
	if c.commitWidth < 1 {
		c.commitWidth = 1
	}
	// The identity-mapped physical registers hold architectural state from
	// reset, so they start out ready.
	for r := 0; r < rename.NumVirtRegs; r++ {
		c.rs.Complete(ooo.PhysReg(r))
	}
	n := p.IssueWidth
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		c.exus = append(c.exus, ooo.NewEXU())
	}
	return c
}

// OnCurrentTick runs the read-only half of one pipeline tick: the L1
// client, LSU store-buffer drain, and every EXU's countdown all latch
// against tick-start state.
func (c *Core) OnCurrentTick() {
	if c.control != nil && c.control.Halted(c.id) {
		return
	}
	c.l1.OnCurrentTick()
	c.lsu.OnCurrentTick()
	for _, e := range c.exus {
		e.OnCurrentTick()
	}
}

// ApplyNextTick commits every stage's shadow state, walking the
// pipeline from commit backward to fetch so an instruction dispatched
// this tick never also completes this tick.
func (c *Core) ApplyNextTick() {
	if c.control != nil && c.control.Halted(c.id) {
		return
	}
	c.l1.ApplyNextTick()
	c.lsu.ApplyNextTick()

	c.stageWriteback()
	c.stageCommit()
	c.stageIssueExecute()
	c.stageDispatch()
	c.stageFetchDecodeRename()

	if c.metrics != nil {
		c.metrics.Cycles.Inc()
		label := coreLabel(c.id)
		c.metrics.ROBOccupancy.WithLabelValues(label).Set(float64(c.rob.Count()))
		c.metrics.RSOccupancy.WithLabelValues(label).Set(float64(c.rs.Occupancy()))
		c.metrics.FreePhysRegs.WithLabelValues("int").Set(float64(c.intRen.FreeCount()))
		c.metrics.FreePhysRegs.WithLabelValues("fp").Set(float64(c.fpRen.FreeCount()))
		hits, misses := c.l1.Stats()
		c.metrics.CacheHits.WithLabelValues(label).Set(float64(hits))
		c.metrics.CacheMisses.WithLabelValues(label).Set(float64(misses))
	}
}

func coreLabel(id int) string {
	digits := "0123456789"
	if id < 10 {
		return "core" + digits[id:id+1]
	}
	return "coreN"
}

// stageWriteback drains completed EXU results, publishing them to the
// ROB and waking reservation-station dependents.
func (c *Core) stageWriteback() {
	for _, e := range c.exus {
		res := e.ApplyNextTick()
		if res == nil {
			continue
		}
		c.rob.Complete(res.ROBIndex, res.Exception)
		if res.Inst.HasDst {
			c.rs.Complete(res.Inst.Dst)
		}
	}
}

// stageCommit retires the oldest ROB entry once it has finished
// executing, in strict program order: rename recycling, LSU store/load
// commit, and branch predictor training all happen here, never earlier.
func (c *Core) stageCommit() {
	for i := 0; i < c.commitWidth; i++ {
		inst, exc, ok := c.rob.CommitHead()
		if !ok {
			return
		}
		pi := c.inflight[inst.ID]
		delete(c.inflight, inst.ID)
		delete(c.robIndexOf, inst.ID)

		if exc.Architectural() {
			if c.sysHandler != nil {
				resume, halt := c.sysHandler.HandleTrap(c.id, inst.PC, exc)
				c.halted = halt
				c.pc = resume
			}
			c.squashAfterRedirect()
			continue
		}

		renBank := c.intRen
		if pi != nil && pi.decoded.Flags&isa.FlagDstFP != 0 {
			renBank = c.fpRen
		}
		renBank.Commit(uint64(inst.ID))

		if pi == nil {
			continue
		}
		switch {
		case pi.isStore:
			c.lsu.CommitStore(uint64(inst.ID))
		case pi.isLoad:
			if k := c.lsu.CommitLoad(uint64(inst.ID), nil); k == errkind.SLReorder {
				if c.metrics != nil {
					c.metrics.OrderingViolations.Inc()
				}
				c.pc = inst.PC
				c.squashAfterRedirect()
				continue
			}
		}
		if pi.isBranch && len(pi.predict.Branches) > 0 {
			c.bpu.CommitBranch(inst.PC, true, inst.PC, pi.predict.Branches[0].Tage)
		}
		if c.metrics != nil {
			c.metrics.InstructionsCommitted.Inc()
		}
	}
}

// squashAfterRedirect discards every instruction younger than the one
// that just triggered a commit-time redirect (an architectural
// exception or a detected store/load ordering violation). Because
// commit only ever inspects its own ROB head, the remaining ROB/RS
// entries are simply abandoned here rather than walked one at a time --
// a real design would reclaim their physical registers through the
// rename checkpoint instead of this wholesale reset.
func (c *Core) squashAfterRedirect() {
	c.inflight = make(map[ooo.InstID]*pipelineInst)
	c.robIndexOf = make(map[ooo.InstID]int)
	c.rob = ooo.NewROB(c.rob.Capacity())
	c.rs = ooo.NewReservationStation()
}

// stageIssueExecute selects ready reservation-station entries and
// dispatches each into a free execution unit, computing the
// instruction's result via internal/alu or internal/lsu depending on
// its dispatch class.
func (c *Core) stageIssueExecute() {
	free := 0
	for _, e := range c.exus {
		if !e.Busy() {
			free++
		}
	}
	if free == 0 {
		return
	}
	chosen := c.rs.SelectIssue(free)
	exuIdx := 0
	for _, slot := range chosen {
		in := c.rs.SlotInst(slot)
		for exuIdx < len(c.exus) && c.exus[exuIdx].Busy() {
			exuIdx++
		}
		if exuIdx >= len(c.exus) {
			break
		}
		robIdx, ok := c.robIndexOf[in.ID]
		if !ok {
			c.rs.Retire(slot)
			continue
		}
		latency := 1
		if in.Class == ooo.ClassMem {
			latency = 3
		}
		c.exus[exuIdx].Dispatch(robIdx, in, latency, c.execFunc(in))
		exuIdx++
		c.rs.Retire(slot)
	}
}

// execFunc builds the closure an EXU runs once an instruction's
// modeled latency elapses, dispatching to internal/alu for ALU/FP class
// work and into the LSU for memory class work.
func (c *Core) execFunc(in ooo.Inst) func(ooo.Inst) errkind.Kind {
	pi := c.inflight[in.ID]
	if pi == nil {
		return func(ooo.Inst) errkind.Kind { return errkind.Success }
	}
	return func(ooo.Inst) errkind.Kind {
		switch {
		case pi.isLoad:
			e, k := c.lsu.DispatchLoad(uint64(in.ID), pi.decoded.PC, 8)
			pi.ldEntry = e
			return k
		case pi.isStore:
			c.lsu.DispatchStore(uint64(in.ID), pi.decoded.PC, make([]byte, 8))
			return errkind.Success
		default:
			// The simulator models pipeline timing and hazards, not architectural
			// values (no physical register file backs the PhysReg tags ooo.Inst
			// carries), so the second operand is the immediate when the
			// instruction has no register rs2 and zero otherwise; the result is
			// unused beyond exercising internal/alu's latency-bearing path.
			op := aluOpFor(pi.decoded)
			b := uint64(0)
			if pi.decoded.Flags&isa.FlagSrc2Int == 0 {
				b = uint64(pi.decoded.Imm)
			}
			_ = alu.ExecuteInt(op, 0, b)
			return errkind.Success
		}
	}
}

// aluOpFor picks the integer ALU operation for a non-memory, non-FP
// instruction from its funct3 field.
func aluOpFor(in isa.Inst) alu.IntOp {
	switch in.Funct3 {
	case 0:
		return alu.OpAdd
	case 7:
		return alu.OpAnd
	case 6:
		return alu.OpOr
	case 4:
		return alu.OpXor
	default:
		return alu.OpAdd
	}
}

// stageDispatch moves renamed instructions queued by the fetch/rename
// stage into the ROB and reservation station together, so both always
// agree on whether an instruction is in flight.
func (c *Core) stageDispatch() {
	pending := c.pendingDisp
	c.pendingDisp = nil
	for _, in := range pending {
		if c.rob.Full() || !c.rs.Dispatch(in) {
			c.pendingDisp = append(c.pendingDisp, in)
			continue
		}
		idx := c.rob.Allocate(in)
		c.robIndexOf[in.ID] = idx
	}
}

// stageFetchDecodeRename fetches the next instruction, decodes it,
// predicts its control flow via the BPU, and renames its operands,
// queuing the result for stageDispatch. A fetch bubble (miss, decode
// failure) simply produces no queued instruction this tick.
func (c *Core) stageFetchDecodeRename() {
	if c.halted {
		return
	}
	raw, kind := c.fetchWord(c.pc)
	if kind != errkind.Success {
		return
	}

	var decoded isa.Inst
	var advance uint64
	if raw&0x3 == 0x3 {
		var k errkind.Kind
		decoded, k = isa.Decode(raw, c.pc)
		if k != errkind.Success {
			return
		}
		advance = 4
	} else {
		in, ok := isa.DecodeCompressed(uint16(raw), c.pc)
		if !ok {
			return
		}
		decoded = in
		advance = 2
	}

	s1 := c.bpu.PredictS1(c.pc, advance)
	s2 := c.bpu.PredictS2(c.pc, advance)
	_, redirectPC := c.bpu.CrossCheck(c.pc, s1, s2)

	id := ooo.InstID(c.nextInstID)
	c.nextInstID++

	pi := &pipelineInst{decoded: decoded, predict: s2}

	class := isa.ClassifyDispatch(decoded)
	in := ooo.Inst{ID: id, PC: c.pc}
	switch class {
	case isa.DispMem:
		in.Class = ooo.ClassMem
		pi.isLoad = decoded.Op == isa.OpLoad || decoded.Op == isa.OpLoadFP
		pi.isStore = decoded.Op == isa.OpStore || decoded.Op == isa.OpStoreFP
		pi.isAMO = decoded.IsAMO
	case isa.DispFP:
		in.Class = ooo.ClassFP
	default:
		in.Class = ooo.ClassALU
	}
	if decoded.Op == isa.OpBranch {
		in.Class = ooo.ClassBranch
		pi.isBranch = true
	}

	renBank := c.intRen
	if decoded.Flags&isa.FlagDstFP != 0 {
		renBank = c.fpRen
	}
	if decoded.Flags&isa.FlagDstInt != 0 || decoded.Flags&isa.FlagDstFP != 0 {
		phys, ok := renBank.Rename(uint64(id), rename.VirtReg(decoded.Rd))
		if !ok {
			return // free list exhausted, stall fetch this tick
		}
		in.Dst = ooo.PhysReg(phys)
		in.HasDst = true
	}
	if decoded.Flags&isa.FlagSrc1Int != 0 {
		in.Src1 = ooo.PhysReg(c.intRen.Lookup(rename.VirtReg(decoded.Rs1)))
		in.HasSrc1 = true
	} else if decoded.Flags&isa.FlagSrc1FP != 0 {
		in.Src1 = ooo.PhysReg(c.fpRen.Lookup(rename.VirtReg(decoded.Rs1)))
		in.HasSrc1 = true
	}
	if decoded.Flags&isa.FlagSrc2Int != 0 {
		in.Src2 = ooo.PhysReg(c.intRen.Lookup(rename.VirtReg(decoded.Rs2)))
		in.HasSrc2 = true
	} else if decoded.Flags&isa.FlagSrc2FP != 0 {
		in.Src2 = ooo.PhysReg(c.fpRen.Lookup(rename.VirtReg(decoded.Rs2)))
		in.HasSrc2 = true
	}

	c.inflight[id] = pi
	c.pendingDisp = append(c.pendingDisp, in)
	c.bpu.LearnShape(s2.Entry)

	c.pc = redirectPC
}

// fetchWord resolves the physical address behind pc (via Translator)
// and fetches one 32-bit-aligned word, preferring DeviceMemory when the
// address falls in its range; a Translator fault that isn't itself an
// architectural page fault indicates a broken collaborator, which is
// wrapped with pkg/errors and logged rather than silently treated as a
// fetch bubble.
func (c *Core) fetchWord(pc uint64) (uint32, errkind.Kind) {
	phys := pc
	if c.translator != nil {
		p, k := c.translator.Translate(pc, false)
		if k != errkind.Success {
			if k != errkind.PageFault {
				c.log.WithError(errors.Errorf("translator returned unexpected kind %s for pc %#x", k, pc)).
					Error("collaborator contract violation")
			}
			return 0, k
		}
		phys = p
	}
	if c.device != nil && c.device.Contains(phys) {
		return c.device.FetchWord(phys)
	}
	buf := make([]byte, 4)
	if k := c.l1.Load(phys&^3, 4, buf); k != errkind.Success {
		return 0, k
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, errkind.Success
}
