package sim

import (
	"github.com/suprax-sim/suprax/internal/bus"
	"github.com/suprax-sim/suprax/internal/cache"
	"github.com/suprax-sim/suprax/internal/config"
	"github.com/suprax-sim/suprax/internal/mem"
	"github.com/suprax-sim/suprax/internal/metrics"
)

// System is the multi-core machine: NumCores Core instances sharing one
// internal/bus, one internal/cache.Directory (L2), and one internal/mem.Node,
// exactly the topology spec.md §4 describes (private per-core L1s, a
// shared L2 directory enforcing MOESI, a single memory node behind it).
type System struct {
	bus   *bus.Bus
	l2    *cache.Directory
	mem   *mem.Node
	cores []*Core
}

// SystemParams collects the collaborators every core in a System shares
// the interface boundary with, plus the backing bytes for main memory.
type SystemParams struct {
	MemBytes   []byte
	MemBase    uint64
	Translator Translator
	Device     DeviceMemory
	SysHandler SystemHandler
	Control    CPUControl
	Metrics    *metrics.Registry
}

// firstCorePort leaves room below it for the memory node and L2 ports;
// each core after that claims the next port number.
const (
	memPort       bus.Port = 1
	l2Port        bus.Port = 2
	firstCorePort bus.Port = 3
)

// NewSystem builds a System with p.NumCores cores, each with its own L1
// client and bus port, all sharing one L2 directory and memory node.
func NewSystem(p config.CoreParams, sp SystemParams) *System {
	b := bus.New(128, 16)
	m := mem.New(b, memPort, p.MemQueueDepth, p.MemBytesPerTick, sp.MemBytes, sp.MemBase)
	l2 := cache.NewDirectory(b, l2Port, memPort, cache.L2Params{
		IndexLatency: p.L2IndexLatency,
		IndexWidth:   p.L2IndexWidth,
		NumLines:     p.L2NumLines,
	})

	s := &System{bus: b, l2: l2, mem: m}
	for i := 0; i < p.NumCores; i++ {
		l1Port := firstCorePort + bus.Port(i)
		c := NewCore(p, Params{
			CoreID:     i,
			Bus:        b,
			L1Port:     l1Port,
			L2Port:     l2Port,
			Translator: sp.Translator,
			Device:     sp.Device,
			SysHandler: sp.SysHandler,
			Control:    sp.Control,
			Metrics:    sp.Metrics,
		})
		s.cores = append(s.cores, c)
	}
	return s
}

// Cores exposes the constructed per-core pipelines, e.g. for a CLI
// front-end reporting per-core stats.
func (s *System) Cores() []*Core { return s.cores }

// Tick advances the whole machine by one cycle: bus, memory, L2
// directory and every core's OnCurrentTick run against tick-start state,
// then every ApplyNextTick commits in the same fixed order, so no
// component ever observes another's mid-tick state.
func (s *System) Tick() {
	s.bus.OnCurrentTick()
	s.mem.OnCurrentTick()
	s.l2.OnCurrentTick()
	for _, c := range s.cores {
		c.OnCurrentTick()
	}

	s.bus.ApplyNextTick()
	s.mem.ApplyNextTick()
	s.l2.ApplyNextTick()
	for _, c := range s.cores {
		c.ApplyNextTick()
	}
}

// Run advances the machine for the given number of ticks.
func (s *System) Run(ticks int) {
	for i := 0; i < ticks; i++ {
		s.Tick()
	}
}
