package sim

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/suprax-sim/suprax/internal/config"
	"github.com/suprax-sim/suprax/internal/metrics"
	"github.com/suprax-sim/suprax/internal/sim/simtest"
)

func TestNewSystemWiresOneCorePerConfiguredCore(t *testing.T) {
	p := config.Defaults()
	p.NumCores = 2

	rom := &simtest.ROM{Base: 0, Words: []uint32{addiX1X0_5}}
	s := NewSystem(p, SystemParams{
		MemBytes:   make([]byte, 4096),
		Translator: simtest.IdentityTranslator{},
		Device:     rom,
		SysHandler: &simtest.RecordingHandler{Halt: true},
		Control:    simtest.NeverHalt{},
		Metrics:    metrics.NewRegistry(prometheus.NewRegistry()),
	})

	if len(s.Cores()) != 2 {
		t.Fatalf("expected 2 cores, got %d", len(s.Cores()))
	}

	for i := 0; i < 50; i++ {
		s.Run(1)
	}

	for i, c := range s.Cores() {
		if c.nextInstID == 0 {
			t.Fatalf("core %d never fetched an instruction", i)
		}
	}
}
