package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	r.CompletedReads.Inc()
	r.CoherenceMsgs.WithLabelValues("gets").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}

	var found bool
	for _, f := range families {
		if f.GetName() == "suprax_mem_completed_reads_total" {
			found = true
			if got := f.Metric[0].GetCounter().GetValue(); got != 1 {
				t.Fatalf("expected completed reads counter at 1, got %v", got)
			}
		}
	}
	if !found {
		t.Fatalf("completed reads counter not found in gathered families")
	}
}
