package reporter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestReportIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "p2pnode_test")

	r.Report(Outbound1, 1)
	r.Report(Outbound1, 2)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var got float64
	for _, mf := range metrics {
		if mf.GetName() == "p2pnode_test_p2p_outbound1_total" {
			got = *mf.Metric[0].Counter.Value
		}
	}
	if got != 3 {
		t.Errorf("outbound1 total = %v, want 3", got)
	}
}

func TestNoopDiscardsReports(t *testing.T) {
	Noop.Report(Stop, 1) // must not panic
}
