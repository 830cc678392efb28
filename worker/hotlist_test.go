package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHotlist_RegisterAddsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHotlist()
	h.Register(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("expected 1 registered metric family, got %d", len(families))
	}
}

func TestHotlist_RecordFailureDoesNotPanicOnOccasionalFailures(t *testing.T) {
	h := NewHotlist()
	for i := 0; i < 5; i++ {
		h.RecordFailure("sub-occasional")
	}
}

func TestHotlist_RecordFailureSurfacesSustainedOffender(t *testing.T) {
	h := NewHotlist()
	reg := prometheus.NewRegistry()
	h.Register(reg)

	// The underlying sketch only flags an item once its count within the
	// sliding window clears the share threshold; one subscription failing on
	// every tick across the whole window crosses it.
	for i := 0; i < 50*12; i++ {
		h.RecordFailure("sub-always-failing")
	}

	value := testutil.ToFloat64(h.gauge.WithLabelValues("sub-always-failing"))
	if value != 1 {
		t.Fatalf("expected sub-always-failing to be surfaced with gauge value 1, got %v", value)
	}
}
