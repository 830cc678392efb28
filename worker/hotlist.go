package worker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/caasmo/hookrelay/topk"
)

// Hotlist tracks which subscriptions are failing most using a sliding
// window top-k sketch. A subscription is surfaced once its share of recent
// failures crosses surfaceSharePercent, the same mechanism the teacher uses
// to single out a dominant source IP, applied here to subscription_id with
// no blocking action: a surfaced subscription only sets an operator-facing
// gauge.
type Hotlist struct {
	sketch *topk.TopKSketch
	gauge  *prometheus.GaugeVec
}

func NewHotlist() *Hotlist {
	return &Hotlist{
		sketch: topk.New(topk.SketchParams{
			K:          10,
			WindowSize: 10,
			Width:      256,
			Depth:      4,
			TickSize:   50,
			// A subscription owning more than a third of a 500-failure
			// window is a sustained offender, not an occasional blip.
			SurfaceSharePercent: 35,
			// Below one failure per second, a single bad deploy elsewhere
			// could dominate a window by chance; require sustained volume
			// before trusting the share threshold.
			ActivationRate: 1,
		}),
		gauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hookrelay_worker_hot_failing_subscription",
			Help: "Set to 1 for each subscription that has been surfaced as failing most.",
		}, []string{"subscription_id"}),
	}
}

func (h *Hotlist) Register(reg prometheus.Registerer) {
	reg.MustRegister(h.gauge)
}

// RecordFailure feeds a failed attempt's subscription into the sketch. Each
// completed tick surfaces the subscriptions currently over the share
// threshold, and each one's gauge series is set to 1; a series, once set,
// is never removed or reset.
func (h *Hotlist) RecordFailure(subscriptionID string) {
	hot := h.sketch.ProcessTick(subscriptionID)
	for _, id := range hot {
		h.gauge.WithLabelValues(id).Set(1)
	}
}
