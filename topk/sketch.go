package topk

import (
	"sync"
	"time"

	"github.com/keilerkonzept/topk/sliding"
)

// SketchParams holds the configuration for creating a new TopKSketch.
type SketchParams struct {
	// K is the number of top items to keep track of in the sketch.
	K int
	// WindowSize is the size of the sliding window, measured in ticks. The total
	// theoretical capacity of the window is `WindowSize * TickSize`. For example,
	// if WindowSize is 10 and TickSize is 100, the window capacity is 1000 items.
	WindowSize int
	// Width is the width of the underlying Count-Min sketch. A larger width
	// reduces the probability of over-counting but increases memory usage.
	Width int
	// Depth is the depth of the underlying Count-Min sketch. A larger depth
	// also reduces over-counting at the cost of more memory.
	Depth int
	// TickSize is the number of items that constitute a single "tick". After
	// this many items, the sketch's internal clock advances.
	TickSize uint64
	// SurfaceSharePercent is the percentage of the total window capacity that
	// a single item must exceed before ProcessTick surfaces it. A lower value
	// surfaces offenders sooner but with more false positives from ordinary
	// variance; a higher value requires a more dominant, sustained offender.
	SurfaceSharePercent int
	// ActivationRate is the minimum items-per-second throughput a tick must
	// reach for surfacing to engage. Below it, volume is too low for the
	// share threshold to be meaningful, and ProcessTick only advances the
	// window without surfacing anything.
	ActivationRate int
}

// TopKSketch provides a thread-safe wrapper around a sliding window sketch
// for tracking the items appearing most often in a stream.
type TopKSketch struct {
	mu                  sync.Mutex
	sketch              *sliding.Sketch
	tickSize            uint64 // items per tick
	tickCount           uint64 // items seen since the last tick
	lastTickTime        time.Time
	surfaceSharePercent int
	activationRate      int
}

// New creates a new thread-safe sketch wrapper.
// It initializes the underlying sliding window sketch with the given parameters.
func New(params SketchParams) *TopKSketch {
	sketchInstance := sliding.New(params.K, params.WindowSize, sliding.WithWidth(params.Width), sliding.WithDepth(params.Depth))

	return &TopKSketch{
		sketch:              sketchInstance,
		tickSize:            params.TickSize,
		lastTickTime:        time.Now(),
		surfaceSharePercent: params.SurfaceSharePercent,
		activationRate:      params.ActivationRate,
	}
}

// ProcessTick records one occurrence of item. If this completes a tick, it
// evaluates the window against SurfaceSharePercent/ActivationRate and
// returns the items that crossed the share threshold; callers decide what
// to do with a surfaced item (block it, alert on it, rank it).
func (cs *TopKSketch) ProcessTick(item string) []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.sketch.Incr(item)
	cs.tickCount++

	if cs.tickCount >= cs.tickSize {
		cs.tickCount = 0
		now := time.Now()
		duration := now.Sub(cs.lastTickTime)
		cs.lastTickTime = now

		var rate float64
		if duration.Seconds() > 0 {
			rate = float64(cs.tickSize) / duration.Seconds()
		}

		// Gate 1: is throughput high enough for the share threshold to mean anything?
		if rate < float64(cs.activationRate) {
			cs.sketch.Tick() // still slide the window, just don't surface anything
			return nil
		}

		// Gate 2: does any item dominate the window?
		windowCapacity := uint64(cs.sketch.WindowSize) * cs.tickSize
		thresholdCount := (windowCapacity * uint64(cs.surfaceSharePercent)) / 100

		var surfaced []string
		// Evaluated before Tick() so the window just completed is what gets judged.
		for _, entry := range cs.sketch.SortedSlice() {
			if entry.Count > uint32(thresholdCount) {
				surfaced = append(surfaced, entry.Item)
			} else {
				break // sorted descending, so nothing further can qualify
			}
		}

		cs.sketch.Tick()
		return surfaced
	}

	return nil
}
