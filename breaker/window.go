package breaker

import (
	"time"

	"github.com/hookwise/core/store"
)

// windowStats summarizes the sliding window (spec.md §4.C: last 20
// recorded deliveries plus the incoming one).
type windowStats struct {
	windowSize    int
	successRate   float64
	avgResponseMs float64
}

// computeWindow folds the incoming outcome into the most recent persisted
// deliveries. recent is expected ordered most-recent-first and already
// capped to windowSize by the store.
func computeWindow(recent []store.Delivery, incomingSuccess bool, incomingRTT time.Duration) windowStats {
	total := len(recent) + 1
	successes := 0
	var sumMs float64

	for _, d := range recent {
		if d.Succeeded() {
			successes++
		}
		if d.ResponseTimeMs != nil {
			sumMs += float64(*d.ResponseTimeMs)
		}
	}
	if incomingSuccess {
		successes++
	}
	sumMs += float64(incomingRTT.Milliseconds())

	return windowStats{
		windowSize:    total,
		successRate:   float64(successes) / float64(total),
		avgResponseMs: sumMs / float64(total),
	}
}
