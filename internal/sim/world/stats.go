package world

import "tycoonsim.dev/internal/protocol"

// Stats are cumulative counters for the session.
type Stats struct {
	TotalConverts int
	Attempts      int
	Successes     int
	Spawned       int
	Lost          int

	ByType    map[string]int
	ByBucket  map[string]int
	ByOutcome map[string]int
}

func newStats() Stats {
	return Stats{
		ByType:    map[string]int{},
		ByBucket:  map[string]int{},
		ByOutcome: map[string]int{},
	}
}

// SuccessRate is successes over attempts; no-material visits are not attempts.
func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

func (w *World) activeConverts() int {
	n := 0
	for _, c := range w.converted {
		n += c
	}
	return n
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StatsView must be called from the world loop goroutine (or a test that owns the world).
func (w *World) StatsView() protocol.StatsView {
	return protocol.StatsView{
		TotalConverts:  w.stats.TotalConverts,
		ActiveConverts: w.activeConverts(),
		Attempts:       w.stats.Attempts,
		SuccessRate:    w.stats.SuccessRate(),
		ByType:         copyCounts(w.converted),
		ByBucket:       copyCounts(w.stats.ByBucket),
		ByOutcome:      copyCounts(w.stats.ByOutcome),
		SpawnInterval:  w.effectiveSpawnInterval(),
		PriceAttract:   PriceAttractiveness(w.theme.Decision, w.resources),
	}
}
