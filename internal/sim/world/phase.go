package world

import "tycoonsim.dev/internal/sim/catalogs"

type phaseState struct {
	current     int
	goalReached bool
}

func (w *World) phaseProgress(g catalogs.Goal) float64 {
	switch g.Type {
	case catalogs.GoalConverts:
		return float64(w.stats.TotalConverts)
	case catalogs.GoalInfluence:
		return w.ledger.Points
	case catalogs.GoalTime:
		return w.elapsed
	}
	return 0
}

// checkPhaseGoal latches goalReached once progress meets the current phase target.
func (w *World) checkPhaseGoal() {
	if w.phase.goalReached {
		return
	}
	p, ok := w.theme.Phase(w.phase.current)
	if !ok || p.Goal.Target <= 0 {
		return
	}
	if w.phaseProgress(p.Goal) >= p.Goal.Target {
		w.phase.goalReached = true
		w.eventf("goal reached: %s", p.Goal.Description)
	}
}
