package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick  uint64 `json:"tick"`
	Theme string `json:"theme"`

	Actors      int `json:"actors"`
	Subscribers int `json:"subscribers"`

	Currency      float64 `json:"currency"`
	Points        float64 `json:"points"`
	Mood          float64 `json:"mood"`
	CampaignPower float64 `json:"campaign_power"`
	Capacity      int     `json:"capacity"`

	TotalConverts  int     `json:"total_converts"`
	ActiveConverts int     `json:"active_converts"`
	Attempts       int     `json:"attempts"`
	SuccessRate    float64 `json:"success_rate"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox     int `json:"inbox"`
	Subscribe int `json:"subscribe"`
	Save      int `json:"save"`
}

func (w *World) publishMetrics(stepDur time.Duration) {
	w.metrics.Store(WorldMetrics{
		Tick:           w.tick.Load(),
		Theme:          w.theme.ID,
		Actors:         len(w.actors),
		Subscribers:    len(w.subs),
		Currency:       w.ledger.Currency,
		Points:         w.ledger.Points,
		Mood:           w.mood,
		CampaignPower:  w.campaignPower,
		Capacity:       w.capacity,
		TotalConverts:  w.stats.TotalConverts,
		ActiveConverts: w.activeConverts(),
		Attempts:       w.stats.Attempts,
		SuccessRate:    w.stats.SuccessRate(),
		QueueDepths: QueueDepths{
			Inbox:     len(w.inbox),
			Subscribe: len(w.subscribe),
			Save:      len(w.saveCh),
		},
		StepMS: float64(stepDur.Microseconds()) / 1000,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
