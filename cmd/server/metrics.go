package main

import (
	"fmt"
	"io"

	"tycoonsim.dev/internal/persistence/indexdb"
	"tycoonsim.dev/internal/sim/world"
)

// writeMetrics renders the Prometheus text exposition for one world.
func writeMetrics(out io.Writer, m world.WorldMetrics, tick uint64, store indexdb.QueueStats, saves *saveWriter) {
	th := m.Theme
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge(out, "tycoon_world_tick", "Current world tick.")
	fmt.Fprintf(out, "tycoon_world_tick{theme=%q} %d\n", th, tick)

	gauge(out, "tycoon_world_actors", "Actors currently on the map.")
	fmt.Fprintf(out, "tycoon_world_actors{theme=%q} %d\n", th, m.Actors)

	gauge(out, "tycoon_world_subscribers", "Connected frame subscribers.")
	fmt.Fprintf(out, "tycoon_world_subscribers{theme=%q} %d\n", th, m.Subscribers)

	gauge(out, "tycoon_world_capacity", "Maximum concurrent actors.")
	fmt.Fprintf(out, "tycoon_world_capacity{theme=%q} %d\n", th, m.Capacity)

	gauge(out, "tycoon_ledger_balance", "Ledger balances.")
	fmt.Fprintf(out, "tycoon_ledger_balance{theme=%q,ledger=%q} %.2f\n", th, "currency", m.Currency)
	fmt.Fprintf(out, "tycoon_ledger_balance{theme=%q,ledger=%q} %.2f\n", th, "points", m.Points)

	gauge(out, "tycoon_world_mood", "Global mood (0..100).")
	fmt.Fprintf(out, "tycoon_world_mood{theme=%q} %.3f\n", th, m.Mood)

	gauge(out, "tycoon_world_campaign_power", "Campaign power (0..100).")
	fmt.Fprintf(out, "tycoon_world_campaign_power{theme=%q} %.3f\n", th, m.CampaignPower)

	gauge(out, "tycoon_converts", "Converted actors.")
	fmt.Fprintf(out, "tycoon_converts{theme=%q,kind=%q} %d\n", th, "total", m.TotalConverts)
	fmt.Fprintf(out, "tycoon_converts{theme=%q,kind=%q} %d\n", th, "active", m.ActiveConverts)

	gauge(out, "tycoon_attempts", "Conversion attempts since start.")
	fmt.Fprintf(out, "tycoon_attempts{theme=%q} %d\n", th, m.Attempts)

	gauge(out, "tycoon_success_rate", "Share of attempts that converted.")
	fmt.Fprintf(out, "tycoon_success_rate{theme=%q} %.6f\n", th, m.SuccessRate)

	gauge(out, "tycoon_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(out, "tycoon_world_queue_depth{theme=%q,queue=%q} %d\n", th, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "tycoon_world_queue_depth{theme=%q,queue=%q} %d\n", th, "subscribe", m.QueueDepths.Subscribe)
	fmt.Fprintf(out, "tycoon_world_queue_depth{theme=%q,queue=%q} %d\n", th, "save", m.QueueDepths.Save)

	gauge(out, "tycoon_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "tycoon_world_step_ms{theme=%q} %.3f\n", th, m.StepMS)

	gauge(out, "tycoon_store_queue_depth", "Outcome writer queue depth.")
	fmt.Fprintf(out, "tycoon_store_queue_depth %d\n", store.QueueDepth)
	gauge(out, "tycoon_store_queue_capacity", "Outcome writer queue capacity.")
	fmt.Fprintf(out, "tycoon_store_queue_capacity %d\n", store.QueueCapacity)
	counter(out, "tycoon_store_outcome_dropped_total", "Outcome rows dropped because the writer queue was full.")
	fmt.Fprintf(out, "tycoon_store_outcome_dropped_total %d\n", store.DropOutcomeTotal)

	if saves == nil {
		return
	}
	counter(out, "tycoon_saves_written_total", "Saves persisted by the save writer.")
	fmt.Fprintf(out, "tycoon_saves_written_total %d\n", saves.written.Load())
	counter(out, "tycoon_saves_failed_total", "Saves the writer failed to persist.")
	fmt.Fprintf(out, "tycoon_saves_failed_total %d\n", saves.failed.Load())
	gauge(out, "tycoon_saves_last_tick", "Tick of the last persisted save.")
	fmt.Fprintf(out, "tycoon_saves_last_tick %d\n", saves.lastTick.Load())
}

func gauge(out io.Writer, name, help string) {
	fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
}

func counter(out io.Writer, name, help string) {
	fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
}
