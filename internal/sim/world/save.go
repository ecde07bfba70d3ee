package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"tycoonsim.dev/internal/persistence/snapshot"
)

type saveReq struct {
	Resp chan saveResp
}

type saveResp struct {
	Tick uint64
	Err  string
}

// RequestSave asks the world loop goroutine to hand the current state to the save sink.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSave(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.saveCh == nil {
		return 0, errors.New("save not available")
	}
	resp := make(chan saveResp, 1)

	select {
	case w.saveCh <- saveReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSaveRequests(reqs []saveReq) {
	if len(reqs) == 0 {
		return
	}
	errStr := ""
	if err := w.emitSave(); err != nil {
		errStr = err.Error()
	}
	resp := saveResp{Tick: w.tick.Load(), Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Caller gave up; don't block the sim loop.
		}
	}
}

// emitSave exports the state and hands it to the sink without blocking.
func (w *World) emitSave() error {
	if w.snapshotSink == nil {
		return errNoSink
	}
	s := w.ExportSave(w.tick.Load())
	select {
	case w.snapshotSink <- s:
		return nil
	default:
		return errors.New("save sink backpressure")
	}
}

// ExportSave captures the full mutable state. Must be called from the world loop
// goroutine, or from a test that owns the world.
func (w *World) ExportSave(nowTick uint64) snapshot.SaveV3 {
	s := snapshot.SaveV3{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Theme:   w.theme.ID,
			Tick:    nowTick,
			SavedAt: time.Now().Unix(),
		},
		Seed:           w.cfg.Seed,
		Elapsed:        w.elapsed,
		Currency:       w.ledger.Currency,
		Points:         w.ledger.Points,
		Mood:           w.mood,
		CampaignPower:  w.campaignPower,
		Capacity:       w.capacity,
		SpawnInterval:  w.spawnInterval,
		SpawnTimer:     w.spawnTimer,
		SettleTimer:    w.settleTimer,
		AttritionTimer: w.attritionTimer,
		HelperTimer:    w.helperTimer,
		Resources:      make([]snapshot.ResourceV3, 0, len(w.resources)),
		Stations:       make([]snapshot.StationV3, 0, len(w.stations)),
		Helpers:        make([]snapshot.HelperV3, 0, len(w.helpers)),
		Actors:         make([]snapshot.ActorV3, 0, len(w.actors)),
		Converted:      copyCounts(w.converted),
		Counters: snapshot.CountersV3{
			Campaigns:  w.counters.campaigns,
			Expansions: w.counters.expansions,
			Restocks:   copyCounts(w.counters.restocks),
			Hires:      copyCounts(w.counters.hires),
			NextHelper: w.counters.nextHelper,
		},
		Stats: snapshot.StatsV3{
			TotalConverts: w.stats.TotalConverts,
			Attempts:      w.stats.Attempts,
			Successes:     w.stats.Successes,
			Spawned:       w.stats.Spawned,
			Lost:          w.stats.Lost,
			ByType:        copyCounts(w.stats.ByType),
			ByBucket:      copyCounts(w.stats.ByBucket),
			ByOutcome:     copyCounts(w.stats.ByOutcome),
		},
		Phase: snapshot.PhaseV3{
			Current:     w.phase.current,
			GoalReached: w.phase.goalReached,
		},
	}
	for _, r := range w.resources {
		s.Resources = append(s.Resources, snapshot.ResourceV3{
			ID:         r.ID,
			Name:       r.Name,
			Price:      r.Price,
			Cost:       r.Cost,
			Appeal:     r.Appeal,
			Difficulty: r.Difficulty,
			Impact:     r.Impact,
			Stock:      r.Stock,
			MaxStock:   r.MaxStock,
		})
	}
	for _, st := range w.stations {
		s.Stations = append(s.Stations, snapshot.StationV3{
			ID:       st.ID,
			X:        st.X,
			Y:        st.Y,
			W:        st.W,
			H:        st.H,
			Resource: st.Resource,
		})
	}
	for _, h := range w.helpers {
		s.Helpers = append(s.Helpers, snapshot.HelperV3{
			ID:           h.ID,
			Kind:         h.Kind,
			Active:       h.Active,
			Funded:       h.Funded,
			PaymentTimer: h.PaymentTimer,
			HiredAt:      h.HiredAt,
		})
	}
	for _, a := range w.actors {
		av := snapshot.ActorV3{
			ID:          a.ID,
			Name:        a.Name,
			Age:         a.Age,
			Type:        a.Type,
			Pos:         a.Pos.Array(),
			Vel:         a.Vel.Array(),
			Target:      a.Target.Array(),
			Radius:      a.Radius,
			Speed:       a.Speed,
			Station:     a.Station,
			Resource:    a.Resource,
			Mood:        a.Mood,
			Receptivity: a.Receptivity,
			Patience:    a.Patience,
			Lifetime:    a.Lifetime,
			LeaveTimer:  a.LeaveTimer,
			State:       string(a.State),
			Reason:      string(a.Reason),
			ExitChosen:  a.exitChosen,
		}
		for _, e := range a.exits {
			av.Exits = append(av.Exits, e.Array())
		}
		s.Actors = append(s.Actors, av)
	}
	return s
}

// ImportSave replaces the world state with a decoded save. The save must belong
// to the world's theme. Fields a save leaves zero fall back to theme defaults.
func (w *World) ImportSave(s snapshot.SaveV3) error {
	th := w.theme
	if s.Header.Theme != th.ID {
		return fmt.Errorf("save is for theme %q, world runs %q", s.Header.Theme, th.ID)
	}
	for i, st := range s.Stations {
		if st.Resource < 0 || st.Resource >= len(s.Resources) {
			return fmt.Errorf("station %d references resource %d of %d", i, st.Resource, len(s.Resources))
		}
	}

	w.resetState()

	w.elapsed = s.Elapsed
	w.ledger = Ledger{Currency: s.Currency, Points: s.Points}
	w.mood = clamp(s.Mood, 0, 100)
	w.campaignPower = clamp(s.CampaignPower, 0, 100)
	if s.Capacity > 0 {
		w.capacity = s.Capacity
	}
	if s.SpawnInterval > 0 {
		w.spawnInterval = s.SpawnInterval
	}
	w.spawnTimer = s.SpawnTimer
	w.settleTimer = s.SettleTimer
	w.attritionTimer = s.AttritionTimer
	w.helperTimer = s.HelperTimer

	if len(s.Resources) > 0 {
		w.resources = w.resources[:0]
		for _, r := range s.Resources {
			w.resources = append(w.resources, &Resource{
				ID:         r.ID,
				Name:       r.Name,
				Price:      r.Price,
				Cost:       r.Cost,
				Appeal:     r.Appeal,
				Difficulty: r.Difficulty,
				Impact:     r.Impact,
				Stock:      max(0, r.Stock),
				MaxStock:   r.MaxStock,
			})
		}
	}
	if len(s.Stations) > 0 {
		w.stations = w.stations[:0]
		for _, st := range s.Stations {
			w.stations = append(w.stations, &Station{
				ID:       st.ID,
				X:        st.X,
				Y:        st.Y,
				W:        st.W,
				H:        st.H,
				Resource: st.Resource,
			})
		}
	}

	for _, h := range s.Helpers {
		if _, ok := th.Helper(h.Kind); !ok {
			continue
		}
		w.helpers = append(w.helpers, &Helper{
			ID:           h.ID,
			Kind:         h.Kind,
			Active:       h.Active,
			Funded:       h.Funded,
			PaymentTimer: h.PaymentTimer,
			HiredAt:      h.HiredAt,
		})
	}

	for _, av := range s.Actors {
		a := &Actor{
			ID:          av.ID,
			Name:        av.Name,
			Age:         av.Age,
			Type:        av.Type,
			Pos:         vec2(av.Pos),
			Vel:         vec2(av.Vel),
			Target:      vec2(av.Target),
			Radius:      av.Radius,
			Speed:       av.Speed,
			Station:     av.Station,
			Resource:    av.Resource,
			Mood:        av.Mood,
			Receptivity: av.Receptivity,
			Patience:    av.Patience,
			Lifetime:    av.Lifetime,
			LeaveTimer:  av.LeaveTimer,
			State:       ActorState(av.State),
			Reason:      Outcome(av.Reason),
			exitChosen:  av.ExitChosen,
		}
		for _, e := range av.Exits {
			a.exits = append(a.exits, vec2(e))
		}
		if a.State != StateLeaving {
			a.State = StateTraveling
		}
		w.actors = append(w.actors, a)
	}

	for k, v := range s.Converted {
		w.converted[k] = v
	}
	w.counters.campaigns = s.Counters.Campaigns
	w.counters.expansions = s.Counters.Expansions
	for k, v := range s.Counters.Restocks {
		w.counters.restocks[k] = v
	}
	for k, v := range s.Counters.Hires {
		w.counters.hires[k] = v
	}
	w.counters.nextHelper = s.Counters.NextHelper

	w.stats.TotalConverts = s.Stats.TotalConverts
	w.stats.Attempts = s.Stats.Attempts
	w.stats.Successes = s.Stats.Successes
	w.stats.Spawned = s.Stats.Spawned
	w.stats.Lost = s.Stats.Lost
	for k, v := range s.Stats.ByType {
		w.stats.ByType[k] = v
	}
	for k, v := range s.Stats.ByBucket {
		w.stats.ByBucket[k] = v
	}
	for k, v := range s.Stats.ByOutcome {
		w.stats.ByOutcome[k] = v
	}

	if _, ok := th.Phase(s.Phase.Current); ok {
		w.phase = phaseState{current: s.Phase.Current, goalReached: s.Phase.GoalReached}
	}
	w.tick.Store(s.Header.Tick)

	// A resumed run is a function of (seed, tick), whatever seed this process started with.
	// Seed 0 means the save predates seeding, so the configured seed is kept.
	if s.Seed != 0 {
		w.cfg.Seed = s.Seed
	}
	w.rng = rand.New(rand.NewSource(w.cfg.Seed ^ int64(s.Header.Tick)))
	w.eventf("save restored (tick %d)", s.Header.Tick)
	return nil
}
