package world

import (
	"fmt"
	"strconv"

	"tycoonsim.dev/internal/protocol"
)

// BuildFrame renders the read-only view sent to subscribers. Must be called
// from the world loop goroutine.
func (w *World) BuildFrame(nowTick uint64) protocol.FrameMsg {
	th := w.theme
	f := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		Elapsed:         w.elapsed,
		Currency:        w.ledger.Currency,
		Points:          w.ledger.Points,
		Mood:            w.mood,
		CampaignPower:   w.campaignPower,
		Capacity:        w.capacity,
		Actors:          make([]protocol.ActorView, 0, len(w.actors)),
		Stations:        make([]protocol.StationView, 0, len(w.stations)),
		Resources:       make([]protocol.ResourceView, 0, len(w.resources)),
		Helpers:         make([]protocol.HelperView, 0, len(w.helpers)),
		Stats:           w.StatsView(),
		Log:             w.Events(),
	}

	for _, a := range w.actors {
		color := "#888888"
		if typ, ok := th.ActorType(a.Type); ok && typ.Color != "" {
			color = typ.Color
		}
		f.Actors = append(f.Actors, protocol.ActorView{
			ID:     a.ID,
			Name:   a.Name,
			Type:   a.Type,
			Pos:    a.Pos.Array(),
			Radius: a.Radius,
			Color:  shade(color, 0.8+0.4*a.Mood),
			State:  string(a.State),
			Mood:   a.Mood,
		})
	}

	for _, st := range w.stations {
		sv := protocol.StationView{ID: st.ID, X: st.X, Y: st.Y, W: st.W, H: st.H}
		if st.Resource >= 0 && st.Resource < len(w.resources) {
			r := w.resources[st.Resource]
			sv.Resource = r.ID
			sv.Stock = r.Stock
			sv.MaxStock = r.MaxStock
		}
		f.Stations = append(f.Stations, sv)
	}

	for i, r := range w.resources {
		f.Resources = append(f.Resources, protocol.ResourceView{
			ID:          r.ID,
			Name:        r.Name,
			Price:       r.Price,
			Cost:        r.Cost,
			Appeal:      r.Appeal,
			Stock:       r.Stock,
			RestockCost: w.RestockCost(i),
		})
	}

	for _, h := range w.helpers {
		f.Helpers = append(f.Helpers, protocol.HelperView{
			ID:     h.ID,
			Kind:   h.Kind,
			Active: h.Active,
			Funded: h.Funded,
		})
	}

	hire := make(map[string]float64, len(th.Helpers))
	for _, h := range th.Helpers {
		c, _ := w.HireCost(h.ID)
		hire[h.ID] = c
	}
	f.Costs = protocol.CostsView{
		Campaign:   w.CampaignCost(),
		Expansion:  w.ExpansionCost(),
		RestockAll: w.RestockAllCost(),
		Hire:       hire,
	}

	if p, ok := th.Phase(w.phase.current); ok {
		f.Phase = protocol.PhaseView{
			ID:          p.ID,
			Name:        p.Name,
			Goal:        p.Goal.Description,
			Progress:    w.phaseProgress(p.Goal),
			Target:      p.Goal.Target,
			GoalReached: w.phase.goalReached,
			NextCost:    p.NextCost,
		}
	}
	return f
}

// shade scales a #rrggbb color by k, clamping each channel.
func shade(hex string, k float64) string {
	if len(hex) != 7 || hex[0] != '#' {
		return hex
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return hex
	}
	ch := func(c uint64) int {
		return int(clamp(float64(c)*k, 0, 255))
	}
	return fmt.Sprintf("#%02x%02x%02x", ch(v>>16&0xff), ch(v>>8&0xff), ch(v&0xff))
}
