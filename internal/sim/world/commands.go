package world

import (
	"errors"
	"fmt"

	"tycoonsim.dev/internal/protocol"
	"tycoonsim.dev/internal/sim/catalogs"
)

type counters struct {
	campaigns  int
	expansions int
	restocks   map[string]int
	hires      map[string]int
	nextHelper uint64
}

func (w *World) resourceIndex(id string) int {
	for i, r := range w.resources {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (w *World) RestockCost(i int) float64 {
	r := w.resources[i]
	rs := w.theme.Restock
	return EscalatingCost(r.Cost*float64(rs.Quantity), rs.Multiplier, w.counters.restocks[r.ID])
}

func (w *World) RestockAllCost() float64 {
	var total float64
	for i := range w.resources {
		total += w.RestockCost(i)
	}
	return total
}

func (w *World) CampaignCost() float64 {
	c := w.theme.Campaign
	return EscalatingCost(c.BaseCost, c.Multiplier, w.counters.campaigns)
}

func (w *World) ExpansionCost() float64 {
	e := w.theme.Expansion
	return EscalatingCost(e.BaseCost, e.Multiplier, w.counters.expansions)
}

// HireCost counts every hire of the kind, dismissed ones included.
func (w *World) HireCost(kind string) (float64, bool) {
	def, ok := w.theme.Helper(kind)
	if !ok {
		return 0, false
	}
	return EscalatingCost(def.Cost, def.CostMultiplier, w.counters.hires[kind]), true
}

// applyCommand executes one input-collaborator command at a tick boundary.
func (w *World) applyCommand(cmd protocol.CmdMsg) protocol.Result {
	var res protocol.Result
	switch cmd.Cmd {
	case protocol.CmdRestock:
		res = w.cmdRestock(cmd.Resource)
	case protocol.CmdRestockAll:
		res = w.cmdRestockAll()
	case protocol.CmdCampaign:
		res = w.cmdCampaign()
	case protocol.CmdExpand:
		res = w.cmdExpand()
	case protocol.CmdHire:
		res = w.cmdHire(cmd.Helper)
	case protocol.CmdDismiss:
		res = w.cmdDismiss(cmd.Helper)
	case protocol.CmdAdjust:
		res = w.cmdAdjust(cmd.Resource, cmd.Delta)
	case protocol.CmdAdvancePhase:
		res = w.cmdAdvancePhase()
	case protocol.CmdSave:
		res = w.cmdSave()
	case protocol.CmdReset:
		res = w.cmdReset()
	default:
		res = protocol.Fail(protocol.ErrUnknownCommand, "unknown command %q", cmd.Cmd)
	}
	w.eventf("%s", res.Message)
	return res
}

func (w *World) cmdRestock(resourceID string) protocol.Result {
	i := w.resourceIndex(resourceID)
	if i < 0 {
		return protocol.Fail(protocol.ErrInvalidTarget, "unknown %s %q", w.theme.Terms.Resource, resourceID)
	}
	r := w.resources[i]
	cost := w.RestockCost(i)
	if !w.ledger.SpendCurrency(cost) {
		return w.insufficientCurrency("restocking "+r.Name, cost)
	}
	qty := w.theme.Restock.Quantity
	r.restock(qty)
	w.counters.restocks[r.ID]++
	return protocol.OK(fmt.Sprintf("restocked %s +%d for %s", r.Name, qty, money(cost)))
}

func (w *World) cmdRestockAll() protocol.Result {
	if len(w.resources) == 0 {
		return protocol.Fail(protocol.ErrInvalidTarget, "nothing to restock")
	}
	cost := w.RestockAllCost()
	if !w.ledger.SpendCurrency(cost) {
		return w.insufficientCurrency("restocking everything", cost)
	}
	qty := w.theme.Restock.Quantity
	for _, r := range w.resources {
		r.restock(qty)
		w.counters.restocks[r.ID]++
	}
	return protocol.OK(fmt.Sprintf("restocked %d %ss for %s", len(w.resources), w.theme.Terms.Resource, money(cost)))
}

func (w *World) cmdCampaign() protocol.Result {
	c := w.theme.Campaign
	cost := w.CampaignCost()
	if !w.ledger.SpendPoints(cost) {
		return w.insufficientPoints(c.Name, cost)
	}
	w.counters.campaigns++
	w.campaignPower = clamp(w.campaignPower+c.PowerGain, 0, 100)
	return protocol.OK(fmt.Sprintf("%s launched for %s %s (power %s%%)", c.Name, amount(cost), w.theme.Terms.Points, amount(w.campaignPower)))
}

func (w *World) cmdExpand() protocol.Result {
	e := w.theme.Expansion
	cost := w.ExpansionCost()
	if !w.ledger.SpendCurrency(cost) {
		return w.insufficientCurrency("expansion", cost)
	}
	w.counters.expansions++
	w.capacity += e.CapacityStep
	msg := fmt.Sprintf("expanded to capacity %d for %s", w.capacity, money(cost))
	if e.AddStation {
		if r := w.unlockNextResource(); r != nil {
			msg += fmt.Sprintf(", unlocked %s", r.Name)
		}
	}
	return protocol.OK(msg)
}

// unlockNextResource appends the next expansion resource with a station in the next layout slot.
func (w *World) unlockNextResource() *Resource {
	th := w.theme
	n := len(w.resources) - len(th.Resources)
	if n < 0 || n >= len(th.ExpansionResources) || n >= len(th.ExpansionSlots) {
		return nil
	}
	r := newResource(th.ExpansionResources[n])
	w.resources = append(w.resources, r)
	slot := th.ExpansionSlots[n]
	w.stations = append(w.stations, &Station{
		ID:       fmt.Sprintf("station-%d", len(w.stations)+1),
		X:        slot.X,
		Y:        slot.Y,
		W:        slot.W,
		H:        slot.H,
		Resource: len(w.resources) - 1,
	})
	return r
}

func (w *World) cmdHire(kind string) protocol.Result {
	def, ok := w.theme.Helper(kind)
	if !ok {
		return protocol.Fail(protocol.ErrInvalidTarget, "unknown %s kind %q", w.theme.Terms.Helper, kind)
	}
	active := 0
	for _, h := range w.helpers {
		if h.Kind == kind && h.Active {
			active++
		}
	}
	if def.MaxHire > 0 && active >= def.MaxHire {
		return protocol.Fail(protocol.ErrLimit, "already %d active %s (max %d)", active, def.Name, def.MaxHire)
	}
	cost, _ := w.HireCost(kind)
	if !w.ledger.SpendPoints(cost) {
		return w.insufficientPoints("hiring "+def.Name, cost)
	}
	w.counters.hires[kind]++
	w.counters.nextHelper++
	h := &Helper{
		ID:      fmt.Sprintf("H%d", w.counters.nextHelper),
		Kind:    kind,
		Active:  true,
		Funded:  true,
		HiredAt: w.elapsed,
	}
	w.helpers = append(w.helpers, h)
	return protocol.OK(fmt.Sprintf("hired %s %s for %s %s", def.Name, h.ID, amount(cost), w.theme.Terms.Points))
}

// cmdDismiss accepts a helper id, or a kind (the most recently hired active one).
func (w *World) cmdDismiss(ref string) protocol.Result {
	var target *Helper
	for i := len(w.helpers) - 1; i >= 0; i-- {
		h := w.helpers[i]
		if !h.Active {
			continue
		}
		if h.ID == ref || h.Kind == ref {
			target = h
			break
		}
	}
	if target == nil {
		return protocol.Fail(protocol.ErrInvalidTarget, "no active %s %q", w.theme.Terms.Helper, ref)
	}
	target.Active = false
	target.Funded = false
	return protocol.OK(fmt.Sprintf("dismissed %s (%s)", target.ID, target.Kind))
}

// cmdAdjust moves a price (floored at cost) or an appeal (clamped to [0,1]).
func (w *World) cmdAdjust(resourceID string, delta float64) protocol.Result {
	i := w.resourceIndex(resourceID)
	if i < 0 {
		return protocol.Fail(protocol.ErrInvalidTarget, "unknown %s %q", w.theme.Terms.Resource, resourceID)
	}
	if delta == 0 {
		return protocol.Fail(protocol.ErrBadRequest, "delta must be non-zero")
	}
	r := w.resources[i]
	if w.theme.Decision.Model == catalogs.ModelAppeal {
		r.Appeal = clamp(r.Appeal+delta, 0, 1)
		return protocol.OK(fmt.Sprintf("%s appeal now %s", r.Name, amount(r.Appeal)))
	}
	r.Price = r.Price + delta
	if r.Price < r.Cost {
		r.Price = r.Cost
	}
	return protocol.OK(fmt.Sprintf("%s price now %s", r.Name, money(r.Price)))
}

func (w *World) cmdAdvancePhase() protocol.Result {
	cur, ok := w.theme.Phase(w.phase.current)
	if !ok {
		return protocol.Fail(protocol.ErrNoPhase, "no phase %d", w.phase.current)
	}
	next, ok := w.theme.Phase(cur.ID + 1)
	if !ok {
		return protocol.Fail(protocol.ErrNoPhase, "%s is the last phase", cur.Name)
	}
	if !w.phase.goalReached {
		return protocol.Fail(protocol.ErrGoalNotReached, "goal not reached: %s", cur.Goal.Description)
	}
	if !w.ledger.SpendPoints(cur.NextCost) {
		return w.insufficientPoints("advancing to "+next.Name, cur.NextCost)
	}
	w.phase.current = next.ID
	w.phase.goalReached = false
	return protocol.OK(fmt.Sprintf("advanced to %s phase: %s", ordinal(next.ID), next.Name))
}

func (w *World) cmdSave() protocol.Result {
	if err := w.emitSave(); err != nil {
		return protocol.Fail(protocol.ErrInternal, "save failed: %v", err)
	}
	return protocol.OK("game saved")
}

// cmdReset starts over from the theme and persists the fresh state right away.
func (w *World) cmdReset() protocol.Result {
	w.resetState()
	msg := "game reset"
	if err := w.emitSave(); err != nil && !errors.Is(err, errNoSink) {
		msg += fmt.Sprintf(" (not persisted: %v)", err)
	}
	return protocol.OK(msg)
}

func (w *World) insufficientCurrency(what string, need float64) protocol.Result {
	return protocol.Fail(protocol.ErrInsufficientFunds, "not enough %s for %s: need %s, have %s",
		w.theme.Terms.Currency, what, money(need), money(w.ledger.Currency))
}

func (w *World) insufficientPoints(what string, need float64) protocol.Result {
	return protocol.Fail(protocol.ErrInsufficientFunds, "not enough %s for %s: need %s, have %s",
		w.theme.Terms.Points, what, amount(need), amount(w.ledger.Points))
}
