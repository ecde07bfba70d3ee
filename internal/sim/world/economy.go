package world

import (
	"math"
	"sort"

	"tycoonsim.dev/internal/sim/catalogs"
)

func (w *World) activeHelpers() int {
	n := 0
	for _, h := range w.helpers {
		if h.Active {
			n++
		}
	}
	return n
}

// conversionBoost is the product of all funded conversion-boost helpers.
func (w *World) conversionBoost() float64 {
	boost := 1.0
	for _, h := range w.helpers {
		if !h.Active || !h.Funded {
			continue
		}
		def, ok := w.theme.Helper(h.Kind)
		if ok && def.Effect == catalogs.EffectConversionBoost && def.Magnitude > 0 {
			boost *= def.Magnitude
		}
	}
	return boost
}

// systemHelpers runs per-helper upkeep timers and applies effects once per simulated second.
func (w *World) systemHelpers(dt float64) {
	for _, h := range w.helpers {
		if !h.Active {
			continue
		}
		def, ok := w.theme.Helper(h.Kind)
		if !ok {
			continue
		}
		h.PaymentTimer += dt
		for h.PaymentTimer >= def.PaymentInterval {
			h.PaymentTimer -= def.PaymentInterval
			w.payUpkeep(h, def)
		}
	}

	w.helperTimer += dt
	for w.helperTimer >= 1 {
		w.helperTimer--
		w.applyHelperEffects()
	}
}

func (w *World) payUpkeep(h *Helper, def catalogs.HelperDef) {
	if w.ledger.SpendCurrency(def.Upkeep) {
		if !h.Funded {
			w.eventf("%s %s is paid again", def.Name, h.ID)
		}
		h.Funded = true
		return
	}
	if h.Funded {
		w.eventf("cannot pay %s upkeep (%s): %s stops working", def.Name, money(def.Upkeep), h.ID)
	}
	h.Funded = false
}

// applyHelperEffects applies one second of every funded helper's passive effect.
func (w *World) applyHelperEffects() {
	for _, h := range w.helpers {
		if !h.Active || !h.Funded {
			continue
		}
		def, ok := w.theme.Helper(h.Kind)
		if !ok {
			continue
		}
		switch def.Effect {
		case catalogs.EffectPassiveRestock:
			for _, r := range w.resources {
				if r.Stock < r.MaxStock && w.rng.Float64() < def.Magnitude {
					r.restock(1)
				}
			}
		case catalogs.EffectMoodBoost:
			w.adjustMood(def.Magnitude)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PassiveIncome sums converted counts times each type's donation rate.
func (w *World) PassiveIncome() float64 {
	var income float64
	for _, id := range sortedKeys(w.converted) {
		typ, ok := w.theme.ActorType(id)
		if !ok {
			continue
		}
		income += float64(w.converted[id]) * typ.DonationRate
	}
	return income
}

func (w *World) systemSettlement(dt float64) {
	iv := w.theme.Settlement.Interval
	w.settleTimer += dt
	for w.settleTimer >= iv {
		w.settleTimer -= iv
		if income := w.PassiveIncome(); income > 0 {
			w.ledger.Earn(income, 0)
			w.eventf("settlement: +%s %s", money(income), w.theme.Terms.Currency)
		}
	}
}

// AttritionRate is the first matching mood tier's rate plus the natural rate.
func AttritionRate(a catalogs.Attrition, mood float64) float64 {
	rate := a.NaturalRate
	for _, t := range a.Tiers {
		if mood < t.Below {
			rate += t.Rate
			break
		}
	}
	return rate
}

func (w *World) systemAttrition(dt float64) {
	a := w.theme.Attrition
	if !a.Enabled {
		return
	}
	w.attritionTimer += dt
	for w.attritionTimer >= a.Interval {
		w.attritionTimer -= a.Interval
		w.applyAttrition()
	}
}

func (w *World) applyAttrition() int {
	a := w.theme.Attrition
	rate := AttritionRate(a, w.mood)
	lost := 0
	for _, id := range sortedKeys(w.converted) {
		n := int(math.Floor(float64(w.converted[id]) * rate))
		if n <= 0 {
			continue
		}
		w.converted[id] -= n
		lost += n
	}
	if lost > 0 {
		w.stats.Lost += lost
		w.adjustMood(-float64(lost) * a.MoodPenaltyPerLoss)
		w.eventf("%d %ss drifted away", lost, w.theme.Terms.Actor)
	}
	return lost
}

// decayMood nudges global mood toward the target. The correction grows with
// distance and helper count and shrinks with campaign stability.
func (w *World) decayMood(dt float64) {
	m := w.theme.Mood
	diff := m.Target - w.mood
	if diff == 0 {
		return
	}
	dist := math.Abs(diff)
	rate := m.DecayRate *
		(1 + dist/50*m.DistanceGain) *
		(1 + m.HelperOverhead*float64(w.activeHelpers())) *
		(1 - m.StabilityMax*clamp(w.campaignPower, 0, 100)/100)
	if rate <= 0 {
		return
	}
	step := math.Min(dist, rate*dt)
	if diff > 0 {
		w.mood += step
	} else {
		w.mood -= step
	}
	w.mood = clamp(w.mood, 0, 100)
}

func (w *World) decayCampaign(dt float64) {
	w.campaignPower = math.Max(0, w.campaignPower-w.theme.Campaign.DecayRate*dt)
}
