package world

import (
	"math"

	"tycoonsim.dev/internal/sim/catalogs"
)

// DecisionInput is everything the success probability depends on.
type DecisionInput struct {
	Price      float64
	Cost       float64
	Appeal     float64
	Difficulty float64
	Impact     float64

	ActorMood   float64 // [0,1]
	Receptivity float64 // [0,1]
	GlobalMood  float64 // [0,100]

	Affinity      float64 // 1.0 when the type has no entry for the resource
	HelperBoost   float64 // product of funded conversion boosts, 1.0 when none
	CampaignPower float64 // [0,100]
}

// SuccessProbability composes the base term, the global-mood factor, affinity,
// helper boost and the additive campaign bonus, clamped to [ProbMin, ProbMax].
func SuccessProbability(d catalogs.Decision, in DecisionInput) float64 {
	base := baseTerm(d, in)

	g := clamp(in.GlobalMood, 0, 100)
	span := d.MoodSpan
	if span <= 0 {
		span = 200
	}
	moodFactor := 1 + (g-50)/span

	aff := in.Affinity
	if aff <= 0 {
		aff = 1
	}
	boost := in.HelperBoost
	if boost <= 0 {
		boost = 1
	}
	bonus := clamp(in.CampaignPower, 0, 100) / 100 * d.CampaignBonusMax

	p := base*moodFactor*aff*boost + bonus
	if math.IsNaN(p) {
		return d.ProbMin
	}
	return clamp(p, d.ProbMin, d.ProbMax)
}

func baseTerm(d catalogs.Decision, in DecisionInput) float64 {
	mood := clamp(in.ActorMood, 0, 1)
	switch d.Model {
	case catalogs.ModelAppeal:
		b := in.Appeal * in.Receptivity *
			(1.3 - 0.4*in.Difficulty) *
			(0.9 + 0.08*in.Impact) *
			(0.5 + 0.5*mood)
		return clamp(b, 0, 1)
	default:
		spread := d.WTPSpread
		if spread <= 0 {
			spread = 1.5
		}
		denom := (in.Cost + in.Price) * spread * (1 + mood)
		if denom <= 0 {
			return 1
		}
		return clamp(1-in.Price/denom, 0, 1)
	}
}

// Extremity is the markup ratio for the willingness model and the appeal for the appeal model.
func Extremity(model string, r *Resource) float64 {
	if model == catalogs.ModelAppeal {
		return r.Appeal
	}
	if r.Cost <= 0 {
		if r.Price > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return (r.Price - r.Cost) / r.Cost
}

// Bucket classifies a receptivity value for statistics.
func Bucket(b catalogs.Buckets, receptivity float64) string {
	switch {
	case receptivity >= b.Receptive:
		return "receptive"
	case receptivity >= b.Neutral:
		return "neutral"
	default:
		return "skeptical"
	}
}

func (w *World) decisionInput(a *Actor, r *Resource) DecisionInput {
	aff := 1.0
	if at, ok := w.theme.ActorType(a.Type); ok {
		aff = at.AffinityFor(r.ID)
	}
	return DecisionInput{
		Price:         r.Price,
		Cost:          r.Cost,
		Appeal:        r.Appeal,
		Difficulty:    r.Difficulty,
		Impact:        r.Impact,
		ActorMood:     a.Mood,
		Receptivity:   a.Receptivity,
		GlobalMood:    w.mood,
		Affinity:      aff,
		HelperBoost:   w.conversionBoost(),
		CampaignPower: w.campaignPower,
	}
}

// resolve runs the decision engine for an actor that reached its station.
func (w *World) resolve(a *Actor) Outcome {
	th := w.theme
	r := w.resources[a.Resource]

	if r.Stock <= 0 {
		w.adjustMood(th.Mood.NoMaterial)
		w.finishVisit(a, OutcomeNoMaterial, 0)
		w.eventf("%s found no %s left", a.Name, r.Name)
		return OutcomeNoMaterial
	}

	w.stats.Attempts++
	p := SuccessProbability(th.Decision, w.decisionInput(a, r))
	if w.rng.Float64() < p {
		r.consume()
		typ, _ := th.ActorType(a.Type)
		earned := r.Price * typ.Spend
		w.ledger.Earn(earned, typ.Influence)

		if a.Mood > th.Decision.HappyThreshold {
			w.adjustMood(th.Mood.SuccessHappy)
		} else {
			w.adjustMood(th.Mood.SuccessNeutral)
		}
		w.converted[a.Type]++
		w.stats.Successes++
		w.stats.TotalConverts++
		w.stats.ByType[a.Type]++
		w.stats.ByBucket[Bucket(th.Decision.Buckets, a.Receptivity)]++
		w.finishVisit(a, OutcomeSuccess, p)
		if earned > 0 {
			w.eventf("%s took %s (+%s)", a.Name, r.Name, money(earned))
		} else {
			w.eventf("%s joined via %s (+%s %s)", a.Name, r.Name, amount(typ.Influence), th.Terms.Points)
		}
		return OutcomeSuccess
	}

	if Extremity(th.Decision.Model, r) > th.Decision.ExtremeThreshold {
		w.adjustMood(th.Mood.TooExtreme)
		w.finishVisit(a, OutcomeTooExtreme, p)
		return OutcomeTooExtreme
	}
	w.adjustMood(th.Mood.NotConvinced)
	w.finishVisit(a, OutcomeNotConvinced, p)
	return OutcomeNotConvinced
}

// finishVisit moves the actor to leaving and records the outcome.
func (w *World) finishVisit(a *Actor, reason Outcome, p float64) {
	a.leave(reason)
	w.stats.ByOutcome[string(reason)]++
	if w.outcomeLogger == nil {
		return
	}
	res := ""
	if a.Resource >= 0 && a.Resource < len(w.resources) {
		res = w.resources[a.Resource].ID
	}
	_ = w.outcomeLogger.WriteOutcome(OutcomeEntry{
		Tick:        w.tick.Load(),
		Elapsed:     w.elapsed,
		Theme:       w.theme.ID,
		ActorID:     a.ID,
		ActorType:   a.Type,
		Resource:    res,
		Outcome:     string(reason),
		Probability: p,
		Receptivity: a.Receptivity,
		GlobalMood:  w.mood,
	})
}

func (w *World) adjustMood(delta float64) {
	w.mood = clamp(w.mood+delta, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
