package world

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"tycoonsim.dev/internal/sim/catalogs"
)

// markupScore rewards low markup and penalizes markup past 150%.
func markupScore(m float64) float64 {
	var s float64
	switch {
	case m <= 0.5:
		s = 0.8 + (0.5-m)*0.4
	case m <= 1.5:
		s = 0.5 + (1.5-m)*0.3
	default:
		s = math.Max(0.1, 0.5-math.Min(m-1.5, 2)*0.2)
	}
	return clamp(s, 0, 1)
}

// PriceAttractiveness is the stock-weighted average attractiveness across resources, in [0,1].
func PriceAttractiveness(d catalogs.Decision, resources []*Resource) float64 {
	var sum, weight float64
	for _, r := range resources {
		var s float64
		if d.Model == catalogs.ModelAppeal {
			s = clamp(r.Appeal, 0, 1)
			if r.Appeal > d.ExtremeThreshold {
				s *= 0.5
			}
		} else {
			s = markupScore(Extremity(d.Model, r))
		}
		wt := math.Max(1, float64(r.Stock))
		sum += s * wt
		weight += wt
	}
	if weight == 0 {
		return 0.5
	}
	return sum / weight
}

func lerp(r [2]float64, t float64) float64 {
	return r[0] + (r[1]-r[0])*clamp(t, 0, 1)
}

// SpawnMultiplier blends campaign power, global mood and price attractiveness.
func SpawnMultiplier(sp catalogs.Spawn, campaignPower, mood, priceAttr float64) float64 {
	cf := lerp(sp.CampaignFactor, campaignPower/100)
	mf := lerp(sp.MoodFactor, mood/100)
	pf := (1 - sp.PriceWeight) + sp.PriceWeight*clamp(priceAttr, 0, 1)
	return cf * mf * pf
}

func (w *World) effectiveSpawnInterval() float64 {
	sp := w.theme.Spawn
	m := SpawnMultiplier(sp, w.campaignPower, w.mood, PriceAttractiveness(w.theme.Decision, w.resources))
	if m <= 0 {
		return math.Max(sp.MinInterval, w.spawnInterval)
	}
	return math.Max(sp.MinInterval, w.spawnInterval/m)
}

func (w *World) baseSpawnChance() float64 {
	sp := w.theme.Spawn
	return math.Min(1, sp.BaseChance+sp.ChancePerMood*w.mood)
}

func (w *World) hasRoom() bool { return len(w.actors) < w.capacity }

func (w *World) systemSpawn(dt float64) {
	sp := w.theme.Spawn
	w.spawnTimer += dt
	if w.spawnTimer >= w.effectiveSpawnInterval() {
		w.spawnTimer = 0
		if w.hasRoom() && w.rng.Float64() < w.baseSpawnChance() {
			w.spawnActor()
		}
		if w.mood > sp.ThrivingMood && w.hasRoom() && w.rng.Float64() < sp.SecondChance {
			w.spawnActor()
		}
	}

	floor := int(float64(w.capacity) * sp.MinTrafficFraction)
	if floor < sp.MinTrafficFloor {
		floor = sp.MinTrafficFloor
	}
	if len(w.actors) < floor && w.hasRoom() && w.rng.Float64() < sp.MinTrafficChance {
		w.spawnActor()
	}
}

func (w *World) uniform(r [2]float64) float64 {
	if r[1] <= r[0] {
		return r[0]
	}
	return r[0] + w.rng.Float64()*(r[1]-r[0])
}

func (w *World) pickActorType() catalogs.ActorType {
	types := w.theme.ActorTypes
	var total float64
	for _, t := range types {
		total += t.Weight
	}
	x := w.rng.Float64() * total
	for _, t := range types {
		if x < t.Weight {
			return t
		}
		x -= t.Weight
	}
	return types[len(types)-1]
}

func (w *World) pickEntry() catalogs.EntryZone {
	zones := w.theme.Spawn.Entry
	var total float64
	for _, z := range zones {
		total += z.Weight
	}
	x := w.rng.Float64() * total
	for _, z := range zones {
		if x < z.Weight {
			return z
		}
		x -= z.Weight
	}
	return zones[len(zones)-1]
}

// pickStation returns a station serving resource idx, or any station when none does, or -1.
func (w *World) pickStation(idx int) int {
	var serving []int
	for i, s := range w.stations {
		if s.Resource == idx {
			serving = append(serving, i)
		}
	}
	if len(serving) > 0 {
		return serving[w.rng.Intn(len(serving))]
	}
	if len(w.stations) == 0 {
		return -1
	}
	return w.rng.Intn(len(w.stations))
}

func (w *World) newActorID() string {
	id, err := uuid.NewRandomFromReader(w.rng)
	if err != nil {
		w.nextActorNum++
		return fmt.Sprintf("A%d", w.nextActorNum)
	}
	return id.String()
}

func (w *World) actorName() string {
	np := w.theme.Names
	if len(np.First) == 0 {
		return w.theme.Terms.Actor
	}
	name := np.First[w.rng.Intn(len(np.First))]
	if np.LastInitials != "" {
		name += fmt.Sprintf(" %c.", np.LastInitials[w.rng.Intn(len(np.LastInitials))])
	}
	return name
}

func (w *World) spawnActor() *Actor {
	th := w.theme
	at := th.Actor
	typ := w.pickActorType()
	zone := w.pickEntry()

	crowd := 0.0
	if w.capacity > 0 {
		crowd = float64(len(w.actors)) / float64(w.capacity)
	}

	sp := th.Spawn
	mood := sp.MoodBase + (1-sp.MoodBase)*w.mood/100 - sp.CrowdMoodPenalty*crowd + (w.rng.Float64()-0.5)*sp.MoodJitter
	mood = clamp(mood, 0.1, 1)

	receptivity := clamp(typ.Receptivity+(w.rng.Float64()*2-1)*typ.Jitter, 0, 1)

	patience := w.uniform([2]float64{at.PatienceMin, at.PatienceMax}) * (1 - crowd*at.CrowdPatiencePenalty)
	if patience < at.PatienceFloor {
		patience = at.PatienceFloor
	}

	speed := at.BaseSpeed
	if typ.Speed > 0 {
		speed = typ.Speed
	}
	speed += (w.rng.Float64() - 0.5) * at.SpeedVariance

	a := &Actor{
		ID:          w.newActorID(),
		Name:        w.actorName(),
		Type:        typ.ID,
		Pos:         Vec2{X: w.uniform(zone.X), Y: w.uniform(zone.Y)},
		Radius:      at.BaseRadius + w.rng.Float64()*at.RadiusVariance,
		Speed:       math.Max(10, speed),
		Mood:        mood,
		Receptivity: receptivity,
		Patience:    patience,
		State:       StateTraveling,
		Station:     -1,
		Resource:    -1,
	}
	if th.Names.AgeMax > th.Names.AgeMin {
		a.Age = th.Names.AgeMin + w.rng.Intn(th.Names.AgeMax-th.Names.AgeMin+1)
	}

	if len(w.resources) > 0 {
		want := w.rng.Intn(len(w.resources))
		a.Station = w.pickStation(want)
		a.Resource = want
		if a.Station >= 0 {
			st := w.stations[a.Station]
			a.Resource = st.Resource
			jx, jy := at.TargetJitter[0], at.TargetJitter[1]
			a.Target = st.Center().Add(Vec2{
				X: (w.rng.Float64()*2 - 1) * jx,
				Y: (w.rng.Float64()*2 - 1) * jy,
			})
		}
	}

	w.actors = append(w.actors, a)
	w.stats.Spawned++
	return a
}
