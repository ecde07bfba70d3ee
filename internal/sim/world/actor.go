package world

import "math"

type ActorState string

const (
	StateTraveling ActorState = "traveling"
	StateLeaving   ActorState = "leaving"
)

// Outcome is the reason an actor left.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNoMaterial   Outcome = "no_material"
	OutcomeTooExtreme   Outcome = "too_extreme"
	OutcomeNotConvinced Outcome = "not_convinced"
	OutcomeImpatient    Outcome = "impatient"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeNoStation    Outcome = "no_station"
)

type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Add(o Vec2) Vec2      { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }
func (v Vec2) Len() float64         { return math.Hypot(v.X, v.Y) }
func (v Vec2) Array() [2]float64    { return [2]float64{v.X, v.Y} }

func vec2(a [2]float64) Vec2 { return Vec2{X: a[0], Y: a[1]} }

// Actor is one visiting individual. Mutated only by the world loop.
type Actor struct {
	ID   string
	Name string
	Age  int
	Type string

	Pos    Vec2
	Vel    Vec2
	Target Vec2
	Radius float64
	Speed  float64

	// Station is an index into World.stations, -1 when none could be assigned.
	Station  int
	Resource int

	Mood        float64
	Receptivity float64
	Patience    float64
	Lifetime    float64
	LeaveTimer  float64

	State  ActorState
	Reason Outcome

	exitChosen bool
	exits      []Vec2
}

// leave moves the actor into the leaving state. It never moves back.
func (a *Actor) leave(reason Outcome) {
	if a.State == StateLeaving {
		return
	}
	a.State = StateLeaving
	a.Reason = reason
	a.LeaveTimer = 0
	a.Vel = Vec2{}
}

// moveToward advances pos toward target by at most speed*dt and reports arrival.
func (a *Actor) moveToward(target Vec2, speed, dt, arrive float64) bool {
	d := target.Sub(a.Pos)
	dist := d.Len()
	if dist <= arrive {
		a.Vel = Vec2{}
		return true
	}
	if speed*dt >= dist {
		a.Pos = target
		a.Vel = Vec2{}
		return true
	}
	a.Vel = d.Scale(speed / dist)
	a.Pos = a.Pos.Add(a.Vel.Scale(dt))
	return false
}

func (w *World) systemActors(dt float64) {
	kept := w.actors[:0]
	for _, a := range w.actors {
		if a.State == StateTraveling {
			w.tickTraveling(a, dt)
		}
		if a.State == StateLeaving && w.tickLeaving(a, dt) {
			continue
		}
		kept = append(kept, a)
	}
	for i := len(kept); i < len(w.actors); i++ {
		w.actors[i] = nil
	}
	w.actors = kept
}

func (w *World) tickTraveling(a *Actor, dt float64) {
	at := w.theme.Actor
	a.Lifetime += dt

	if a.Station < 0 || a.Station >= len(w.stations) {
		w.finishVisit(a, OutcomeNoStation, 0)
		return
	}
	st := w.stations[a.Station]
	if st.Resource < 0 || st.Resource >= len(w.resources) {
		w.finishVisit(a, OutcomeNoStation, 0)
		return
	}
	a.Resource = st.Resource

	decay := at.PatienceDecay
	if w.resources[a.Resource].Stock <= 0 {
		decay = at.PatienceDecayOutOfStock
	}
	a.Patience -= decay * dt

	if a.Patience <= 0 {
		w.adjustMood(w.theme.Mood.Impatient)
		w.finishVisit(a, OutcomeImpatient, 0)
		return
	}
	if a.Lifetime > at.LifetimeCap {
		w.adjustMood(w.theme.Mood.Timeout)
		w.finishVisit(a, OutcomeTimeout, 0)
		return
	}

	arrived := a.moveToward(a.Target, a.Speed, dt, at.ArriveRadius)
	if arrived || st.Contains(a.Pos) {
		w.resolve(a)
	}
}

// tickLeaving moves a leaving actor and reports whether it should be removed.
func (w *World) tickLeaving(a *Actor, dt float64) bool {
	at := w.theme.Actor
	if !a.exitChosen {
		a.exits = w.chooseExit(a.Pos)
		a.exitChosen = true
	}
	a.LeaveTimer += dt
	a.Lifetime += dt

	if len(a.exits) > 0 {
		if a.moveToward(a.exits[0], at.LeaveSpeed, dt, at.ArriveRadius) && len(a.exits) > 1 {
			a.exits = a.exits[1:]
		}
	}
	return w.offscreen(a.Pos) || a.LeaveTimer > at.LeaveGrace
}

// chooseExit picks the exit route once: mostly back through the entrance, sometimes the nearest edge.
func (w *World) chooseExit(from Vec2) []Vec2 {
	c := w.theme.Canvas
	beyond := w.theme.Actor.BoundsMargin + 30
	if w.rng.Float64() < 0.8 {
		ent := vec2(c.Entrance)
		return []Vec2{ent, {X: ent.X, Y: c.Height + beyond}}
	}
	left, right := from.X, c.Width-from.X
	top, bottom := from.Y, c.Height-from.Y
	switch math.Min(math.Min(left, right), math.Min(top, bottom)) {
	case left:
		return []Vec2{{X: -beyond, Y: from.Y}}
	case right:
		return []Vec2{{X: c.Width + beyond, Y: from.Y}}
	case top:
		return []Vec2{{X: from.X, Y: -beyond}}
	default:
		return []Vec2{{X: from.X, Y: c.Height + beyond}}
	}
}

func (w *World) offscreen(p Vec2) bool {
	c := w.theme.Canvas
	m := w.theme.Actor.BoundsMargin
	return p.X < -m || p.Y < -m || p.X > c.Width+m || p.Y > c.Height+m
}
