package world

import (
	"math"
	"testing"

	"tycoonsim.dev/internal/protocol"
)

func TestResolve_OutOfStockRejectsWithPenalty(t *testing.T) {
	w := newTestWorld(t, "shop", 1)
	r := w.resources[0]
	r.Stock = 0
	w.mood = 50

	a := visitor(w, "regular", 0, 0.8)
	got := w.resolve(a)
	if got != OutcomeNoMaterial {
		t.Fatalf("outcome=%s want %s", got, OutcomeNoMaterial)
	}
	if r.Stock != 0 {
		t.Fatalf("stock=%d want 0", r.Stock)
	}
	want := 50 + w.theme.Mood.NoMaterial
	if w.mood != want {
		t.Fatalf("mood=%v want %v", w.mood, want)
	}
	if a.State != StateLeaving {
		t.Fatalf("state=%s want leaving", a.State)
	}
	if w.stats.Attempts != 0 {
		t.Fatalf("no-material visit counted as attempt")
	}
}

// At zero markup with a fully happy actor the willingness base term is
// 1 - 1/(2*1.5*2) = 5/6, so the observed rate should sit near 0.83.
func TestResolve_ZeroMarkupHappyActorUsuallyBuys(t *testing.T) {
	w := newTestWorld(t, "shop", 7)
	r := w.resources[0]
	r.Price = r.Cost

	p := SuccessProbability(w.theme.Decision, DecisionInput{
		Price: r.Price, Cost: r.Cost, ActorMood: 1, Receptivity: 0.7,
		GlobalMood: 50, Affinity: 1, HelperBoost: 1,
	})
	if math.Abs(p-5.0/6.0) > 1e-9 {
		t.Fatalf("p=%v want 5/6", p)
	}

	const trials = 2000
	success := 0
	for i := 0; i < trials; i++ {
		w.mood = 50
		r.Stock = 10
		if w.resolve(visitor(w, "regular", 0, 1.0)) == OutcomeSuccess {
			success++
		}
	}
	rate := float64(success) / trials
	if rate < 0.78 {
		t.Fatalf("success rate %.3f below 0.78", rate)
	}
}

func TestCampaign_InsufficientPointsChangesNothing(t *testing.T) {
	w := newTestWorld(t, "shop", 1)
	w.ledger.Points = w.CampaignCost() - 0.5
	w.campaignPower = 12
	before := w.ledger

	res := w.applyCommand(cmd(protocol.CmdCampaign))
	if res.OK {
		t.Fatalf("expected failure, got %+v", res)
	}
	if res.Code != protocol.ErrInsufficientFunds {
		t.Fatalf("code=%s", res.Code)
	}
	if w.ledger != before {
		t.Fatalf("ledger changed: %+v -> %+v", before, w.ledger)
	}
	if w.campaignPower != 12 {
		t.Fatalf("campaign power changed: %v", w.campaignPower)
	}
	if w.counters.campaigns != 0 {
		t.Fatalf("failed campaign counted")
	}
}

func TestHelpers_UnpaidUpkeepStopsEffect(t *testing.T) {
	w := newTestWorld(t, "shop", 3)
	w.ledger = Ledger{Currency: 0, Points: 100}

	for _, kind := range []string{"greeter", "stocker"} {
		hire := cmd(protocol.CmdHire)
		hire.Helper = kind
		if res := w.applyCommand(hire); !res.OK {
			t.Fatalf("hire %s: %+v", kind, res)
		}
	}

	advance := func(seconds float64) {
		for i := 0; i < int(seconds*2); i++ {
			w.systemHelpers(0.5)
		}
	}

	// First payment interval: upkeep falls due and cannot be paid.
	advance(30)
	for _, h := range w.helpers {
		if h.Funded {
			t.Fatalf("helper %s still funded after missed payment", h.ID)
		}
	}

	w.mood = 40
	for _, r := range w.resources {
		r.Stock = 0
	}

	// Second interval, still broke.
	advance(30)
	for _, h := range w.helpers {
		if h.Funded {
			t.Fatalf("helper %s funded after second missed payment", h.ID)
		}
	}
	if w.mood != 40 {
		t.Fatalf("mood boost applied while unfunded: %v", w.mood)
	}
	for _, r := range w.resources {
		if r.Stock != 0 {
			t.Fatalf("passive restock applied while unfunded: %s=%d", r.ID, r.Stock)
		}
	}
	if w.ledger.Currency != 0 {
		t.Fatalf("currency=%v want 0", w.ledger.Currency)
	}

	// Paying again restores the effect.
	w.ledger.Currency = 100
	advance(30)
	for _, h := range w.helpers {
		if !h.Funded {
			t.Fatalf("helper %s not funded after payment", h.ID)
		}
	}
	if w.ledger.Currency != 100-5-6 {
		t.Fatalf("currency=%v want 89", w.ledger.Currency)
	}
}

func TestSpawn_FullChanceNeverExceedsCapacity(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		w := newTestWorld(t, "shop", seed)
		if w.capacity != 50 {
			t.Fatalf("capacity=%d want 50", w.capacity)
		}
		w.mood = 100
		if c := w.baseSpawnChance(); c != 1 {
			t.Fatalf("base chance=%v want 1", c)
		}
		for len(w.actors) < 49 {
			w.spawnActor()
		}
		w.spawnTimer = 1e9
		w.systemSpawn(0)
		if len(w.actors) != 50 {
			t.Fatalf("seed %d: actors=%d want 50", seed, len(w.actors))
		}
	}
}

func TestSpawn_ThrivingMoodAddsOneOrTwo(t *testing.T) {
	for seed := int64(0); seed < 25; seed++ {
		w := newTestWorld(t, "shop", seed)
		w.mood = 100
		for len(w.actors) < 45 {
			w.spawnActor()
		}
		w.spawnTimer = 1e9
		w.systemSpawn(0)
		added := len(w.actors) - 45
		if added < 1 || added > 2 {
			t.Fatalf("seed %d: added=%d want 1 or 2", seed, added)
		}
	}
}

func TestResolve_RejectionKindFollowsMarkup(t *testing.T) {
	cases := []struct {
		name   string
		markup float64
		reject Outcome
	}{
		{"ten times markup", 10, OutcomeTooExtreme},
		{"modest markup", 1.2, OutcomeNotConvinced},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := newTestWorld(t, "shop", 13)
			r := w.resources[0]
			r.Price = r.Cost * (1 + c.markup)

			delta := w.theme.Mood.NotConvinced
			if c.reject == OutcomeTooExtreme {
				delta = w.theme.Mood.TooExtreme
			}

			seen := map[Outcome]int{}
			for i := 0; i < 500; i++ {
				w.mood = 50
				r.Stock = 10
				a := visitor(w, "regular", 0, 0.5)
				got := w.resolve(a)
				seen[got]++
				switch got {
				case OutcomeSuccess:
				case c.reject:
					if w.mood != 50+delta {
						t.Fatalf("%s: mood=%v want %v", got, w.mood, 50+delta)
					}
					if a.Reason != c.reject || r.Stock != 10 {
						t.Fatalf("reason=%s stock=%d", a.Reason, r.Stock)
					}
				default:
					t.Fatalf("unexpected outcome %s at markup %v", got, c.markup)
				}
			}
			if seen[OutcomeSuccess] == 0 || seen[c.reject] == 0 {
				t.Fatalf("outcomes=%v", seen)
			}
		})
	}
}

func TestSpawn_MinimumTrafficFillsToFloor(t *testing.T) {
	cases := []struct {
		name     string
		capacity int
		chance   float64
		want     int
	}{
		{"fraction of capacity", 50, 0.02, 5},
		{"absolute floor", 10, 0.02, 2},
		{"disabled", 50, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := newTestWorld(t, "shop", 17)
			sp := &w.theme.Spawn
			sp.BaseChance = 0
			sp.ChancePerMood = 0
			sp.SecondChance = 0
			sp.MinTrafficChance = c.chance
			w.capacity = c.capacity
			w.mood = 50

			for i := 0; i < 2000; i++ {
				w.systemSpawn(0.05)
				if len(w.actors) > c.want {
					t.Fatalf("tick %d: actors=%d above floor %d", i, len(w.actors), c.want)
				}
			}
			if len(w.actors) != c.want {
				t.Fatalf("actors=%d want %d", len(w.actors), c.want)
			}
		})
	}
}
