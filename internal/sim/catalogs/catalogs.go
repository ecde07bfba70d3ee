package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decision models.
const (
	ModelWillingness = "willingness"
	ModelAppeal      = "appeal"
)

// Helper effect types.
const (
	EffectPassiveRestock  = "passive_restock"
	EffectMoodBoost       = "mood_boost"
	EffectConversionBoost = "conversion_boost"
)

// Phase goal types.
const (
	GoalConverts  = "converts"
	GoalInfluence = "influence"
	GoalTime      = "time"
)

// Theme is one skin of the simulation: every table the engine needs to run.
type Theme struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Terms Terms  `yaml:"terms"`

	Canvas Canvas      `yaml:"canvas"`
	Start  Start       `yaml:"start"`
	Actor  ActorTuning `yaml:"actor"`
	Names  NamePool    `yaml:"names"`

	ActorTypes         []ActorType   `yaml:"actor_types"`
	Resources          []ResourceDef `yaml:"resources"`
	ExpansionResources []ResourceDef `yaml:"expansion_resources"`
	Stations           []StationDef  `yaml:"stations"`
	ExpansionSlots     []Rect        `yaml:"expansion_slots"`

	Decision   Decision    `yaml:"decision"`
	Mood       Mood        `yaml:"mood"`
	Campaign   Campaign    `yaml:"campaign"`
	Spawn      Spawn       `yaml:"spawn"`
	Restock    Restock     `yaml:"restock"`
	Expansion  Expansion   `yaml:"expansion"`
	Settlement Settlement  `yaml:"settlement"`
	Helpers    []HelperDef `yaml:"helpers"`
	Attrition  Attrition   `yaml:"attrition"`
	Phases     []PhaseDef  `yaml:"phases"`

	Digest string `yaml:"-"`

	typeIndex   map[string]int
	helperIndex map[string]int
}

type Terms struct {
	Actor    string `yaml:"actor"`
	Station  string `yaml:"station"`
	Resource string `yaml:"resource"`
	Currency string `yaml:"currency"`
	Points   string `yaml:"points"`
	Mood     string `yaml:"mood"`
	Campaign string `yaml:"campaign"`
	Helper   string `yaml:"helper"`
}

type Canvas struct {
	Width    float64    `yaml:"width"`
	Height   float64    `yaml:"height"`
	Entrance [2]float64 `yaml:"entrance"`
}

type Start struct {
	Currency      float64 `yaml:"currency"`
	Points        float64 `yaml:"points"`
	Mood          float64 `yaml:"mood"`
	Capacity      int     `yaml:"capacity"`
	SpawnInterval float64 `yaml:"spawn_interval"`
}

type ActorTuning struct {
	BaseRadius              float64    `yaml:"base_radius"`
	RadiusVariance          float64    `yaml:"radius_variance"`
	BaseSpeed               float64    `yaml:"base_speed"`
	SpeedVariance           float64    `yaml:"speed_variance"`
	PatienceMin             float64    `yaml:"patience_min"`
	PatienceMax             float64    `yaml:"patience_max"`
	PatienceFloor           float64    `yaml:"patience_floor"`
	CrowdPatiencePenalty    float64    `yaml:"crowd_patience_penalty"`
	PatienceDecay           float64    `yaml:"patience_decay"`
	PatienceDecayOutOfStock float64    `yaml:"patience_decay_out_of_stock"`
	LifetimeCap             float64    `yaml:"lifetime_cap"`
	LeaveGrace              float64    `yaml:"leave_grace"`
	LeaveSpeed              float64    `yaml:"leave_speed"`
	ArriveRadius            float64    `yaml:"arrive_radius"`
	BoundsMargin            float64    `yaml:"bounds_margin"`
	TargetJitter            [2]float64 `yaml:"target_jitter"`
}

type NamePool struct {
	First        []string `yaml:"first"`
	LastInitials string   `yaml:"last_initials"`
	AgeMin       int      `yaml:"age_min"`
	AgeMax       int      `yaml:"age_max"`
}

type ActorType struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	Color        string             `yaml:"color"`
	Weight       float64            `yaml:"weight"`
	Receptivity  float64            `yaml:"receptivity"`
	Jitter       float64            `yaml:"jitter"`
	Spend        float64            `yaml:"spend"`
	Influence    float64            `yaml:"influence"`
	Speed        float64            `yaml:"speed"`
	DonationRate float64            `yaml:"donation_rate"`
	Affinity     map[string]float64 `yaml:"affinity"`
}

// AffinityFor returns the per-resource multiplier, 1.0 when absent.
func (t ActorType) AffinityFor(resourceID string) float64 {
	if v, ok := t.Affinity[resourceID]; ok && v > 0 {
		return v
	}
	return 1.0
}

type ResourceDef struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Price      float64 `yaml:"price"`
	Cost       float64 `yaml:"cost"`
	Appeal     float64 `yaml:"appeal"`
	Difficulty float64 `yaml:"difficulty"`
	Impact     float64 `yaml:"impact"`
	Stock      int     `yaml:"stock"`
}

type Rect struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

type StationDef struct {
	Rect     `yaml:",inline"`
	Resource int `yaml:"resource"`
}

type Decision struct {
	Model            string  `yaml:"model"`
	ProbMin          float64 `yaml:"prob_min"`
	ProbMax          float64 `yaml:"prob_max"`
	WTPSpread        float64 `yaml:"wtp_spread"`
	MoodSpan         float64 `yaml:"mood_span"`
	CampaignBonusMax float64 `yaml:"campaign_bonus_max"`
	HappyThreshold   float64 `yaml:"happy_threshold"`
	ExtremeThreshold float64 `yaml:"extreme_threshold"`
	Buckets          Buckets `yaml:"buckets"`
}

type Buckets struct {
	Receptive float64 `yaml:"receptive"`
	Neutral   float64 `yaml:"neutral"`
}

type Mood struct {
	Target         float64 `yaml:"target"`
	DecayRate      float64 `yaml:"decay_rate"`
	DistanceGain   float64 `yaml:"distance_gain"`
	HelperOverhead float64 `yaml:"helper_overhead"`
	StabilityMax   float64 `yaml:"stability_max"`

	SuccessHappy   float64 `yaml:"success_happy"`
	SuccessNeutral float64 `yaml:"success_neutral"`
	NoMaterial     float64 `yaml:"no_material"`
	TooExtreme     float64 `yaml:"too_extreme"`
	NotConvinced   float64 `yaml:"not_convinced"`
	Impatient      float64 `yaml:"impatient"`
	Timeout        float64 `yaml:"timeout"`
}

type Campaign struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	BaseCost   float64 `yaml:"base_cost"`
	Multiplier float64 `yaml:"multiplier"`
	PowerGain  float64 `yaml:"power_gain"`
	DecayRate  float64 `yaml:"decay_rate"`
}

type Spawn struct {
	MinInterval        float64     `yaml:"min_interval"`
	BaseChance         float64     `yaml:"base_chance"`
	ChancePerMood      float64     `yaml:"chance_per_mood"`
	ThrivingMood       float64     `yaml:"thriving_mood"`
	SecondChance       float64     `yaml:"second_chance"`
	MinTrafficFraction float64     `yaml:"min_traffic_fraction"`
	MinTrafficFloor    int         `yaml:"min_traffic_floor"`
	MinTrafficChance   float64     `yaml:"min_traffic_chance"`
	CampaignFactor     [2]float64  `yaml:"campaign_factor"`
	MoodFactor         [2]float64  `yaml:"mood_factor"`
	PriceWeight        float64     `yaml:"price_weight"`
	MoodBase           float64     `yaml:"mood_base"`
	MoodJitter         float64     `yaml:"mood_jitter"`
	CrowdMoodPenalty   float64     `yaml:"crowd_mood_penalty"`
	Entry              []EntryZone `yaml:"entry"`
}

type EntryZone struct {
	Weight float64    `yaml:"weight"`
	X      [2]float64 `yaml:"x"`
	Y      [2]float64 `yaml:"y"`
}

type Restock struct {
	Quantity   int     `yaml:"quantity"`
	Multiplier float64 `yaml:"multiplier"`
}

type Expansion struct {
	BaseCost     float64 `yaml:"base_cost"`
	Multiplier   float64 `yaml:"multiplier"`
	CapacityStep int     `yaml:"capacity_step"`
	AddStation   bool    `yaml:"add_station"`
}

type Settlement struct {
	Interval float64 `yaml:"interval"`
}

type HelperDef struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	Effect          string  `yaml:"effect"`
	Magnitude       float64 `yaml:"magnitude"`
	Cost            float64 `yaml:"cost"`
	CostMultiplier  float64 `yaml:"cost_multiplier"`
	Upkeep          float64 `yaml:"upkeep"`
	PaymentInterval float64 `yaml:"payment_interval"`
	MaxHire         int     `yaml:"max_hire"`
}

type Attrition struct {
	Enabled            bool            `yaml:"enabled"`
	Interval           float64         `yaml:"interval"`
	Tiers              []AttritionTier `yaml:"tiers"`
	NaturalRate        float64         `yaml:"natural_rate"`
	MoodPenaltyPerLoss float64         `yaml:"mood_penalty_per_loss"`
}

type AttritionTier struct {
	Below float64 `yaml:"below"`
	Rate  float64 `yaml:"rate"`
}

type PhaseDef struct {
	ID       int     `yaml:"id"`
	Name     string  `yaml:"name"`
	Goal     Goal    `yaml:"goal"`
	NextCost float64 `yaml:"next_cost"`
}

type Goal struct {
	Type        string  `yaml:"type"`
	Target      float64 `yaml:"target"`
	Description string  `yaml:"description"`
}

// LoadTheme reads <configDir>/themes/<name>.yaml.
func LoadTheme(configDir, name string) (*Theme, error) {
	path := filepath.Join(configDir, "themes", name+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	th, err := ParseTheme(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return th, nil
}

// ListThemes returns the theme names available under configDir.
func ListThemes(configDir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(configDir, "themes"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out, nil
}

func ParseTheme(raw []byte) (*Theme, error) {
	var th Theme
	if err := yaml.Unmarshal(raw, &th); err != nil {
		return nil, err
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	th.Digest = sha256Hex(raw)
	th.index()
	return &th, nil
}

func (t *Theme) index() {
	t.typeIndex = make(map[string]int, len(t.ActorTypes))
	for i, at := range t.ActorTypes {
		t.typeIndex[at.ID] = i
	}
	t.helperIndex = make(map[string]int, len(t.Helpers))
	for i, h := range t.Helpers {
		t.helperIndex[h.ID] = i
	}
}

func (t *Theme) ActorType(id string) (ActorType, bool) {
	if t.typeIndex == nil {
		t.index()
	}
	i, ok := t.typeIndex[id]
	if !ok {
		return ActorType{}, false
	}
	return t.ActorTypes[i], true
}

func (t *Theme) Helper(id string) (HelperDef, bool) {
	if t.helperIndex == nil {
		t.index()
	}
	i, ok := t.helperIndex[id]
	if !ok {
		return HelperDef{}, false
	}
	return t.Helpers[i], true
}

// Phase returns the phase definition with the given id.
func (t *Theme) Phase(id int) (PhaseDef, bool) {
	for _, p := range t.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return PhaseDef{}, false
}

// Validate checks cross references and the ordering constraints the decision engine relies on.
func (t *Theme) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("theme id is required")
	}
	if t.Canvas.Width <= 0 || t.Canvas.Height <= 0 {
		return fmt.Errorf("canvas size must be positive")
	}
	if t.Start.Capacity <= 0 || t.Start.SpawnInterval <= 0 {
		return fmt.Errorf("start capacity and spawn_interval must be positive")
	}
	if len(t.Resources) == 0 {
		return fmt.Errorf("at least one resource is required")
	}
	if len(t.ActorTypes) == 0 {
		return fmt.Errorf("at least one actor type is required")
	}

	ids := map[string]bool{}
	for _, r := range append(append([]ResourceDef{}, t.Resources...), t.ExpansionResources...) {
		if r.ID == "" {
			return fmt.Errorf("resource without id")
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource id %q", r.ID)
		}
		ids[r.ID] = true
		if r.Stock < 0 || r.Cost < 0 || r.Price < 0 {
			return fmt.Errorf("resource %q: negative stock/cost/price", r.ID)
		}
	}
	for i, s := range t.Stations {
		if s.Resource < 0 || s.Resource >= len(t.Resources) {
			return fmt.Errorf("station %d: resource index %d out of range", i, s.Resource)
		}
	}

	var weight float64
	seen := map[string]bool{}
	for _, at := range t.ActorTypes {
		if at.ID == "" || seen[at.ID] {
			return fmt.Errorf("actor type id missing or duplicated: %q", at.ID)
		}
		seen[at.ID] = true
		if at.Weight < 0 {
			return fmt.Errorf("actor type %q: negative weight", at.ID)
		}
		weight += at.Weight
	}
	if weight <= 0 {
		return fmt.Errorf("actor type weights sum to zero")
	}

	d := t.Decision
	switch d.Model {
	case ModelWillingness, ModelAppeal:
	default:
		return fmt.Errorf("unknown decision model %q", d.Model)
	}
	if d.ProbMin < 0 || d.ProbMax > 1 || d.ProbMin >= d.ProbMax {
		return fmt.Errorf("decision probability bounds must satisfy 0 <= min < max <= 1")
	}
	if d.Buckets.Neutral > d.Buckets.Receptive {
		return fmt.Errorf("bucket thresholds must satisfy neutral <= receptive")
	}

	m := t.Mood
	if math.Abs(m.NoMaterial) <= math.Abs(m.NotConvinced) {
		return fmt.Errorf("mood.no_material must outweigh mood.not_convinced")
	}
	if math.Abs(m.TooExtreme) <= math.Abs(m.NotConvinced) {
		return fmt.Errorf("mood.too_extreme must outweigh mood.not_convinced")
	}
	if t.Actor.PatienceDecay <= 0 {
		return fmt.Errorf("actor.patience_decay must be positive")
	}
	if t.Actor.PatienceDecayOutOfStock <= t.Actor.PatienceDecay {
		return fmt.Errorf("actor.patience_decay_out_of_stock must exceed actor.patience_decay")
	}

	if t.Campaign.Multiplier <= 0 || t.Expansion.Multiplier <= 0 {
		return fmt.Errorf("cost multipliers must be positive")
	}
	if t.Restock.Quantity <= 0 {
		return fmt.Errorf("restock.quantity must be positive")
	}
	if t.Settlement.Interval <= 0 {
		return fmt.Errorf("settlement.interval must be positive")
	}
	if len(t.Spawn.Entry) == 0 {
		return fmt.Errorf("spawn.entry needs at least one zone")
	}

	hseen := map[string]bool{}
	for _, h := range t.Helpers {
		if h.ID == "" || hseen[h.ID] {
			return fmt.Errorf("helper id missing or duplicated: %q", h.ID)
		}
		hseen[h.ID] = true
		switch h.Effect {
		case EffectPassiveRestock, EffectMoodBoost, EffectConversionBoost:
		default:
			return fmt.Errorf("helper %q: unknown effect %q", h.ID, h.Effect)
		}
		if h.PaymentInterval <= 0 {
			return fmt.Errorf("helper %q: payment_interval must be positive", h.ID)
		}
	}

	if t.Attrition.Enabled && t.Attrition.Interval <= 0 {
		return fmt.Errorf("attrition.interval must be positive when enabled")
	}
	for _, p := range t.Phases {
		switch p.Goal.Type {
		case GoalConverts, GoalInfluence, GoalTime:
		default:
			return fmt.Errorf("phase %d: unknown goal type %q", p.ID, p.Goal.Type)
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
