package protocol

// FRAME (server -> client): read-only view for the rendering collaborator.
type FrameMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Elapsed         float64 `json:"elapsed"`

	Currency      float64 `json:"currency"`
	Points        float64 `json:"points"`
	Mood          float64 `json:"mood"`
	CampaignPower float64 `json:"campaign_power"`
	Capacity      int     `json:"capacity"`

	Actors    []ActorView    `json:"actors"`
	Stations  []StationView  `json:"stations"`
	Resources []ResourceView `json:"resources"`
	Helpers   []HelperView   `json:"helpers"`
	Phase     PhaseView      `json:"phase"`
	Stats     StatsView      `json:"stats"`
	Costs     CostsView      `json:"costs"`

	Log []string `json:"log,omitempty"`
}

type ActorView struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Type   string     `json:"type"`
	Pos    [2]float64 `json:"pos"`
	Radius float64    `json:"radius"`
	Color  string     `json:"color"`
	State  string     `json:"state"`
	Mood   float64    `json:"mood"`
}

type StationView struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Resource string  `json:"resource"`
	Stock    int     `json:"stock"`
	MaxStock int     `json:"max_stock"`
}

type ResourceView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Cost        float64 `json:"cost"`
	Appeal      float64 `json:"appeal"`
	Stock       int     `json:"stock"`
	RestockCost float64 `json:"restock_cost"`
}

type HelperView struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
	Funded bool   `json:"funded"`
}

type PhaseView struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Goal        string  `json:"goal"`
	Progress    float64 `json:"progress"`
	Target      float64 `json:"target"`
	GoalReached bool    `json:"goal_reached"`
	NextCost    float64 `json:"next_cost"`
}

type StatsView struct {
	TotalConverts  int            `json:"total_converts"`
	ActiveConverts int            `json:"active_converts"`
	Attempts       int            `json:"attempts"`
	SuccessRate    float64        `json:"success_rate"`
	ByType         map[string]int `json:"by_type"`
	ByBucket       map[string]int `json:"by_bucket"`
	ByOutcome      map[string]int `json:"by_outcome"`
	SpawnInterval  float64        `json:"spawn_interval"`
	PriceAttract   float64        `json:"price_attractiveness"`
}

type CostsView struct {
	Campaign   float64            `json:"campaign"`
	Expansion  float64            `json:"expansion"`
	RestockAll float64            `json:"restock_all"`
	Hire       map[string]float64 `json:"hire"`
}
