package snapshot

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// Version is the save document version written by this build.
	Version = 3
	// MinVersion is the oldest save this build can migrate.
	MinVersion = 2
)

var (
	// ErrTooOld marks a save whose version predates MinVersion. Callers treat it as "no save".
	ErrTooOld = errors.New("save version too old")
	// ErrInvalid marks a save that fails structural validation or is newer than Version.
	ErrInvalid = errors.New("invalid save")
)

//go:embed save.schema.json
var saveSchemaJSON string

var saveSchema = jsonschema.MustCompileString("save.schema.json", saveSchemaJSON)

type Header struct {
	Version int    `json:"version"`
	Theme   string `json:"theme"`
	Tick    uint64 `json:"tick"`
	SavedAt int64  `json:"saved_at,omitempty"`
}

// SaveV3 is the full mutable state of one session.
type SaveV3 struct {
	Header Header `json:"header"`

	Seed    int64   `json:"seed"`
	Elapsed float64 `json:"elapsed"`

	Currency      float64 `json:"currency"`
	Points        float64 `json:"points"`
	Mood          float64 `json:"mood"`
	CampaignPower float64 `json:"campaign_power"`

	Capacity       int     `json:"capacity"`
	SpawnInterval  float64 `json:"spawn_interval"`
	SpawnTimer     float64 `json:"spawn_timer"`
	SettleTimer    float64 `json:"settle_timer"`
	AttritionTimer float64 `json:"attrition_timer"`
	HelperTimer    float64 `json:"helper_timer"`

	Resources []ResourceV3 `json:"resources"`
	Stations  []StationV3  `json:"stations"`
	Helpers   []HelperV3   `json:"helpers"`
	Actors    []ActorV3    `json:"actors"`

	Converted map[string]int `json:"converted"`
	Counters  CountersV3     `json:"counters"`
	Stats     StatsV3        `json:"stats"`
	Phase     PhaseV3        `json:"phase"`
}

type ResourceV3 struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Cost       float64 `json:"cost"`
	Appeal     float64 `json:"appeal"`
	Difficulty float64 `json:"difficulty"`
	Impact     float64 `json:"impact"`
	Stock      int     `json:"stock"`
	MaxStock   int     `json:"max_stock"`
}

type StationV3 struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Resource int     `json:"resource"`
}

type HelperV3 struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Active       bool    `json:"active"`
	Funded       bool    `json:"funded"`
	PaymentTimer float64 `json:"payment_timer"`
	HiredAt      float64 `json:"hired_at"`
}

type ActorV3 struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Age         int          `json:"age"`
	Type        string       `json:"type"`
	Pos         [2]float64   `json:"pos"`
	Vel         [2]float64   `json:"vel"`
	Target      [2]float64   `json:"target"`
	Radius      float64      `json:"radius"`
	Speed       float64      `json:"speed"`
	Station     int          `json:"station"`
	Resource    int          `json:"resource"`
	Mood        float64      `json:"mood"`
	Receptivity float64      `json:"receptivity"`
	Patience    float64      `json:"patience"`
	Lifetime    float64      `json:"lifetime"`
	LeaveTimer  float64      `json:"leave_timer"`
	State       string       `json:"state"`
	Reason      string       `json:"reason,omitempty"`
	ExitChosen  bool         `json:"exit_chosen"`
	Exits       [][2]float64 `json:"exits,omitempty"`
}

type CountersV3 struct {
	Campaigns  int            `json:"campaigns"`
	Expansions int            `json:"expansions"`
	Restocks   map[string]int `json:"restocks,omitempty"`
	Hires      map[string]int `json:"hires,omitempty"`
	NextHelper uint64         `json:"next_helper"`
}

type StatsV3 struct {
	TotalConverts int            `json:"total_converts"`
	Attempts      int            `json:"attempts"`
	Successes     int            `json:"successes"`
	Spawned       int            `json:"spawned"`
	Lost          int            `json:"lost"`
	ByType        map[string]int `json:"by_type,omitempty"`
	ByBucket      map[string]int `json:"by_bucket,omitempty"`
	ByOutcome     map[string]int `json:"by_outcome,omitempty"`
}

type PhaseV3 struct {
	Current     int  `json:"current"`
	GoalReached bool `json:"goal_reached"`
}

// Encode marshals a save, stamping the current version.
func Encode(s SaveV3) ([]byte, error) {
	s.Header.Version = Version
	return json.Marshal(s)
}

// Decode validates and migrates a save document. It returns ErrTooOld for
// versions below MinVersion and ErrInvalid for structurally broken documents.
func Decode(b []byte) (SaveV3, error) {
	var out SaveV3

	var probe struct {
		Header *Header `json:"header"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if probe.Header == nil {
		return out, fmt.Errorf("%w: missing header", ErrInvalid)
	}
	v := probe.Header.Version
	if v < MinVersion {
		return out, fmt.Errorf("%w: version %d < %d", ErrTooOld, v, MinVersion)
	}
	if v > Version {
		return out, fmt.Errorf("%w: version %d is newer than %d", ErrInvalid, v, Version)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := saveSchema.Validate(doc); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	migrate(&out)
	return out, nil
}

// migrate upgrades older documents in place. Version 2 saves predate the
// helper payment timers, the phase block and the per-kind hire counters.
func migrate(s *SaveV3) {
	if s.Header.Version < 3 {
		for i := range s.Helpers {
			s.Helpers[i].Funded = s.Helpers[i].Active
		}
		if s.Counters.Hires == nil {
			s.Counters.Hires = map[string]int{}
			for _, h := range s.Helpers {
				s.Counters.Hires[h.Kind]++
			}
		}
	}
	if s.Phase.Current <= 0 {
		s.Phase.Current = 1
	}
	if s.Converted == nil {
		s.Converted = map[string]int{}
	}
	if s.Counters.Restocks == nil {
		s.Counters.Restocks = map[string]int{}
	}
	if s.Counters.Hires == nil {
		s.Counters.Hires = map[string]int{}
	}
	for i := range s.Resources {
		if s.Resources[i].MaxStock <= 0 {
			s.Resources[i].MaxStock = s.Resources[i].Stock
		}
	}
	s.Header.Version = Version
}

// WriteFile writes a zstd-compressed save: one JSON header line then the document.
func WriteFile(path string, s SaveV3) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	s.Header.Version = Version
	hb, _ := json.Marshal(s.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	body, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	_, err = bw.Write(body)
	return err
}

func ReadFile(path string) (SaveV3, error) {
	f, err := os.Open(path)
	if err != nil {
		return SaveV3{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return SaveV3{}, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// The header line is informational; the body carries its own header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return SaveV3{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return SaveV3{}, err
	}
	return Decode(bytes.TrimSpace(body))
}
