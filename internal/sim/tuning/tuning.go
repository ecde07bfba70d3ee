package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Theme string `yaml:"theme"`
	Seed  int64  `yaml:"seed"`

	TickRateHz      int `yaml:"tick_rate_hz"`
	MaxStepMs       int `yaml:"max_step_ms"`
	FrameEveryTicks int `yaml:"frame_every_ticks"`
	AutosaveSeconds int `yaml:"autosave_seconds"`
	EventLogLines   int `yaml:"event_log_lines"`

	Store StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	// SQLitePath is relative to the data dir when not absolute.
	SQLitePath string `yaml:"sqlite_path"`
	// FileCopies additionally writes every save as a .save.zst file.
	FileCopies bool `yaml:"file_copies"`
	// OutcomeLog enables the JSONL+zstd outcome log.
	OutcomeLog bool `yaml:"outcome_log"`
}

func Defaults() Tuning {
	return Tuning{
		Theme:           "shop",
		Seed:            1337,
		TickRateHz:      30,
		MaxStepMs:       50,
		FrameEveryTicks: 3,
		AutosaveSeconds: 15,
		EventLogLines:   100,
		Store: StoreConfig{
			SQLitePath: "saves.db",
			FileCopies: false,
			OutcomeLog: true,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.normalize()
	return t, nil
}

func (t *Tuning) normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.MaxStepMs <= 0 {
		t.MaxStepMs = d.MaxStepMs
	}
	if t.FrameEveryTicks <= 0 {
		t.FrameEveryTicks = d.FrameEveryTicks
	}
	if t.AutosaveSeconds <= 0 {
		t.AutosaveSeconds = d.AutosaveSeconds
	}
	if t.EventLogLines <= 0 {
		t.EventLogLines = d.EventLogLines
	}
	if t.Theme == "" {
		t.Theme = d.Theme
	}
	if t.Store.SQLitePath == "" {
		t.Store.SQLitePath = d.Store.SQLitePath
	}
}
