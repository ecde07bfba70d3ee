package world

import (
	"testing"
	"time"

	"tycoonsim.dev/internal/protocol"
	"tycoonsim.dev/internal/sim/catalogs"
)

const configDir = "../../../configs"

func loadTheme(t *testing.T, name string) *catalogs.Theme {
	t.Helper()
	th, err := catalogs.LoadTheme(configDir, name)
	if err != nil {
		t.Fatalf("load theme %s: %v", name, err)
	}
	return th
}

func newTestWorld(t *testing.T, theme string, seed int64) *World {
	t.Helper()
	w, err := New(WorldConfig{
		TickRateHz:    20,
		MaxStep:       100 * time.Millisecond,
		EventLogLines: 50,
		Seed:          seed,
	}, loadTheme(t, theme))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

// visitor builds a traveling actor headed for the station that serves resource idx.
func visitor(w *World, typ string, idx int, mood float64) *Actor {
	st := -1
	for i, s := range w.stations {
		if s.Resource == idx {
			st = i
			break
		}
	}
	return &Actor{
		ID:          "T1",
		Name:        "Test",
		Type:        typ,
		Station:     st,
		Resource:    idx,
		Mood:        mood,
		Receptivity: 0.7,
		Patience:    10,
		Speed:       80,
		State:       StateTraveling,
	}
}

func cmd(name string) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: name}
}
