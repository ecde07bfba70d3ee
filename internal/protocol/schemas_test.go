package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tycoonsim.dev/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip validates the JSON form of a Go value, as it goes over the wire.
func roundTrip(t *testing.T, s *jsonschema.Schema, v any) error {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return s.Validate(doc)
}

func TestSchemas_ValidateSamples(t *testing.T) {
	hello := compile(t, "hello.schema.json")
	welcome := compile(t, "welcome.schema.json")
	cmd := compile(t, "cmd.schema.json")
	result := compile(t, "result.schema.json")
	frame := compile(t, "frame.schema.json")

	if err := roundTrip(t, hello, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "canvas"}); err != nil {
		t.Fatalf("hello: %v", err)
	}

	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "S1",
		TickRateHz:      30,
		Seed:            1337,
		Theme: protocol.ThemeInfo{
			ID:      "shop",
			Title:   "Shop Tycoon",
			Digest:  "deadbeef",
			Terms:   map[string]string{"actor": "customer"},
			Canvas:  [2]float64{800, 600},
			Helpers: []string{"stocker"},
		},
	}
	if err := roundTrip(t, welcome, w); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	for _, c := range []protocol.CmdMsg{
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdRestock, Resource: "snack"},
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdCampaign, Ref: "r1"},
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdHire, Helper: "greeter"},
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdAdjust, Resource: "snack", Delta: -0.5},
	} {
		if err := roundTrip(t, cmd, c); err != nil {
			t.Fatalf("cmd %s: %v", c.Cmd, err)
		}
	}

	r := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version, Tick: 9, Result: protocol.Fail(protocol.ErrInsufficientFunds, "need more")}
	if err := roundTrip(t, result, r); err != nil {
		t.Fatalf("result: %v", err)
	}

	f := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            3,
		Mood:            50,
		Capacity:        50,
		Actors: []protocol.ActorView{
			{ID: "a1", Type: "regular", Pos: [2]float64{1, 2}, Radius: 5, Color: "#ffbb33", State: "traveling"},
		},
		Stations: []protocol.StationView{
			{ID: "station-1", X: 1, Y: 2, W: 3, H: 4, Resource: "snack", Stock: 0},
		},
	}
	if err := roundTrip(t, frame, f); err != nil {
		t.Fatalf("frame: %v", err)
	}
}

func TestSchemas_RejectBadCommands(t *testing.T) {
	cmd := compile(t, "cmd.schema.json")
	bad := []protocol.CmdMsg{
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: "teleport"},
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdRestock},
		{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, Cmd: protocol.CmdHire},
	}
	for _, c := range bad {
		if err := roundTrip(t, cmd, c); err == nil {
			t.Fatalf("expected %q to be rejected", c.Cmd)
		}
	}
}
