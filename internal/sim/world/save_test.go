package world

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/protocol"
)

func TestSave_RoundTripRestoresLedgerStocksAndLayout(t *testing.T) {
	w := newTestWorld(t, "shop", 21)
	w.ledger = Ledger{Currency: 1000, Points: 500}
	for _, c := range []protocol.CmdMsg{cmd(protocol.CmdExpand), cmd(protocol.CmdCampaign), restockCmd("drink")} {
		if res := w.applyCommand(c); !res.OK {
			t.Fatalf("%s: %+v", c.Cmd, res)
		}
	}
	hire := cmd(protocol.CmdHire)
	hire.Helper = "stocker"
	w.applyCommand(hire)
	for i := 0; i < 400; i++ {
		w.StepOnce(50 * time.Millisecond)
	}

	saved := w.ExportSave(w.CurrentTick())
	b, err := snapshot.Encode(saved)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := snapshot.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	w2 := newTestWorld(t, "shop", 99)
	if err := w2.ImportSave(decoded); err != nil {
		t.Fatalf("import: %v", err)
	}

	if w2.ledger != w.ledger {
		t.Fatalf("ledger %+v want %+v", w2.ledger, w.ledger)
	}
	if w2.mood != w.mood || w2.campaignPower != w.campaignPower || w2.capacity != w.capacity {
		t.Fatalf("scalars differ")
	}
	if len(w2.resources) != len(w.resources) {
		t.Fatalf("resources=%d want %d", len(w2.resources), len(w.resources))
	}
	for i, r := range w.resources {
		if *w2.resources[i] != *r {
			t.Fatalf("resource %d: %+v want %+v", i, *w2.resources[i], *r)
		}
	}
	if len(w2.stations) != len(w.stations) {
		t.Fatalf("stations=%d want %d", len(w2.stations), len(w.stations))
	}
	for i, st := range w.stations {
		if *w2.stations[i] != *st {
			t.Fatalf("station %d: %+v want %+v", i, *w2.stations[i], *st)
		}
	}
	if len(w2.helpers) != len(w.helpers) || len(w2.actors) != len(w.actors) {
		t.Fatalf("roster differs: helpers %d/%d actors %d/%d", len(w2.helpers), len(w.helpers), len(w2.actors), len(w.actors))
	}
	if w2.CampaignCost() != w.CampaignCost() || w2.ExpansionCost() != w.ExpansionCost() {
		t.Fatalf("escalation counters not restored")
	}
	if w2.CurrentTick() != w.CurrentTick() {
		t.Fatalf("tick=%d want %d", w2.CurrentTick(), w.CurrentTick())
	}
}

func TestSave_RejectsOtherThemeAndBadStations(t *testing.T) {
	shop := newTestWorld(t, "shop", 1)
	rev := newTestWorld(t, "revolution", 1)
	if err := rev.ImportSave(shop.ExportSave(0)); err == nil {
		t.Fatalf("expected theme mismatch error")
	}

	s := shop.ExportSave(0)
	s.Stations[0].Resource = len(s.Resources)
	if err := shop.ImportSave(s); err == nil {
		t.Fatalf("expected bad station error")
	}
}

func TestSave_FileRoundTrip(t *testing.T) {
	w := newTestWorld(t, "revolution", 4)
	for i := 0; i < 200; i++ {
		w.StepOnce(50 * time.Millisecond)
	}
	path := filepath.Join(t.TempDir(), "saves", "revolution.json.zst")
	if err := snapshot.WriteFile(path, w.ExportSave(w.CurrentTick())); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := snapshot.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	w2 := newTestWorld(t, "revolution", 4)
	if err := w2.ImportSave(s); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.ledger != w.ledger {
		t.Fatalf("ledger %+v want %+v", w2.ledger, w.ledger)
	}
}

func TestRequestSave_GoesThroughLoop(t *testing.T) {
	w := newTestWorld(t, "shop", 1)
	sink := make(chan snapshot.SaveV3, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if _, err := w.RequestSave(ctx); err != nil {
		t.Fatalf("request save: %v", err)
	}
	select {
	case s := <-sink:
		if s.Header.Theme != "shop" {
			t.Fatalf("theme=%q", s.Header.Theme)
		}
	case <-ctx.Done():
		t.Fatalf("no save delivered")
	}

	res, err := w.Submit(ctx, restockCmd("snack"))
	if err != nil || !res.OK {
		t.Fatalf("submit: %+v %v", res, err)
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestFrame_MatchesSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "..", "schemas", "frame.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, theme := range []string{"shop", "revolution"} {
		w := newTestWorld(t, theme, 2)
		for i := 0; i < 2000 && len(w.actors) < 2; i++ {
			w.StepOnce(50 * time.Millisecond)
		}
		f := w.BuildFrame(w.CurrentTick())
		if len(f.Actors) == 0 {
			t.Fatalf("%s: no actors spawned", theme)
		}
		b, _ := json.Marshal(f)
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := schema.Validate(doc); err != nil {
			t.Fatalf("%s frame: %v", theme, err)
		}
	}
}

func TestShade(t *testing.T) {
	if got := shade("#808080", 0.5); got != "#404040" {
		t.Fatalf("shade=%s", got)
	}
	if got := shade("#ffffff", 1.2); got != "#ffffff" {
		t.Fatalf("shade clamp=%s", got)
	}
	if got := shade("red", 1.1); got != "red" {
		t.Fatalf("shade passthrough=%s", got)
	}
}

func TestSave_ResumeIsReproducible(t *testing.T) {
	src := newTestWorld(t, "shop", 31)
	for i := 0; i < 300; i++ {
		src.StepOnce(50 * time.Millisecond)
	}
	saved := src.ExportSave(src.CurrentTick())

	resume := func(seed int64) []byte {
		w := newTestWorld(t, "shop", seed)
		if err := w.ImportSave(saved); err != nil {
			t.Fatalf("import: %v", err)
		}
		if w.cfg.Seed != saved.Seed {
			t.Fatalf("seed=%d want %d", w.cfg.Seed, saved.Seed)
		}
		for i := 0; i < 600; i++ {
			w.StepOnce(50 * time.Millisecond)
		}
		s := w.ExportSave(w.CurrentTick())
		s.Header.SavedAt = 0
		b, err := snapshot.Encode(s)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		return b
	}

	a, b := resume(31), resume(99)
	if !bytes.Equal(a, b) {
		t.Fatalf("resumed runs diverged")
	}
}
