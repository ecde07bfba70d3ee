package indexdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/sim/catalogs"
	"tycoonsim.dev/internal/sim/tuning"
	"tycoonsim.dev/internal/sim/world"
)

func openTemp(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store", "tycoon.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, path
}

func sampleSave(theme string, tick uint64) snapshot.SaveV3 {
	return snapshot.SaveV3{
		Header:   snapshot.Header{Version: snapshot.Version, Theme: theme, Tick: tick, SavedAt: 1700000000},
		Currency: 123.45,
		Points:   6.5,
		Mood:     61,
		Resources: []snapshot.ResourceV3{
			{ID: "snack", Name: "Snack", Price: 4, Cost: 1.5, Stock: 7, MaxStock: 10},
		},
		Stations: []snapshot.StationV3{
			{ID: "station-1", X: 280, Y: 180, W: 120, H: 40, Resource: 0},
		},
		Helpers:   []snapshot.HelperV3{},
		Actors:    []snapshot.ActorV3{},
		Converted: map[string]int{"regular": 4},
	}
}

func TestSQLiteStore_PutGetListDelete(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.GetSave(ctx, SaveKey("shop")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}

	if err := s.PutSave(ctx, SaveKey("shop"), sampleSave("shop", 10)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.PutSave(ctx, SaveKey("shop"), sampleSave("shop", 20)); err != nil {
		t.Fatalf("put again: %v", err)
	}
	if err := s.PutSave(ctx, SaveKey("revolution"), sampleSave("revolution", 5)); err != nil {
		t.Fatalf("put other: %v", err)
	}

	got, err := s.GetSave(ctx, SaveKey("shop"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Header.Tick != 20 || got.Currency != 123.45 || got.Resources[0].Stock != 7 {
		t.Fatalf("got %+v", got)
	}
	if got.Converted["regular"] != 4 {
		t.Fatalf("converted=%v", got.Converted)
	}

	list, err := s.ListSaves(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "save/revolution" || list[1].Key != "save/shop" {
		t.Fatalf("list=%+v", list)
	}
	if list[1].Tick != 20 || list[1].Version != snapshot.Version || list[1].Bytes == 0 {
		t.Fatalf("info=%+v", list[1])
	}

	if err := s.DeleteSave(ctx, SaveKey("shop")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteSave(ctx, SaveKey("shop")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

func TestSQLiteStore_CorruptBodyIsInvalid(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO saves(key,theme,version,tick,saved_at,body) VALUES(?,?,?,?,?,?)`,
		"save/shop", "shop", 3, 1, 0, []byte(`{"header":{"version":1,"theme":"shop"}}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.GetSave(ctx, "save/shop"); !errors.Is(err, snapshot.ErrTooOld) {
		t.Fatalf("old body: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE saves SET body=? WHERE key=?`, []byte("not json"), "save/shop"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, err := s.GetSave(ctx, "save/shop"); !errors.Is(err, snapshot.ErrInvalid) {
		t.Fatalf("corrupt body: %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	if err := s.PutSave(ctx, SaveKey("shop"), sampleSave("shop", 99)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetSave(ctx, SaveKey("shop"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Header.Tick != 99 {
		t.Fatalf("tick=%d", got.Header.Tick)
	}
}

func TestSQLiteStore_UpsertCatalogs(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	configDir := filepath.Join("..", "..", "..", "configs")
	th, err := catalogs.LoadTheme(configDir, "shop")
	if err != nil {
		t.Fatalf("theme: %v", err)
	}
	if err := s.UpsertCatalogs(ctx, configDir, th, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d, err := s.CatalogDigest(ctx, "theme/shop")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d != th.Digest {
		t.Fatalf("digest=%s want %s", d, th.Digest)
	}
	if _, err := s.CatalogDigest(ctx, "tuning"); err != nil {
		t.Fatalf("tuning digest: %v", err)
	}
	if _, err := s.CatalogDigest(ctx, "theme/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing digest: %v", err)
	}
}

func TestSQLiteStore_OutcomeStats(t *testing.T) {
	s, path := openTemp(t)
	entries := []world.OutcomeEntry{
		{Tick: 1, Theme: "shop", ActorID: "a", ActorType: "regular", Resource: "snack", Outcome: "success", Probability: 0.8, GlobalMood: 50},
		{Tick: 2, Theme: "shop", ActorID: "b", ActorType: "regular", Resource: "snack", Outcome: "not_convinced", Probability: 0.4, GlobalMood: 50},
		{Tick: 3, Theme: "shop", ActorID: "c", ActorType: "big_spender", Resource: "gadget", Outcome: "no_material", GlobalMood: 44},
		{Tick: 4, Theme: "shop", ActorID: "d", ActorType: "big_spender", Resource: "gadget", Outcome: "success", Probability: 0.6, GlobalMood: 40},
		{Tick: 5, Theme: "revolution", ActorID: "e", ActorType: "student", Outcome: "impatient", GlobalMood: 30},
	}
	for _, e := range entries {
		if err := s.WriteOutcome(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Close drains the writer queue and commits.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.WriteOutcome(entries[0]); err != nil {
		t.Fatalf("write after close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	sum, err := s2.OutcomeStats(context.Background(), "shop")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if sum.Visits != 4 || sum.Attempts != 3 || sum.Successes != 2 {
		t.Fatalf("summary=%+v", sum)
	}
	if r := sum.SuccessRate(); r < 0.66 || r > 0.67 {
		t.Fatalf("rate=%v", r)
	}
	if sum.ByOutcome["no_material"] != 1 {
		t.Fatalf("by outcome=%v", sum.ByOutcome)
	}
	reg := sum.ByType["regular"]
	if reg.Visits != 2 || reg.Successes != 1 || reg.MeanProbability < 0.59 || reg.MeanProbability > 0.61 {
		t.Fatalf("regular=%+v", reg)
	}
	big := sum.ByType["big_spender"]
	if big.MeanProbability < 0.59 || big.MeanProbability > 0.61 {
		t.Fatalf("big spender=%+v", big)
	}
}

func TestSQLiteStore_QueueDropStats(t *testing.T) {
	s := &SQLiteStore{ch: make(chan req, 1)}
	s.ch <- req{kind: reqOutcome}

	_ = s.WriteOutcome(world.OutcomeEntry{Tick: 2})
	_ = s.WriteOutcome(world.OutcomeEntry{Tick: 3})

	st := s.Stats()
	if st.DropOutcomeTotal != 2 {
		t.Fatalf("DropOutcomeTotal=%d want=2", st.DropOutcomeTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
