package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tycoonsim.dev/internal/persistence/indexdb"
	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/sim/catalogs"
	"tycoonsim.dev/internal/sim/world"
)

func newServerTestWorld(t *testing.T) *world.World {
	t.Helper()
	th, err := catalogs.LoadTheme(filepath.Join("..", "..", "configs"), "shop")
	if err != nil {
		t.Fatalf("theme: %v", err)
	}
	w, err := world.New(world.WorldConfig{TickRateHz: 20, Seed: 7}, th)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"::1":            true,
		"10.0.0.3:9000":  false,
		"not-an-ip":      false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestLoadSave_StoreFileAndFallbacks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := indexdb.OpenSQLite(filepath.Join(dir, "saves.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, ok, err := loadSave(ctx, store, "", "shop", quietLogger()); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	w := newServerTestWorld(t)
	for i := 0; i < 10; i++ {
		w.StepOnce(50 * time.Millisecond)
	}
	sv := w.ExportSave(w.CurrentTick())
	if err := store.PutSave(ctx, indexdb.SaveKey("shop"), sv); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := loadSave(ctx, store, "", "shop", quietLogger())
	if err != nil || !ok || got.Header.Tick != sv.Header.Tick {
		t.Fatalf("store load: ok=%v err=%v tick=%d", ok, err, got.Header.Tick)
	}

	// A save for another theme is ignored.
	if _, ok, err := loadSave(ctx, store, "", "revolution", quietLogger()); ok || err != nil {
		t.Fatalf("other theme: ok=%v err=%v", ok, err)
	}

	// An explicit file wins over the store.
	path := filepath.Join(dir, "manual.save.zst")
	sv.Header.Tick = 4242
	if err := snapshot.WriteFile(path, sv); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, ok, err = loadSave(ctx, store, path, "shop", quietLogger())
	if err != nil || !ok || got.Header.Tick != 4242 {
		t.Fatalf("file load: ok=%v err=%v tick=%d", ok, err, got.Header.Tick)
	}

	// Corrupt files fall back to a fresh world instead of failing startup.
	bad := filepath.Join(dir, "bad.save.zst")
	if err := os.WriteFile(bad, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write bad: %v", err)
	}
	var logs bytes.Buffer
	if _, ok, err := loadSave(ctx, store, bad, "shop", log.New(&logs, "", 0)); ok || err != nil {
		t.Fatalf("bad file: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(logs.String(), "warning") {
		t.Fatalf("expected warning, got %q", logs.String())
	}
}

func TestSaveWriter_StoreAndFileCopies(t *testing.T) {
	dir := t.TempDir()
	store, err := indexdb.OpenSQLite(filepath.Join(dir, "saves.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	sw := &saveWriter{store: store, fileDir: filepath.Join(dir, "saves"), logger: quietLogger()}
	w := newServerTestWorld(t)
	sv := w.ExportSave(12)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan snapshot.SaveV3, 1)
	done := make(chan struct{})
	go func() {
		sw.run(ctx, ch)
		close(done)
	}()
	ch <- sv
	deadline := time.Now().Add(5 * time.Second)
	for sw.written.Load() == 0 && sw.failed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sw.written.Load() != 1 || sw.lastTick.Load() != 12 {
		t.Fatalf("written=%d last=%d", sw.written.Load(), sw.lastTick.Load())
	}
	if _, err := store.GetSave(context.Background(), indexdb.SaveKey("shop")); err != nil {
		t.Fatalf("store copy: %v", err)
	}
	if _, err := snapshot.ReadFile(filepath.Join(dir, "saves", "shop", "12.save.zst")); err != nil {
		t.Fatalf("file copy: %v", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	w := newServerTestWorld(t)
	w.StepOnce(50 * time.Millisecond)
	var buf bytes.Buffer
	sw := &saveWriter{}
	sw.written.Store(3)
	writeMetrics(&buf, w.Metrics(), w.CurrentTick(), indexdb.QueueStats{QueueCapacity: 8}, sw)
	out := buf.String()
	for _, want := range []string{
		`tycoon_world_tick{theme="shop"} 1`,
		`# TYPE tycoon_world_mood gauge`,
		`tycoon_ledger_balance{theme="shop",ledger="currency"} 150.00`,
		`tycoon_store_queue_capacity 8`,
		`tycoon_saves_written_total 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestAdminEndpoints_LoopbackOnly(t *testing.T) {
	w := newServerTestWorld(t)
	mux := http.NewServeMux()
	registerAdmin(mux, w)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote state code=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"theme":"shop"`) {
		t.Fatalf("state code=%d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/save", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("save GET code=%d", rec.Code)
	}
}
