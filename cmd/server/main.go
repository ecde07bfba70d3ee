package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "tycoonsim.dev/internal/persistence/log"
	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/sim/catalogs"
	"tycoonsim.dev/internal/sim/tuning"
	"tycoonsim.dev/internal/sim/world"
	"tycoonsim.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		themeName  = flag.String("theme", "", "theme id (default: theme from tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 0, "rng seed (0: seed from tuning.yaml)")
		storePath  = flag.String("store", "", "sqlite save store path (default: <data>/<store.sqlite_path>)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		saveFile   = flag.String("load_save", "", "resume from this .save.zst file instead of the store")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *themeName != "" {
		tune.Theme = *themeName
	}
	if *seed != 0 {
		tune.Seed = *seed
	}

	th, err := catalogs.LoadTheme(*configDir, tune.Theme)
	if err != nil {
		logger.Fatalf("load theme: %v", err)
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	sp := strings.TrimSpace(*storePath)
	if sp == "" {
		sp = tune.Store.SQLitePath
		if !filepath.IsAbs(sp) {
			sp = filepath.Join(*dataDir, sp)
		}
	}
	store, err := openStore(sp, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	if store != nil {
		defer store.Close()
		if err := store.UpsertCatalogs(context.Background(), *configDir, th, tune); err != nil {
			logger.Printf("store: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.WorldConfig{
		TickRateHz:      tune.TickRateHz,
		MaxStep:         time.Duration(tune.MaxStepMs) * time.Millisecond,
		FrameEveryTicks: tune.FrameEveryTicks,
		AutosaveEvery:   time.Duration(tune.AutosaveSeconds) * time.Second,
		EventLogLines:   tune.EventLogLines,
		Seed:            tune.Seed,
		Logger:          logger,
	}, th)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	sv, ok, err := loadSave(context.Background(), store, strings.TrimSpace(*saveFile), th.ID, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if ok {
		if err := w.ImportSave(sv); err != nil {
			logger.Printf("warning: import save: %v; starting fresh", err)
		} else {
			logger.Printf("resumed %s from tick=%d", th.ID, w.CurrentTick())
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	var outcomeLog *persistlog.OutcomeLogger
	if tune.Store.OutcomeLog {
		outcomeLog = persistlog.NewOutcomeLogger(*dataDir)
		defer outcomeLog.Close()
	}
	w.SetOutcomeLogger(outcomeSinks(store, outcomeLog))

	saves := &saveWriter{store: store, logger: logger}
	if tune.Store.FileCopies {
		saves.fileDir = filepath.Join(*dataDir, "saves")
	}
	saveCh := make(chan snapshot.SaveV3, 2)
	w.SetSnapshotSink(saveCh)
	go saves.run(ctx, saveCh)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w.Metrics(), w.CurrentTick(), store.Stats(), saves)
	})

	if envBool("TYCOON_ENABLE_ADMIN_HTTP", true) {
		registerAdmin(mux, w)
	} else {
		logger.Printf("admin endpoints disabled (TYCOON_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("TYCOON_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("theme=%s seed=%d listening on %s", th.ID, tune.Seed, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Persist the final state once the loop has exited, before the store closes.
	cancel()
	<-runDone
	if store != nil || saves.fileDir != "" {
		final := w.ExportSave(w.CurrentTick())
		if err := saves.write(context.Background(), final); err != nil {
			logger.Printf("final save: %v", err)
		}
	}
}

// registerAdmin mounts the local-only admin endpoints.
func registerAdmin(mux *http.ServeMux, w *world.World) {
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Theme   string             `json:"theme"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			Theme:   w.Theme().ID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, err := w.RequestSave(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
