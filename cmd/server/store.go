package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"tycoonsim.dev/internal/persistence/indexdb"
	persistlog "tycoonsim.dev/internal/persistence/log"
	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/sim/world"
)

// openStore opens the save store selected by TYCOON_STORE_BACKEND (sqlite by default).
// A nil store means saves only go to file copies, if enabled.
func openStore(path string, logger *log.Logger) (*indexdb.SQLiteStore, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TYCOON_STORE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		logger.Printf("save store disabled (TYCOON_STORE_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported TYCOON_STORE_BACKEND: %s", backend)
	}
}

// loadSave picks the save to resume: an explicit file wins over the store.
// ok=false with a nil error means there is nothing usable and the world starts fresh.
func loadSave(ctx context.Context, store *indexdb.SQLiteStore, filePath, theme string, logger *log.Logger) (snapshot.SaveV3, bool, error) {
	var (
		s   snapshot.SaveV3
		err error
		src string
	)
	switch {
	case filePath != "":
		src = filePath
		s, err = snapshot.ReadFile(filePath)
	case store != nil:
		src = indexdb.SaveKey(theme)
		s, err = store.GetSave(ctx, src)
	default:
		return s, false, nil
	}

	switch {
	case err == nil:
		if s.Header.Theme != theme {
			logger.Printf("warning: save %s is for theme %q, not %q; starting fresh", src, s.Header.Theme, theme)
			return s, false, nil
		}
		return s, true, nil
	case errors.Is(err, indexdb.ErrNotFound):
		return s, false, nil
	case errors.Is(err, snapshot.ErrTooOld), errors.Is(err, snapshot.ErrInvalid):
		logger.Printf("warning: save %s unusable (%v); starting fresh", src, err)
		return s, false, nil
	default:
		return s, false, fmt.Errorf("load save %s: %w", src, err)
	}
}

// saveWriter drains the world's save sink into the store and optional file copies.
type saveWriter struct {
	store   *indexdb.SQLiteStore
	fileDir string
	logger  *log.Logger

	written  atomic.Uint64
	failed   atomic.Uint64
	lastTick atomic.Uint64
}

func (sw *saveWriter) run(ctx context.Context, ch <-chan snapshot.SaveV3) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-ch:
			if err := sw.write(ctx, s); err != nil {
				sw.failed.Add(1)
				sw.logger.Printf("save write: %v", err)
				continue
			}
			sw.written.Add(1)
			sw.lastTick.Store(s.Header.Tick)
		}
	}
}

func (sw *saveWriter) write(ctx context.Context, s snapshot.SaveV3) error {
	if sw.store != nil {
		if err := sw.store.PutSave(ctx, indexdb.SaveKey(s.Header.Theme), s); err != nil {
			return err
		}
	}
	if sw.fileDir != "" {
		path := filepath.Join(sw.fileDir, s.Header.Theme, strconv.FormatUint(s.Header.Tick, 10)+".save.zst")
		if err := snapshot.WriteFile(path, s); err != nil {
			return err
		}
	}
	return nil
}

// outcomeSinks builds the outcome fan-out for the world. Either sink may be absent.
func outcomeSinks(store *indexdb.SQLiteStore, file *persistlog.OutcomeLogger) world.OutcomeLogger {
	var f persistlog.Fanout
	if file != nil {
		f = append(f, file)
	}
	if store != nil {
		f = append(f, store)
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
