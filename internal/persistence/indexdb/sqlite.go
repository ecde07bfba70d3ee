package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/sim/catalogs"
	"tycoonsim.dev/internal/sim/tuning"
	"tycoonsim.dev/internal/sim/world"
)

// ErrNotFound is returned when a save key has no row.
var ErrNotFound = errors.New("save not found")

// SaveKey is the store key for a theme's current session.
func SaveKey(theme string) string { return "save/" + theme }

// SQLiteStore is the durable key-value save store plus the outcome read model.
// Saves are written synchronously; outcome rows go through a batching writer goroutine.
type SQLiteStore struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropOutcomeTotal atomic.Uint64
}

type reqKind int

const (
	reqOutcome reqKind = iota + 1
)

type req struct {
	kind    reqKind
	outcome world.OutcomeEntry
}

// SaveInfo describes one stored save without its body.
type SaveInfo struct {
	Key     string
	Theme   string
	Version int
	Tick    uint64
	SavedAt time.Time
	Bytes   int
}

type QueueStats struct {
	QueueDepth       int
	QueueCapacity    int
	DropOutcomeTotal uint64
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db: db,
		// Outcome bursts are small (one row per visit) but the sim must never stall on them.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			key TEXT PRIMARY KEY,
			theme TEXT NOT NULL,
			version INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			saved_at INTEGER NOT NULL,
			body BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			elapsed REAL NOT NULL,
			theme TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			resource TEXT,
			outcome TEXT NOT NULL,
			probability REAL NOT NULL,
			receptivity REAL NOT NULL,
			global_mood REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_theme_outcome ON outcomes(theme, outcome);`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_theme_type ON outcomes(theme, actor_type);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteOutcome queues one resolved visit. It never blocks; rows are dropped
// (and counted) when the writer falls behind. The JSONL log remains the source of truth.
func (s *SQLiteStore) WriteOutcome(entry world.OutcomeEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqOutcome, outcome: entry}:
	default:
		s.dropOutcomeTotal.Add(1)
	}
	return nil
}

func (s *SQLiteStore) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropOutcomeTotal: s.dropOutcomeTotal.Load(),
	}
}

// UpsertCatalogs records the theme and tuning actually applied, keyed by name with their digests.
func (s *SQLiteStore) UpsertCatalogs(ctx context.Context, configDir string, th *catalogs.Theme, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if th != nil {
		raw, err := os.ReadFile(filepath.Join(configDir, "themes", th.ID+".yaml"))
		if err != nil {
			raw, _ = json.Marshal(th)
		}
		rows = append(rows, kv{name: "theme/" + th.ID, digest: th.Digest, json: raw})
	}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", digest: sha256Hex(b), json: b})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the recorded digest for a catalog row, or ErrNotFound.
func (s *SQLiteStore) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return d, err
}

// PutSave encodes and stores a save under key, replacing any previous body.
func (s *SQLiteStore) PutSave(ctx context.Context, key string, sv snapshot.SaveV3) error {
	if key == "" {
		return fmt.Errorf("empty save key")
	}
	body, err := snapshot.Encode(sv)
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	savedAt := sv.Header.SavedAt
	if savedAt == 0 {
		savedAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO saves(key,theme,version,tick,saved_at,body) VALUES(?,?,?,?,?,?)`,
		key, sv.Header.Theme, snapshot.Version, int64(sv.Header.Tick), savedAt, body)
	if err != nil {
		return fmt.Errorf("put save %s: %w", key, err)
	}
	return nil
}

// GetRaw returns the stored save body without decoding it.
func (s *SQLiteStore) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM saves WHERE key=?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get save %s: %w", key, err)
	}
	return body, nil
}

// GetSave loads and decodes a save. Decode failures carry snapshot.ErrTooOld or snapshot.ErrInvalid.
func (s *SQLiteStore) GetSave(ctx context.Context, key string) (snapshot.SaveV3, error) {
	body, err := s.GetRaw(ctx, key)
	if err != nil {
		return snapshot.SaveV3{}, err
	}
	return snapshot.Decode(body)
}

func (s *SQLiteStore) ListSaves(ctx context.Context) ([]SaveInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, theme, version, tick, saved_at, length(body) FROM saves ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveInfo
	for rows.Next() {
		var (
			si      SaveInfo
			tick    int64
			savedAt int64
		)
		if err := rows.Scan(&si.Key, &si.Theme, &si.Version, &tick, &savedAt, &si.Bytes); err != nil {
			return nil, err
		}
		si.Tick = uint64(tick)
		si.SavedAt = time.Unix(savedAt, 0).UTC()
		out = append(out, si)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSave(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE key=?`, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	insertOutcome, _ := s.db.Prepare(`INSERT INTO outcomes(tick,elapsed,theme,actor_id,actor_type,resource,outcome,probability,receptivity,global_mood) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertOutcome != nil {
			_ = insertOutcome.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// The store has a single connection, so an idle open tx would block PutSave/GetSave.
	idle := time.NewTicker(250 * time.Millisecond)
	defer idle.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-idle.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait/8 {
				commit()
			}
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqOutcome:
			o := r.outcome
			if insertOutcome == nil {
				continue
			}
			if _, err := tx.Stmt(insertOutcome).Exec(
				int64(o.Tick),
				o.Elapsed,
				o.Theme,
				o.ActorID,
				o.ActorType,
				o.Resource,
				o.Outcome,
				o.Probability,
				o.Receptivity,
				o.GlobalMood,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}
