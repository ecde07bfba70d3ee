package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/protocol"
	"tycoonsim.dev/internal/sim/catalogs"
)

type WorldConfig struct {
	TickRateHz      int
	MaxStep         time.Duration
	FrameEveryTicks int
	AutosaveEvery   time.Duration
	EventLogLines   int
	Seed            int64
	Logger          *log.Logger
}

// CommandRequest carries one input-collaborator command into the loop.
type CommandRequest struct {
	Cmd  protocol.CmdMsg
	Resp chan protocol.Result
}

// SubscribeRequest registers a frame consumer.
type SubscribeRequest struct {
	Out  chan []byte
	Resp chan protocol.WelcomeMsg
}

// OutcomeEntry is one resolved visit.
type OutcomeEntry struct {
	Tick        uint64  `json:"tick"`
	Elapsed     float64 `json:"elapsed"`
	Theme       string  `json:"theme"`
	ActorID     string  `json:"actor_id"`
	ActorType   string  `json:"actor_type"`
	Resource    string  `json:"resource,omitempty"`
	Outcome     string  `json:"outcome"`
	Probability float64 `json:"probability,omitempty"`
	Receptivity float64 `json:"receptivity"`
	GlobalMood  float64 `json:"global_mood"`
}

type OutcomeLogger interface {
	WriteOutcome(entry OutcomeEntry) error
}

var errNoSink = errors.New("save sink not configured")

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    WorldConfig
	theme  *catalogs.Theme
	rng    *rand.Rand
	logger *log.Logger

	tick atomic.Uint64

	elapsed       float64
	ledger        Ledger
	mood          float64
	campaignPower float64
	capacity      int
	spawnInterval float64

	spawnTimer     float64
	settleTimer    float64
	attritionTimer float64
	helperTimer    float64

	resources []*Resource
	stations  []*Station
	helpers   []*Helper
	actors    []*Actor

	converted map[string]int
	counters  counters
	stats     Stats
	phase     phaseState
	events    []string

	nextActorNum   uint64
	nextSessionNum uint64

	inbox       chan CommandRequest
	subscribe   chan SubscribeRequest
	unsubscribe chan string
	saveCh      chan saveReq
	stop        chan struct{}

	subs map[string]chan []byte

	// Optional sinks (may be nil).
	snapshotSink  chan<- snapshot.SaveV3
	outcomeLogger OutcomeLogger

	metrics atomic.Value
}

func New(cfg WorldConfig, theme *catalogs.Theme) (*World, error) {
	if theme == nil {
		return nil, errors.New("nil theme")
	}
	if err := theme.Validate(); err != nil {
		return nil, fmt.Errorf("theme %s: %w", theme.ID, err)
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 30
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = 50 * time.Millisecond
	}
	if cfg.FrameEveryTicks <= 0 {
		cfg.FrameEveryTicks = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:         cfg,
		theme:       theme,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		logger:      logger,
		inbox:       make(chan CommandRequest, 256),
		subscribe:   make(chan SubscribeRequest, 16),
		unsubscribe: make(chan string, 16),
		saveCh:      make(chan saveReq, 8),
		stop:        make(chan struct{}),
		subs:        map[string]chan []byte{},
	}
	w.resetState()
	w.publishMetrics(0)
	return w, nil
}

func newResource(d catalogs.ResourceDef) *Resource {
	return &Resource{
		ID:         d.ID,
		Name:       d.Name,
		Price:      d.Price,
		Cost:       d.Cost,
		Appeal:     d.Appeal,
		Difficulty: d.Difficulty,
		Impact:     d.Impact,
		Stock:      d.Stock,
		MaxStock:   d.Stock,
	}
}

// resetState re-initializes every mutable field from the theme.
func (w *World) resetState() {
	th := w.theme
	w.elapsed = 0
	w.ledger = Ledger{Currency: th.Start.Currency, Points: th.Start.Points}
	w.mood = clamp(th.Start.Mood, 0, 100)
	w.campaignPower = 0
	w.capacity = th.Start.Capacity
	w.spawnInterval = th.Start.SpawnInterval
	w.spawnTimer, w.settleTimer, w.attritionTimer, w.helperTimer = 0, 0, 0, 0

	w.resources = make([]*Resource, 0, len(th.Resources)+len(th.ExpansionResources))
	for _, d := range th.Resources {
		w.resources = append(w.resources, newResource(d))
	}
	w.stations = make([]*Station, 0, len(th.Stations)+len(th.ExpansionSlots))
	for i, s := range th.Stations {
		w.stations = append(w.stations, &Station{
			ID:       fmt.Sprintf("station-%d", i+1),
			X:        s.X,
			Y:        s.Y,
			W:        s.W,
			H:        s.H,
			Resource: s.Resource,
		})
	}
	w.helpers = nil
	w.actors = nil
	w.converted = map[string]int{}
	w.counters = counters{restocks: map[string]int{}, hires: map[string]int{}}
	w.stats = newStats()
	w.phase = phaseState{current: 1}
	if len(th.Phases) > 0 {
		w.phase.current = th.Phases[0].ID
	}
	w.events = nil
	w.eventf("%s opened", th.Title)
}

func (w *World) SetSnapshotSink(ch chan<- snapshot.SaveV3) { w.snapshotSink = ch }
func (w *World) SetOutcomeLogger(l OutcomeLogger)          { w.outcomeLogger = l }

func (w *World) Inbox() chan<- CommandRequest       { return w.inbox }
func (w *World) Subscribe() chan<- SubscribeRequest { return w.subscribe }
func (w *World) Unsubscribe() chan<- string         { return w.unsubscribe }
func (w *World) Theme() *catalogs.Theme             { return w.theme }
func (w *World) CurrentTick() uint64                { return w.tick.Load() }
func (w *World) Config() WorldConfig                { return w.cfg }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var autosave <-chan time.Time
	if w.cfg.AutosaveEvery > 0 {
		t := time.NewTicker(w.cfg.AutosaveEvery)
		defer t.Stop()
		autosave = t.C
	}

	last := time.Now()
	var pending []CommandRequest
	var pendingSaves []saveReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.subscribe:
			w.handleSubscribe(req)
		case id := <-w.unsubscribe:
			delete(w.subs, id)
		case req := <-w.saveCh:
			pendingSaves = append(pendingSaves, req)
		case req := <-w.inbox:
			pending = append(pending, req)
		case <-autosave:
			if err := w.emitSave(); err != nil && !errors.Is(err, errNoSink) {
				w.logger.Printf("autosave: %v", err)
			}
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			w.step(dt, pending)
			w.handleSaveRequests(pendingSaves)
			pending = pending[:0]
			pendingSaves = pendingSaves[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// step advances the simulation by dt, clamped to MaxStep. Commands apply first,
// then spawn, movement and decisions, helpers, settlement, attrition and decay.
func (w *World) step(dt time.Duration, reqs []CommandRequest) {
	start := time.Now()
	nowTick := w.tick.Load()

	if dt > w.cfg.MaxStep {
		dt = w.cfg.MaxStep
	}
	if dt < 0 {
		dt = 0
	}
	sec := dt.Seconds()

	for _, req := range reqs {
		res := w.applyCommand(req.Cmd)
		if req.Resp != nil {
			select {
			case req.Resp <- res:
			default:
			}
		}
	}

	w.elapsed += sec
	w.systemSpawn(sec)
	w.systemActors(sec)
	w.systemHelpers(sec)
	w.systemSettlement(sec)
	w.systemAttrition(sec)
	w.decayMood(sec)
	w.decayCampaign(sec)
	w.checkPhaseGoal()

	if len(w.subs) > 0 && nowTick%uint64(w.cfg.FrameEveryTicks) == 0 {
		w.broadcastFrame(nowTick)
	}

	w.publishMetrics(time.Since(start))
	w.tick.Add(1)
}

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is intended for tests and the headless runner.
func (w *World) StepOnce(dt time.Duration, cmds ...protocol.CmdMsg) []protocol.Result {
	reqs := make([]CommandRequest, len(cmds))
	for i, c := range cmds {
		reqs[i] = CommandRequest{Cmd: c, Resp: make(chan protocol.Result, 1)}
	}
	w.step(dt, reqs)
	out := make([]protocol.Result, len(reqs))
	for i, r := range reqs {
		out[i] = <-r.Resp
	}
	return out
}

// Submit sends a command to the loop and waits for its result.
// It is safe to call from other goroutines (e.g. websocket readers).
func (w *World) Submit(ctx context.Context, cmd protocol.CmdMsg) (protocol.Result, error) {
	resp := make(chan protocol.Result, 1)
	select {
	case w.inbox <- CommandRequest{Cmd: cmd, Resp: resp}:
	case <-ctx.Done():
		return protocol.Result{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return protocol.Result{}, ctx.Err()
	}
}

func (w *World) welcome(sessionID string) protocol.WelcomeMsg {
	th := w.theme
	helpers := make([]string, 0, len(th.Helpers))
	for _, h := range th.Helpers {
		helpers = append(helpers, h.ID)
	}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		TickRateHz:      w.cfg.TickRateHz,
		Seed:            w.cfg.Seed,
		Theme: protocol.ThemeInfo{
			ID:     th.ID,
			Title:  th.Title,
			Digest: th.Digest,
			Terms: map[string]string{
				"actor":    th.Terms.Actor,
				"station":  th.Terms.Station,
				"resource": th.Terms.Resource,
				"currency": th.Terms.Currency,
				"points":   th.Terms.Points,
				"mood":     th.Terms.Mood,
				"campaign": th.Terms.Campaign,
				"helper":   th.Terms.Helper,
			},
			Canvas:  [2]float64{th.Canvas.Width, th.Canvas.Height},
			Helpers: helpers,
		},
	}
}

func (w *World) handleSubscribe(req SubscribeRequest) {
	w.nextSessionNum++
	id := fmt.Sprintf("S%d", w.nextSessionNum)
	if req.Out != nil {
		w.subs[id] = req.Out
	}
	if req.Resp != nil {
		req.Resp <- w.welcome(id)
	}
	if req.Out != nil {
		w.sendFrame(req.Out, w.tick.Load())
	}
}

func (w *World) broadcastFrame(nowTick uint64) {
	b, err := json.Marshal(w.BuildFrame(nowTick))
	if err != nil {
		return
	}
	for _, out := range w.subs {
		sendLatest(out, b)
	}
}

func (w *World) sendFrame(out chan []byte, nowTick uint64) {
	b, err := json.Marshal(w.BuildFrame(nowTick))
	if err != nil {
		return
	}
	sendLatest(out, b)
}

// sendLatest drops the oldest queued frame rather than blocking the loop.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
