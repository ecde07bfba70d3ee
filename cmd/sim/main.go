package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"tycoonsim.dev/internal/persistence/snapshot"
	"tycoonsim.dev/internal/protocol"
	"tycoonsim.dev/internal/sim/catalogs"
	"tycoonsim.dev/internal/sim/world"
)

type runConfig struct {
	ConfigDir string
	Theme     string
	Seed      int64
	Step      time.Duration
	Duration  time.Duration
	Autopilot bool
	LoadSave  string
	OutSave   string
}

// report is what a headless run prints at the end.
type report struct {
	Theme    string
	Seed     int64
	Ticks    uint64
	Elapsed  float64
	Commands int
	Accepted int
	Final    snapshot.SaveV3
}

func main() {
	var cfg runConfig
	flag.StringVar(&cfg.ConfigDir, "configs", "./configs", "config directory")
	flag.StringVar(&cfg.Theme, "theme", "shop", "theme id")
	flag.Int64Var(&cfg.Seed, "seed", 1337, "rng seed")
	flag.DurationVar(&cfg.Step, "dt", 50*time.Millisecond, "fixed step per tick")
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Minute, "simulated time to run")
	flag.BoolVar(&cfg.Autopilot, "autopilot", true, "restock low shelves and run campaigns when affordable")
	flag.StringVar(&cfg.LoadSave, "load_save", "", "start from this .save.zst instead of a fresh world")
	flag.StringVar(&cfg.OutSave, "out", "", "write the final state to this .save.zst path")
	flag.Parse()

	rep, err := run(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sim:", err)
		os.Exit(1)
	}
	printReport(os.Stdout, rep)
}

func run(cfg runConfig) (report, error) {
	rep := report{Theme: cfg.Theme, Seed: cfg.Seed}
	if cfg.Step <= 0 {
		return rep, fmt.Errorf("bad -dt %s", cfg.Step)
	}

	th, err := catalogs.LoadTheme(cfg.ConfigDir, cfg.Theme)
	if err != nil {
		return rep, err
	}
	w, err := world.New(world.WorldConfig{
		TickRateHz:    int(time.Second / cfg.Step),
		MaxStep:       cfg.Step,
		EventLogLines: 20,
		Seed:          cfg.Seed,
	}, th)
	if err != nil {
		return rep, err
	}
	if cfg.LoadSave != "" {
		sv, err := snapshot.ReadFile(cfg.LoadSave)
		if err != nil {
			return rep, fmt.Errorf("read save: %w", err)
		}
		if err := w.ImportSave(sv); err != nil {
			return rep, fmt.Errorf("import save: %w", err)
		}
	}

	steps := int(cfg.Duration / cfg.Step)
	every := int(time.Second / cfg.Step)
	if every <= 0 {
		every = 1
	}
	for i := 0; i < steps; i++ {
		var cmds []protocol.CmdMsg
		if cfg.Autopilot && i%every == 0 {
			cmds = autopilot(w)
		}
		for _, res := range w.StepOnce(cfg.Step, cmds...) {
			rep.Commands++
			if res.OK {
				rep.Accepted++
			}
		}
	}

	rep.Ticks = w.CurrentTick()
	rep.Final = w.ExportSave(rep.Ticks)
	rep.Elapsed = rep.Final.Elapsed
	if cfg.OutSave != "" {
		if err := snapshot.WriteFile(cfg.OutSave, rep.Final); err != nil {
			return rep, fmt.Errorf("write save: %w", err)
		}
	}
	return rep, nil
}

// autopilot is a simple once-a-second player: refill shelves below a third and
// spend points on campaigns. It only issues commands it can currently afford.
func autopilot(w *world.World) []protocol.CmdMsg {
	sv := w.ExportSave(w.CurrentTick())
	budget := sv.Currency
	var cmds []protocol.CmdMsg
	for i, r := range sv.Resources {
		if r.Stock*3 >= r.MaxStock {
			continue
		}
		cost := w.RestockCost(i)
		if cost > budget {
			continue
		}
		budget -= cost
		cmds = append(cmds, command(protocol.CmdRestock, r.ID))
	}
	if w.CampaignCost() <= sv.Points {
		cmds = append(cmds, command(protocol.CmdCampaign, ""))
	}
	return cmds
}

func command(name, resource string) protocol.CmdMsg {
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Cmd:             name,
		Resource:        resource,
	}
}

func printReport(out io.Writer, rep report) {
	f := rep.Final
	st := f.Stats
	rate := 0.0
	if st.Attempts > 0 {
		rate = float64(st.Successes) / float64(st.Attempts)
	}
	fmt.Fprintf(out, "theme=%s seed=%d ticks=%s simulated=%s\n",
		rep.Theme, rep.Seed, humanize.Comma(int64(rep.Ticks)), time.Duration(rep.Elapsed*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(out, "currency=%s points=%s mood=%s campaign=%s capacity=%d\n",
		humanize.CommafWithDigits(f.Currency, 2), humanize.CommafWithDigits(f.Points, 2),
		humanize.FtoaWithDigits(f.Mood, 1), humanize.FtoaWithDigits(f.CampaignPower, 1), f.Capacity)
	fmt.Fprintf(out, "spawned=%s converts=%s lost=%s attempts=%s success_rate=%s%% commands=%d/%d\n",
		humanize.Comma(int64(st.Spawned)), humanize.Comma(int64(st.TotalConverts)), humanize.Comma(int64(st.Lost)),
		humanize.Comma(int64(st.Attempts)), humanize.FtoaWithDigits(rate*100, 1), rep.Accepted, rep.Commands)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOUNT")
	for _, k := range sortedKeys(st.ByOutcome) {
		fmt.Fprintf(tw, "%s\t%d\n", k, st.ByOutcome[k])
	}
	if len(st.ByBucket) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "BUCKET\tCONVERTS")
		for _, k := range sortedKeys(st.ByBucket) {
			fmt.Fprintf(tw, "%s\t%d\n", k, st.ByBucket[k])
		}
	}
	_ = tw.Flush()

	var stock []string
	for _, r := range f.Resources {
		stock = append(stock, fmt.Sprintf("%s=%d/%d", r.ID, r.Stock, r.MaxStock))
	}
	fmt.Fprintf(out, "stock: %s\n", strings.Join(stock, " "))
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
