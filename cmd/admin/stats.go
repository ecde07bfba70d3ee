package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"tycoonsim.dev/internal/persistence/indexdb"
	persistlog "tycoonsim.dev/internal/persistence/log"
	"tycoonsim.dev/internal/sim/world"
)

func statsCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	storePath := storeFlag(fs)
	theme := fs.String("theme", "shop", "theme id")
	logDir := fs.String("log", "", "read the JSONL outcome log under this data dir instead of the store")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	var (
		sum indexdb.OutcomeSummary
		err error
	)
	if dir := strings.TrimSpace(*logDir); dir != "" {
		sum, err = summarizeLog(persistlog.OutcomeDir(dir), *theme)
	} else {
		var s *indexdb.SQLiteStore
		s, err = openStore(*storePath)
		if err != nil {
			return err
		}
		defer s.Close()
		sum, err = s.OutcomeStats(context.Background(), *theme)
	}
	if err != nil {
		return err
	}
	printSummary(out, sum)
	return nil
}

// summarizeLog folds the rotated outcome files into the same summary the store computes.
func summarizeLog(dir, theme string) (indexdb.OutcomeSummary, error) {
	sum := indexdb.OutcomeSummary{
		Theme:     theme,
		ByOutcome: map[string]int{},
		ByType:    map[string]indexdb.TypeSummary{},
	}
	var moodSum float64
	probSum := map[string]float64{}
	probN := map[string]int{}

	err := persistlog.ReadOutcomes(dir, func(e world.OutcomeEntry) error {
		if e.Theme != theme {
			return nil
		}
		sum.Visits++
		sum.ByOutcome[e.Outcome]++
		moodSum += e.GlobalMood

		ts := sum.ByType[e.ActorType]
		ts.Visits++
		if attempted(e.Outcome) {
			sum.Attempts++
			probSum[e.ActorType] += e.Probability
			probN[e.ActorType]++
		}
		if world.Outcome(e.Outcome) == world.OutcomeSuccess {
			sum.Successes++
			ts.Successes++
		}
		sum.ByType[e.ActorType] = ts
		return nil
	})
	if err != nil {
		return sum, err
	}
	if sum.Visits > 0 {
		sum.MeanMood = moodSum / float64(sum.Visits)
	}
	for typ, n := range probN {
		ts := sum.ByType[typ]
		ts.MeanProbability = probSum[typ] / float64(n)
		sum.ByType[typ] = ts
	}
	return sum, nil
}

func attempted(outcome string) bool {
	switch world.Outcome(outcome) {
	case world.OutcomeSuccess, world.OutcomeTooExtreme, world.OutcomeNotConvinced:
		return true
	}
	return false
}

func printSummary(out io.Writer, sum indexdb.OutcomeSummary) {
	fmt.Fprintf(out, "theme=%s visits=%s attempts=%s successes=%s rate=%s%% mean_mood=%s\n",
		sum.Theme, humanize.Comma(int64(sum.Visits)), humanize.Comma(int64(sum.Attempts)), humanize.Comma(int64(sum.Successes)),
		humanize.FtoaWithDigits(sum.SuccessRate()*100, 1), humanize.FtoaWithDigits(sum.MeanMood, 1))
	if sum.Visits == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOUNT")
	for _, o := range sortedKeys(sum.ByOutcome) {
		fmt.Fprintf(tw, "%s\t%s\n", o, humanize.Comma(int64(sum.ByOutcome[o])))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TYPE\tVISITS\tSUCCESSES\tMEAN P")
	types := make([]string, 0, len(sum.ByType))
	for typ := range sum.ByType {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		ts := sum.ByType[typ]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", typ,
			humanize.Comma(int64(ts.Visits)), humanize.Comma(int64(ts.Successes)), humanize.FtoaWithDigits(ts.MeanProbability, 3))
	}
	_ = tw.Flush()
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
