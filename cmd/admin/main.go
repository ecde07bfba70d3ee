package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"tycoonsim.dev/internal/persistence/indexdb"
	"tycoonsim.dev/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		var err error
		switch os.Args[1] {
		case "saves":
			err = savesCmd(os.Args[2:], os.Stdout)
		case "show":
			err = showCmd(os.Args[2:], os.Stdout)
		case "export":
			err = exportCmd(os.Args[2:], os.Stdout)
		case "import":
			err = importCmd(os.Args[2:], os.Stdout)
		case "delete":
			err = deleteCmd(os.Args[2:], os.Stdout)
		case "stats":
			err = statsCmd(os.Args[2:], os.Stdout)
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		default:
			err = savesCmd(os.Args[1:], os.Stdout)
		}
		exitOn(err)
		return
	}
	exitOn(savesCmd(nil, os.Stdout))
}

func exitOn(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var ue usageError
	if errors.As(err, &ue) {
		os.Exit(2)
	}
	os.Exit(1)
}

type usageError string

func (e usageError) Error() string { return string(e) }

func storeFlag(fs *flag.FlagSet) *string {
	return fs.String("store", "./data/saves.db", "sqlite save store path")
}

func openStore(path string) (*indexdb.SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return indexdb.OpenSQLite(path)
}

// resolveKey accepts either a full key (save/shop) or a bare theme id.
func resolveKey(key, theme string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		theme = strings.TrimSpace(theme)
		if theme == "" {
			return "", usageError("missing -key or -theme")
		}
		return indexdb.SaveKey(theme), nil
	}
	if !strings.Contains(key, "/") {
		return indexdb.SaveKey(key), nil
	}
	return key, nil
}

func savesCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("saves", flag.ContinueOnError)
	storePath := storeFlag(fs)
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	s, err := openStore(*storePath)
	if err != nil {
		return err
	}
	defer s.Close()

	list, err := s.ListSaves(context.Background())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "no saves")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTHEME\tVERSION\tTICK\tSAVED\tSIZE")
	for _, si := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			si.Key, si.Theme, si.Version, humanize.Comma(int64(si.Tick)), humanize.Time(si.SavedAt), humanize.Bytes(uint64(si.Bytes)))
	}
	return tw.Flush()
}

func showCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	storePath := storeFlag(fs)
	key := fs.String("key", "", "save key or theme id")
	theme := fs.String("theme", "", "theme id (alternative to -key)")
	asJSON := fs.Bool("json", false, "print the full save document")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	k, err := resolveKey(*key, *theme)
	if err != nil {
		return err
	}

	s, err := openStore(*storePath)
	if err != nil {
		return err
	}
	defer s.Close()

	sv, err := s.GetSave(context.Background(), k)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sv)
	}
	printSave(out, k, sv)
	return nil
}

func printSave(out io.Writer, key string, sv snapshot.SaveV3) {
	fmt.Fprintf(out, "%s  theme=%s v%d tick=%s elapsed=%ss\n",
		key, sv.Header.Theme, sv.Header.Version, humanize.Comma(int64(sv.Header.Tick)), humanize.FtoaWithDigits(sv.Elapsed, 1))
	fmt.Fprintf(out, "currency %s  points %s  mood %s  campaign %s\n",
		humanize.CommafWithDigits(sv.Currency, 2), humanize.CommafWithDigits(sv.Points, 2),
		humanize.FtoaWithDigits(sv.Mood, 1), humanize.FtoaWithDigits(sv.CampaignPower, 1))
	fmt.Fprintf(out, "capacity %d  actors %d  helpers %d  stations %d\n",
		sv.Capacity, len(sv.Actors), len(sv.Helpers), len(sv.Stations))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tPRICE\tCOST\tSTOCK")
	for _, r := range sv.Resources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n", r.ID,
			humanize.FtoaWithDigits(r.Price, 2), humanize.FtoaWithDigits(r.Cost, 2), r.Stock, r.MaxStock)
	}
	_ = tw.Flush()

	if len(sv.Converted) > 0 {
		fmt.Fprint(out, "converted:")
		for _, typ := range sortedKeys(sv.Converted) {
			fmt.Fprintf(out, " %s=%d", typ, sv.Converted[typ])
		}
		fmt.Fprintln(out)
	}
}

func exportCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storePath := storeFlag(fs)
	key := fs.String("key", "", "save key or theme id")
	theme := fs.String("theme", "", "theme id (alternative to -key)")
	outPath := fs.String("out", "", "output .save.zst path")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if strings.TrimSpace(*outPath) == "" {
		return usageError("missing -out")
	}
	k, err := resolveKey(*key, *theme)
	if err != nil {
		return err
	}

	s, err := openStore(*storePath)
	if err != nil {
		return err
	}
	defer s.Close()

	sv, err := s.GetSave(context.Background(), k)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	if err := snapshot.WriteFile(*outPath, sv); err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %s tick=%d to %s\n", k, sv.Header.Tick, *outPath)
	return nil
}

func importCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	storePath := storeFlag(fs)
	in := fs.String("in", "", "input .save.zst path")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	if strings.TrimSpace(*in) == "" {
		return usageError("missing -in")
	}

	sv, err := snapshot.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}
	s, err := indexdb.OpenSQLite(*storePath)
	if err != nil {
		return err
	}
	defer s.Close()

	k := indexdb.SaveKey(sv.Header.Theme)
	if err := s.PutSave(context.Background(), k, sv); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %s tick=%d as %s\n", *in, sv.Header.Tick, k)
	return nil
}

func deleteCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	storePath := storeFlag(fs)
	key := fs.String("key", "", "save key or theme id")
	theme := fs.String("theme", "", "theme id (alternative to -key)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	k, err := resolveKey(*key, *theme)
	if err != nil {
		return err
	}

	s, err := openStore(*storePath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteSave(context.Background(), k); err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	fmt.Fprintf(out, "deleted %s\n", k)
	return nil
}
