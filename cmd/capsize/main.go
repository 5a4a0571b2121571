// Command capsize re-encodes images so each output fits a byte budget.
//
// Usage:
//
//	capsize [flags] <input>...
//
// Examples:
//
//	capsize photo.jpg                    # writes photo_compressed.jpg, ≤ 98 KiB
//	capsize -budget 250KiB scan.png
//	capsize -legacy -outdir out/ *.jpg   # 100 KiB budget
//	capsize -o small.jpg photo.jpg
//	capsize -best-effort huge.bmp        # keep over-budget output, exit 0
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"

	"github.com/shamspias/capsize"
)

type config struct {
	budget     int64
	policy     capsize.Policy
	autoOrient bool
	output     string
	outDir     string
	verbose    bool
	inputs     []string
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		essentials.Die(err)
	}
	if cfg.outDir != "" {
		essentials.Must(os.MkdirAll(cfg.outDir, 0755))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, cfg, os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*config, error) {
	fs := flag.NewFlagSet("capsize", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		budget     string
		legacy     bool
		bestEffort bool
		noOrient   bool
		cfg        config
	)
	fs.StringVar(&budget, "budget", "98KiB", "Maximum output size (e.g. 98KiB, 100KB, 2MiB)")
	fs.BoolVar(&legacy, "legacy", false, "Use the legacy 100 KiB budget (overrides -budget)")
	fs.BoolVar(&bestEffort, "best-effort", false, "Keep over-budget results instead of failing")
	fs.BoolVar(&noOrient, "no-orient", false, "Do not apply EXIF orientation")
	fs.StringVar(&cfg.output, "o", "", "Output path (single input only)")
	fs.StringVar(&cfg.outDir, "outdir", "", "Directory for outputs (default: next to each input)")
	fs.BoolVar(&cfg.verbose, "v", false, "Log every encode attempt")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: capsize [flags] <input>...")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.inputs = fs.Args()
	if len(cfg.inputs) == 0 {
		fs.Usage()
		return nil, errors.New("no input files")
	}
	if cfg.output != "" && len(cfg.inputs) > 1 {
		return nil, errors.New("-o requires exactly one input")
	}

	if legacy {
		cfg.budget = capsize.LegacyBudget
	} else {
		n, err := humanize.ParseBytes(budget)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid -budget %q", budget)
		}
		if n == 0 {
			return nil, errors.Errorf("invalid -budget %q: must be positive", budget)
		}
		cfg.budget = int64(n)
	}

	cfg.policy = capsize.Strict
	if bestEffort {
		cfg.policy = capsize.BestEffort
	}
	cfg.autoOrient = !noOrient
	return &cfg, nil
}

// destination picks the output path for src.
func (c *config) destination(src string) string {
	if c.output != "" {
		return c.output
	}
	dst := capsize.OutputPath(src)
	if c.outDir != "" {
		dst = filepath.Join(c.outDir, filepath.Base(dst))
	}
	return dst
}

// run compresses every input, reports each outcome and returns the exit
// code: 0 when all inputs succeeded, 1 otherwise.
func run(ctx context.Context, cfg *config, stdout, stderr io.Writer) int {
	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	opts := capsize.DefaultOptions()
	opts.Budget = cfg.budget
	opts.Policy = cfg.policy
	opts.AutoOrient = cfg.autoOrient
	opts.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	items := make([]capsize.BatchItem, len(cfg.inputs))
	for i, src := range cfg.inputs {
		items[i] = capsize.BatchItem{Src: src, Dst: cfg.destination(src)}
	}

	results := capsize.CompressBatch(ctx, items, capsize.BatchOptions{
		DefaultOpts: opts,
		OnItem: func(completed, total int, r capsize.BatchResult) {
			report(stdout, stderr, completed, total, r)
		},
	})

	summary := capsize.Summarize(results)
	if len(results) > 1 {
		fmt.Fprintln(stdout, summary)
	}
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func report(stdout, stderr io.Writer, completed, total int, r capsize.BatchResult) {
	prefix := fmt.Sprintf("[%d/%d] %s", completed, total, r.Item.Src)

	var cerr *capsize.CompressionError
	switch {
	case r.Err == nil:
		fmt.Fprintf(stdout, "%s → %s\n  %s\n", prefix, r.Result.Path, r.Result)
		if r.Result.LowQuality {
			fmt.Fprintf(stderr, "%s: warning: quality %d is below %d, output may be hard to read\n",
				prefix, r.Result.Quality, capsize.LowQualityThreshold)
		}
	case errors.As(r.Err, &cerr) && cerr.Kind == capsize.KindBudgetExceeded:
		fmt.Fprintf(stderr, "%s: could not reach %s, best attempt %s left at %s\n",
			prefix, humanize.IBytes(uint64(cerr.Budget)), humanize.IBytes(uint64(cerr.AchievedSize)), cerr.Path)
	default:
		fmt.Fprintf(stderr, "%s: %v\n", prefix, r.Err)
	}
}
