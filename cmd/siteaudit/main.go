package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"

	"github.com/projectdiscovery/goflags"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/siteaudit/backend/analyzer"
	"github.com/siteaudit/backend/config"
	"github.com/siteaudit/backend/logging"
	"github.com/siteaudit/backend/store"
)

type options struct {
	Targets      goflags.StringSlice
	Concurrency  int
	JSON         bool
	Output       string
	AllowPrivate bool
	Verbose      bool
}

func parseOptions() *options {
	opts := &options{}
	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription("siteaudit inspects websites for their stack, WordPress exposure, security posture and performance.")

	flagSet.CreateGroup("input", "Input",
		flagSet.StringSliceVarP(&opts.Targets, "url", "u", nil, "target URLs or a file with one URL per line", goflags.FileCommaSeparatedStringSliceOptions),
	)
	flagSet.CreateGroup("run", "Run",
		flagSet.IntVarP(&opts.Concurrency, "concurrency", "c", 4, "number of sites analyzed in parallel"),
		flagSet.BoolVar(&opts.AllowPrivate, "allow-private", false, "allow private and loopback targets"),
	)
	flagSet.CreateGroup("output", "Output",
		flagSet.BoolVar(&opts.JSON, "json", false, "write reports as JSON"),
		flagSet.StringVarP(&opts.Output, "output", "o", "", "file to write reports to"),
		flagSet.BoolVarP(&opts.Verbose, "verbose", "v", false, "show debug logs"),
	)

	if err := flagSet.Parse(); err != nil {
		logrus.WithError(err).Fatal("could not parse flags")
	}
	return opts
}

func main() {
	opts := parseOptions()
	if len(opts.Targets) == 0 {
		logrus.Fatal("no targets given, use -u")
	}

	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	cfg.RateLimit = 0
	cfg.AllowPrivateTargets = opts.AllowPrivate

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(level, "text")

	kv := store.NewMemoryStore(len(opts.Targets), 0)
	defer kv.Close()

	svc, err := analyzer.Build(cfg, kv, nil, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build analyzer")
	}
	defer svc.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	results := run(ctx, svc, opts.Targets, opts.Concurrency)

	out := os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			logger.WithError(err).Fatal("could not create output file")
		}
		defer f.Close()
		out = f
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports(results)); err != nil {
			logger.WithError(err).Fatal("could not write reports")
		}
	} else {
		for _, r := range results {
			printResult(out, r)
		}
	}
	printSummary(os.Stderr, results)
}

// result pairs a target with its report or the reason it failed.
type result struct {
	Target string
	Report *analyzer.Report
	Err    error
}

// run analyzes targets with bounded parallelism. Results keep the input order.
func run(ctx context.Context, a *analyzer.Service, targets []string, concurrency int) []result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]result, len(targets))
	bar := createProgressBar(len(targets))
	var barMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			report, err := a.Analyze(ctx, "cli", target)
			results[i] = result{Target: target, Report: report, Err: err}
			barMu.Lock()
			bar.Add(1)
			barMu.Unlock()
			return nil
		})
	}
	g.Wait()
	bar.Finish()
	return results
}

func reports(results []result) []*analyzer.Report {
	out := make([]*analyzer.Report, 0, len(results))
	for _, r := range results {
		if r.Report != nil {
			out = append(out, r.Report)
		}
	}
	return out
}
