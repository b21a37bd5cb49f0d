package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/thanos/pkg/runutil"
	"gopkg.in/alecthomas/kingpin.v2"

	"caselaw/corpus-parquet/pkg/logging"
	"caselaw/corpus-parquet/scrape"
)

type Options struct {
	BaseURLs  []string
	Output    string
	CSVOutput string
	Start     int
	End       int
	Interval  time.Duration
	LogLevel  string
}

func (o *Options) BindFlags(app *kingpin.Application) {
	app.Flag("base-url", "Reporter root listing volumes. Repeatable.").
		Default(scrape.DefaultBaseURLs...).StringsVar(&o.BaseURLs)
	app.Flag("output", "NDJSON file receiving one case per line.").
		Default("case_details.ndjson").StringVar(&o.Output)
	app.Flag("csv-output", "Optional CSV mirror of the case details.").
		StringVar(&o.CSVOutput)
	app.Flag("start", "Index of the first discovered case link to fetch.").
		Default("0").IntVar(&o.Start)
	app.Flag("end", "Index one past the last case link to fetch. Negative means all.").
		Default("-1").IntVar(&o.End)
	app.Flag("interval", "Minimum delay between case fetches.").
		Default(scrape.DefaultInterval.String()).DurationVar(&o.Interval)
	app.Flag("log.level", "Log filtering level.").
		Default("info").EnumVar(&o.LogLevel, "debug", "info", "warn", "error")
}

func main() {
	app := kingpin.New("corpus-scrape", "Collect case metadata from the static case.law reporters.")
	opts := Options{}
	opts.BindFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := logging.New(logging.FormatLogfmt, opts.LogLevel)
	if err != nil {
		stdlog.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		level.Error(logger).Log("msg", "scrape failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options, logger log.Logger) error {
	out, err := os.Create(opts.Output)
	if err != nil {
		return errors.Wrap(err, "failed creating output")
	}
	defer runutil.CloseWithLogOnErr(logger, out, "ndjson output")
	sinks := []scrape.Sink{scrape.NewNDJSONSink(out)}

	if opts.CSVOutput != "" {
		csvOut, err := os.Create(opts.CSVOutput)
		if err != nil {
			return errors.Wrap(err, "failed creating csv output")
		}
		defer runutil.CloseWithLogOnErr(logger, csvOut, "csv output")
		sinks = append(sinks, scrape.NewCSVSink(csvOut))
	}

	scraper := scrape.New(logger, scrape.WithInterval(opts.Interval))
	stats, err := scraper.Run(ctx, opts.BaseURLs, opts.Start, opts.End, scrape.MultiSink(sinks...))
	level.Info(logger).Log("msg", "scrape finished", "links", stats.Links, "written", stats.Written, "failed", stats.Failed)
	return err
}
