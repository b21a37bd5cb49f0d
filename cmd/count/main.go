package main

import (
	stdlog "log"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/thanos/pkg/runutil"
	"gopkg.in/alecthomas/kingpin.v2"

	"caselaw/corpus-parquet/lexicon"
	"caselaw/corpus-parquet/pkg/logging"
)

type Options struct {
	Tokenized  string
	Dictionary string
	Output     string
	Start      int
	End        int
	Wide       bool
	LogLevel   string
}

func (o *Options) BindFlags(app *kingpin.Application) {
	app.Flag("tokenized", "Path to the tokenized opinions JSONL file.").
		Required().StringVar(&o.Tokenized)
	app.Flag("dictionary", "Path to the dictionary CSV with Words and regex columns.").
		Required().StringVar(&o.Dictionary)
	app.Flag("output", "Path of the count CSV to write.").
		Required().StringVar(&o.Output)
	app.Flag("start", "Index of the first opinion line to count.").
		Required().IntVar(&o.Start)
	app.Flag("end", "Index one past the last opinion line to count.").
		Required().IntVar(&o.End)
	app.Flag("wide", "Write one row per opinion with a column per pattern.").
		BoolVar(&o.Wide)
	app.Flag("log.level", "Log filtering level.").
		Default("info").EnumVar(&o.LogLevel, "debug", "info", "warn", "error")
}

func main() {
	app := kingpin.New("corpus-count", "Count dictionary pattern matches in tokenized opinions.")
	opts := Options{}
	opts.BindFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := logging.New(logging.FormatLogfmt, opts.LogLevel)
	if err != nil {
		stdlog.Fatal(err)
	}
	if err := run(opts, logger); err != nil {
		level.Error(logger).Log("msg", "count failed", "err", err)
		os.Exit(1)
	}
}

func run(opts Options, logger log.Logger) error {
	dictFile, err := os.Open(opts.Dictionary)
	if err != nil {
		return errors.Wrap(err, "failed opening dictionary")
	}
	defer runutil.CloseWithLogOnErr(logger, dictFile, "dictionary")
	entries, err := lexicon.LoadDictionary(dictFile, logger)
	if err != nil {
		return err
	}
	counter := lexicon.NewCounter(entries, logger)

	tokenized, err := os.Open(opts.Tokenized)
	if err != nil {
		return errors.Wrap(err, "failed opening tokenized opinions")
	}
	defer runutil.CloseWithLogOnErr(logger, tokenized, "tokenized opinions")

	if opts.Wide {
		records, err := counter.CountWide(tokenized, opts.Start, opts.End)
		if err != nil {
			return err
		}
		return writeOutput(opts.Output, logger, len(records), func(f *os.File) error {
			return lexicon.WriteWide(f, counter.Patterns(), records)
		})
	}

	records, err := counter.CountDetail(tokenized, opts.Start, opts.End)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		level.Info(logger).Log("msg", "no records found in this range", "start", opts.Start, "end", opts.End)
		return nil
	}
	return writeOutput(opts.Output, logger, len(records), func(f *os.File) error {
		return lexicon.WriteDetail(f, records)
	})
}

func writeOutput(path string, logger log.Logger, records int, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed creating output")
	}
	if err := write(f); err != nil {
		runutil.CloseWithLogOnErr(logger, f, "output")
		return errors.Wrap(err, "failed writing counts")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed closing output")
	}
	level.Info(logger).Log("msg", "saved counts", "output", path, "records", records)
	return nil
}
