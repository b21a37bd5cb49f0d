package main

import (
	stdlog "log"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/thanos/pkg/runutil"
	"gopkg.in/alecthomas/kingpin.v2"

	"caselaw/corpus-parquet/pkg/logging"
	"caselaw/corpus-parquet/ratio"
)

type Options struct {
	Emotion  string
	Rational string
	Output   string
	Start    int
	End      int
}

func (o *Options) BindFlags(app *kingpin.Application) {
	app.Flag("emotion", "Emotion detail count CSV.").Required().StringVar(&o.Emotion)
	app.Flag("rational", "Rational detail count CSV.").Required().StringVar(&o.Rational)
	app.Flag("output", "Output CSV for the ratios.").Required().StringVar(&o.Output)
	app.Flag("start", "Index of the first sorted document id.").Required().IntVar(&o.Start)
	app.Flag("end", "Index one past the last sorted document id.").Required().IntVar(&o.End)
}

func main() {
	app := kingpin.New("corpus-ratio", "Compute emotion to rational word ratios per opinion.")
	opts := Options{}
	opts.BindFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := logging.New(logging.FormatLogfmt, "info")
	if err != nil {
		stdlog.Fatal(err)
	}
	if err := run(opts, logger); err != nil {
		level.Error(logger).Log("msg", "ratio failed", "err", err)
		os.Exit(1)
	}
}

func run(opts Options, logger log.Logger) error {
	emotion, err := readCounts(opts.Emotion, logger)
	if err != nil {
		return err
	}
	rational, err := readCounts(opts.Rational, logger)
	if err != nil {
		return err
	}

	ratios := ratio.Compute(emotion, rational, opts.Start, opts.End)

	f, err := os.Create(opts.Output)
	if err != nil {
		return errors.Wrap(err, "failed creating output")
	}
	if err := ratio.WriteRatios(f, ratios); err != nil {
		runutil.CloseWithLogOnErr(logger, f, "output")
		return errors.Wrap(err, "failed writing ratios")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed closing output")
	}
	level.Info(logger).Log("msg", "saved ratios", "output", opts.Output, "rows", len(ratios))
	return nil
}

func readCounts(path string, logger log.Logger) ([]ratio.Count, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed opening counts")
	}
	defer runutil.CloseWithLogOnErr(logger, f, "counts")

	counts, err := ratio.ReadCounts(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading %s", path)
	}
	return counts, nil
}
