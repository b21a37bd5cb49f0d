package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/thanos-io/objstore/providers/filesystem"
	"gopkg.in/alecthomas/kingpin.v2"

	"caselaw/corpus-parquet/inspect"
	"caselaw/corpus-parquet/pkg/logging"
)

type Options struct {
	ArtifactDir string
	Concurrency int
	Duplicates  bool
	LogLevel    string
}

func (o *Options) BindFlags(app *kingpin.Application) {
	app.Flag("artifact-dir", "Directory containing the Parquet chunks.").
		Default("parquet_chunks").StringVar(&o.ArtifactDir)
	app.Flag("concurrency", "Number of footers read at once.").
		Default(fmt.Sprint(inspect.DefaultConcurrency)).IntVar(&o.Concurrency)
	app.Flag("duplicates", "Also scan the id columns for ids written by more than one chunk.").
		BoolVar(&o.Duplicates)
	app.Flag("log.level", "Log filtering level.").
		Default("info").EnumVar(&o.LogLevel, "debug", "info", "warn", "error")
}

func main() {
	app := kingpin.New("corpus-inspect", "Summarize the Parquet chunks written by corpus-convert.")
	opts := Options{}
	opts.BindFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger, err := logging.New(logging.FormatLogfmt, opts.LogLevel)
	if err != nil {
		stdlog.Fatal(err)
	}

	bkt, err := filesystem.NewBucket(opts.ArtifactDir)
	if err != nil {
		level.Error(logger).Log("msg", "failed opening artifact directory", "err", err)
		os.Exit(1)
	}

	report, err := inspect.Bucket(context.Background(), bkt, opts.Concurrency)
	if err != nil {
		level.Error(logger).Log("msg", "failed inspecting artifacts", "err", err)
		os.Exit(1)
	}

	for _, a := range report.Artifacts {
		columns := make([]string, 0, len(a.Columns))
		for _, c := range a.Columns {
			columns = append(columns, fmt.Sprintf("%s(%s %d/%d)", c.Name, c.Codec, c.CompressedSize, c.UncompressedSize))
		}
		fmt.Printf("%s\trows=%d\trow_groups=%d\tbytes=%d\tcolumns=%s\n", a.Name, a.Rows, a.RowGroups, a.Size, strings.Join(columns, ","))
	}
	fmt.Printf("total\tartifacts=%d\trows=%d\tbytes=%d\n", len(report.Artifacts), report.Rows, report.Size)

	if !opts.Duplicates {
		return
	}
	duplicates, err := inspect.DuplicateIDs(context.Background(), bkt, report)
	if err != nil {
		level.Error(logger).Log("msg", "failed scanning ids", "err", err)
		os.Exit(1)
	}
	for _, d := range duplicates {
		fmt.Printf("duplicate\tid=%s\tchunks=%v\n", d.ID, d.Chunks)
	}
	fmt.Printf("duplicates\t%d\n", len(duplicates))
}
