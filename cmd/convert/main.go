package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/thanos/pkg/runutil"
	"gopkg.in/alecthomas/kingpin.v2"

	"caselaw/corpus-parquet/config"
	"caselaw/corpus-parquet/convert"
	"caselaw/corpus-parquet/pkg/logging"
	"caselaw/corpus-parquet/storage"
)

func main() {
	cfg, err := config.ParseArgs(func() *kingpin.Application {
		return kingpin.New("corpus-convert", "Convert an opinions CSV into Parquet chunks and per-opinion text and HTML files.")
	}, os.Args[1:])
	if err != nil {
		stdlog.Fatal(err)
	}

	logger, err := logging.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		stdlog.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		level.Error(logger).Log("msg", "conversion failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	convertCfg, err := cfg.Converter()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.HTTPListen != "" {
		srv := &http.Server{Addr: cfg.HTTPListen, Handler: metricsHandler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				level.Error(logger).Log("msg", "metrics server stopped", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var buckets convert.Buckets
	for _, b := range []struct {
		name string
		cfg  storage.BucketConfig
		dst  *objstore.Bucket
	}{
		{"artifacts", cfg.Artifacts, &buckets.Artifacts},
		{"plain_text", cfg.PlainText, &buckets.PlainText},
		{"html", cfg.HTML, &buckets.HTML},
	} {
		bkt, err := storage.NewBucket(ctx, logger, b.name, b.cfg, reg)
		if err != nil {
			return err
		}
		defer runutil.CloseWithLogOnErr(logger, bkt, b.name+" bucket")
		*b.dst = bkt
	}

	var opts []convert.Option
	if cfg.Progress {
		bar := progressbar.Default(-1, "chunks")
		defer func() { _ = bar.Finish() }()
		opts = append(opts, convert.WithChunkDoneHook(func(convert.ChunkResult) {
			_ = bar.Add(1)
		}))
	}

	converter, err := convert.NewConverter(convertCfg, buckets, logger, reg, opts...)
	if err != nil {
		return err
	}

	source, err := storage.OpenSource(ctx, logger, cfg.Input, storage.SourceOptions{CredentialsFile: cfg.CredentialsFile})
	if err != nil {
		return err
	}
	defer runutil.CloseWithLogOnErr(logger, source, "corpus source")

	level.Info(logger).Log("msg", "converting corpus", "input", cfg.Input, "chunk_size", convertCfg.Reader.ChunkSize, "workers", convertCfg.Workers, "codec", convertCfg.Codec)
	summary, err := converter.Run(ctx, source)
	if err != nil {
		return errors.Wrapf(err, "converted %d chunks before failing", summary.Chunks)
	}
	if summary.ArtifactFailures > 0 || summary.RowFailures > 0 {
		level.Warn(logger).Log("msg", "some outputs were not written", "artifact_failures", summary.ArtifactFailures, "row_failures", summary.RowFailures)
	}
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
