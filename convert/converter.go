package convert

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"caselaw/corpus-parquet/artifact"
	"caselaw/corpus-parquet/corpus"
	"caselaw/corpus-parquet/schema"
)

const DefaultWorkers = 4

type Config struct {
	Reader  corpus.Options
	Workers int
	Codec   string
}

func DefaultConfig() Config {
	return Config{
		Reader:  corpus.DefaultOptions(),
		Workers: DefaultWorkers,
		Codec:   schema.DefaultCodec,
	}
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return errors.Errorf("worker count must be positive, got %d", c.Workers)
	}
	if _, err := schema.CodecByName(c.Codec); err != nil {
		return err
	}
	return c.Reader.Validate()
}

// Summary aggregates the outcome of a run.
type Summary struct {
	Chunks           int
	Rows             int64
	SkippedRows      int64
	ArtifactFailures int
	PlainTextWritten int64
	HTMLWritten      int64
	RowFailures      int64
	// Results holds one entry per submitted chunk, ordered by chunk index.
	Results []ChunkResult
}

type Option func(*Converter)

// WithChunkDoneHook registers fn to be called from the worker goroutine after each chunk.
func WithChunkDoneHook(fn func(ChunkResult)) Option {
	return func(c *Converter) {
		c.onChunkDone = fn
	}
}

func WithWriterOptions(opts ...artifact.WriterOption) Option {
	return func(c *Converter) {
		c.writerOptions = append(c.writerOptions, opts...)
	}
}

// Converter reads chunks sequentially and hands each one to a bounded pool of workers.
type Converter struct {
	cfg    Config
	logger log.Logger

	worker        *Worker
	metrics       *metrics
	writerOptions []artifact.WriterOption
	onChunkDone   func(ChunkResult)
}

func NewConverter(cfg Config, buckets Buckets, logger log.Logger, reg prometheus.Registerer, option ...Option) (*Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid converter config")
	}
	if buckets.Artifacts == nil || buckets.PlainText == nil || buckets.HTML == nil {
		return nil, errors.New("artifact, plain text and html buckets are required")
	}
	codec, err := schema.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	c := &Converter{
		cfg:     cfg,
		logger:  logger,
		metrics: newMetrics(reg),
	}
	for _, opt := range option {
		opt(c)
	}
	c.worker = newWorker(artifact.NewWriter(buckets.Artifacts, codec, c.writerOptions...), buckets, logger, c.metrics)
	return c, nil
}

// Run converts the corpus read from source. Submission blocks while all workers are busy,
// so at most Workers chunks are in flight besides the one being read.
//
// Cancelling ctx stops reading further chunks; chunks already submitted always run to
// completion. The returned error is the first worker fault, or else the read error.
// Failed artifacts and per-document writes are reported in the Summary only.
func (c *Converter) Run(ctx context.Context, source io.Reader) (Summary, error) {
	reader, err := corpus.NewReader(source, c.cfg.Reader, c.logger)
	if err != nil {
		return Summary{}, errors.Wrap(err, "failed opening corpus reader")
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results []ChunkResult
		readErr error
		workCtx = withoutCancel{ctx}
	)
	g.SetLimit(c.cfg.Workers)

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			readErr = err
			break
		}
		chunk, err := reader.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		index := index
		g.Go(func() error {
			result := c.process(workCtx, index, chunk)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			if c.onChunkDone != nil {
				c.onChunkDone(result)
			}
			return result.Err
		})
		level.Info(c.logger).Log("msg", "queued chunk", "chunk", index, "rows", chunk.Len(), "first_line", chunk.FirstLine)
	}

	workErr := g.Wait()
	c.metrics.skippedRows.Add(float64(reader.Skipped()))
	summary := summarize(results, reader.Skipped())
	level.Info(c.logger).Log(
		"msg", "conversion finished",
		"chunks", summary.Chunks,
		"rows", summary.Rows,
		"skipped_rows", summary.SkippedRows,
		"artifact_failures", summary.ArtifactFailures,
		"plain_text", summary.PlainTextWritten,
		"html", summary.HTMLWritten,
		"row_failures", summary.RowFailures,
	)

	if workErr != nil {
		return summary, workErr
	}
	if readErr != nil {
		return summary, errors.Wrap(readErr, "conversion stopped before the end of the corpus")
	}
	return summary, nil
}

func (c *Converter) process(ctx context.Context, index int, chunk corpus.Chunk) (result ChunkResult) {
	c.metrics.workersActive.Inc()
	defer c.metrics.workersActive.Dec()

	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("worker for chunk %d panicked: %v", index, r)
			level.Error(c.logger).Log("msg", "chunk worker failed", "chunk", index, "err", err)
			result = ChunkResult{Index: index, Rows: chunk.Len(), FirstLine: chunk.FirstLine, Err: err}
		}
	}()
	return c.worker.Process(ctx, index, chunk)
}

func summarize(results []ChunkResult, skipped int64) Summary {
	slices.SortFunc(results, func(a, b ChunkResult) bool {
		return a.Index < b.Index
	})

	summary := Summary{Chunks: len(results), SkippedRows: skipped, Results: results}
	for _, r := range results {
		summary.Rows += int64(r.Rows)
		summary.PlainTextWritten += int64(r.PlainTextWritten)
		summary.HTMLWritten += int64(r.HTMLWritten)
		summary.RowFailures += int64(len(r.RowErrors))
		if r.ArtifactErr != nil {
			summary.ArtifactFailures++
		}
	}
	return summary
}

// withoutCancel keeps the values of its parent but is never done.
type withoutCancel struct {
	parent context.Context
}

func (withoutCancel) Deadline() (time.Time, bool) { return time.Time{}, false }

func (withoutCancel) Done() <-chan struct{} { return nil }

func (withoutCancel) Err() error { return nil }

func (c withoutCancel) Value(key interface{}) interface{} { return c.parent.Value(key) }
