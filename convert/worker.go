package convert

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"

	"caselaw/corpus-parquet/artifact"
	"caselaw/corpus-parquet/corpus"
	"caselaw/corpus-parquet/schema"
)

const (
	KindPlainText = "plain_text"
	KindHTML      = "html"

	PlainTextExtension = ".txt"
	HTMLExtension      = ".html"
)

var ErrInvalidDocumentID = errors.New("document id is not a valid file name")

// Buckets are the three output locations of a conversion.
type Buckets struct {
	Artifacts objstore.Bucket
	PlainText objstore.Bucket
	HTML      objstore.Bucket
}

// RowError is a per-document write failure that did not stop the chunk.
type RowError struct {
	ID   string
	Kind string
	Err  error
}

// ChunkResult is the outcome of converting one chunk.
type ChunkResult struct {
	Index     int
	Rows      int
	FirstLine int

	Artifact    artifact.Result
	ArtifactErr error

	PlainTextWritten int
	HTMLWritten      int
	RowErrors        []RowError

	Duration time.Duration
	// Err is set when the worker itself failed rather than a single write.
	Err error
}

// Worker converts one chunk into its artifact and per-document files.
type Worker struct {
	artifacts *artifact.Writer
	plainText objstore.Bucket
	html      objstore.Bucket

	logger  log.Logger
	metrics *metrics
}

func newWorker(artifacts *artifact.Writer, buckets Buckets, logger log.Logger, m *metrics) *Worker {
	return &Worker{
		artifacts: artifacts,
		plainText: buckets.PlainText,
		html:      buckets.HTML,
		logger:    logger,
		metrics:   m,
	}
}

// Process writes the artifact for the chunk and then every document's files in chunk order.
// A failed artifact does not skip the documents, and a failed document does not skip the rest.
func (w *Worker) Process(ctx context.Context, index int, chunk corpus.Chunk) ChunkResult {
	start := time.Now()
	result := ChunkResult{Index: index, Rows: chunk.Len(), FirstLine: chunk.FirstLine}

	artifactResult, err := w.artifacts.WriteChunk(ctx, index, chunk.Documents)
	if err != nil {
		result.ArtifactErr = err
		w.metrics.artifactFailures.Inc()
		level.Warn(w.logger).Log("msg", "failed writing chunk artifact", "chunk", index, "err", err)
	} else {
		result.Artifact = artifactResult
		level.Info(w.logger).Log("msg", "saved chunk", "chunk", index, "artifact", artifactResult.Name, "rows", artifactResult.Rows, "bytes", artifactResult.Size)
	}

	for _, doc := range chunk.Documents {
		w.writeDocument(ctx, doc, &result)
	}

	result.Duration = time.Since(start)
	w.metrics.chunks.Inc()
	w.metrics.rows.Add(float64(result.Rows))
	level.Info(w.logger).Log(
		"msg", "processed chunk",
		"chunk", index,
		"rows", result.Rows,
		"plain_text", result.PlainTextWritten,
		"html", result.HTMLWritten,
		"failures", len(result.RowErrors),
		"duration", result.Duration,
	)
	return result
}

func (w *Worker) writeDocument(ctx context.Context, doc schema.Document, result *ChunkResult) {
	if !validDocumentID(doc.ID) {
		w.rowFailed(result, doc.ID, "document", ErrInvalidDocumentID)
		return
	}

	if doc.PlainText != nil {
		if err := w.plainText.Upload(ctx, doc.ID+PlainTextExtension, strings.NewReader(*doc.PlainText)); err != nil {
			w.rowFailed(result, doc.ID, KindPlainText, err)
		} else {
			result.PlainTextWritten++
			w.metrics.filesWritten.WithLabelValues(KindPlainText).Inc()
		}
	}

	if doc.HTML != nil && strings.TrimSpace(*doc.HTML) != "" {
		if err := w.html.Upload(ctx, doc.ID+HTMLExtension, strings.NewReader(*doc.HTML)); err != nil {
			w.rowFailed(result, doc.ID, KindHTML, err)
		} else {
			result.HTMLWritten++
			w.metrics.filesWritten.WithLabelValues(KindHTML).Inc()
		}
	}

	level.Debug(w.logger).Log("msg", "processed opinion", "id", doc.ID)
}

func (w *Worker) rowFailed(result *ChunkResult, id, kind string, err error) {
	result.RowErrors = append(result.RowErrors, RowError{ID: id, Kind: kind, Err: err})
	w.metrics.fileWriteFailures.WithLabelValues(kind).Inc()
	level.Warn(w.logger).Log("msg", "failed writing opinion", "id", id, "kind", kind, "chunk", result.Index, "err", err)
}

// validDocumentID reports whether id can name a file directly inside an output directory.
func validDocumentID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00")
}
