package artifact

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/compress"
	"github.com/thanos-io/objstore"

	"caselaw/corpus-parquet/schema"
)

const (
	MaxPageSize = 8 * 1024

	writeBatchSize  = 1024
	writeBufferSize = 256 * 1024
	bloomFilterBits = 10
)

var chunkNameRegex = regexp.MustCompile(`^chunk_(\d+)\.parquet$`)

// ChunkName is the object name of the artifact for a chunk index.
func ChunkName(index int) string {
	return fmt.Sprintf("chunk_%d%s", index, schema.FileExtension)
}

// ParseChunkName returns the chunk index encoded in an artifact name.
func ParseChunkName(name string) (int, bool) {
	m := chunkNameRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return index, true
}

type WriterOption func(*Writer)

func WithPageBufferSize(size int) WriterOption {
	return func(w *Writer) {
		w.pageBufferSize = size
	}
}

func WithoutBloomFilters() WriterOption {
	return func(w *Writer) {
		w.bloomFilters = nil
	}
}

// Result describes one written artifact.
type Result struct {
	Name string
	Rows int64
	Size int64
}

// Writer persists chunks as Parquet objects in a bucket. It is safe for concurrent use
// as long as every call writes a distinct chunk index.
type Writer struct {
	bucket objstore.Bucket
	schema *schema.DocumentSchema

	bloomFilters   []parquet.BloomFilterColumn
	pageBufferSize int
}

func NewWriter(bucket objstore.Bucket, codec compress.Codec, option ...WriterOption) *Writer {
	writer := &Writer{
		bucket:         bucket,
		schema:         schema.MakeDocumentSchema(codec),
		bloomFilters:   []parquet.BloomFilterColumn{parquet.SplitBlockFilter(bloomFilterBits, schema.IDColumn)},
		pageBufferSize: MaxPageSize,
	}
	for _, opt := range option {
		opt(writer)
	}
	return writer
}

func (w *Writer) Schema() *schema.DocumentSchema {
	return w.schema
}

// WriteChunk encodes docs in order and uploads them as the artifact for index,
// replacing any previous artifact of the same name.
func (w *Writer) WriteChunk(ctx context.Context, index int, docs []schema.Document) (Result, error) {
	name := ChunkName(index)

	var buf bytes.Buffer
	pqWriter := w.openWriter(&buf)
	rows := make([]parquet.Row, 0, writeBatchSize)
	for i, doc := range docs {
		rows = append(rows, w.schema.MakeRow(doc))
		if len(rows) == cap(rows) || i == len(docs)-1 {
			if _, err := pqWriter.WriteRows(rows); err != nil {
				return Result{}, errors.Wrap(err, "failed encoding rows for "+name)
			}
			rows = rows[:0]
		}
	}
	if err := pqWriter.Close(); err != nil {
		return Result{}, errors.Wrap(err, "failed closing writer for "+name)
	}

	size := int64(buf.Len())
	if err := w.bucket.Upload(ctx, name, &buf); err != nil {
		return Result{}, errors.Wrap(err, "failed uploading "+name)
	}
	return Result{Name: name, Rows: int64(len(docs)), Size: size}, nil
}

func (w *Writer) openWriter(buf *bytes.Buffer) *parquet.GenericWriter[any] {
	options := []parquet.WriterOption{
		w.schema.ParquetSchema(),
		parquet.WriteBufferSize(writeBufferSize),
		parquet.PageBufferSize(w.pageBufferSize),
		parquet.DataPageStatistics(true),
	}
	if len(w.bloomFilters) > 0 {
		options = append(options, parquet.BloomFilters(w.bloomFilters...))
	}
	return parquet.NewGenericWriter[any](buf, options...)
}
