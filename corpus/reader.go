package corpus

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"caselaw/corpus-parquet/schema"
)

const (
	DefaultChunkSize      = 100_000
	DefaultDelimiter      = ','
	DefaultQuote          = '`'
	DefaultMaxRecordBytes = 64 * 1024 * 1024
)

var ErrMissingColumn = errors.New("column missing from header")

type Options struct {
	Delimiter rune
	Quote     rune

	// Names of the header fields retained from each record.
	IDColumn        string
	PlainTextColumn string
	HTMLColumn      string

	// ChunkSize bounds the number of documents in a Chunk.
	ChunkSize int
	// MaxRecordBytes bounds how far a quoted field may run before the record is dropped.
	MaxRecordBytes int
}

func DefaultOptions() Options {
	return Options{
		Delimiter:       DefaultDelimiter,
		Quote:           DefaultQuote,
		IDColumn:        schema.IDColumn,
		PlainTextColumn: schema.PlainTextColumn,
		HTMLColumn:      schema.HTMLColumn,
		ChunkSize:       DefaultChunkSize,
		MaxRecordBytes:  DefaultMaxRecordBytes,
	}
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	for _, c := range []struct {
		name string
		r    rune
	}{{"delimiter", o.Delimiter}, {"quote", o.Quote}} {
		if c.r <= 0 || c.r >= utf8.RuneSelf || c.r == '\n' || c.r == '\r' {
			return errors.Errorf("%s must be a single ASCII character other than a line break, got %q", c.name, c.r)
		}
	}
	if o.Delimiter == o.Quote {
		return errors.New("delimiter and quote must differ")
	}
	if o.IDColumn == "" || o.PlainTextColumn == "" || o.HTMLColumn == "" {
		return errors.New("id, plain text and html column names are required")
	}
	return nil
}

// Chunk is an ordered batch of at most ChunkSize documents.
type Chunk struct {
	Documents []schema.Document
	// FirstLine is the source line the first document started on.
	FirstLine int
}

func (c Chunk) Len() int { return len(c.Documents) }

// Reader streams Chunks from a delimited corpus with a header line.
type Reader struct {
	parser *recordParser
	opts   Options
	logger log.Logger

	numFields int
	idPos     int
	plainPos  int
	htmlPos   int

	skipped int64
	eof     bool
}

func NewReader(r io.Reader, opts Options, logger log.Logger) (*Reader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	reader := &Reader{
		parser: &recordParser{
			src:            newLineSource(r),
			delimiter:      byte(opts.Delimiter),
			quote:          byte(opts.Quote),
			maxRecordBytes: opts.MaxRecordBytes,
		},
		opts:   opts,
		logger: logger,
	}
	if err := reader.readHeader(); err != nil {
		return nil, err
	}
	return reader, nil
}

func (r *Reader) readHeader() error {
	header, _, err := r.parser.readRecord()
	if err == io.EOF {
		return errors.New("corpus is empty, expected a header line")
	}
	if err != nil {
		return errors.Wrap(err, "failed reading header")
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	positions := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := positions[name]; !ok {
			positions[name] = i
		}
	}
	for _, c := range []struct {
		name string
		pos  *int
	}{
		{r.opts.IDColumn, &r.idPos},
		{r.opts.PlainTextColumn, &r.plainPos},
		{r.opts.HTMLColumn, &r.htmlPos},
	} {
		pos, ok := positions[c.name]
		if !ok {
			return errors.Wrap(ErrMissingColumn, c.name)
		}
		*c.pos = pos
	}
	r.numFields = len(header)
	return nil
}

// NextChunk returns the next batch of documents, or io.EOF once the corpus is exhausted.
// Malformed records are skipped and counted.
func (r *Reader) NextChunk() (Chunk, error) {
	if r.eof {
		return Chunk{}, io.EOF
	}

	chunk := Chunk{Documents: make([]schema.Document, 0, initialCapacity(r.opts.ChunkSize))}
	for len(chunk.Documents) < r.opts.ChunkSize {
		fields, lineNo, err := r.parser.readRecord()
		if err == io.EOF {
			r.eof = true
			break
		}
		if errors.Is(err, ErrMalformedRecord) {
			r.skip(lineNo, err)
			continue
		}
		if err != nil {
			return Chunk{}, errors.Wrap(err, "failed reading corpus")
		}

		doc, err := r.makeDocument(fields)
		if err != nil {
			r.skip(lineNo, err)
			continue
		}
		if len(chunk.Documents) == 0 {
			chunk.FirstLine = lineNo
		}
		chunk.Documents = append(chunk.Documents, doc)
	}

	if len(chunk.Documents) == 0 {
		return Chunk{}, io.EOF
	}
	return chunk, nil
}

// Skipped is the number of malformed records dropped so far.
func (r *Reader) Skipped() int64 {
	return r.skipped
}

func (r *Reader) skip(lineNo int, reason error) {
	r.skipped++
	level.Debug(r.logger).Log("msg", "skipping malformed record", "line", lineNo, "err", reason)
}

func (r *Reader) makeDocument(fields []string) (schema.Document, error) {
	if len(fields) > r.numFields {
		return schema.Document{}, errTooManyFields
	}
	id := fieldAt(fields, r.idPos)
	if id == nil || strings.TrimSpace(*id) == "" {
		return schema.Document{}, errMissingDocument
	}
	return schema.Document{
		ID:        *id,
		PlainText: fieldAt(fields, r.plainPos),
		HTML:      fieldAt(fields, r.htmlPos),
	}, nil
}

// fieldAt treats missing and empty fields alike as absent values.
func fieldAt(fields []string, pos int) *string {
	if pos >= len(fields) || fields[pos] == "" {
		return nil
	}
	return &fields[pos]
}

func initialCapacity(chunkSize int) int {
	if chunkSize > 4096 {
		return 4096
	}
	return chunkSize
}
