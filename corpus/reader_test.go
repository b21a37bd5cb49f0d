package corpus

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"caselaw/corpus-parquet/schema"
)

func strPtr(s string) *string { return &s }

func readAll(t *testing.T, reader *Reader) []Chunk {
	var chunks []Chunk
	for {
		chunk, err := reader.NextChunk()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func documents(chunks []Chunk) []schema.Document {
	var docs []schema.Document
	for _, c := range chunks {
		docs = append(docs, c.Documents...)
	}
	return docs
}

func TestReader(t *testing.T) {
	cases := []struct {
		name        string
		input       string
		opts        func(*Options)
		expected    []schema.Document
		skipped     int64
		chunkLength []int
	}{
		{
			name:  "plain rows",
			input: "id,plain_text,html\n42,Hello,\n43,World,<p>World</p>\n",
			expected: []schema.Document{
				{ID: "42", PlainText: strPtr("Hello")},
				{ID: "43", PlainText: strPtr("World"), HTML: strPtr("<p>World</p>")},
			},
		},
		{
			name:  "quoted fields with delimiters, doubled quotes and newlines",
			input: "id,plain_text,html\n1,`a, b`,`<p>\n</p>`\n2,`say ``hi```,\n3,`line one\nline two`,x\n",
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("a, b"), HTML: strPtr("<p>\n</p>")},
				{ID: "2", PlainText: strPtr("say `hi`")},
				{ID: "3", PlainText: strPtr("line one\nline two"), HTML: strPtr("x")},
			},
		},
		{
			name:  "unmatched quote inside a field is skipped",
			input: "id,plain_text,html\n1,one,\n7,he said `oops,<p/>\n8,eight,\n",
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("one")},
				{ID: "8", PlainText: strPtr("eight")},
			},
			skipped: 1,
		},
		{
			name:  "unterminated quote only drops its own line",
			input: "id,plain_text,html\n1,one,\n7,`oops,<p/>\n8,eight,\n9,nine,\n",
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("one")},
				{ID: "8", PlainText: strPtr("eight")},
				{ID: "9", PlainText: strPtr("nine")},
			},
			skipped: 1,
		},
		{
			name:  "garbage after closing quote",
			input: "id,plain_text,html\n1,`one`x,\n2,two,\n",
			expected: []schema.Document{
				{ID: "2", PlainText: strPtr("two")},
			},
			skipped: 1,
		},
		{
			name:  "too many fields are skipped, too few are kept",
			input: "id,plain_text,html\n1,one,,extra\n2,two\n3\n",
			expected: []schema.Document{
				{ID: "2", PlainText: strPtr("two")},
				{ID: "3"},
			},
			skipped: 1,
		},
		{
			name:     "empty id is skipped",
			input:    "id,plain_text,html\n,orphan,\n",
			expected: nil,
			skipped:  1,
		},
		{
			name:  "blank lines and crlf",
			input: "id,plain_text,html\r\n\r\n1,one,\r\n\n2,two,\r\n",
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("one")},
				{ID: "2", PlainText: strPtr("two")},
			},
		},
		{
			name:  "stray quote running over later lines only drops its own line",
			input: "id,plain_text,html\n1,a,b\n2,`bad,c\n3,good,d\n4,`q`x,e\n5,fine,f\n",
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("a"), HTML: strPtr("b")},
				{ID: "3", PlainText: strPtr("good"), HTML: strPtr("d")},
				{ID: "5", PlainText: strPtr("fine"), HTML: strPtr("f")},
			},
			skipped: 2,
		},
		{
			name:  "quote error on a continuation line gives back the lines it ran over",
			input: "id,plain_text,html\n1,`open\n2,two,\n3,x`y`,z\n4,four,\n",
			expected: []schema.Document{
				{ID: "2", PlainText: strPtr("two")},
				{ID: "4", PlainText: strPtr("four")},
			},
			skipped: 2,
		},
		{
			name:  "crlf inside a quoted field is kept",
			input: "id,plain_text,html\r\n1,`a\r\nb`,x\r\n2,`c\nd\r\ne`,\r\n",
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("a\r\nb"), HTML: strPtr("x")},
				{ID: "2", PlainText: strPtr("c\nd\r\ne")},
			},
		},
		{
			name:  "unused columns and different order",
			input: "html,court,id,plain_text\n<b>x</b>,ca9,5,five\n",
			expected: []schema.Document{
				{ID: "5", PlainText: strPtr("five"), HTML: strPtr("<b>x</b>")},
			},
		},
		{
			name:  "custom delimiter and quote",
			input: "id|plain_text|html\n1|\"a|b\"|\n",
			opts: func(o *Options) {
				o.Delimiter = '|'
				o.Quote = '"'
			},
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("a|b")},
			},
		},
		{
			name:  "oversized quoted field is dropped",
			input: "id,plain_text,html\n1,`runs on\nand on\nand on\n2,two,\n",
			opts: func(o *Options) {
				o.MaxRecordBytes = 10
			},
			expected: []schema.Document{
				{ID: "and on"},
				{ID: "and on"},
				{ID: "2", PlainText: strPtr("two")},
			},
			skipped: 1,
		},
		{
			name:  "record size limit counts the first line",
			input: "id,plain_text,html\n1,`abcdefghij\nx`,\n2,two,\n",
			opts: func(o *Options) {
				o.MaxRecordBytes = 10
			},
			expected: []schema.Document{
				{ID: "2", PlainText: strPtr("two")},
			},
			skipped: 2,
		},
		{
			name:        "chunking",
			input:       "id,plain_text,html\n1,a,\n2,b,\n3,c,\n4,d,\n5,e,\n",
			opts:        func(o *Options) { o.ChunkSize = 2 },
			chunkLength: []int{2, 2, 1},
			expected: []schema.Document{
				{ID: "1", PlainText: strPtr("a")},
				{ID: "2", PlainText: strPtr("b")},
				{ID: "3", PlainText: strPtr("c")},
				{ID: "4", PlainText: strPtr("d")},
				{ID: "5", PlainText: strPtr("e")},
			},
		},
		{
			name:        "header only",
			input:       "id,plain_text,html\n",
			chunkLength: []int{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			reader, err := NewReader(strings.NewReader(tc.input), opts, log.NewNopLogger())
			require.NoError(t, err)

			chunks := readAll(t, reader)
			require.Equal(t, tc.expected, documents(chunks))
			require.Equal(t, tc.skipped, reader.Skipped())
			if tc.chunkLength != nil {
				lengths := make([]int, 0, len(chunks))
				for _, c := range chunks {
					lengths = append(lengths, c.Len())
				}
				require.Equal(t, tc.chunkLength, lengths)
			}
		})
	}
}

func TestReaderChunkBoundaries(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,plain_text,html\n")
	for i := 0; i < 250_000; i++ {
		fmt.Fprintf(&sb, "%d,text %d,\n", i, i)
	}

	reader, err := NewReader(strings.NewReader(sb.String()), DefaultOptions(), log.NewNopLogger())
	require.NoError(t, err)

	chunks := readAll(t, reader)
	require.Len(t, chunks, 3)
	require.Equal(t, 100_000, chunks[0].Len())
	require.Equal(t, 100_000, chunks[1].Len())
	require.Equal(t, 50_000, chunks[2].Len())
	require.Equal(t, "100000", chunks[1].Documents[0].ID)
	require.Equal(t, 100_002, chunks[1].FirstLine)

	_, err = reader.NextChunk()
	require.Equal(t, io.EOF, err)
}

func TestReaderHeaderErrors(t *testing.T) {
	_, err := NewReader(strings.NewReader("id,plain_text\n1,a\n"), DefaultOptions(), log.NewNopLogger())
	require.ErrorIs(t, err, ErrMissingColumn)

	_, err = NewReader(strings.NewReader(""), DefaultOptions(), log.NewNopLogger())
	require.Error(t, err)

	reader, err := NewReader(strings.NewReader("\ufeffid,plain_text,html\n1,a,\n"), DefaultOptions(), log.NewNopLogger())
	require.NoError(t, err)
	require.Equal(t, []schema.Document{{ID: "1", PlainText: strPtr("a")}}, documents(readAll(t, reader)))
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Options)
	}{
		{name: "zero chunk size", modify: func(o *Options) { o.ChunkSize = 0 }},
		{name: "same delimiter and quote", modify: func(o *Options) { o.Quote = ',' }},
		{name: "newline delimiter", modify: func(o *Options) { o.Delimiter = '\n' }},
		{name: "non ascii quote", modify: func(o *Options) { o.Quote = '§' }},
		{name: "missing id column", modify: func(o *Options) { o.IDColumn = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.modify(&opts)
			require.Error(t, opts.Validate())
		})
	}
	require.NoError(t, DefaultOptions().Validate())
}
