package corpus

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMalformedRecord = errors.New("malformed record")

	errBareQuote       = errors.Wrap(ErrMalformedRecord, "quote character inside unquoted field")
	errAfterQuote      = errors.Wrap(ErrMalformedRecord, "unexpected character after closing quote")
	errUnterminated    = errors.Wrap(ErrMalformedRecord, "quoted field is never closed")
	errRecordTooLarge  = errors.Wrap(ErrMalformedRecord, "quoted field exceeds the record size limit")
	errTooManyFields   = errors.Wrap(ErrMalformedRecord, "record has more fields than the header")
	errMissingDocument = errors.Wrap(ErrMalformedRecord, "record has an empty document id")
)

type recordParser struct {
	src            *lineSource
	delimiter      byte
	quote          byte
	maxRecordBytes int
}

// readRecord parses the next logical record starting at the next non-blank line.
// A malformed record is reported with the line it started on. When a quoted field
// runs to the end of input or past maxRecordBytes only the first line is dropped and
// the remaining lines are parsed again. The same holds for a stray quote that
// swallows later lines before failing. Line terminators inside a quoted field are
// kept as they appear in the input.
func (p *recordParser) readRecord() (fields []string, lineNo int, err error) {
	first, err := p.src.next()
	for err == nil && first.text == "" {
		first, err = p.src.next()
	}
	if err != nil {
		return nil, 0, err
	}

	var (
		consumed   = []sourceLine{first}
		last       = first
		text       = first.text
		field      strings.Builder
		size       = len(first.text)
		inQuotes   bool
		afterQuote bool
		fieldStart = true
	)
	for pos := 0; ; {
		if pos >= len(text) {
			if !inQuotes {
				fields = append(fields, field.String())
				return fields, first.number, nil
			}

			next, err := p.src.next()
			if err == io.EOF {
				p.src.unread(consumed[1:])
				return nil, first.number, errUnterminated
			}
			if err != nil {
				return nil, first.number, err
			}
			size += len(last.eol) + len(next.text)
			if p.maxRecordBytes > 0 && size > p.maxRecordBytes {
				p.src.unread(append(consumed[1:], next))
				return nil, first.number, errRecordTooLarge
			}
			consumed = append(consumed, next)
			field.WriteString(last.eol)
			last, text, pos = next, next.text, 0
			continue
		}

		c := text[pos]
		switch {
		case inQuotes:
			if c == p.quote {
				if pos+1 < len(text) && text[pos+1] == p.quote {
					field.WriteByte(p.quote)
					pos += 2
					continue
				}
				inQuotes, afterQuote = false, true
			} else {
				field.WriteByte(c)
			}
		case c == p.delimiter:
			fields = append(fields, field.String())
			field.Reset()
			afterQuote, fieldStart = false, true
		case afterQuote:
			p.src.unread(consumed[1:])
			return nil, first.number, errAfterQuote
		case c == p.quote:
			if !fieldStart {
				p.src.unread(consumed[1:])
				return nil, first.number, errBareQuote
			}
			inQuotes, fieldStart = true, false
		default:
			field.WriteByte(c)
			fieldStart = false
		}
		pos++
	}
}
