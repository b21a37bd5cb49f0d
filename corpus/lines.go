package corpus

import (
	"bufio"
	"io"
	"strings"
)

// sourceLine is one physical line. eol holds the terminator that followed text:
// "\n", "\r\n" or empty for the last line of the input.
type sourceLine struct {
	text   string
	eol    string
	number int
}

// lineSource yields physical lines and lets the parser give back lines it
// consumed while looking for the end of a quoted field.
type lineSource struct {
	reader  *bufio.Reader
	pending []sourceLine
	lineNo  int
	err     error
}

func newLineSource(r io.Reader) *lineSource {
	return &lineSource{reader: bufio.NewReaderSize(r, 1024*1024)}
}

func (s *lineSource) next() (sourceLine, error) {
	if n := len(s.pending); n > 0 {
		line := s.pending[n-1]
		s.pending = s.pending[:n-1]
		return line, nil
	}
	if s.err != nil {
		return sourceLine{}, s.err
	}

	text, err := s.reader.ReadString('\n')
	if err != nil {
		s.err = err
		if text == "" {
			return sourceLine{}, err
		}
	}
	s.lineNo++
	line := sourceLine{text: text, number: s.lineNo}
	switch {
	case strings.HasSuffix(text, "\r\n"):
		line.text, line.eol = text[:len(text)-2], "\r\n"
	case strings.HasSuffix(text, "\n"):
		line.text, line.eol = text[:len(text)-1], "\n"
	}
	return line, nil
}

// unread returns lines to the source so that next yields them in their original order.
func (s *lineSource) unread(lines []sourceLine) {
	for i := len(lines) - 1; i >= 0; i-- {
		s.pending = append(s.pending, lines[i])
	}
}
