package lexicon

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

const (
	WordColumn  = "Words"
	RegexColumn = "regex"
)

// Entry is a dictionary word and the pattern counted for it.
type Entry struct {
	Word    string
	Pattern string

	re *regexp.Regexp
}

// Count returns the number of non-overlapping matches of the entry in text.
func (e Entry) Count(text string) int {
	return len(e.re.FindAllStringIndex(text, -1))
}

// LoadDictionary reads a CSV dictionary with Words and regex columns.
// Rows missing either value are dropped, and so are patterns that fail to compile.
func LoadDictionary(r io.Reader, logger log.Logger) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed reading dictionary header")
	}
	wordIdx, regexIdx := -1, -1
	for i, name := range header {
		switch strings.TrimPrefix(strings.TrimSpace(name), "\ufeff") {
		case WordColumn:
			wordIdx = i
		case RegexColumn:
			regexIdx = i
		}
	}
	if wordIdx < 0 || regexIdx < 0 {
		return nil, errors.Errorf("dictionary header must contain %q and %q columns", WordColumn, RegexColumn)
	}

	var entries []Entry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed reading dictionary")
		}
		if wordIdx >= len(record) || regexIdx >= len(record) {
			continue
		}
		word, pattern := record[wordIdx], record[regexIdx]
		if word == "" || strings.TrimSpace(pattern) == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			level.Warn(logger).Log("msg", "dropping dictionary entry", "word", word, "regex", pattern, "err", err)
			continue
		}
		entries = append(entries, Entry{Word: word, Pattern: pattern, re: re})
	}
	return entries, nil
}
