package lexicon

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

const maxLineBytes = 512 * 1024 * 1024

// DocumentID accepts both string and numeric ids.
type DocumentID string

func (d *DocumentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DocumentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = DocumentID(n.String())
	return nil
}

// Opinion is one line of the tokenized corpus.
type Opinion struct {
	DocumentID  DocumentID `json:"document_id"`
	OpinionType string     `json:"opinion_type"`
	Tokens      []string   `json:"tokens"`
}

// Text is the lowercased tokens joined by single spaces.
func (o Opinion) Text() string {
	return strings.ToLower(strings.Join(o.Tokens, " "))
}

// Record is the count of one dictionary entry in one opinion.
type Record struct {
	DocumentID  string
	OpinionType string
	Word        string
	Regex       string
	Count       int
}

// WideRecord holds the count of every dictionary pattern in one opinion.
type WideRecord struct {
	DocumentID  string
	OpinionType string
	Counts      []int
}

type Counter struct {
	entries []Entry
	logger  log.Logger
}

func NewCounter(entries []Entry, logger log.Logger) *Counter {
	return &Counter{entries: entries, logger: logger}
}

// Patterns lists the distinct patterns in dictionary order. They name the count columns of wide output.
func (c *Counter) Patterns() []string {
	return c.uniqueEntries().patterns
}

// CountDetail returns one record per opinion and entry with at least one match,
// for the lines of r with index in [start, end).
func (c *Counter) CountDetail(r io.Reader, start, end int) ([]Record, error) {
	var records []Record
	err := c.eachOpinion(r, start, end, func(o Opinion) {
		text := o.Text()
		for _, e := range c.entries {
			count := e.Count(text)
			if count == 0 {
				continue
			}
			records = append(records, Record{
				DocumentID:  string(o.DocumentID),
				OpinionType: o.OpinionType,
				Word:        e.Word,
				Regex:       e.Pattern,
				Count:       count,
			})
		}
	})
	return records, err
}

// CountWide returns one record per opinion with a count, possibly zero, for each of Patterns.
func (c *Counter) CountWide(r io.Reader, start, end int) ([]WideRecord, error) {
	unique := c.uniqueEntries()
	var records []WideRecord
	err := c.eachOpinion(r, start, end, func(o Opinion) {
		text := o.Text()
		counts := make([]int, len(unique.entries))
		for i, e := range unique.entries {
			counts[i] = e.Count(text)
		}
		records = append(records, WideRecord{
			DocumentID:  string(o.DocumentID),
			OpinionType: o.OpinionType,
			Counts:      counts,
		})
	})
	return records, err
}

type uniqueEntries struct {
	entries  []Entry
	patterns []string
}

func (c *Counter) uniqueEntries() uniqueEntries {
	var (
		u    uniqueEntries
		seen = make(map[string]struct{}, len(c.entries))
	)
	for _, e := range c.entries {
		if _, ok := seen[e.Pattern]; ok {
			continue
		}
		seen[e.Pattern] = struct{}{}
		u.entries = append(u.entries, e)
		u.patterns = append(u.patterns, e.Pattern)
	}
	return u
}

func (c *Counter) eachOpinion(r io.Reader, start, end int, fn func(Opinion)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for i := 0; i < end && scanner.Scan(); i++ {
		if i < start {
			continue
		}
		var o Opinion
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			level.Warn(c.logger).Log("msg", "skipping malformed opinion", "line", i, "err", err)
			continue
		}
		fn(o)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed reading tokenized opinions")
	}
	return nil
}

func WriteDetail(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"document_id", "opinion_type", "word", "regex", "count"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := writer.Write([]string{r.DocumentID, r.OpinionType, r.Word, r.Regex, strconv.Itoa(r.Count)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteWide(w io.Writer, patterns []string, records []WideRecord) error {
	writer := csv.NewWriter(w)
	header := append([]string{"document_id", "opinion_type"}, patterns...)
	if err := writer.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, r := range records {
		row[0], row[1] = r.DocumentID, r.OpinionType
		for i, count := range r.Counts {
			row[2+i] = strconv.Itoa(count)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
