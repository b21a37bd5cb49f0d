package scrape

import (
	"encoding/csv"
	"encoding/json"
	"io"
)

// Sink receives every scraped case in fetch order.
type Sink interface {
	Write(CaseDetails) error
	Flush() error
}

type ndjsonSink struct {
	enc *json.Encoder
}

// NewNDJSONSink writes one JSON object per line.
func NewNDJSONSink(w io.Writer) Sink {
	return &ndjsonSink{enc: json.NewEncoder(w)}
}

func (s *ndjsonSink) Write(c CaseDetails) error { return s.enc.Encode(c) }

func (s *ndjsonSink) Flush() error { return nil }

type csvSink struct {
	w             *csv.Writer
	headerWritten bool
}

func NewCSVSink(w io.Writer) Sink {
	return &csvSink{w: csv.NewWriter(w)}
}

func (s *csvSink) Write(c CaseDetails) error {
	if !s.headerWritten {
		if err := s.w.Write(csvHeader); err != nil {
			return err
		}
		s.headerWritten = true
	}
	return s.w.Write(c.csvRecord())
}

func (s *csvSink) Flush() error {
	if !s.headerWritten {
		if err := s.w.Write(csvHeader); err != nil {
			return err
		}
		s.headerWritten = true
	}
	s.w.Flush()
	return s.w.Error()
}

type multiSink []Sink

// MultiSink duplicates every case to each of sinks.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Write(c CaseDetails) error {
	for _, s := range m {
		if err := s.Write(c); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Flush() error {
	for _, s := range m {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}
