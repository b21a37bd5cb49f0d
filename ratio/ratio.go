package ratio

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var requiredColumns = []string{"document_id", "opinion_type", "count"}

// Count is one row of a detail count file.
type Count struct {
	DocumentID  string
	OpinionType string
	Count       float64
}

// Ratio is nil when the opinion has no rational matches.
type Ratio struct {
	DocumentID  string
	OpinionType string
	Ratio       *float64
}

type key struct {
	documentID  string
	opinionType string
}

// ReadCounts reads a CSV with at least document_id, opinion_type and count columns.
func ReadCounts(r io.Reader) ([]Count, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("count file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed reading count header")
	}
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.TrimPrefix(name, "\ufeff")] = i
	}
	idx := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		pos, ok := positions[name]
		if !ok {
			return nil, errors.Errorf("count file is missing column %q", name)
		}
		idx[i] = pos
	}

	var counts []Count
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return counts, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed reading counts")
		}
		if len(record) < len(header) {
			return nil, errors.Errorf("line %d has %d fields, expected %d", line, len(record), len(header))
		}
		count, err := strconv.ParseFloat(record[idx[2]], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid count on line %d", line)
		}
		counts = append(counts, Count{
			DocumentID:  record[idx[0]],
			OpinionType: record[idx[1]],
			Count:       count,
		})
	}
}

// Compute sums counts per document and opinion type for the emotion ids selected by
// the half-open range [start, end) and divides the emotion sum by the rational sum.
// Only pairs present in both inputs are returned. Negative bounds count from the end.
func Compute(emotion, rational []Count, start, end int) []Ratio {
	ids := uniqueIDs(emotion)
	lo, hi := sliceBounds(len(ids), start, end)
	selected := make(map[string]struct{}, hi-lo)
	for _, id := range ids[lo:hi] {
		selected[id] = struct{}{}
	}

	emotionSums := sumByKey(emotion, selected)
	rationalSums := sumByKey(rational, selected)

	ratios := make([]Ratio, 0, len(emotionSums))
	for k, e := range emotionSums {
		r, ok := rationalSums[k]
		if !ok {
			continue
		}
		ratio := Ratio{DocumentID: k.documentID, OpinionType: k.opinionType}
		if r > 0 {
			v := e / r
			ratio.Ratio = &v
		}
		ratios = append(ratios, ratio)
	}

	less := idLess(ids)
	slices.SortFunc(ratios, func(a, b Ratio) bool {
		if a.DocumentID != b.DocumentID {
			return less(a.DocumentID, b.DocumentID)
		}
		return a.OpinionType < b.OpinionType
	})
	return ratios
}

func sumByKey(counts []Count, selected map[string]struct{}) map[key]float64 {
	sums := make(map[key]float64)
	for _, c := range counts {
		if _, ok := selected[c.DocumentID]; !ok {
			continue
		}
		sums[key{c.DocumentID, c.OpinionType}] += c.Count
	}
	return sums
}

// uniqueIDs returns the distinct document ids, in numeric order when all of them are integers.
func uniqueIDs(counts []Count) []string {
	set := make(map[string]struct{}, len(counts))
	for _, c := range counts {
		set[c.DocumentID] = struct{}{}
	}
	ids := maps.Keys(set)
	slices.SortFunc(ids, idLess(ids))
	return ids
}

func idLess(ids []string) func(a, b string) bool {
	for _, id := range ids {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return func(a, b string) bool { return a < b }
		}
	}
	return func(a, b string) bool {
		x, _ := strconv.ParseInt(a, 10, 64)
		y, _ := strconv.ParseInt(b, 10, 64)
		return x < y
	}
}

// sliceBounds clamps [start, end) to a sequence of length n the way slicing with
// possibly negative or out of range bounds does in dataframe tooling.
func sliceBounds(n, start, end int) (int, int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	lo, hi := clamp(start), clamp(end)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func WriteRatios(w io.Writer, ratios []Ratio) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"document_id", "opinion_type", "ratio"}); err != nil {
		return err
	}
	for _, r := range ratios {
		value := ""
		if r.Ratio != nil {
			value = formatFloat(*r.Ratio)
		}
		if err := writer.Write([]string{r.DocumentID, r.OpinionType, value}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// formatFloat always keeps a fractional part so whole ratios read back as floats.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
