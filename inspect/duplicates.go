package inspect

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/thanos-io/objstore"

	"caselaw/corpus-parquet/schema"
	"caselaw/corpus-parquet/storage"
)

const idBatchSize = 1024

// Duplicate is a document id found in more than one chunk. Its per-document files hold
// whichever chunk was written last.
type Duplicate struct {
	ID     string
	Chunks []int
}

// DuplicateIDs scans the id column of every artifact in report and returns the ids that
// occur in more than one chunk, in order of first appearance.
func DuplicateIDs(ctx context.Context, bkt objstore.BucketReader, report Report) ([]Duplicate, error) {
	var (
		order []string
		seen  = make(map[string][]int)
	)
	for _, a := range report.Artifacts {
		err := scanIDs(ctx, bkt, a, func(id string) {
			chunks, ok := seen[id]
			if !ok {
				order = append(order, id)
			}
			if len(chunks) == 0 || chunks[len(chunks)-1] != a.Index {
				seen[id] = append(chunks, a.Index)
			}
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed scanning ids of %s", a.Name)
		}
	}

	var duplicates []Duplicate
	for _, id := range order {
		if chunks := seen[id]; len(chunks) > 1 {
			duplicates = append(duplicates, Duplicate{ID: id, Chunks: chunks})
		}
	}
	return duplicates, nil
}

func scanIDs(ctx context.Context, bkt objstore.BucketReader, a Artifact, fn func(id string)) error {
	reader := storage.NewChunkedBucketReader(storage.NewBucketReader(a.Name, bkt), storage.DefaultMaxReadSize)
	file, err := parquet.OpenFile(reader, a.Size)
	if err != nil {
		return err
	}
	column, ok := file.Schema().Lookup(schema.IDColumn)
	if !ok {
		return errors.Errorf("artifact has no %q column", schema.IDColumn)
	}

	values := make([]parquet.Value, idBatchSize)
	for _, rowGroup := range file.RowGroups() {
		if err := ctx.Err(); err != nil {
			return err
		}
		pages := rowGroup.ColumnChunks()[column.ColumnIndex].Pages()
		err := readPages(pages, values, fn)
		if closeErr := pages.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func readPages(pages parquet.Pages, values []parquet.Value, fn func(id string)) error {
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		pageValues := page.Values()
		for {
			n, err := pageValues.ReadValues(values)
			for _, v := range values[:n] {
				fn(string(v.ByteArray()))
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				parquet.Release(page)
				return err
			}
		}
		parquet.Release(page)
	}
}
