package pqtest

import (
	"context"
	"io"

	"github.com/segmentio/parquet-go"
	"github.com/thanos-io/objstore"

	"caselaw/corpus-parquet/schema"
	"caselaw/corpus-parquet/storage"
)

// ReadDocuments decodes every document of a Parquet artifact in file order.
func ReadDocuments(reader io.ReaderAt, size int64) ([]schema.Document, error) {
	pqFile, err := parquet.OpenFile(reader, size)
	if err != nil {
		return nil, err
	}
	docSchema, err := schema.DocumentSchemaOf(pqFile.Schema())
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, pqFile.NumRows())
	for _, rowGroup := range pqFile.RowGroups() {
		rowGroupRows := rowGroup.Rows()
		for {
			rows := make([]parquet.Row, 64)
			n, err := rowGroupRows.ReadRows(rows)
			for _, row := range rows[:n] {
				docs = append(docs, docSchema.DocumentFromRow(row))
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rowGroupRows.Close()
				return nil, err
			}
			if n == 0 {
				break
			}
		}
		if err := rowGroupRows.Close(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// ReadArtifact reads the named artifact from a bucket.
func ReadArtifact(ctx context.Context, bkt objstore.BucketReader, name string) ([]schema.Document, error) {
	reader := storage.NewBucketReader(name, bkt)
	size, err := reader.Size(ctx)
	if err != nil {
		return nil, err
	}
	return ReadDocuments(reader, size)
}

// IDs lists the document ids of docs in order.
func IDs(docs []schema.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids
}
