package inspect

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/apache/arrow/go/v10/parquet/metadata"
	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
	"golang.org/x/exp/slices"

	"caselaw/corpus-parquet/artifact"
	"caselaw/corpus-parquet/generic"
	"caselaw/corpus-parquet/storage"
)

const (
	footerSize         = 8
	DefaultConcurrency = 8
)

var magic = []byte("PAR1")

type Column struct {
	Name             string
	Codec            string
	CompressedSize   int64
	UncompressedSize int64
}

// Artifact describes one chunk file from its footer alone.
type Artifact struct {
	Name      string
	Index     int
	Size      int64
	Rows      int64
	RowGroups int
	// Columns follow the leaf order of the file schema, which sorts leaves by name.
	Columns []Column
}

type Report struct {
	Artifacts []Artifact
	Rows      int64
	Size      int64
}

// Bucket lists the chunk artifacts of bkt and decodes their footers, ordered by chunk index.
// Objects not named like chunk artifacts are ignored.
func Bucket(ctx context.Context, bkt objstore.BucketReader, concurrency int) (Report, error) {
	var names []string
	err := bkt.Iter(ctx, "", func(name string) error {
		if _, ok := artifact.ParseChunkName(name); ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return Report{}, errors.Wrap(err, "failed listing artifacts")
	}

	artifacts := make([]Artifact, len(names))
	err = generic.ParallelEach(names, concurrency, func(i int, name string) error {
		a, err := Object(ctx, bkt, name)
		if err != nil {
			return errors.Wrapf(err, "failed inspecting %s", name)
		}
		artifacts[i] = a
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	slices.SortFunc(artifacts, func(a, b Artifact) bool {
		return a.Index < b.Index
	})
	report := Report{Artifacts: artifacts}
	for _, a := range artifacts {
		report.Rows += a.Rows
		report.Size += a.Size
	}
	return report, nil
}

// Object reads the footer of the named artifact. Column sizes are summed over
// all row groups.
func Object(ctx context.Context, bkt objstore.BucketReader, name string) (Artifact, error) {
	reader := storage.NewBucketReader(name, bkt)
	size, err := reader.Size(ctx)
	if err != nil {
		return Artifact{}, err
	}
	md, err := ReadFooter(storage.NewChunkedBucketReader(reader, storage.DefaultMaxReadSize), size)
	if err != nil {
		return Artifact{}, err
	}

	index, _ := artifact.ParseChunkName(name)
	a := Artifact{
		Name:      name,
		Index:     index,
		Size:      size,
		Rows:      md.GetNumRows(),
		RowGroups: len(md.RowGroups),
	}
	for i := 0; i < md.Schema.NumColumns(); i++ {
		col := Column{Name: md.Schema.Column(i).Name()}
		for _, rg := range md.RowGroups {
			chunk := rg.Columns[i].MetaData
			col.Codec = chunk.Codec.String()
			col.CompressedSize += chunk.TotalCompressedSize
			col.UncompressedSize += chunk.TotalUncompressedSize
		}
		a.Columns = append(a.Columns, col)
	}
	return a, nil
}

// ReadFooter decodes the file metadata stored at the end of a Parquet file of the given size.
func ReadFooter(r io.ReaderAt, size int64) (*metadata.FileMetaData, error) {
	if size < int64(len(magic)+footerSize) {
		return nil, errors.Errorf("file of %d bytes is too small to be parquet", size)
	}

	tail := make([]byte, footerSize)
	if _, err := r.ReadAt(tail, size-footerSize); err != nil {
		return nil, errors.Wrap(err, "failed reading footer")
	}
	if !bytes.Equal(tail[4:], magic) {
		return nil, errors.New("missing parquet magic bytes")
	}

	metadataSize := int64(binary.LittleEndian.Uint32(tail[:4]))
	if metadataSize > size-footerSize-int64(len(magic)) {
		return nil, errors.Errorf("footer length %d exceeds file size %d", metadataSize, size)
	}
	metadataBytes := make([]byte, metadataSize)
	if _, err := r.ReadAt(metadataBytes, size-footerSize-metadataSize); err != nil {
		return nil, errors.Wrap(err, "failed reading file metadata")
	}
	return metadata.NewFileMetaData(metadataBytes, nil)
}
