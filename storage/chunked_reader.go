package storage

import (
	"io"

	"golang.org/x/sync/errgroup"
)

const DefaultMaxReadSize = 4 * 1024 * 1024

type chunkedBucketReader struct {
	maxReadSize      int
	concurrencyLimit int
	reader           io.ReaderAt
}

// NewChunkedBucketReader splits large reads into maxReadSize ranges fetched concurrently.
func NewChunkedBucketReader(reader io.ReaderAt, maxReadSize int) io.ReaderAt {
	if maxReadSize <= 0 {
		maxReadSize = DefaultMaxReadSize
	}
	return &chunkedBucketReader{
		maxReadSize:      maxReadSize,
		concurrencyLimit: 16,
		reader:           reader,
	}
}

func (r chunkedBucketReader) ReadAt(p []byte, off int64) (n int, err error) {
	var g errgroup.Group
	g.SetLimit(r.concurrencyLimit)
	for bytesRead := 0; bytesRead < len(p); bytesRead += r.maxReadSize {
		readUntil := minInt(bytesRead+r.maxReadSize, len(p))
		part := p[bytesRead:readUntil]
		partOffset := int64(bytesRead) + off
		g.Go(func() error {
			_, err := r.reader.ReadAt(part, partOffset)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return len(p), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
