package storage

import (
	"context"
	"io"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/gcs"
	"gopkg.in/yaml.v3"
)

const (
	FilesystemType = "filesystem"
	GCSType        = "gcs"
)

type GCSConfig struct {
	Bucket         string `yaml:"bucket"`
	ServiceAccount string `yaml:"service_account,omitempty"`
}

// BucketConfig describes where one kind of output goes.
type BucketConfig struct {
	Type string    `yaml:"type"`
	Dir  string    `yaml:"dir"`
	GCS  GCSConfig `yaml:"gcs,omitempty"`
}

func (c BucketConfig) Validate() error {
	switch c.Type {
	case "", FilesystemType:
		if c.Dir == "" {
			return errors.New("filesystem bucket requires a directory")
		}
	case GCSType:
		if c.GCS.Bucket == "" {
			return errors.New("gcs bucket requires a bucket name")
		}
	default:
		return errors.Errorf("unknown bucket type %q", c.Type)
	}
	return nil
}

// NewBucket opens the bucket described by cfg. Filesystem roots are created if absent.
// Operation metrics are registered on reg under a "sink" label set to name.
func NewBucket(ctx context.Context, logger log.Logger, name string, cfg BucketConfig, reg prometheus.Registerer) (objstore.Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid "+name+" bucket")
	}

	var (
		bkt objstore.Bucket
		err error
	)
	switch cfg.Type {
	case "", FilesystemType:
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, errors.Wrap(err, "failed creating directory "+cfg.Dir)
		}
		bkt, err = filesystem.NewBucket(cfg.Dir)
	case GCSType:
		var conf []byte
		conf, err = yaml.Marshal(cfg.GCS)
		if err != nil {
			return nil, err
		}
		bkt, err = gcs.NewBucket(ctx, logger, conf, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed opening "+name+" bucket")
	}

	if reg == nil {
		return bkt, nil
	}
	return objstore.BucketWithMetrics(name, bkt, prometheus.WrapRegistererWith(prometheus.Labels{"sink": name}, reg)), nil
}

// BucketReader exposes a single bucket object as an io.ReaderAt.
type BucketReader struct {
	name   string
	bucket objstore.BucketReader
}

func NewBucketReader(name string, bucket objstore.BucketReader) *BucketReader {
	return &BucketReader{
		name:   name,
		bucket: bucket,
	}
}

func (i BucketReader) Name() string { return i.name }

func (i BucketReader) Size(ctx context.Context) (int64, error) {
	attrs, err := i.bucket.Attributes(ctx, i.name)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (i BucketReader) ReadAt(p []byte, off int64) (n int, err error) {
	rangeReader, err := i.bucket.GetRange(context.Background(), i.name, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer rangeReader.Close()

	return io.ReadFull(rangeReader, p)
}
