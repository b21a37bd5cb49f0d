package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	gcsStorage "cloud.google.com/go/storage"
	"github.com/go-kit/kit/log"
	"github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
	"github.com/thanos-io/thanos/pkg/runutil"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

type SourceOptions struct {
	// CredentialsFile is a service account key used for gs:// sources.
	// Application default credentials are used when empty.
	CredentialsFile string
}

// OpenSource opens the corpus at uri, either a local path or gs://bucket/object.
func OpenSource(ctx context.Context, logger log.Logger, uri string, opts SourceOptions) (io.ReadCloser, error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		f, err := os.Open(uri)
		if err != nil {
			return nil, errors.Wrap(err, "failed opening corpus")
		}
		return f, nil
	}

	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := gcsStorage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating gcs client")
	}

	reader, err := client.Bucket(bucket).Object(object).Retryer(gcsStorage.WithBackoff(gax.Backoff{
		Initial:    2 * time.Second,
		Max:        300 * time.Second,
		Multiplier: 3,
	})).NewReader(ctx)
	if err != nil {
		runutil.CloseWithLogOnErr(logger, client, "gcs client")
		return nil, errors.Wrapf(err, "Object(%q).NewReader", object)
	}

	return &gcsSource{Reader: reader, client: client, logger: logger}, nil
}

func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(uri, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", errors.Errorf("invalid gcs uri %q, expected gs://bucket/object", uri)
	}
	return bucket, object, nil
}

type gcsSource struct {
	*gcsStorage.Reader
	client *gcsStorage.Client
	logger log.Logger
}

func (s *gcsSource) Close() error {
	defer runutil.CloseWithLogOnErr(s.logger, s.client, "gcs client")
	return s.Reader.Close()
}
