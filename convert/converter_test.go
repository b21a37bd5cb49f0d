package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"go.uber.org/goleak"

	"caselaw/corpus-parquet/artifact"
	"caselaw/corpus-parquet/pqtest"
	"caselaw/corpus-parquet/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const scenarioCorpus = "id,plain_text,html\n" +
	"42,Hello,\n" +
	"43,`Second, opinion`,`   `\n" +
	"44,,`<p>Third</p>`\n" +
	"45,he said `oops,<p>lost</p>\n" +
	"46,`multi\nline`,`<div>\n</div>`\n"

type dirs struct {
	artifacts string
	plain     string
	html      string
}

func filesystemBuckets(t *testing.T) (Buckets, dirs) {
	root := t.TempDir()
	d := dirs{
		artifacts: filepath.Join(root, "parquet_chunks"),
		plain:     filepath.Join(root, "plain"),
		html:      filepath.Join(root, "html"),
	}
	open := func(name, dir string) objstore.Bucket {
		bkt, err := storage.NewBucket(context.Background(), log.NewNopLogger(), name, storage.BucketConfig{Dir: dir}, nil)
		require.NoError(t, err)
		return bkt
	}
	return Buckets{
		Artifacts: open("artifacts", d.artifacts),
		PlainText: open("plain", d.plain),
		HTML:      open("html", d.html),
	}, d
}

func memBuckets() Buckets {
	return Buckets{
		Artifacts: objstore.NewInMemBucket(),
		PlainText: objstore.NewInMemBucket(),
		HTML:      objstore.NewInMemBucket(),
	}
}

func newTestConverter(t *testing.T, buckets Buckets, chunkSize, workers int, opts ...Option) *Converter {
	cfg := DefaultConfig()
	cfg.Reader.ChunkSize = chunkSize
	cfg.Workers = workers
	c, err := NewConverter(cfg, buckets, log.NewNopLogger(), prometheus.NewRegistry(), opts...)
	require.NoError(t, err)
	return c
}

func generateCorpus(rows int) string {
	var sb strings.Builder
	sb.WriteString("id,plain_text,html\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%d,opinion %d,`<p>%d</p>`\n", i, i, i)
	}
	return sb.String()
}

func listNames(t *testing.T, bkt objstore.Bucket) []string {
	var names []string
	require.NoError(t, bkt.Iter(context.Background(), "", func(name string) error {
		names = append(names, name)
		return nil
	}))
	sort.Strings(names)
	return names
}

func readFile(t *testing.T, path string) string {
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestConvertScenario(t *testing.T) {
	buckets, d := filesystemBuckets(t)
	c := newTestConverter(t, buckets, 2, 4)

	summary, err := c.Run(context.Background(), strings.NewReader(scenarioCorpus))
	require.NoError(t, err)

	require.Equal(t, 2, summary.Chunks)
	require.Equal(t, int64(4), summary.Rows)
	require.Equal(t, int64(1), summary.SkippedRows)
	require.Equal(t, 0, summary.ArtifactFailures)
	require.Equal(t, int64(3), summary.PlainTextWritten)
	require.Equal(t, int64(2), summary.HTMLWritten)
	require.Zero(t, summary.RowFailures)

	require.Equal(t, "Hello", readFile(t, filepath.Join(d.plain, "42.txt")))
	require.Equal(t, "Second, opinion", readFile(t, filepath.Join(d.plain, "43.txt")))
	require.Equal(t, "multi\nline", readFile(t, filepath.Join(d.plain, "46.txt")))
	require.Equal(t, "<p>Third</p>", readFile(t, filepath.Join(d.html, "44.html")))
	require.Equal(t, "<div>\n</div>", readFile(t, filepath.Join(d.html, "46.html")))

	for _, missing := range []string{
		filepath.Join(d.html, "42.html"),
		filepath.Join(d.html, "43.html"),
		filepath.Join(d.plain, "44.txt"),
		filepath.Join(d.plain, "45.txt"),
	} {
		_, err := os.Stat(missing)
		require.True(t, os.IsNotExist(err), missing)
	}

	require.Equal(t, []string{"chunk_0.parquet", "chunk_1.parquet"}, listNames(t, buckets.Artifacts))
	var ids []string
	for _, name := range []string{"chunk_0.parquet", "chunk_1.parquet"} {
		docs, err := pqtest.ReadArtifact(context.Background(), buckets.Artifacts, name)
		require.NoError(t, err)
		ids = append(ids, pqtest.IDs(docs)...)
	}
	require.Equal(t, []string{"42", "43", "44", "46"}, ids)
}

func TestLineEndingsInsideFieldsAreWrittenVerbatim(t *testing.T) {
	buckets, d := filesystemBuckets(t)
	c := newTestConverter(t, buckets, 10, 1)

	summary, err := c.Run(context.Background(), strings.NewReader("id,plain_text,html\r\n1,`a\r\nb`,x\r\n2,`c\nd`,\r\n"))
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.Rows)

	require.Equal(t, "a\r\nb", readFile(t, filepath.Join(d.plain, "1.txt")))
	require.Equal(t, "x", readFile(t, filepath.Join(d.html, "1.html")))
	require.Equal(t, "c\nd", readFile(t, filepath.Join(d.plain, "2.txt")))

	docs, err := pqtest.ReadArtifact(context.Background(), buckets.Artifacts, "chunk_0.parquet")
	require.NoError(t, err)
	require.Equal(t, "a\r\nb", *docs[0].PlainText)
}

func TestArtifactCountMatchesChunks(t *testing.T) {
	cases := []struct {
		rows      int
		chunkSize int
		expected  int
	}{
		{rows: 1000, chunkSize: 100, expected: 10},
		{rows: 1001, chunkSize: 100, expected: 11},
		{rows: 25, chunkSize: 10, expected: 3},
		{rows: 5, chunkSize: 100, expected: 1},
		{rows: 0, chunkSize: 100, expected: 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d rows by %d", tc.rows, tc.chunkSize), func(t *testing.T) {
			buckets := memBuckets()
			c := newTestConverter(t, buckets, tc.chunkSize, 4)

			summary, err := c.Run(context.Background(), strings.NewReader(generateCorpus(tc.rows)))
			require.NoError(t, err)
			require.Equal(t, tc.expected, summary.Chunks)
			require.Len(t, listNames(t, buckets.Artifacts), tc.expected)
			require.Len(t, listNames(t, buckets.PlainText), tc.rows)
			require.Len(t, listNames(t, buckets.HTML), tc.rows)

			for i, r := range summary.Results {
				require.Equal(t, i, r.Index)
				require.Equal(t, artifact.ChunkName(i), r.Artifact.Name)
			}
		})
	}
}

type failingUploadBucket struct {
	objstore.Bucket
	fail func(name string) error
}

func (b failingUploadBucket) Upload(ctx context.Context, name string, r io.Reader) error {
	if err := b.fail(name); err != nil {
		return err
	}
	return b.Bucket.Upload(ctx, name, r)
}

func TestArtifactFailureDoesNotSkipDocuments(t *testing.T) {
	buckets := memBuckets()
	buckets.Artifacts = failingUploadBucket{
		Bucket: buckets.Artifacts,
		fail:   func(string) error { return errors.New("disk full") },
	}
	c := newTestConverter(t, buckets, 3, 2)

	summary, err := c.Run(context.Background(), strings.NewReader(generateCorpus(7)))
	require.NoError(t, err)
	require.Equal(t, 3, summary.Chunks)
	require.Equal(t, 3, summary.ArtifactFailures)
	require.Equal(t, int64(7), summary.PlainTextWritten)
	require.Equal(t, int64(7), summary.HTMLWritten)
	require.Len(t, listNames(t, buckets.PlainText), 7)
	require.Empty(t, listNames(t, buckets.Artifacts))
	require.Equal(t, float64(3), testutil.ToFloat64(c.metrics.artifactFailures))
}

func TestDocumentFailuresAreIsolated(t *testing.T) {
	buckets := memBuckets()
	buckets.PlainText = failingUploadBucket{
		Bucket: buckets.PlainText,
		fail: func(name string) error {
			if name == "2.txt" {
				return errors.New("permission denied")
			}
			return nil
		},
	}
	c := newTestConverter(t, buckets, 10, 1)

	summary, err := c.Run(context.Background(), strings.NewReader(generateCorpus(5)))
	require.NoError(t, err)
	require.Equal(t, int64(1), summary.RowFailures)
	require.Equal(t, []RowError{{ID: "2", Kind: KindPlainText, Err: summary.Results[0].RowErrors[0].Err}}, summary.Results[0].RowErrors)
	require.Equal(t, []string{"0.txt", "1.txt", "3.txt", "4.txt"}, listNames(t, buckets.PlainText))
	require.Len(t, listNames(t, buckets.HTML), 5)

	require.Equal(t, float64(1), testutil.ToFloat64(c.metrics.fileWriteFailures.WithLabelValues(KindPlainText)))
	require.Equal(t, float64(4), testutil.ToFloat64(c.metrics.filesWritten.WithLabelValues(KindPlainText)))
	require.Equal(t, float64(5), testutil.ToFloat64(c.metrics.filesWritten.WithLabelValues(KindHTML)))
}

func TestInvalidDocumentIDs(t *testing.T) {
	buckets := memBuckets()
	c := newTestConverter(t, buckets, 10, 1)

	input := "id,plain_text,html\n../escape,text,<p/>\n..,dots,\nok,fine,\n"
	summary, err := c.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.RowFailures)
	for _, rowErr := range summary.Results[0].RowErrors {
		require.ErrorIs(t, rowErr.Err, ErrInvalidDocumentID)
	}
	require.Equal(t, []string{"ok.txt"}, listNames(t, buckets.PlainText))
	require.Empty(t, listNames(t, buckets.HTML))

	docs, err := pqtest.ReadArtifact(context.Background(), buckets.Artifacts, "chunk_0.parquet")
	require.NoError(t, err)
	require.Equal(t, []string{"../escape", "..", "ok"}, pqtest.IDs(docs))
}

type panickingBucket struct {
	objstore.Bucket
	panicOn string
}

func (b panickingBucket) Upload(ctx context.Context, name string, r io.Reader) error {
	if name == b.panicOn {
		panic("corrupted state")
	}
	return b.Bucket.Upload(ctx, name, r)
}

func TestWorkerFaultSurfacesAfterOtherChunks(t *testing.T) {
	buckets := memBuckets()
	buckets.PlainText = panickingBucket{Bucket: buckets.PlainText, panicOn: "3.txt"}
	c := newTestConverter(t, buckets, 2, 2)

	summary, err := c.Run(context.Background(), strings.NewReader(generateCorpus(10)))
	require.Error(t, err)
	require.Contains(t, err.Error(), "chunk 1")
	require.Contains(t, err.Error(), "corrupted state")

	require.Equal(t, 5, summary.Chunks)
	require.Len(t, listNames(t, buckets.Artifacts), 5)
	require.Error(t, summary.Results[1].Err)
	for _, i := range []int{0, 2, 3, 4} {
		require.NoError(t, summary.Results[i].Err)
	}
	require.Contains(t, listNames(t, buckets.PlainText), "9.txt")
	require.Equal(t, float64(0), testutil.ToFloat64(c.metrics.workersActive))
}

type slowBucket struct {
	objstore.Bucket
	delay time.Duration

	inflight    int64
	maxInflight int64
}

func (b *slowBucket) Upload(ctx context.Context, name string, r io.Reader) error {
	n := atomic.AddInt64(&b.inflight, 1)
	defer atomic.AddInt64(&b.inflight, -1)
	for {
		max := atomic.LoadInt64(&b.maxInflight)
		if n <= max || atomic.CompareAndSwapInt64(&b.maxInflight, max, n) {
			break
		}
	}
	time.Sleep(b.delay)
	return b.Bucket.Upload(ctx, name, r)
}

func TestWorkerCountBoundsConcurrency(t *testing.T) {
	buckets := memBuckets()
	slow := &slowBucket{Bucket: buckets.Artifacts, delay: 20 * time.Millisecond}
	buckets.Artifacts = slow

	var (
		mu   sync.Mutex
		done []int
	)
	c := newTestConverter(t, buckets, 5, 3, WithChunkDoneHook(func(r ChunkResult) {
		mu.Lock()
		done = append(done, r.Index)
		mu.Unlock()
	}))

	summary, err := c.Run(context.Background(), strings.NewReader(generateCorpus(60)))
	require.NoError(t, err)
	require.Equal(t, 12, summary.Chunks)
	require.LessOrEqual(t, atomic.LoadInt64(&slow.maxInflight), int64(3))
	require.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, done)
}

func TestRerunIsIdempotent(t *testing.T) {
	buckets, d := filesystemBuckets(t)
	c := newTestConverter(t, buckets, 2, 4)

	_, err := c.Run(context.Background(), strings.NewReader(scenarioCorpus))
	require.NoError(t, err)
	first := readFile(t, filepath.Join(d.plain, "43.txt"))

	summary, err := c.Run(context.Background(), strings.NewReader(scenarioCorpus))
	require.NoError(t, err)
	require.Equal(t, 2, summary.Chunks)
	require.Equal(t, first, readFile(t, filepath.Join(d.plain, "43.txt")))
	require.Equal(t, []string{"chunk_0.parquet", "chunk_1.parquet"}, listNames(t, buckets.Artifacts))
}

func TestRunStopsReadingWhenCancelled(t *testing.T) {
	buckets := memBuckets()
	c := newTestConverter(t, buckets, 2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := c.Run(ctx, strings.NewReader(generateCorpus(10)))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, summary.Chunks)
	require.Empty(t, listNames(t, buckets.Artifacts))
}

func TestRunRejectsCorpusWithoutColumns(t *testing.T) {
	c := newTestConverter(t, memBuckets(), 2, 2)
	_, err := c.Run(context.Background(), strings.NewReader("id,text\n1,a\n"))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Workers = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Codec = "lzo"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Reader.ChunkSize = -1
	require.Error(t, cfg.Validate())

	_, err := NewConverter(DefaultConfig(), Buckets{}, log.NewNopLogger(), nil)
	require.Error(t, err)
}
