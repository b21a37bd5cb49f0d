package convert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	chunks            prometheus.Counter
	rows              prometheus.Counter
	skippedRows       prometheus.Counter
	artifactFailures  prometheus.Counter
	filesWritten      *prometheus.CounterVec
	fileWriteFailures *prometheus.CounterVec
	workersActive     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "corpus_chunks_total",
			Help: "Number of chunks processed by workers.",
		}),
		rows: f.NewCounter(prometheus.CounterOpts{
			Name: "corpus_rows_total",
			Help: "Number of documents processed by workers.",
		}),
		skippedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "corpus_rows_skipped_total",
			Help: "Number of malformed records skipped by the reader.",
		}),
		artifactFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "corpus_artifact_failures_total",
			Help: "Number of chunks whose Parquet artifact could not be written.",
		}),
		filesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corpus_files_written_total",
			Help: "Number of per-document files written.",
		}, []string{"kind"}),
		fileWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "corpus_file_write_failures_total",
			Help: "Number of per-document files that failed to write.",
		}, []string{"kind"}),
		workersActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "corpus_workers_active",
			Help: "Number of chunk workers currently running.",
		}),
	}
}
