package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "jobs_started_total",
		Help:      "Total download jobs started by kind.",
	}, []string{"kind"})

	JobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "jobs_finished_total",
		Help:      "Total download jobs that reached a terminal state, by kind and status.",
	}, []string{"kind", "status"})

	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hlsgrab",
		Name:      "active_jobs",
		Help:      "Number of download jobs not yet in a terminal state.",
	})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hlsgrab",
		Name:      "job_duration_seconds",
		Help:      "Wall time from job start to its terminal state.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	SegmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "segments_total",
		Help:      "Segments fetched, by result (ok, failed).",
	}, []string{"result"})

	BytesDownloadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "bytes_downloaded_total",
		Help:      "Total media bytes received, segments and direct downloads.",
	})

	RemuxTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsgrab",
		Name:      "remux_total",
		Help:      "Container finalization outcomes (passthrough, remuxed, fallback).",
	}, []string{"outcome"})

	RemuxDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hlsgrab",
		Name:      "remux_duration_seconds",
		Help:      "Duration of FFmpeg remux runs in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		JobsStartedTotal,
		JobsFinishedTotal,
		ActiveJobs,
		JobDuration,
		SegmentsTotal,
		BytesDownloadedTotal,
		RemuxTotal,
		RemuxDuration,
	)
}
