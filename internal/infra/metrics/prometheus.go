package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segsvc_videos_processed_total",
		Help: "Total number of videos processed, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "segsvc_stage_duration_seconds",
		Help:    "Duration of segmentation pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segsvc_frames_sampled_total",
		Help: "Total number of frames sampled and decoded across all videos",
	})

	DecodeGapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segsvc_decode_gaps_total",
		Help: "Total number of frames skipped due to decode failures",
	})

	SegmentsBuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segsvc_segments_built_total",
		Help: "Total number of final segments produced by the builder",
	})

	AnnotationVersionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segsvc_annotation_versions_total",
		Help: "Total number of annotation versions saved, by origin",
	}, []string{"origin"})

	ClipsExportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segsvc_clips_exported_total",
		Help: "Total number of clips cut by the export planner",
	})

	InferenceFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segsvc_inference_fallback_total",
		Help: "Times the classifier degraded from the accelerator to the CPU path",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "segsvc_active_workers",
		Help: "Number of currently active workers processing videos",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segsvc_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
