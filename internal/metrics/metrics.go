package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroll_frames_sampled_total",
		Help: "Camera frames handed to the evaluator.",
	})

	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_frames_skipped_total",
		Help: "Polling ticks that did not evaluate a frame.",
	}, []string{"reason"}) // busy, no_frame, error

	Detections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_detections_total",
		Help: "Frame evaluation outcomes.",
	}, []string{"outcome"}) // detected, not_detected

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_recognitions_total",
		Help: "Students marked present by the recognition simulator.",
	}, []string{"source"}) // camera, upload

	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_store_writes_total",
		Help: "Write-through persistence attempts.",
	}, []string{"collection", "result"})

	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroll_exports_total",
		Help: "CSV export requests.",
	}, []string{"result"}) // ok, empty

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroll_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classroll_recognition_active",
		Help: "1 while a recognition session is running.",
	})
)
