// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes Prometheus instrumentation for the recording engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvrd_recording_transitions_total",
		Help: "Recording state transitions by outcome",
	}, []string{"transition"})

	spawnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dvrd_capture_spawn_failures_total",
		Help: "Capture process spawn failures",
	})

	terminateOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvrd_capture_terminate_total",
		Help: "Capture terminate attempts by outcome",
	}, []string{"outcome"})

	admissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvrd_admission_rejections_total",
		Help: "Recording admission rejections by reason",
	}, []string{"reason"})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dvrd_scheduling_pass_duration_seconds",
		Help:    "Duration of one recording scheduling pass",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	passSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dvrd_task_runs_skipped_total",
		Help: "Task runs skipped because a prior run still holds the lock",
	}, []string{"task"})

	activeRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dvrd_active_recordings",
		Help: "Recordings currently in status recording",
	})
)

// IncTransition records a controller transition.
// Known transitions: started, restarted, stopped, errored, purged; anything else is
// folded to "other" to cap label cardinality.
func IncTransition(transition string) {
	switch strings.ToLower(strings.TrimSpace(transition)) {
	case "started", "restarted", "stopped", "errored", "purged":
		recordingTransitions.WithLabelValues(strings.ToLower(strings.TrimSpace(transition))).Inc()
	default:
		recordingTransitions.WithLabelValues("other").Inc()
	}
}

// IncSpawnFailure records a failed capture spawn.
func IncSpawnFailure() {
	spawnFailures.Inc()
}

// IncTerminate records a terminate attempt.
// Known outcomes: exited, timeout, gone.
func IncTerminate(outcome string) {
	switch outcome {
	case "exited", "timeout", "gone":
		terminateOutcomes.WithLabelValues(outcome).Inc()
	default:
		terminateOutcomes.WithLabelValues("other").Inc()
	}
}

// IncAdmissionRejection records a rejected recording request.
// Known reasons: capacity, window, ended.
func IncAdmissionRejection(reason string) {
	switch reason {
	case "capacity", "window", "ended":
		admissionRejections.WithLabelValues(reason).Inc()
	default:
		admissionRejections.WithLabelValues("other").Inc()
	}
}

// ObservePassDuration records the wall time of one scheduling pass.
func ObservePassDuration(seconds float64) {
	passDuration.Observe(seconds)
}

// IncSkippedRun records a task run skipped due to mutual exclusion.
func IncSkippedRun(task string) {
	passSkipped.WithLabelValues(task).Inc()
}

// SetActiveRecordings updates the live recording gauge.
func SetActiveRecordings(n int) {
	activeRecordings.Set(float64(n))
}
