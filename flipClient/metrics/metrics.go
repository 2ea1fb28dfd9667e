// Package metrics exports Prometheus collectors for the transfer pipeline and
// the balance reconciler.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
)

var (
	// Pipeline
	PipelineTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flipd",
		Subsystem: "pipeline",
		Name:      "leg_transitions_total",
		Help:      "Total leg state transitions",
	}, []string{"asset", "leg", "state"})

	PipelineFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flipd",
		Subsystem: "pipeline",
		Name:      "failures_total",
		Help:      "Total failed legs",
	}, []string{"asset", "leg", "retryable"})

	PipelineCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flipd",
		Subsystem: "pipeline",
		Name:      "completed_total",
		Help:      "Total transfers whose out leg confirmed",
	}, []string{"asset", "direction"})

	PipelineLegDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flipd",
		Subsystem: "pipeline",
		Name:      "leg_confirmation_seconds",
		Help:      "Time from first broadcast of a leg to its confirmation",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
	}, []string{"asset", "leg"})

	// Reconciler
	ReconcilerRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flipd",
		Subsystem: "reconciler",
		Name:      "refresh_total",
		Help:      "Total balance refreshes by result",
	}, []string{"result"})

	ReconcilerRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flipd",
		Subsystem: "reconciler",
		Name:      "refresh_duration_seconds",
		Help:      "Balance refresh duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)

// ObserveRefresh records one reconciler refresh. It matches the signature of
// reconciler.WithObserver.
func ObserveRefresh(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ReconcilerRefreshTotal.WithLabelValues(result).Inc()
	ReconcilerRefreshLatency.Observe(d.Seconds())
}

type legKey struct {
	txID string
	leg  bridge.LegName
}

// PipelineRecorder turns pipeline progress into metrics. It remembers when
// each leg was first broadcast so it can time the wait for confirmation.
type PipelineRecorder struct {
	mu      sync.Mutex
	started map[legKey]time.Time
	last    map[legKey]bridge.LegState
}

// NewPipelineRecorder creates an empty recorder
func NewPipelineRecorder() *PipelineRecorder {
	return &PipelineRecorder{
		started: make(map[legKey]time.Time),
		last:    make(map[legKey]bridge.LegState),
	}
}

// Observe is a pipeline.Observer
func (r *PipelineRecorder) Observe(p pipeline.Progress) {
	key := legKey{txID: p.TxID, leg: p.Leg}

	r.mu.Lock()
	prev, seen := r.last[key]
	r.last[key] = p.LegState
	if seen && prev == p.LegState {
		r.mu.Unlock()
		return
	}
	var elapsed time.Duration
	var timed bool
	switch p.LegState {
	case bridge.LegSubmitted, bridge.LegWaitingConfirmation:
		if _, ok := r.started[key]; !ok {
			r.started[key] = p.At
		}
	case bridge.LegConfirmed:
		if at, ok := r.started[key]; ok {
			elapsed, timed = p.At.Sub(at), true
		}
		delete(r.started, key)
	}
	if p.State.Terminal() {
		for k := range r.last {
			if k.txID == p.TxID {
				delete(r.last, k)
				delete(r.started, k)
			}
		}
	}
	r.mu.Unlock()

	PipelineTransitionsTotal.WithLabelValues(p.Asset, string(p.Leg), string(p.LegState)).Inc()
	if timed && elapsed >= 0 {
		PipelineLegDuration.WithLabelValues(p.Asset, string(p.Leg)).Observe(elapsed.Seconds())
	}
	switch p.State {
	case pipeline.StateFailed:
		if p.LegState == bridge.LegFailed {
			retryable := "false"
			if p.Retryable {
				retryable = "true"
			}
			PipelineFailuresTotal.WithLabelValues(p.Asset, string(p.Leg), retryable).Inc()
		}
	case pipeline.StateCompleted:
		PipelineCompletedTotal.WithLabelValues(p.Asset, string(p.Direction)).Inc()
	}
}

// tracked reports how many legs the recorder still holds state for
func (r *PipelineRecorder) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}
