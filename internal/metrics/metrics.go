package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_sessions_active",
		Help: "Currently active voice sessions",
	})

	TurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_turns_total",
		Help: "Total turns processed",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_stage_duration_seconds",
		Help:    "Per-stage invocation latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 8.0},
	}, []string{"stage"})

	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_stage_errors_total",
		Help: "Stage failures by stage and kind",
	}, []string{"stage", "kind"})

	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_commits_total",
		Help: "Committed responses by source",
	}, []string{"source"})

	RaceEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_response_races_total",
		Help: "Turns where more than one response path attempted to commit",
	})

	TurnTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_turn_timeouts_total",
		Help: "Turns where no path committed before the gate deadline",
	})

	QueuedUtterances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_queued_utterances",
		Help: "Utterances waiting for an in-flight turn to finish",
	})

	SynthesisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_synthesis_duration_seconds",
		Help:    "Committed-response synthesis and playback handoff latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})
)
