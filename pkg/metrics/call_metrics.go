package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call metrics for monitoring the call session lifecycle
var (
	// Lifecycle metrics
	CallStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_started_total",
		Help: "Total number of call sessions created",
	}, []string{"role", "media_mode", "is_group"})

	CallEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_ended_total",
		Help: "Total number of call sessions reaching a terminal phase",
	}, []string{"phase"}) // "ended", "rejected", "cancelled", "failed"

	CallSetupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "call_setup_duration_seconds",
		Help:    "Time from session creation to CONNECTED",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
	})

	CallNoAnswerTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_no_answer_timeout_total",
		Help: "Total number of calls cancelled by the no-answer timer",
	})

	// Media engine metrics
	EngineInitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_engine_init_total",
		Help: "Total number of media engine initialization attempts",
	}, []string{"media_mode", "status"}) // status: "ok", "unavailable", "timeout"

	EngineDowngradeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_engine_downgrade_total",
		Help: "Total number of video calls downgraded to audio after engine failure",
	})

	EngineSignalingOnlyTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "call_engine_signaling_only_total",
		Help: "Total number of calls that proceeded in signaling-only mode",
	})

	// Signaling channel metrics
	SignalingConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_connected",
		Help: "Whether the signaling channel is currently connected (1/0)",
	})

	SignalingReconnectTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_reconnect_total",
		Help: "Total number of signaling reconnect attempts",
	})

	SignalingEventsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_events_received_total",
		Help: "Total number of signaling events received",
	}, []string{"event"})

	SignalingEventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_events_dropped_total",
		Help: "Total number of signaling events ignored",
	}, []string{"reason"}) // "stale_conversation", "wrong_phase", "no_session"

	SignalingEmitFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_emit_failed_total",
		Help: "Total number of outbound signaling emits that failed",
	})
)
