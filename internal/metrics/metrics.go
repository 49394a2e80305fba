package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_sessions_active",
		Help: "Currently active interview sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_total",
		Help: "Total interview sessions started",
	})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_swept_total",
		Help: "Sessions removed by the idle sweep",
	})

	Turns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_turns_total",
		Help: "Participant utterances sent upstream",
	})

	UtterancesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_utterances_discarded_total",
		Help: "Captured utterances dropped before sending upstream",
	}, []string{"reason"})

	AudioFramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_audio_frames_relayed_total",
		Help: "Model audio frames scheduled for playback",
	})

	AudioDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_audio_decode_errors_total",
		Help: "Malformed audio frames dropped",
	})

	AssessmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_assessment_duration_seconds",
		Help:    "Report generation latency",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_turn_duration_seconds",
		Help:    "Model response latency from commit to playback drained",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
