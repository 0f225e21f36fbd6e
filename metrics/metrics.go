package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nebula_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_messages_sent_total",
			Help: "Total messages appended",
		},
		[]string{"type"}, // text, image, audio, file
	)

	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_conversations_created_total",
			Help: "Total conversations created",
		},
		[]string{"kind"}, // direct or group
	)

	ReactionsToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_reactions_toggled_total",
			Help: "Total reaction toggles",
		},
		[]string{"status"}, // added or removed
	)

	// Bot metrics
	BotReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nebula_bot_replies_total",
			Help: "Total bot replies appended",
		},
	)

	BotFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nebula_bot_failures_total",
			Help: "Total failed bot generations",
		},
	)

	BotJobsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nebula_bot_jobs_dropped_total",
			Help: "Bot jobs rejected because the queue was full or closed",
		},
	)

	BotGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nebula_bot_generation_duration_seconds",
			Help:    "Latency of the text-generation call",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)
