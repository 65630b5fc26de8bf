package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ember_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_users_registered_total",
			Help: "Total users registered",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_messages_appended_total",
			Help: "Total messages appended to conversation logs",
		},
	)

	Reconciliations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_summary_reconciliations_total",
			Help: "Total summary reconciliation passes after appends",
		},
	)

	BlockChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_block_changes_total",
			Help: "Total block set mutations",
		},
		[]string{"action"}, // "block" or "unblock"
	)

	AttachmentsUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_attachments_uploaded_total",
			Help: "Total attachments uploaded",
		},
	)

	// Sync metrics
	FeedSubscriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_feed_subscriptions_total",
			Help: "Total change-feed subscriptions opened",
		},
		[]string{"feed"}, // "chat" or "chats"
	)

	SyncSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_sync_sessions_active",
			Help: "Currently connected sync sessions",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
