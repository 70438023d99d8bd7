// Package metrics exposes the activity of the filter to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Classification metrics
var (
	MessagesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapfilter_messages_classified_total",
			Help: "Total number of messages classified, by decision code and action",
		},
		[]string{"code", "action"},
	)

	HeaderFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imapfilter_header_fetch_failures_total",
			Help: "Total number of headers that could not be fetched",
		},
	)
)

// Protocol metrics
var (
	CommandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapfilter_command_failures_total",
			Help: "Total number of commands refused by the server",
		},
		[]string{"operation"},
	)

	Connections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapfilter_connections_total",
			Help: "Total number of connection attempts",
		},
		[]string{"result"},
	)

	UIDValidityChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imapfilter_uidvalidity_changes_total",
			Help: "Total number of mailbox resynchronizations after a UIDVALIDITY change",
		},
	)

	Wakeups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imapfilter_wakeups_total",
			Help: "Total number of wakeups from the wait between two passes",
		},
		[]string{"reason"},
	)
)

// Synchronization metrics
var (
	Passes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imapfilter_passes_total",
			Help: "Total number of synchronization passes",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imapfilter_pass_duration_seconds",
			Help:    "Duration of synchronization passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	Cursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "imapfilter_cursor_uid",
			Help: "Next UID to examine",
		},
	)

	CursorSaveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imapfilter_cursor_save_failures_total",
			Help: "Total number of failures to persist the cursor",
		},
	)
)
