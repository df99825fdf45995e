package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailqueue_messages_submitted_total",
			Help: "Total number of messages accepted by the API",
		},
		[]string{"result"}, // queued, store_failed, publish_failed
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailqueue_deliveries_total",
			Help: "Total number of processed work items by outcome",
		},
		[]string{"outcome"},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailqueue_delivery_duration_seconds",
			Help:    "Duration of one work item from lookup to settlement",
			Buckets: prometheus.DefBuckets,
		},
	)

	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailqueue_publishes_total",
			Help: "Total number of ids published to broker queues",
		},
		[]string{"queue", "result"},
	)

	LockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailqueue_lock_acquisitions_total",
			Help: "Total number of per-message lock attempts by backend and result",
		},
		[]string{"backend", "result"}, // acquired, contended, error
	)
)
