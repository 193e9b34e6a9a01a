package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReturnRequestsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_requests_submitted_total",
		Help: "Return requests accepted, by request type.",
	},
		[]string{"type"},
	)

	ReturnTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_transitions_total",
		Help: "Workflow transitions attempted, by action and result.",
	},
		[]string{"action", "result"},
	)

	ExchangeOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_exchange_orders_created_total",
		Help: "Exchange orders spawned by approved exchanges.",
	})

	TrackingEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_events_ingested_total",
		Help: "Carrier events ingested, by outcome (appended, duplicate).",
	},
		[]string{"outcome"},
	)

	TrackingUnknownStatusTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_unknown_status_total",
		Help: "Carrier events whose raw status is not in the mapping table.",
	})

	TrackingSyncErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_sync_errors_total",
		Help: "Failed carrier pulls.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Notification deliveries, by sink and result.",
	},
		[]string{"sink", "result"},
	)

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_obligations_total",
		Help: "Settlement obligations triggered, by kind and result.",
	},
		[]string{"kind", "result"},
	)
)
