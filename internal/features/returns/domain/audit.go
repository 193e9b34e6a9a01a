package domain

import "time"

// AnomalyKind classifies a broken link between an exchange order and its request.
type AnomalyKind string

const (
	// AnomalyOrphanOrder is an exchange order whose request does not exist.
	AnomalyOrphanOrder AnomalyKind = "orphan_order"
	// AnomalyRequestNotApproved is an exchange order whose request is not APPROVED or COMPLETED.
	AnomalyRequestNotApproved AnomalyKind = "request_not_approved"
	// AnomalyRequestNotExchange is an exchange order pointing at a RETURN or REFUND request.
	AnomalyRequestNotExchange AnomalyKind = "request_not_exchange"
	// AnomalyLinkMismatch is a request that links to a different exchange order.
	AnomalyLinkMismatch AnomalyKind = "link_mismatch"
	// AnomalyMissingOrder is an approved exchange without an exchange order.
	AnomalyMissingOrder AnomalyKind = "missing_order"
	// AnomalyDuplicateOrder is a second exchange order for the same request.
	AnomalyDuplicateOrder AnomalyKind = "duplicate_order"
)

// Anomaly is one finding of the exchange link audit.
type Anomaly struct {
	Kind            AnomalyKind `json:"kind"`
	RequestID       string      `json:"request_id,omitempty"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	Detail          string      `json:"detail"`
}

// AuditReport is the result of sweeping exchange orders and approved exchanges.
type AuditReport struct {
	CheckedOrders   int       `json:"checked_orders"`
	CheckedRequests int       `json:"checked_requests"`
	Anomalies       []Anomaly `json:"anomalies"`
	CheckedAt       time.Time `json:"checked_at"`
}
