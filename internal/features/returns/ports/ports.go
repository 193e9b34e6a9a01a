package ports

import (
	"context"

	"returns-desk/internal/core/kv"
	notifications "returns-desk/internal/features/notifications/domain"
	orders "returns-desk/internal/features/orders/domain"
	payments "returns-desk/internal/features/payments/domain"
	"returns-desk/internal/features/returns/domain"
)

// StageFunc queues extra writes in the same transaction as a status change.
type StageFunc func(tx kv.Txn, req *domain.ReturnRequest) error

// Repository persists return requests.
// This is a Secondary Port (Driven Port).
type Repository interface {
	// Submit stores a new PENDING request, failing with ErrConflictingRequest
	// while another request for the same order is active.
	Submit(ctx context.Context, req *domain.ReturnRequest) error
	Get(ctx context.Context, id string) (*domain.ReturnRequest, error)
	List(ctx context.Context, filter domain.Filter) (*domain.Page, error)
	// Transition is the only write path for status changes. It fails with
	// ErrStaleState when the stored status is no longer from.
	Transition(ctx context.Context, id string, from, to domain.Status, mutate func(*domain.ReturnRequest) error, stage StageFunc) (*domain.ReturnRequest, error)

	// LinkedExchangeOrder reads the exchange idempotency key inside a transition.
	LinkedExchangeOrder(tx kv.Txn, requestID string) (string, bool, error)
	// LinkExchangeOrder queues the exchange idempotency key.
	LinkExchangeOrder(tx kv.Txn, requestID, orderID string)
	// ExchangeOrderID reads the exchange idempotency key outside a transaction.
	ExchangeOrderID(ctx context.Context, requestID string) (string, error)
}

// OrderStore is the slice of the orders repository the workflow needs.
type OrderStore interface {
	Get(ctx context.Context, id string) (*orders.Order, error)
	Exchanges(ctx context.Context) ([]*orders.Order, error)
	Stage(tx kv.Txn, order *orders.Order, previousCode string) error
}

// Catalog reads the current price and stock of a replacement.
type Catalog interface {
	StockQuote(ctx context.Context, ref orders.ProductRef) (*orders.StockQuote, error)
}

// Notifier dispatches workflow events without blocking.
type Notifier interface {
	Notify(ctx context.Context, event notifications.Event)
}

// SettlementTrigger hands a monetary obligation to the payments feature.
type SettlementTrigger interface {
	Trigger(ctx context.Context, obligation payments.Obligation) (*payments.Obligation, error)
}

// ReturnService is the primary port used by the HTTP layer.
type ReturnService interface {
	Submit(ctx context.Context, in domain.Submission) (*domain.ReturnRequest, error)
	Get(ctx context.Context, id string) (*domain.ReturnRequest, error)
	List(ctx context.Context, filter domain.Filter) (*domain.Page, error)
	Approve(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error)
	Reject(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error)
	Complete(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error)
	AuditExchangeLinks(ctx context.Context) (*domain.AuditReport, error)
}
