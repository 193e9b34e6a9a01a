package ports

import (
	"context"

	"returns-desk/internal/core/kv"
	orders "returns-desk/internal/features/orders/domain"
	"returns-desk/internal/features/tracking/domain"
)

// RecordFunc stages extra writes alongside a new timeline entry.
// moved tells whether the entry became the shipment summary.
type RecordFunc func(tx kv.Txn, entry *domain.TimelineEntry, moved bool) error

// TimelineStore persists the per-code timeline, its dedup set and summary.
// This is a Secondary Port (Driven Port).
type TimelineStore interface {
	// Record appends entry unless its event was already seen. The summary moves only
	// forward in carrier time. stage runs in the same transaction, guarded by watch.
	Record(ctx context.Context, event domain.CarrierEvent, entry *domain.TimelineEntry, stage RecordFunc, watch ...string) (appended, moved bool, err error)
	Entries(ctx context.Context, code string, ascending bool) ([]domain.TimelineEntry, error)
	Summary(ctx context.Context, code string) (*domain.Summary, error)
}

// Registry is the set of shipping codes the poller syncs.
type Registry interface {
	Register(ctx context.Context, code string) error
	Active(ctx context.Context) ([]string, error)
	// Unregister queues removal of code inside a transaction.
	Unregister(tx kv.Txn, code string)
}

// OrderLocator is the slice of the orders repository the reconciler needs.
type OrderLocator interface {
	FindIDByShippingCode(ctx context.Context, code string) (string, error)
	Key(id string) string
	Load(tx kv.Txn, id string) (*orders.Order, error)
	Stage(tx kv.Txn, order *orders.Order, previousCode string) error
}

// CarrierProvider fetches the status history of a shipment from a carrier.
type CarrierProvider interface {
	Name() string
	History(ctx context.Context, code string) ([]domain.CarrierEvent, error)
}

// TrackingService is the primary port used by the HTTP layer.
type TrackingService interface {
	Ingest(ctx context.Context, event domain.CarrierEvent) (*domain.IngestResult, error)
	Timeline(ctx context.Context, code string, ascending bool) (*domain.Timeline, error)
	Sync(ctx context.Context, code string) (*domain.SyncResult, error)
}
