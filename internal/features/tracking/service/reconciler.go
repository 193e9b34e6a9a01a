package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/metrics"
	orders "returns-desk/internal/features/orders/domain"
	"returns-desk/internal/features/tracking/domain"
	"returns-desk/internal/features/tracking/ports"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Reconciler keeps shipment timelines and order delivery statuses in step with the carrier.
type Reconciler struct {
	store     ports.TimelineStore
	orders    ports.OrderLocator
	registry  ports.Registry
	providers []ports.CarrierProvider
	now       func() time.Time
	log       *zap.Logger
}

// NewReconciler creates a new Reconciler. Providers are tried in order by Sync.
func NewReconciler(
	store ports.TimelineStore,
	orderLocator ports.OrderLocator,
	registry ports.Registry,
	providers []ports.CarrierProvider,
) *Reconciler {
	return &Reconciler{
		store:     store,
		orders:    orderLocator,
		registry:  registry,
		providers: providers,
		now:       time.Now,
		log:       logger.Named("tracking"),
	}
}

// Ingest records a carrier event. Replaying the same (code, status, timestamp) is a no-op.
func (r *Reconciler) Ingest(ctx context.Context, event domain.CarrierEvent) (*domain.IngestResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	mapping := domain.MapCarrierStatus(event.RawStatus)
	entry := &domain.TimelineEntry{
		ID:          ulid.Make().String(),
		OrderCode:   event.OrderCode,
		RawStatus:   event.RawStatus,
		Status:      mapping.Status,
		Description: mapping.Description,
		CarrierNote: event.Description,
		CarrierTime: event.Timestamp.UTC(),
		RecordedAt:  r.now().UTC(),
	}
	result := &domain.IngestResult{Entry: entry}

	orderID, err := r.orders.FindIDByShippingCode(ctx, event.OrderCode)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		r.log.Warn("No order owns shipping code, recording timeline only",
			zap.String("order_code", event.OrderCode),
		)
	case err != nil:
		return nil, err
	default:
		result.OrderID = orderID
	}

	var watch []string
	if orderID != "" {
		watch = append(watch, r.orders.Key(orderID))
	}

	stage := func(tx kv.Txn, e *domain.TimelineEntry, moved bool) error {
		result.OrderUpdated = false
		if !moved {
			return nil
		}
		if e.Status.Settled() {
			r.registry.Unregister(tx, e.OrderCode)
		}
		if orderID == "" {
			return nil
		}
		delivery, ok := e.Status.DeliveryStatus()
		if !ok {
			return nil
		}

		order, err := r.orders.Load(tx, orderID)
		if err != nil {
			return err
		}
		if !order.ApplyDeliveryStatus(delivery, e.CarrierTime) {
			return nil
		}
		result.OrderUpdated = true
		return r.orders.Stage(tx, order, order.ShippingCode)
	}

	appended, moved, err := r.store.Record(ctx, event, entry, stage, watch...)
	if err != nil {
		return nil, err
	}
	result.Appended = appended
	result.SummaryMoved = moved

	if !appended {
		metrics.TrackingEventsTotal.WithLabelValues("duplicate").Inc()
		r.log.Debug("Duplicate carrier event ignored",
			zap.String("order_code", event.OrderCode),
			zap.String("raw_status", event.RawStatus),
			zap.Time("carrier_time", entry.CarrierTime),
		)
		return result, nil
	}

	metrics.TrackingEventsTotal.WithLabelValues("appended").Inc()
	if !mapping.Status.Known() {
		metrics.TrackingUnknownStatusTotal.Inc()
		r.log.Warn("Unrecognized carrier status recorded",
			zap.String("order_code", event.OrderCode),
			zap.String("raw_status", event.RawStatus),
		)
	}
	if result.OrderUpdated {
		r.log.Info("Order delivery status updated",
			zap.String("order_id", orderID),
			zap.String("order_code", event.OrderCode),
			zap.String("status", string(entry.Status)),
		)
	}
	return result, nil
}

// Timeline returns the recorded history of a shipment.
func (r *Reconciler) Timeline(ctx context.Context, code string, ascending bool) (*domain.Timeline, error) {
	entries, err := r.store.Entries(ctx, code, ascending)
	if err != nil {
		return nil, err
	}
	summary, err := r.store.Summary(ctx, code)
	if err != nil {
		return nil, err
	}
	if summary == nil && len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrShipmentNotFound, code)
	}

	timeline := &domain.Timeline{
		OrderCode: code,
		Summary:   summary,
		Entries:   entries,
	}
	if id, err := r.orders.FindIDByShippingCode(ctx, code); err == nil {
		timeline.OrderID = id
	}
	return timeline, nil
}

// Sync pulls the carrier history through the first provider that answers and ingests it.
func (r *Reconciler) Sync(ctx context.Context, code string) (*domain.SyncResult, error) {
	if len(r.providers) == 0 {
		return nil, domain.ErrNoProvider
	}

	var lastErr error
	for _, provider := range r.providers {
		events, err := provider.History(ctx, code)
		if err != nil {
			r.log.Warn("Carrier provider failed",
				zap.String("provider", provider.Name()),
				zap.String("order_code", code),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		result := &domain.SyncResult{OrderCode: code, Provider: provider.Name(), Fetched: len(events)}
		for _, event := range events {
			ingested, err := r.Ingest(ctx, event)
			if err != nil {
				return result, fmt.Errorf("failed to ingest %s event: %w", event.RawStatus, err)
			}
			if ingested.Appended {
				result.Appended++
			}
		}
		return result, nil
	}

	return nil, fmt.Errorf("failed to get tracking from providers: %w", lastErr)
}
