package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/orders/domain"
	"returns-desk/internal/features/orders/ports"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ErrShippingCodeRequired is returned when assigning an empty shipping code.
var ErrShippingCodeRequired = errors.New("carrier and shipping code are required")

// OrderService handles importing orders and managing their shipment linkage.
type OrderService struct {
	repo     ports.Repository
	registry ports.TrackingRegistry
	now      func() time.Time
}

// NewOrderService creates a new instance of OrderService.
func NewOrderService(repo ports.Repository, registry ports.TrackingRegistry) *OrderService {
	return &OrderService{
		repo:     repo,
		registry: registry,
		now:      time.Now,
	}
}

// Create imports a storefront order.
func (s *OrderService) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	now := s.now().UTC()

	if order.ID == "" {
		order.ID = ulid.Make().String()
	}
	if order.Code == "" {
		order.Code = order.ID
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = domain.PaymentStatusPending
	}
	if order.DeliveryStatus == "" {
		order.DeliveryStatus = domain.DeliveryNotShipped
	}
	if order.TotalAmount == 0 {
		order.TotalAmount = order.ComputeTotal()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	if order.ShippingCode != "" && !order.DeliveryStatus.Settled() {
		s.register(ctx, order.ShippingCode)
	}
	return order, nil
}

// Get retrieves an order by id.
func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// GetByShippingCode retrieves the order a carrier shipping code belongs to.
func (s *OrderService) GetByShippingCode(ctx context.Context, code string) (*domain.Order, error) {
	id, err := s.repo.FindIDByShippingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// AssignShippingCode links a carrier shipment to the order and schedules it for polling.
func (s *OrderService) AssignShippingCode(ctx context.Context, id, carrier, code string) (*domain.Order, error) {
	carrier = strings.ToLower(strings.TrimSpace(carrier))
	code = strings.ToUpper(strings.TrimSpace(code))
	if carrier == "" || code == "" {
		return nil, ErrShippingCodeRequired
	}

	order, err := s.repo.Update(ctx, id, func(o *domain.Order) error {
		o.Carrier = carrier
		o.ShippingCode = code
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign shipping code: %w", err)
	}

	if !order.DeliveryStatus.Settled() {
		s.register(ctx, code)
	}
	return order, nil
}

// register is best effort; a missed registration only delays updates until a manual sync or webhook.
func (s *OrderService) register(ctx context.Context, code string) {
	if s.registry == nil {
		return
	}
	if err := s.registry.Register(ctx, code); err != nil {
		logger.Get().Warn("Failed to register shipping code for polling",
			zap.String("shipping_code", code),
			zap.Error(err),
		)
	}
}
