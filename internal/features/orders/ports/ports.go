package ports

import (
	"context"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/features/orders/domain"
)

// Repository persists orders.
// This is a Secondary Port (Driven Port).
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	FindIDByShippingCode(ctx context.Context, code string) (string, error)
	// Update loads the order, applies mutate and saves it under an optimistic lock.
	Update(ctx context.Context, id string, mutate func(o *domain.Order) error) (*domain.Order, error)
	// Exchanges lists every order spawned by an exchange approval.
	Exchanges(ctx context.Context) ([]*domain.Order, error)

	// Key, Load and Stage let other features include order writes in their own transactions.
	Key(id string) string
	Load(tx kv.Txn, id string) (*domain.Order, error)
	Stage(tx kv.Txn, order *domain.Order, previousCode string) error
}

// Catalog reads current price and stock of products.
// This is a Secondary Port (Driven Port).
type Catalog interface {
	StockQuote(ctx context.Context, ref domain.ProductRef) (*domain.StockQuote, error)
	HealthCheck(ctx context.Context) error
}

// TrackingRegistry receives shipping codes that should be polled for carrier updates.
type TrackingRegistry interface {
	Register(ctx context.Context, code string) error
}

// OrderService is the primary port used by the HTTP layer.
type OrderService interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetByShippingCode(ctx context.Context, code string) (*domain.Order, error)
	AssignShippingCode(ctx context.Context, id, carrier, code string) (*domain.Order, error)
}
