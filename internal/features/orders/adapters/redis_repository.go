package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/features/orders/domain"
)

const (
	orderKeyPrefix     = "orders:"
	orderCodeKeyPrefix = "orders:code:"
	orderUserKeyPrefix = "orders:user:"
	exchangeOrdersKey  = "orders:exchanges"

	maxUpdateAttempts = 3
)

// RedisOrderRepository implements ports.Repository on the key-value store.
type RedisOrderRepository struct {
	store kv.Store
}

// NewRedisOrderRepository creates a new RedisOrderRepository.
func NewRedisOrderRepository(store kv.Store) *RedisOrderRepository {
	return &RedisOrderRepository{store: store}
}

// Key returns the storage key of an order.
func (r *RedisOrderRepository) Key(id string) string {
	return orderKeyPrefix + id
}

func codeKey(code string) string {
	return orderCodeKeyPrefix + code
}

// Create stores a new order. Fails if the id or the shipping code is taken.
func (r *RedisOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	watch := []string{r.Key(order.ID)}
	if order.ShippingCode != "" {
		watch = append(watch, codeKey(order.ShippingCode))
	}

	err := r.store.Update(ctx, func(tx kv.Txn) error {
		if _, err := tx.Get(r.Key(order.ID)); err == nil {
			return fmt.Errorf("%w: order %s already exists", domain.ErrInvalidOrder, order.ID)
		} else if !errors.Is(err, kv.ErrNotFound) {
			return err
		}
		if order.ShippingCode != "" {
			if err := ensureCodeFree(tx, order.ShippingCode, order.ID); err != nil {
				return err
			}
		}
		return r.Stage(tx, order, "")
	}, watch...)
	if err != nil {
		return fmt.Errorf("failed to create order %s: %w", order.ID, err)
	}
	return nil
}

// Get retrieves an order by id.
func (r *RedisOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	data, err := r.store.Get(ctx, r.Key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return decodeOrder(data)
}

// FindIDByShippingCode resolves a carrier shipping code to an order id.
func (r *RedisOrderRepository) FindIDByShippingCode(ctx context.Context, code string) (string, error) {
	data, err := r.store.Get(ctx, codeKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return "", fmt.Errorf("%w: shipping code %s", domain.ErrOrderNotFound, code)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve shipping code %s: %w", code, err)
	}
	return string(data), nil
}

// Update applies mutate under WATCH, retrying a few times if a concurrent writer wins.
func (r *RedisOrderRepository) Update(ctx context.Context, id string, mutate func(o *domain.Order) error) (*domain.Order, error) {
	var updated *domain.Order

	for attempt := 1; ; attempt++ {
		err := r.store.Update(ctx, func(tx kv.Txn) error {
			order, err := r.Load(tx, id)
			if err != nil {
				return err
			}
			previousCode := order.ShippingCode
			if err := mutate(order); err != nil {
				return err
			}
			if order.ShippingCode != previousCode && order.ShippingCode != "" {
				if err := ensureCodeFree(tx, order.ShippingCode, order.ID); err != nil {
					return err
				}
			}
			updated = order
			return r.Stage(tx, order, previousCode)
		}, r.Key(id))

		if errors.Is(err, kv.ErrConflict) && attempt < maxUpdateAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
}

// Exchanges lists orders created by exchange approvals, newest first.
func (r *RedisOrderRepository) Exchanges(ctx context.Context) ([]*domain.Order, error) {
	ids, err := r.store.Ranked(ctx, exchangeOrdersKey, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchange orders: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.Key(id)
	}
	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(values))
	for _, data := range values {
		if data == nil {
			continue
		}
		order, err := decodeOrder(data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Load reads an order inside a transaction. The caller must watch Key(id).
func (r *RedisOrderRepository) Load(tx kv.Txn, id string) (*domain.Order, error) {
	data, err := tx.Get(r.Key(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeOrder(data)
}

// Stage queues the order write and its index maintenance on tx.
func (r *RedisOrderRepository) Stage(tx kv.Txn, order *domain.Order, previousCode string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	tx.Set(r.Key(order.ID), data)

	if previousCode != "" && previousCode != order.ShippingCode {
		tx.Delete(codeKey(previousCode))
	}
	if order.ShippingCode != "" {
		tx.Set(codeKey(order.ShippingCode), []byte(order.ID))
	}

	score := float64(order.CreatedAt.UnixMilli())
	if order.UserID != "" {
		tx.AddRanked(orderUserKeyPrefix+order.UserID, score, order.ID)
	}
	if order.IsExchange() {
		tx.AddRanked(exchangeOrdersKey, score, order.ID)
	}
	return nil
}

func ensureCodeFree(tx kv.Txn, code, orderID string) error {
	owner, err := tx.Get(codeKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if string(owner) != orderID {
		return fmt.Errorf("%w: shipping code %s belongs to order %s", domain.ErrInvalidOrder, code, owner)
	}
	return nil
}

func decodeOrder(data []byte) (*domain.Order, error) {
	var order domain.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &order, nil
}
