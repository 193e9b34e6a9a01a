package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/features/returns/domain"
	"returns-desk/internal/features/returns/ports"
)

const (
	requestKeyPrefix  = "returns:request:"
	exchangeKeyPrefix = "returns:exchange:"
	indexAllKey       = "returns:index:all"
	indexUserPrefix   = "returns:index:user:"
	indexTypePrefix   = "returns:index:type:"
	indexOrderPrefix  = "returns:index:order:"

	maxSubmitAttempts = 3
)

// RedisReturnRepository implements ports.Repository on the key-value store.
//
// Layout:
//
//	returns:request:{id}          request JSON
//	returns:order:{order}:active  id of the active request for an order
//	returns:exchange:{id}         exchange order id, the exchange idempotency key
//	returns:index:*               sorted sets scored by creation time
type RedisReturnRepository struct {
	store kv.Store
}

// NewRedisReturnRepository creates a new RedisReturnRepository.
func NewRedisReturnRepository(store kv.Store) *RedisReturnRepository {
	return &RedisReturnRepository{store: store}
}

func requestKey(id string) string { return requestKeyPrefix + id }

func activeKey(orderID string) string { return "returns:order:" + orderID + ":active" }

func exchangeKey(requestID string) string { return exchangeKeyPrefix + requestID }

// Submit implements ports.Repository.
func (r *RedisReturnRepository) Submit(ctx context.Context, req *domain.ReturnRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %w", domain.ErrPersistence, err)
	}

	for attempt := 1; ; attempt++ {
		err = r.store.Update(ctx, func(tx kv.Txn) error {
			active, err := tx.Get(activeKey(req.OrderID))
			if err == nil {
				return fmt.Errorf("%w: request %s is active", domain.ErrConflictingRequest, active)
			}
			if !errors.Is(err, kv.ErrNotFound) {
				return err
			}

			tx.Set(requestKey(req.ID), data)
			tx.Set(activeKey(req.OrderID), []byte(req.ID))

			score := float64(req.CreatedAt.UnixMilli())
			tx.AddRanked(indexAllKey, score, req.ID)
			tx.AddRanked(indexUserPrefix+req.UserID, score, req.ID)
			tx.AddRanked(indexTypePrefix+string(req.Type), score, req.ID)
			tx.AddRanked(indexOrderPrefix+req.OrderID, score, req.ID)
			return nil
		}, activeKey(req.OrderID))

		// A concurrent submit for the same order touched the marker; the retry sees it.
		if errors.Is(err, kv.ErrConflict) && attempt < maxSubmitAttempts {
			continue
		}
		return persistence(err)
	}
}

// Get implements ports.Repository.
func (r *RedisReturnRepository) Get(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	data, err := r.store.Get(ctx, requestKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: return request %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, persistence(err)
	}
	return decodeRequest(data)
}

// List implements ports.Repository. The narrowest index is ranged newest first,
// the remaining filters are applied in memory before paging.
func (r *RedisReturnRepository) List(ctx context.Context, filter domain.Filter) (*domain.Page, error) {
	filter = filter.Normalize()

	index := indexAllKey
	switch {
	case filter.UserID != "":
		index = indexUserPrefix + filter.UserID
	case filter.Type != "":
		index = indexTypePrefix + string(filter.Type)
	}

	ids, err := r.store.Ranked(ctx, index, true)
	if err != nil {
		return nil, persistence(err)
	}

	page := &domain.Page{Items: []*domain.ReturnRequest{}, Page: filter.Page, PageSize: filter.PageSize}
	if len(ids) == 0 {
		return page, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = requestKey(id)
	}
	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, persistence(err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	for _, data := range values {
		if data == nil {
			continue
		}
		req, err := decodeRequest(data)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(req) {
			continue
		}
		if page.Total >= offset && len(page.Items) < filter.PageSize {
			page.Items = append(page.Items, req)
		}
		page.Total++
	}
	return page, nil
}

// Transition implements ports.Repository.
func (r *RedisReturnRepository) Transition(
	ctx context.Context,
	id string,
	from, to domain.Status,
	mutate func(*domain.ReturnRequest) error,
	stage ports.StageFunc,
) (*domain.ReturnRequest, error) {
	var updated *domain.ReturnRequest

	err := r.store.Update(ctx, func(tx kv.Txn) error {
		data, err := tx.Get(requestKey(id))
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("%w: return request %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		req, err := decodeRequest(data)
		if err != nil {
			return err
		}

		if req.Status != from {
			return fmt.Errorf("%w: expected %s, found %s", domain.ErrStaleState, from, req.Status)
		}

		if mutate != nil {
			if err := mutate(req); err != nil {
				return err
			}
		}
		req.Status = to
		req.Version++

		if stage != nil {
			if err := stage(tx, req); err != nil {
				return err
			}
		}

		out, err := json.Marshal(req)
		if err != nil {
			return err
		}
		tx.Set(requestKey(id), out)
		if to.IsTerminal() {
			tx.Delete(activeKey(req.OrderID))
		}

		updated = req
		return nil
	}, requestKey(id), exchangeKey(id))

	if errors.Is(err, kv.ErrConflict) {
		return nil, fmt.Errorf("%w: request %s changed during %s -> %s", domain.ErrStaleState, id, from, to)
	}
	if err != nil {
		return nil, persistence(err)
	}
	return updated, nil
}

// LinkedExchangeOrder implements ports.Repository.
func (r *RedisReturnRepository) LinkedExchangeOrder(tx kv.Txn, requestID string) (string, bool, error) {
	data, err := tx.Get(exchangeKey(requestID))
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// LinkExchangeOrder implements ports.Repository.
func (r *RedisReturnRepository) LinkExchangeOrder(tx kv.Txn, requestID, orderID string) {
	tx.Set(exchangeKey(requestID), []byte(orderID))
}

// ExchangeOrderID implements ports.Repository. Returns "" when no exchange order was created.
func (r *RedisReturnRepository) ExchangeOrderID(ctx context.Context, requestID string) (string, error) {
	data, err := r.store.Get(ctx, exchangeKey(requestID))
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", persistence(err)
	}
	return string(data), nil
}

var domainErrors = []error{
	domain.ErrNotFound,
	domain.ErrInvalidInput,
	domain.ErrInvalidRequester,
	domain.ErrIneligibleOrder,
	domain.ErrConflictingRequest,
	domain.ErrInvalidTransition,
	domain.ErrStaleState,
	domain.ErrInsufficientStock,
	domain.ErrAlreadyTerminal,
	domain.ErrPersistence,
}

// persistence wraps storage failures in ErrPersistence and passes domain errors through.
func persistence(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

func decodeRequest(data []byte) (*domain.ReturnRequest, error) {
	var req domain.ReturnRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: unmarshal request: %w", domain.ErrPersistence, err)
	}
	return &req, nil
}
