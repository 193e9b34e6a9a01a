package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/features/payments/domain"
)

const obligationKeyPrefix = "payments:obligation:"

// RedisLedger implements ports.Ledger on the key-value store.
type RedisLedger struct {
	store kv.Store
}

// NewRedisLedger creates a new RedisLedger.
func NewRedisLedger(store kv.Store) *RedisLedger {
	return &RedisLedger{store: store}
}

func obligationKey(requestID string, kind domain.Kind) string {
	return obligationKeyPrefix + requestID + ":" + string(kind)
}

// Get implements ports.Ledger.
func (l *RedisLedger) Get(ctx context.Context, requestID string, kind domain.Kind) (*domain.Obligation, error) {
	data, err := l.store.Get(ctx, obligationKey(requestID, kind))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, domain.ErrObligationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}

	var o domain.Obligation
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal obligation: %w", err)
	}
	return &o, nil
}

// Save implements ports.Ledger.
func (l *RedisLedger) Save(ctx context.Context, o *domain.Obligation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal obligation: %w", err)
	}
	if err := l.store.Set(ctx, obligationKey(o.RequestID, o.Kind()), data, 0); err != nil {
		return fmt.Errorf("failed to save obligation: %w", err)
	}
	return nil
}
