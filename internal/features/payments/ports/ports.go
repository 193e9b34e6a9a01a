package ports

import (
	"context"

	"returns-desk/internal/features/payments/domain"
)

// Gateway performs the monetary action of an obligation and returns its reference.
type Gateway interface {
	Name() string
	Settle(ctx context.Context, obligation domain.Obligation) (string, error)
}

// Ledger records obligations and their settlement state.
type Ledger interface {
	Get(ctx context.Context, requestID string, kind domain.Kind) (*domain.Obligation, error)
	Save(ctx context.Context, obligation *domain.Obligation) error
}

// SettlementTrigger is how other features hand off an obligation.
type SettlementTrigger interface {
	Trigger(ctx context.Context, obligation domain.Obligation) (*domain.Obligation, error)
}
