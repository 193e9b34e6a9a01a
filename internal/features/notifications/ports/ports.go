package ports

import (
	"context"

	"returns-desk/internal/features/notifications/domain"
)

// Sink delivers an event to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, event domain.Event) error
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}
