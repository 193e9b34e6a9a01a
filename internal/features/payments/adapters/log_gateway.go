package adapters

import (
	"context"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/payments/domain"

	"go.uber.org/zap"
)

// LogGateway only records obligations; used when no payment provider is configured.
type LogGateway struct{}

// NewLogGateway creates a new LogGateway.
func NewLogGateway() *LogGateway { return &LogGateway{} }

// Name implements ports.Gateway.
func (g *LogGateway) Name() string { return "log" }

// Settle implements ports.Gateway.
func (g *LogGateway) Settle(_ context.Context, o domain.Obligation) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	logger.Named("payments").Info("Settlement obligation recorded for manual processing",
		zap.String("request_id", o.RequestID),
		zap.String("order_id", o.OrderID),
		zap.String("kind", string(o.Kind())),
		zap.Int64("amount", o.Amount),
		zap.String("currency", o.Currency),
	)
	return "manual:" + o.IdempotencyKey(), nil
}
