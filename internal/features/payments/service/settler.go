package service

import (
	"context"
	"errors"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/metrics"
	"returns-desk/internal/features/payments/domain"
	"returns-desk/internal/features/payments/ports"

	"go.uber.org/zap"
)

// Settler records obligations in the ledger before handing them to the gateway.
// An obligation already settled for the same request and direction is returned as is.
type Settler struct {
	ledger  ports.Ledger
	gateway ports.Gateway
	now     func() time.Time
}

// NewSettler creates a new Settler.
func NewSettler(ledger ports.Ledger, gateway ports.Gateway) *Settler {
	return &Settler{ledger: ledger, gateway: gateway, now: time.Now}
}

// Trigger implements ports.SettlementTrigger.
func (s *Settler) Trigger(ctx context.Context, o domain.Obligation) (*domain.Obligation, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	kind := string(o.Kind())
	log := logger.Named("payments").With(
		zap.String("request_id", o.RequestID),
		zap.String("kind", kind),
		zap.Int64("amount", o.Amount),
	)

	existing, err := s.ledger.Get(ctx, o.RequestID, o.Kind())
	switch {
	case err == nil && existing.Status == domain.StatusSettled:
		log.Debug("Obligation already settled", zap.String("reference", existing.Reference))
		return existing, nil
	case err == nil:
		o.CreatedAt = existing.CreatedAt
	case errors.Is(err, domain.ErrObligationNotFound):
		o.CreatedAt = s.now().UTC()
	default:
		return nil, err
	}

	o.Status = domain.StatusRecorded
	o.Gateway = s.gateway.Name()
	o.UpdatedAt = s.now().UTC()
	if err := s.ledger.Save(ctx, &o); err != nil {
		return nil, err
	}

	ref, settleErr := s.gateway.Settle(ctx, o)
	o.UpdatedAt = s.now().UTC()
	if settleErr != nil {
		o.Status = domain.StatusFailed
		o.Error = settleErr.Error()
		metrics.SettlementsTotal.WithLabelValues(kind, "failed").Inc()
		log.Error("Settlement failed", zap.String("gateway", o.Gateway), zap.Error(settleErr))
	} else {
		o.Status = domain.StatusSettled
		o.Reference = ref
		o.Error = ""
		metrics.SettlementsTotal.WithLabelValues(kind, "settled").Inc()
		log.Info("Settlement completed", zap.String("gateway", o.Gateway), zap.String("reference", ref))
	}

	if err := s.ledger.Save(ctx, &o); err != nil {
		return nil, errors.Join(settleErr, err)
	}
	return &o, settleErr
}
