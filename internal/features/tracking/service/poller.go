package service

import (
	"context"
	"errors"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/metrics"
	"returns-desk/internal/features/tracking/domain"
	"returns-desk/internal/features/tracking/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Poller periodically syncs every registered in-flight shipping code.
type Poller struct {
	registry    ports.Registry
	tracker     ports.TrackingService
	interval    time.Duration
	concurrency int
	log         *zap.Logger
}

// NewPoller creates a new Poller. concurrency bounds parallel carrier pulls.
func NewPoller(registry ports.Registry, tracker ports.TrackingService, interval time.Duration, concurrency int) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{
		registry:    registry,
		tracker:     tracker,
		interval:    interval,
		concurrency: concurrency,
		log:         logger.Named("tracking_poller"),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("Tracking poller started",
		zap.Duration("interval", p.interval),
		zap.Int("concurrency", p.concurrency),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error("Tracking poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.log.Info("Tracking poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce syncs every active code once. A failing code never stops the others.
func (p *Poller) PollOnce(ctx context.Context) error {
	codes, err := p.registry.Active(ctx)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, code := range codes {
		code := code
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			result, err := p.tracker.Sync(gctx, code)
			if err != nil {
				metrics.TrackingSyncErrorsTotal.Inc()
				level := p.log.Warn
				if errors.Is(err, domain.ErrShipmentNotFound) {
					level = p.log.Debug
				}
				level("Tracking sync failed", zap.String("order_code", code), zap.Error(err))
				return nil
			}
			if result.Appended > 0 {
				p.log.Info("Tracking synced",
					zap.String("order_code", code),
					zap.String("provider", result.Provider),
					zap.Int("appended", result.Appended),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
