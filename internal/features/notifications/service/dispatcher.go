package service

import (
	"context"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/metrics"
	"returns-desk/internal/features/notifications/domain"
	"returns-desk/internal/features/notifications/ports"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	sendTimeout      = 10 * time.Second
)

// Dispatcher queues events and fans them out to every sink on a background worker.
// Notify never blocks; when the queue is full the event is dropped and logged.
type Dispatcher struct {
	sinks []ports.Sink
	queue chan domain.Event
	log   *zap.Logger

	done chan struct{}
}

// NewDispatcher creates a Dispatcher. Call Run to start delivering.
func NewDispatcher(queueSize int, sinks ...ports.Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		sinks: sinks,
		queue: make(chan domain.Event, queueSize),
		log:   logger.Named("notifications"),
		done:  make(chan struct{}),
	}
}

// Notify implements ports.Notifier.
func (d *Dispatcher) Notify(_ context.Context, event domain.Event) {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case d.queue <- event:
	default:
		metrics.NotificationsTotal.WithLabelValues("queue", "dropped").Inc()
		d.log.Warn("Notification queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("request_id", event.RequestID),
		)
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) deliver(event domain.Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := sink.Send(ctx, event)
		cancel()

		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(sink.Name(), "error").Inc()
			d.log.Warn("Failed to deliver notification",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.String("request_id", event.RequestID),
				zap.Error(err),
			)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(sink.Name(), "sent").Inc()
	}
}
