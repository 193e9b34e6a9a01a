package adapters

import (
	"context"
	"fmt"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/features/notifications/domain"
)

// StreamSink appends every event to a Redis stream acting as an outbox.
type StreamSink struct {
	store  kv.Store
	stream string
}

// NewStreamSink creates a new StreamSink.
func NewStreamSink(store kv.Store, stream string) *StreamSink {
	return &StreamSink{store: store, stream: stream}
}

// Name implements ports.Sink.
func (s *StreamSink) Name() string { return "stream" }

// Send implements ports.Sink.
func (s *StreamSink) Send(ctx context.Context, event domain.Event) error {
	if _, err := s.store.Append(ctx, s.stream, event.Fields()); err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.ID, err)
	}
	return nil
}
