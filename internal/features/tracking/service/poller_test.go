package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"returns-desk/internal/features/tracking/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTrackingService is a mock implementation of ports.TrackingService.
type MockTrackingService struct {
	mock.Mock
}

func (m *MockTrackingService) Ingest(ctx context.Context, event domain.CarrierEvent) (*domain.IngestResult, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestResult), args.Error(1)
}

func (m *MockTrackingService) Timeline(ctx context.Context, code string, ascending bool) (*domain.Timeline, error) {
	args := m.Called(ctx, code, ascending)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timeline), args.Error(1)
}

func (m *MockTrackingService) Sync(ctx context.Context, code string) (*domain.SyncResult, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncResult), args.Error(1)
}

func TestPoller_PollOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, code := range []string{"A1", "B2", "C3"} {
		require.NoError(t, f.registry.Register(ctx, code))
	}

	tracker := new(MockTrackingService)
	tracker.On("Sync", mock.Anything, "A1").Return(&domain.SyncResult{OrderCode: "A1", Appended: 1}, nil)
	tracker.On("Sync", mock.Anything, "B2").Return(nil, errors.New("carrier down"))
	tracker.On("Sync", mock.Anything, "C3").Return(&domain.SyncResult{OrderCode: "C3"}, nil)

	p := NewPoller(f.registry, tracker, time.Minute, 2)
	require.NoError(t, p.PollOnce(ctx))
	tracker.AssertNumberOfCalls(t, "Sync", 3)
}

func TestPoller_PollOnceEmpty(t *testing.T) {
	f := setup(t)
	tracker := new(MockTrackingService)

	require.NoError(t, NewPoller(f.registry, tracker, time.Minute, 4).PollOnce(context.Background()))
	tracker.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.registry.Register(ctx, "A1"))

	var calls atomic.Int32
	tracker := new(MockTrackingService)
	tracker.On("Sync", mock.Anything, "A1").
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(&domain.SyncResult{OrderCode: "A1"}, nil)

	done := make(chan struct{})
	go func() {
		NewPoller(f.registry, tracker, 10*time.Millisecond, 1).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
