package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/core/logger"
	notifications "returns-desk/internal/features/notifications/domain"
	orderadapters "returns-desk/internal/features/orders/adapters"
	orders "returns-desk/internal/features/orders/domain"
	payments "returns-desk/internal/features/payments/domain"
	"returns-desk/internal/features/returns/adapters"
	"returns-desk/internal/features/returns/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCatalog is a mock implementation of ports.Catalog.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) StockQuote(ctx context.Context, ref orders.ProductRef) (*orders.StockQuote, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orders.StockQuote), args.Error(1)
}

// MockNotifier is a mock implementation of ports.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event notifications.Event) {
	m.Called(ctx, event)
}

// MockSettlement is a mock implementation of ports.SettlementTrigger.
type MockSettlement struct {
	mock.Mock
}

func (m *MockSettlement) Trigger(ctx context.Context, o payments.Obligation) (*payments.Obligation, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Obligation), args.Error(1)
}

var (
	now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	p1  = orders.ProductRef{ProductID: "P1"}
	p2  = orders.ProductRef{ProductID: "P2"}
)

type fixture struct {
	svc        *ReturnService
	store      *kv.RedisAdapter
	mr         *miniredis.Miniredis
	orderRepo  *orderadapters.RedisOrderRepository
	catalog    *MockCatalog
	notifier   *MockNotifier
	settlement *MockSettlement
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger.Init("development", "error")

	mr := miniredis.RunT(t)
	store, err := kv.NewRedisAdapter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:      store,
		mr:         mr,
		orderRepo:  orderadapters.NewRedisOrderRepository(store),
		catalog:    new(MockCatalog),
		notifier:   new(MockNotifier),
		settlement: new(MockSettlement),
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return().Maybe()

	f.svc = NewReturnService(
		adapters.NewRedisReturnRepository(store),
		f.orderRepo,
		f.catalog,
		f.notifier,
		f.settlement,
		domain.DefaultPolicy(7*24*time.Hour, 5, 90),
		"vnd",
	)
	f.svc.now = func() time.Time { return now }
	return f
}

// seedOrder stores order O: one unit of P1 at 100, paid and delivered yesterday.
func (f *fixture) seedOrder(t *testing.T, mutate ...func(o *orders.Order)) *orders.Order {
	t.Helper()
	delivered := now.Add(-24 * time.Hour)
	order := &orders.Order{
		ID:              "o-1",
		Code:            "O-1",
		UserID:          "u-1",
		Email:           "buyer@example.com",
		Items:           []orders.LineItem{{ProductRef: p1, Name: "Shirt", Quantity: 1, UnitPrice: 100}},
		TotalAmount:     100,
		Currency:        "VND",
		PaymentStatus:   orders.PaymentStatusPaid,
		DeliveryStatus:  orders.DeliveryDelivered,
		PaymentIntentID: "pi_1",
		DeliveredAt:     &delivered,
		CreatedAt:       now.Add(-72 * time.Hour),
		UpdatedAt:       now.Add(-24 * time.Hour),
	}
	for _, m := range mutate {
		m(order)
	}
	require.NoError(t, f.orderRepo.Create(context.Background(), order))
	return order
}

func exchangeSubmission() domain.Submission {
	line, want := p1, p2
	return domain.Submission{
		OrderID:            "o-1",
		RequesterID:        "u-1",
		Type:               domain.TypeExchange,
		Reason:             domain.ReasonWrongItem,
		LineItem:           &line,
		DesiredReplacement: &want,
	}
}

func returnSubmission() domain.Submission {
	return domain.Submission{
		OrderID:     "o-1",
		RequesterID: "u-1",
		Type:        domain.TypeReturn,
		Reason:      domain.ReasonDefective,
		Description: "<script>alert(1)</script>Seam is torn",
	}
}

func TestReturnService_ScenarioA_ExchangeApproved(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.catalog.On("StockQuote", mock.Anything, p2).Return(&orders.StockQuote{Ref: p2, UnitPrice: 120, Available: 3}, nil)
	f.settlement.On("Trigger", mock.Anything, mock.MatchedBy(func(o payments.Obligation) bool {
		return o.Amount == 20 && o.PaymentIntentID == "pi_1" && o.Currency == "vnd"
	})).Return(&payments.Obligation{Status: payments.StatusSettled}, nil).Once()

	req, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, req.Status)

	approved, err := f.svc.Approve(ctx, req.ID, "admin-1", "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, int64(20), approved.PriceDifference)
	assert.Equal(t, "admin-1", approved.ProcessedBy)
	require.NotEmpty(t, approved.ExchangeOrderID)

	exchanges, err := f.orderRepo.Exchanges(ctx)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)

	ex := exchanges[0]
	assert.Equal(t, approved.ExchangeOrderID, ex.ID)
	assert.Equal(t, "O-1-EX-"+req.ID[len(req.ID)-6:], ex.Code)
	assert.Equal(t, "o-1", ex.Exchange.OriginalOrderID)
	assert.Equal(t, req.ID, ex.Exchange.ReturnRequestID)
	assert.Equal(t, int64(20), ex.Exchange.PriceDifference)
	assert.Equal(t, domain.ExchangeTypeApproved, ex.Exchange.ExchangeType)
	assert.Equal(t, int64(120), ex.TotalAmount)
	assert.Equal(t, orders.PaymentStatusPending, ex.PaymentStatus)
	assert.Equal(t, orders.DeliveryNotShipped, ex.DeliveryStatus)

	f.settlement.AssertExpectations(t)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(e notifications.Event) bool {
		return e.Type == notifications.EventApproved && e.Recipient == "buyer@example.com"
	}))
}

func TestReturnService_ScenarioB_OutOfStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.catalog.On("StockQuote", mock.Anything, p2).Return(&orders.StockQuote{Ref: p2, UnitPrice: 120, Available: 0}, nil)

	req, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	stored, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	exchanges, err := f.orderRepo.Exchanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, exchanges)
	f.settlement.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
}

func TestReturnService_ScenarioB_DiscontinuedReplacement(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.catalog.On("StockQuote", mock.Anything, p2).Return(nil, orders.ErrProductNotFound)

	req, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestReturnService_ScenarioC_RejectFreesOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)

	req, err := f.svc.Submit(ctx, returnSubmission())
	require.NoError(t, err)
	assert.Equal(t, "Seam is torn", req.Description)
	assert.Equal(t, int64(100), req.RefundAmount)

	_, err = f.svc.Submit(ctx, returnSubmission())
	assert.ErrorIs(t, err, domain.ErrConflictingRequest)

	rejected, err := f.svc.Reject(ctx, req.ID, "admin-1", "<b>outside policy</b>")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "outside policy", rejected.AdminNote)

	again, err := f.svc.Submit(ctx, returnSubmission())
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestReturnService_SubmitEligibility(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *orders.Order)
		input   func(s *domain.Submission)
		wantErr error
	}{
		{
			name:    "Unpaid",
			mutate:  func(o *orders.Order) { o.PaymentStatus = orders.PaymentStatusPending },
			wantErr: domain.ErrIneligibleOrder,
		},
		{
			name:    "NotDelivered",
			mutate:  func(o *orders.Order) { o.DeliveryStatus = orders.DeliveryInTransit; o.DeliveredAt = nil },
			wantErr: domain.ErrIneligibleOrder,
		},
		{
			name: "WindowPassed",
			mutate: func(o *orders.Order) {
				delivered := now.Add(-8 * 24 * time.Hour)
				o.DeliveredAt = &delivered
			},
			wantErr: domain.ErrIneligibleOrder,
		},
		{
			name: "WindowFromCreationWhenDeliveryUnknown",
			mutate: func(o *orders.Order) {
				o.DeliveredAt = nil
				o.CreatedAt = now.Add(-30 * 24 * time.Hour)
			},
			wantErr: domain.ErrIneligibleOrder,
		},
		{
			name:    "NotOwner",
			input:   func(s *domain.Submission) { s.RequesterID = "u-2" },
			wantErr: domain.ErrInvalidRequester,
		},
		{
			name:    "UnknownOrder",
			input:   func(s *domain.Submission) { s.OrderID = "missing" },
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "ItemNotInOrder",
			input:   func(s *domain.Submission) { s.LineItem = &orders.ProductRef{ProductID: "P9"} },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "UnknownReason",
			input:   func(s *domain.Submission) { s.Reason = "BORED" },
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			if tt.mutate != nil {
				f.seedOrder(t, tt.mutate)
			} else {
				f.seedOrder(t)
			}

			in := returnSubmission()
			if tt.input != nil {
				tt.input(&in)
			}

			_, err := f.svc.Submit(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReturnService_SubmitLineItemRefundAmount(t *testing.T) {
	f := setup(t)
	f.seedOrder(t, func(o *orders.Order) {
		o.Items = append(o.Items, orders.LineItem{ProductRef: p2, Name: "Hat", Quantity: 2, UnitPrice: 50})
		o.TotalAmount = 200
	})

	in := returnSubmission()
	in.Type = domain.TypeRefund
	in.LineItem = &orders.ProductRef{ProductID: "P2"}

	req, err := f.svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(100), req.RefundAmount)
}

func TestReturnService_SubmitAppliesReasonPolicy(t *testing.T) {
	tests := []struct {
		name        string
		reason      domain.Reason
		wantRefund  int64
		wantPercent int64
		wantFee     int64
		wantShop    int64
	}{
		{name: "Defective", reason: domain.ReasonDefective, wantRefund: 100, wantPercent: 100, wantShop: 5},
		{name: "WrongItem", reason: domain.ReasonWrongItem, wantRefund: 100, wantPercent: 100, wantShop: 5},
		{name: "ChangeMind", reason: domain.ReasonChangeMind, wantRefund: 85, wantPercent: 90, wantFee: 5},
		{name: "Other", reason: domain.ReasonOther, wantRefund: 85, wantPercent: 90, wantFee: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			f.seedOrder(t)
			f.settlement.On("Trigger", mock.Anything, mock.MatchedBy(func(o payments.Obligation) bool {
				return o.Amount == -tt.wantRefund
			})).Return(&payments.Obligation{Status: payments.StatusSettled}, nil).Once()

			in := returnSubmission()
			in.Reason = tt.reason

			req, err := f.svc.Submit(ctx, in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefund, req.RefundAmount)
			require.NotNil(t, req.Refund)
			assert.Equal(t, int64(100), req.Refund.ItemsTotal)
			assert.Equal(t, tt.wantPercent, req.Refund.RefundPercent)
			assert.Equal(t, tt.wantFee, req.Refund.CustomerShippingFee)
			assert.Equal(t, tt.wantShop, req.Refund.ShopShippingFee)

			stored, err := f.svc.Get(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, req.Refund, stored.Refund)

			_, err = f.svc.Approve(ctx, req.ID, "admin-1", "")
			require.NoError(t, err)
			_, err = f.svc.Complete(ctx, req.ID, "admin-1", "")
			require.NoError(t, err)
			f.settlement.AssertExpectations(t)
		})
	}
}

func TestReturnService_SecondExchangeGetsDistinctCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.catalog.On("StockQuote", mock.Anything, p2).Return(&orders.StockQuote{Ref: p2, UnitPrice: 100, Available: 5}, nil)

	first, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, first.ID, "admin-1", "")
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, first.ID, "admin-1", "")
	require.NoError(t, err)

	second, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, second.ID, "admin-1", "")
	require.NoError(t, err)

	exchanges, err := f.orderRepo.Exchanges(ctx)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.NotEqual(t, exchanges[0].Code, exchanges[1].Code)
	for _, ex := range exchanges {
		assert.True(t, strings.HasPrefix(ex.Code, "O-1-EX-"), ex.Code)
	}
	f.settlement.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
}

func TestReturnService_CompleteTwice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.settlement.On("Trigger", mock.Anything, mock.MatchedBy(func(o payments.Obligation) bool {
		return o.Amount == -100 && o.PaymentIntentID == "pi_1" && o.OrderID == "o-1"
	})).Return(&payments.Obligation{Status: payments.StatusSettled}, nil).Once()

	req, err := f.svc.Submit(ctx, returnSubmission())
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, req.ID, "admin-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrAlreadyTerminal)

	_, err = f.svc.Approve(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, req.ID, "admin-2", "refunded")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.True(t, completed.RefundIssued)
	assert.False(t, completed.ExchangeFulfilled)

	_, err = f.svc.Complete(ctx, req.ID, "admin-2", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	f.settlement.AssertExpectations(t)
	assert.False(t, f.mr.Exists("returns:order:o-1:active"))
}

func TestReturnService_SettlementFailureKeepsTransition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.settlement.On("Trigger", mock.Anything, mock.Anything).Return(nil, errors.New("gateway down"))

	req, err := f.svc.Submit(ctx, returnSubmission())
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
}

func TestReturnService_ExchangeRefundDifference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.catalog.On("StockQuote", mock.Anything, p2).Return(&orders.StockQuote{Ref: p2, UnitPrice: 70, Available: 5}, nil)
	f.settlement.On("Trigger", mock.Anything, mock.MatchedBy(func(o payments.Obligation) bool {
		return o.Amount == -30
	})).Return(&payments.Obligation{}, nil).Once()

	req, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)
	assert.Zero(t, req.RefundAmount)

	approved, err := f.svc.Approve(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(-30), approved.PriceDifference)

	ex, err := f.orderRepo.Get(ctx, approved.ExchangeOrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentStatusPaid, ex.PaymentStatus)

	completed, err := f.svc.Complete(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)
	assert.True(t, completed.ExchangeFulfilled)
	f.settlement.AssertExpectations(t)
}

func TestReturnService_ApproveReusesLinkedExchangeOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.catalog.On("StockQuote", mock.Anything, p2).Return(&orders.StockQuote{Ref: p2, UnitPrice: 100, Available: 1}, nil)

	req, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, "returns:exchange:"+req.ID, []byte("o-prior"), 0))

	approved, err := f.svc.Approve(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, "o-prior", approved.ExchangeOrderID)

	exchanges, err := f.orderRepo.Exchanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, exchanges)
	f.settlement.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
}

// TestReturnService_ConcurrentApprove lets two admins pass validation before either commits.
func TestReturnService_ConcurrentApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)
	f.settlement.On("Trigger", mock.Anything, mock.Anything).Return(&payments.Obligation{}, nil).Maybe()

	var arrived sync.WaitGroup
	arrived.Add(2)
	f.catalog.On("StockQuote", mock.Anything, p2).
		Run(func(mock.Arguments) {
			arrived.Done()
			arrived.Wait()
		}).
		Return(&orders.StockQuote{Ref: p2, UnitPrice: 120, Available: 3}, nil)

	req, err := f.svc.Submit(ctx, exchangeSubmission())
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(ctx, req.ID, "admin", "")
		}(i)
	}
	wg.Wait()

	var won, stale int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrStaleState):
			stale++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, stale)

	exchanges, err := f.orderRepo.Exchanges(ctx)
	require.NoError(t, err)
	assert.Len(t, exchanges, 1)
}

func TestReturnService_RejectAfterApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.seedOrder(t)

	req, err := f.svc.Submit(ctx, returnSubmission())
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, req.ID, "admin-1", "")
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, req.ID, "admin-1", "")
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.StatusApproved, te.From)
	assert.Equal(t, domain.StatusRejected, te.To)

	_, err = f.svc.Reject(ctx, "missing", "admin-1", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReturnService_ListValidatesFilter(t *testing.T) {
	f := setup(t)

	_, err := f.svc.List(context.Background(), domain.Filter{Status: "LOST"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	page, err := f.svc.List(context.Background(), domain.Filter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
