package adapters

import (
	"context"
	"errors"
	"testing"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/payments/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type MockRefunds struct {
	mock.Mock
}

func (m *MockRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Refund), args.Error(1)
}

type MockIntents struct {
	mock.Mock
}

func (m *MockIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.PaymentIntent), args.Error(1)
}

func TestStripeGateway_Refund(t *testing.T) {
	refunds := new(MockRefunds)
	refunds.On("New", mock.MatchedBy(func(p *stripe.RefundParams) bool {
		return *p.PaymentIntent == "pi_1" &&
			*p.Amount == 100 &&
			*p.IdempotencyKey == "returns-desk:r-1:refund" &&
			p.Metadata["return_request_id"] == "r-1"
	})).Return(&stripe.Refund{ID: "re_1"}, nil)

	g := newStripeGateway(stripeClients{refunds: refunds, intents: new(MockIntents)}, "VND")
	ref, err := g.Settle(context.Background(), domain.Obligation{RequestID: "r-1", OrderID: "o-1", PaymentIntentID: "pi_1", Amount: -100})
	require.NoError(t, err)
	assert.Equal(t, "re_1", ref)
	refunds.AssertExpectations(t)
}

func TestStripeGateway_Charge(t *testing.T) {
	intents := new(MockIntents)
	intents.On("New", mock.MatchedBy(func(p *stripe.PaymentIntentParams) bool {
		return *p.Amount == 20 && *p.Currency == "vnd" && *p.IdempotencyKey == "returns-desk:r-1:charge"
	})).Return(&stripe.PaymentIntent{ID: "pi_new"}, nil)

	g := newStripeGateway(stripeClients{refunds: new(MockRefunds), intents: intents}, "VND")
	ref, err := g.Settle(context.Background(), domain.Obligation{RequestID: "r-1", OrderID: "o-1", Amount: 20})
	require.NoError(t, err)
	assert.Equal(t, "pi_new", ref)
}

func TestStripeGateway_Errors(t *testing.T) {
	refunds := new(MockRefunds)
	refunds.On("New", mock.Anything).Return(nil, errors.New("charge_already_refunded"))
	g := newStripeGateway(stripeClients{refunds: refunds, intents: new(MockIntents)}, "vnd")

	_, err := g.Settle(context.Background(), domain.Obligation{RequestID: "r-1", PaymentIntentID: "pi_1", Amount: -5})
	assert.ErrorContains(t, err, "stripe: create refund")

	_, err = g.Settle(context.Background(), domain.Obligation{RequestID: "r-1", Amount: -5})
	assert.ErrorIs(t, err, domain.ErrMissingPaymentIntent)
}

func TestNewStripeGateway_RequiresKey(t *testing.T) {
	_, err := NewStripeGateway(" ", "vnd")
	assert.Error(t, err)

	g, err := NewStripeGateway("sk_test_123", "vnd")
	require.NoError(t, err)
	assert.Equal(t, "stripe", g.Name())
}

func TestLogGateway_Settle(t *testing.T) {
	logger.Init("development", "debug")
	g := NewLogGateway()

	ref, err := g.Settle(context.Background(), domain.Obligation{RequestID: "r-1", Amount: 20})
	require.NoError(t, err)
	assert.Equal(t, "manual:returns-desk:r-1:charge", ref)

	_, err = g.Settle(context.Background(), domain.Obligation{RequestID: "r-1"})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := kv.NewRedisAdapter("redis://" + mr.Addr())
	require.NoError(t, err)
	defer store.Close()

	ledger := NewRedisLedger(store)
	ctx := context.Background()

	_, err = ledger.Get(ctx, "r-1", domain.KindCharge)
	assert.ErrorIs(t, err, domain.ErrObligationNotFound)

	require.NoError(t, ledger.Save(ctx, &domain.Obligation{RequestID: "r-1", Amount: 20, Status: domain.StatusRecorded}))
	assert.True(t, mr.Exists("payments:obligation:r-1:charge"))

	got, err := ledger.Get(ctx, "r-1", domain.KindCharge)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Amount)
}
