package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/orders/domain"
	"returns-desk/internal/features/orders/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrderService is a mock implementation of ports.OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderService) GetByShippingCode(ctx context.Context, code string) (*domain.Order, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderService) AssignShippingCode(ctx context.Context, id, carrier, code string) (*domain.Order, error) {
	args := m.Called(ctx, id, carrier, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func setupApp(svc *MockOrderService) *fiber.App {
	logger.Init("development", "debug")
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "test-ray-id")
		return c.Next()
	})
	NewOrderHandler(svc).RegisterRoutes(app)
	return app
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
			return o.UserID == "u-1" && len(o.Items) == 1
		})).Return(&domain.Order{ID: "o-1", UserID: "u-1"}, nil)

		body := `{"user_id":"u-1","items":[{"product_id":"p1","quantity":1,"unit_price":100}]}`
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("InvalidOrder", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, errors.Join(domain.ErrInvalidOrder, errors.New("user_id is required")))

		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "test-ray-id", body.RayID)
		assert.Contains(t, body.Message, "user_id is required")
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(`{`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupApp(new(MockOrderService)).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestOrderHandler_GetOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Get", mock.Anything, "o-1").Return(&domain.Order{ID: "o-1"}, nil)

		resp, err := setupApp(svc).Test(httptest.NewRequest(http.MethodGet, "/orders/o-1", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var order domain.Order
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
		assert.Equal(t, "o-1", order.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrOrderNotFound)

		resp, err := setupApp(svc).Test(httptest.NewRequest(http.MethodGet, "/orders/missing", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("InternalError", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("Get", mock.Anything, "o-1").Return(nil, errors.New("connection refused"))

		resp, err := setupApp(svc).Test(httptest.NewRequest(http.MethodGet, "/orders/o-1", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Internal Server Error", body.Message)
	})
}

func TestOrderHandler_AssignShipping(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("AssignShippingCode", mock.Anything, "o-1", "ghn", "ABC123").
			Return(&domain.Order{ID: "o-1", Carrier: "ghn", ShippingCode: "ABC123"}, nil)

		req := httptest.NewRequest(http.MethodPut, "/orders/o-1/shipping", bytes.NewBufferString(`{"carrier":"ghn","shipping_code":"ABC123"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("MissingCode", func(t *testing.T) {
		svc := new(MockOrderService)
		svc.On("AssignShippingCode", mock.Anything, "o-1", "ghn", "").Return(nil, service.ErrShippingCodeRequired)

		req := httptest.NewRequest(http.MethodPut, "/orders/o-1/shipping", bytes.NewBufferString(`{"carrier":"ghn"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
