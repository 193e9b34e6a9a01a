package handler

import (
	"errors"
	"net/http"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/orders/domain"
	"returns-desk/internal/features/orders/ports"
	"returns-desk/internal/features/orders/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests related to orders.
type OrderHandler struct {
	// service is the OrderService instance.
	service ports.OrderService
}

// NewOrderHandler creates a new instance of OrderHandler.
func NewOrderHandler(s ports.OrderService) *OrderHandler {
	return &OrderHandler{
		service: s,
	}
}

// RegisterRoutes mounts the order endpoints.
func (h *OrderHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/:id", h.GetOrder)
	r.Put("/orders/:id/shipping", h.AssignShipping)
}

// AssignShippingRequest is the body of PUT /orders/:id/shipping.
type AssignShippingRequest struct {
	Carrier      string `json:"carrier"`
	ShippingCode string `json:"shipping_code"`
}

// CreateOrder imports an order placed on the storefront.
// @Summary Import an order
// @Tags orders
// @Accept json
// @Produce json
// @Param order body domain.Order true "Order"
// @Success 201 {object} domain.Order
// @Failure 400 {object} ErrorResponse
// @Router /orders [post]
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var order domain.Order
	if err := c.BodyParser(&order); err != nil {
		return h.fail(c, http.StatusBadRequest, "Invalid request body")
	}

	created, err := h.service.Create(c.UserContext(), &order)
	if err != nil {
		return h.respondError(c, "Failed to create order", err)
	}
	return c.Status(http.StatusCreated).JSON(created)
}

// GetOrder returns a single order.
// @Summary Get Order by ID
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 404 {object} ErrorResponse
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, "Failed to fetch order", err)
	}
	return c.Status(http.StatusOK).JSON(order)
}

// AssignShipping links a carrier shipping code to the order.
// @Summary Assign a shipping code
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param body body AssignShippingRequest true "Carrier and shipping code"
// @Success 200 {object} domain.Order
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /orders/{id}/shipping [put]
func (h *OrderHandler) AssignShipping(c *fiber.Ctx) error {
	var req AssignShippingRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, http.StatusBadRequest, "Invalid request body")
	}

	order, err := h.service.AssignShippingCode(c.UserContext(), c.Params("id"), req.Carrier, req.ShippingCode)
	if err != nil {
		return h.respondError(c, "Failed to assign shipping code", err)
	}
	return c.Status(http.StatusOK).JSON(order)
}

func (h *OrderHandler) respondError(c *fiber.Ctx, msg string, err error) error {
	status := http.StatusInternalServerError
	message := "Internal Server Error"

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		status, message = http.StatusNotFound, "Order not found"
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, service.ErrShippingCodeRequired):
		status, message = http.StatusBadRequest, err.Error()
	default:
		logger.Get().Error(msg,
			zap.String("order_id", c.Params("id")),
			zap.String("ray_id", rayID(c)),
			zap.Error(err),
		)
	}
	return h.fail(c, status, message)
}

func (h *OrderHandler) fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Message: message,
		RayID:   rayID(c),
	})
}

func rayID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return "unknown"
}

// ErrorResponse represents the structure of an error response.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for debugging.
	RayID string `json:"ray_id"`
}
