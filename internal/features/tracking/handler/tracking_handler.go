package handler

import (
	"errors"
	"time"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/tracking/domain"
	"returns-desk/internal/features/tracking/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TrackingHandler handles HTTP requests for tracking operations.
type TrackingHandler struct {
	trackingService ports.TrackingService
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(trackingService ports.TrackingService) *TrackingHandler {
	return &TrackingHandler{
		trackingService: trackingService,
	}
}

// RegisterRoutes mounts the tracking endpoints.
func (h *TrackingHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/tracking/webhooks/ghn", h.GHNWebhook)
	r.Get("/tracking/:code/timeline", h.GetTimeline)
	r.Post("/tracking/:code/sync", h.Sync)
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// GHNWebhook is the status callback GHN pushes for a shipment.
type GHNWebhook struct {
	OrderCode   string    `json:"OrderCode"`
	Status      string    `json:"Status"`
	Time        time.Time `json:"Time"`
	Description string    `json:"Description"`
	Reason      string    `json:"Reason"`
	Type        string    `json:"Type"`
}

// GetTimeline godoc
// @Summary Get the shipment timeline
// @Description Returns every recorded carrier event for a shipping code and its current status
// @Tags tracking
// @Produce json
// @Param code path string true "Shipping code"
// @Param order query string false "asc or desc (default desc)"
// @Success 200 {object} domain.Timeline
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tracking/{code}/timeline [get]
func (h *TrackingHandler) GetTimeline(c *fiber.Ctx) error {
	var ascending bool
	switch c.Query("order", "desc") {
	case "asc":
		ascending = true
	case "desc":
	default:
		return h.fail(c, fiber.StatusBadRequest, "order must be asc or desc")
	}

	timeline, err := h.trackingService.Timeline(c.UserContext(), c.Params("code"), ascending)
	if err != nil {
		return h.respondError(c, "Failed to read timeline", err)
	}
	return c.JSON(timeline)
}

// Sync godoc
// @Summary Pull carrier updates now
// @Description Fetches the carrier history for a shipping code and ingests new events
// @Tags tracking
// @Produce json
// @Param code path string true "Shipping code"
// @Success 200 {object} domain.SyncResult
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /tracking/{code}/sync [post]
func (h *TrackingHandler) Sync(c *fiber.Ctx) error {
	result, err := h.trackingService.Sync(c.UserContext(), c.Params("code"))
	if err != nil {
		return h.respondError(c, "Failed to sync tracking", err)
	}
	return c.JSON(result)
}

// GHNWebhook godoc
// @Summary Receive a GHN status callback
// @Tags tracking
// @Accept json
// @Produce json
// @Param body body GHNWebhook true "Callback"
// @Success 200 {object} domain.IngestResult
// @Failure 400 {object} ErrorResponse
// @Router /tracking/webhooks/ghn [post]
func (h *TrackingHandler) GHNWebhook(c *fiber.Ctx) error {
	var body GHNWebhook
	if err := c.BodyParser(&body); err != nil {
		return h.fail(c, fiber.StatusBadRequest, "invalid callback body")
	}

	description := body.Description
	if description == "" {
		description = body.Reason
	}

	result, err := h.trackingService.Ingest(c.UserContext(), domain.CarrierEvent{
		OrderCode:   body.OrderCode,
		RawStatus:   body.Status,
		Timestamp:   body.Time,
		Description: description,
	})
	if err != nil {
		return h.respondError(c, "Failed to ingest GHN callback", err)
	}
	return c.JSON(result)
}

func (h *TrackingHandler) respondError(c *fiber.Ctx, msg string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		return h.fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrShipmentNotFound):
		return h.fail(c, fiber.StatusNotFound, "shipment not found")
	case errors.Is(err, domain.ErrNoProvider):
		return h.fail(c, fiber.StatusServiceUnavailable, err.Error())
	}

	logger.Get().Error(msg,
		zap.String("order_code", c.Params("code")),
		zap.String("ray_id", rayID(c)),
		zap.Error(err),
	)
	return h.fail(c, fiber.StatusInternalServerError, "Internal Server Error")
}

func (h *TrackingHandler) fail(c *fiber.Ctx, status int, message string) error {
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
