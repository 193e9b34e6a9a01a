package handler

import (
	"context"
	"errors"
	"net/http"

	"returns-desk/internal/core/logger"
	"returns-desk/internal/features/returns/domain"
	"returns-desk/internal/features/returns/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserHeader carries the id of the customer submitting a request.
const UserHeader = "X-User-ID"

// ReturnHandler handles HTTP requests for return requests.
type ReturnHandler struct {
	service ports.ReturnService
}

// NewReturnHandler creates a new instance of ReturnHandler.
func NewReturnHandler(s ports.ReturnService) *ReturnHandler {
	return &ReturnHandler{service: s}
}

// RegisterRoutes mounts the return endpoints.
func (h *ReturnHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/returns", h.Submit)
	r.Get("/returns", h.List)
	r.Get("/returns/audit/exchanges", h.AuditExchanges)
	r.Get("/returns/:id", h.Get)
	r.Post("/returns/:id/approve", h.Approve)
	r.Post("/returns/:id/reject", h.Reject)
	r.Post("/returns/:id/complete", h.Complete)
}

// ActionRequest is the body of the admin actions.
type ActionRequest struct {
	AdminID string `json:"admin_id"`
	Note    string `json:"note"`
}

// Submit creates a return, refund or exchange request.
// @Summary Submit a return request
// @Tags returns
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Requesting customer"
// @Param body body domain.Submission true "Request"
// @Success 201 {object} domain.ReturnRequest
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /returns [post]
func (h *ReturnHandler) Submit(c *fiber.Ctx) error {
	var in domain.Submission
	if err := c.BodyParser(&in); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
	}
	in.RequesterID = c.Get(UserHeader)

	req, err := h.service.Submit(c.UserContext(), in)
	if err != nil {
		return respondError(c, "Failed to submit return request", err)
	}
	return c.Status(http.StatusCreated).JSON(req)
}

// List returns a page of requests.
// @Summary List return requests
// @Tags returns
// @Produce json
// @Param status query string false "PENDING, APPROVED, REJECTED or COMPLETED"
// @Param type query string false "EXCHANGE, RETURN or REFUND"
// @Param user_id query string false "Customer id"
// @Param page query int false "Page, from 1"
// @Param page_size query int false "Page size, at most 100"
// @Success 200 {object} domain.Page
// @Failure 400 {object} ErrorResponse
// @Router /returns [get]
func (h *ReturnHandler) List(c *fiber.Ctx) error {
	filter := domain.Filter{
		Status:   domain.Status(c.Query("status")),
		Type:     domain.RequestType(c.Query("type")),
		UserID:   c.Query("user_id"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", domain.DefaultPageSize),
	}

	page, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, "Failed to list return requests", err)
	}
	return c.Status(http.StatusOK).JSON(page)
}

// Get returns a single request.
// @Summary Get a return request
// @Tags returns
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} domain.ReturnRequest
// @Failure 404 {object} ErrorResponse
// @Router /returns/{id} [get]
func (h *ReturnHandler) Get(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, "Failed to fetch return request", err)
	}
	return c.Status(http.StatusOK).JSON(req)
}

// Approve approves a pending request.
// @Summary Approve a return request
// @Tags returns
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body ActionRequest true "Admin and note"
// @Success 200 {object} domain.ReturnRequest
// @Failure 409 {object} ErrorResponse
// @Router /returns/{id}/approve [post]
func (h *ReturnHandler) Approve(c *fiber.Ctx) error {
	return h.act(c, "approve", h.service.Approve)
}

// Reject rejects a pending request.
// @Summary Reject a return request
// @Tags returns
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body ActionRequest true "Admin and note"
// @Success 200 {object} domain.ReturnRequest
// @Failure 409 {object} ErrorResponse
// @Router /returns/{id}/reject [post]
func (h *ReturnHandler) Reject(c *fiber.Ctx) error {
	return h.act(c, "reject", h.service.Reject)
}

// Complete completes an approved request.
// @Summary Complete a return request
// @Tags returns
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param body body ActionRequest true "Admin and note"
// @Success 200 {object} domain.ReturnRequest
// @Failure 409 {object} ErrorResponse
// @Router /returns/{id}/complete [post]
func (h *ReturnHandler) Complete(c *fiber.Ctx) error {
	return h.act(c, "complete", h.service.Complete)
}

type action func(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error)

func (h *ReturnHandler) act(c *fiber.Ctx, name string, fn action) error {
	var body ActionRequest
	if err := c.BodyParser(&body); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body")
	}
	if body.AdminID == "" {
		return fail(c, http.StatusBadRequest, "INVALID_INPUT", "admin_id is required")
	}

	req, err := fn(c.UserContext(), c.Params("id"), body.AdminID, body.Note)
	if err != nil {
		return respondError(c, "Failed to "+name+" return request", err)
	}
	return c.Status(http.StatusOK).JSON(req)
}

// AuditExchanges reports broken links between exchange orders and their requests.
// @Summary Audit exchange order links
// @Tags returns
// @Produce json
// @Success 200 {object} domain.AuditReport
// @Router /returns/audit/exchanges [get]
func (h *ReturnHandler) AuditExchanges(c *fiber.Ctx) error {
	report, err := h.service.AuditExchangeLinks(c.UserContext())
	if err != nil {
		return respondError(c, "Failed to audit exchange links", err)
	}
	return c.Status(http.StatusOK).JSON(report)
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{domain.ErrInvalidRequester, http.StatusForbidden, "INVALID_REQUESTER"},
	{domain.ErrIneligibleOrder, http.StatusUnprocessableEntity, "INELIGIBLE_ORDER"},
	{domain.ErrConflictingRequest, http.StatusConflict, "CONFLICTING_REQUEST"},
	{domain.ErrAlreadyTerminal, http.StatusConflict, "ALREADY_TERMINAL"},
	{domain.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrStaleState, http.StatusConflict, "STALE_STATE"},
	{domain.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
}

func respondError(c *fiber.Ctx, msg string, err error) error {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return fail(c, e.status, e.code, err.Error())
		}
	}

	logger.Get().Error(msg,
		zap.String("request_id", c.Params("id")),
		zap.String("ray_id", rayID(c)),
		zap.Error(err),
	)
	code := "INTERNAL"
	if errors.Is(err, domain.ErrPersistence) {
		code = "PERSISTENCE_FAILURE"
	}
	return fail(c, http.StatusInternalServerError, code, "Internal Server Error")
}

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Message: message,
		Code:    code,
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
	// Message explains what to fix.
	Message string `json:"message"`
	// Code is the machine readable error kind.
	Code string `json:"code"`
	// RayID is the unique request identifier for debugging.
	RayID string `json:"ray_id"`
}
