package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"returns-desk/internal/core/kv"
	"returns-desk/internal/core/logger"
	"returns-desk/internal/core/metrics"
	notifications "returns-desk/internal/features/notifications/domain"
	orders "returns-desk/internal/features/orders/domain"
	payments "returns-desk/internal/features/payments/domain"
	"returns-desk/internal/features/returns/domain"
	"returns-desk/internal/features/returns/ports"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ReturnService runs the return workflow: eligibility at submission,
// the closed transition table, and exchange order creation at approval.
type ReturnService struct {
	repo       ports.Repository
	orders     ports.OrderStore
	calculator *Calculator
	notifier   ports.Notifier
	settlement ports.SettlementTrigger

	policy   domain.Policy
	currency string

	sanitizer *bluemonday.Policy
	now       func() time.Time
	log       *zap.Logger
}

// NewReturnService creates a new ReturnService.
// notifier and settlement may be nil, in which case those side effects are skipped.
func NewReturnService(
	repo ports.Repository,
	orderStore ports.OrderStore,
	catalog ports.Catalog,
	notifier ports.Notifier,
	settlement ports.SettlementTrigger,
	policy domain.Policy,
	currency string,
) *ReturnService {
	return &ReturnService{
		repo:       repo,
		orders:     orderStore,
		calculator: NewCalculator(catalog),
		notifier:   notifier,
		settlement: settlement,
		policy:     policy,
		currency:   currency,
		sanitizer:  bluemonday.StrictPolicy(),
		now:        time.Now,
		log:        logger.Named("returns"),
	}
}

// Submit validates and stores a new PENDING request.
func (s *ReturnService) Submit(ctx context.Context, in domain.Submission) (*domain.ReturnRequest, error) {
	req, order, err := s.submit(ctx, in)
	if err != nil {
		s.warnOrError("Return request rejected", err,
			zap.String("order_id", in.OrderID),
			zap.String("type", string(in.Type)),
		)
		return nil, err
	}

	metrics.ReturnRequestsSubmittedTotal.WithLabelValues(string(req.Type)).Inc()
	s.log.Info("Return request submitted",
		zap.String("request_id", req.ID),
		zap.String("order_id", req.OrderID),
		zap.String("type", string(req.Type)),
	)
	s.notify(ctx, notifications.EventSubmitted, req, order.Email)
	return req, nil
}

func (s *ReturnService) submit(ctx context.Context, in domain.Submission) (*domain.ReturnRequest, *orders.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	order, err := s.loadOrder(ctx, in.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if order.UserID != in.RequesterID {
		return nil, nil, fmt.Errorf("%w: order %s", domain.ErrInvalidRequester, order.ID)
	}

	now := s.now().UTC()
	if err := s.checkSubmittable(order, now); err != nil {
		return nil, nil, err
	}

	req := &domain.ReturnRequest{
		ID:                 ulid.Make().String(),
		OrderID:            order.ID,
		UserID:             in.RequesterID,
		Type:               in.Type,
		Reason:             in.Reason,
		Description:        s.sanitize(in.Description),
		EvidenceImages:     in.EvidenceImages,
		Status:             domain.StatusPending,
		LineItem:           in.LineItem,
		DesiredReplacement: in.DesiredReplacement,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}

	itemsTotal := order.TotalAmount
	if in.LineItem != nil {
		item, ok := order.FindItem(*in.LineItem)
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %s is not part of order %s",
				domain.ErrInvalidInput, in.LineItem.ProductID, order.ID)
		}
		itemsTotal = item.Subtotal()
	}
	if req.Type != domain.TypeExchange {
		breakdown := s.policy.Refund(req.Reason, itemsTotal)
		req.Refund = &breakdown
		req.RefundAmount = breakdown.Total
	}

	if err := s.repo.Submit(ctx, req); err != nil {
		return nil, nil, err
	}
	return req, order, nil
}

// checkSubmittable enforces payment, delivery and the return window.
// The window starts at delivery, or at creation when the delivery time is unknown.
func (s *ReturnService) checkSubmittable(order *orders.Order, now time.Time) error {
	if order.PaymentStatus != orders.PaymentStatusPaid {
		return fmt.Errorf("%w: payment is %s", domain.ErrIneligibleOrder, order.PaymentStatus)
	}
	if order.DeliveryStatus != orders.DeliveryDelivered {
		return fmt.Errorf("%w: delivery is %s", domain.ErrIneligibleOrder, order.DeliveryStatus)
	}

	since := order.CreatedAt
	if order.DeliveredAt != nil {
		since = *order.DeliveredAt
	}
	if s.policy.Window > 0 && now.Sub(since) > s.policy.Window {
		return fmt.Errorf("%w: the %d day return window has passed",
			domain.ErrIneligibleOrder, int(s.policy.Window.Hours()/24))
	}
	return nil
}

// Get returns a request by id.
func (s *ReturnService) Get(ctx context.Context, id string) (*domain.ReturnRequest, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of requests, newest first.
func (s *ReturnService) List(ctx context.Context, filter domain.Filter) (*domain.Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidInput, filter.Type)
	}
	return s.repo.List(ctx, filter)
}

// Approve moves a PENDING request to APPROVED. For exchanges it prices the
// replacement against fresh stock and creates the exchange order in the same
// transaction as the status change.
func (s *ReturnService) Approve(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error) {
	req, order, created, err := s.approve(ctx, id, adminID, note)
	s.observe("approve", id, err)
	if err != nil {
		return nil, err
	}

	if created {
		metrics.ExchangeOrdersCreatedTotal.Inc()
	}
	s.log.Info("Return request approved",
		zap.String("request_id", req.ID),
		zap.String("admin_id", adminID),
		zap.String("exchange_order_id", req.ExchangeOrderID),
		zap.Int64("price_difference", req.PriceDifference),
	)

	s.notify(ctx, notifications.EventApproved, req, order.Email)
	if req.Type == domain.TypeExchange && req.PriceDifference != 0 {
		s.settle(ctx, payments.Obligation{
			RequestID:       req.ID,
			OrderID:         req.ExchangeOrderID,
			PaymentIntentID: order.PaymentIntentID,
			Amount:          req.PriceDifference,
			Currency:        s.currencyOf(order),
			Reason:          "exchange price difference",
		})
	}
	return req, nil
}

func (s *ReturnService) approve(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, *orders.Order, bool, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}
	if err := domain.CheckTransition(current.Status, domain.StatusApproved); err != nil {
		return nil, nil, false, err
	}

	order, err := s.loadOrder(ctx, current.OrderID)
	if err != nil {
		return nil, nil, false, err
	}
	if err := checkApprovable(order); err != nil {
		return nil, nil, false, err
	}

	now := s.now().UTC()
	mutate := s.process(adminID, note, now, nil)

	var (
		stage   ports.StageFunc
		created bool
	)
	if current.Type == domain.TypeExchange {
		settlement, err := s.calculator.Settle(ctx, order, current)
		if err != nil {
			return nil, nil, false, err
		}

		stage = func(tx kv.Txn, req *domain.ReturnRequest) error {
			req.PriceDifference = settlement.PriceDifference
			created = false

			linked, ok, err := s.repo.LinkedExchangeOrder(tx, req.ID)
			if err != nil {
				return err
			}
			if ok {
				req.ExchangeOrderID = linked
				return nil
			}

			exchange := buildExchangeOrder(order, req, settlement, now)
			if err := s.orders.Stage(tx, exchange, ""); err != nil {
				return err
			}
			s.repo.LinkExchangeOrder(tx, req.ID, exchange.ID)
			req.ExchangeOrderID = exchange.ID
			created = true
			return nil
		}
	}

	updated, err := s.repo.Transition(ctx, id, current.Status, domain.StatusApproved, mutate, stage)
	if err != nil {
		return nil, nil, false, err
	}
	return updated, order, created, nil
}

// checkApprovable re-checks the order at approval. The window is not re-checked;
// the shipment may already be on its way back.
func checkApprovable(order *orders.Order) error {
	if order.PaymentStatus != orders.PaymentStatusPaid {
		return fmt.Errorf("%w: payment is %s", domain.ErrIneligibleOrder, order.PaymentStatus)
	}
	switch order.DeliveryStatus {
	case orders.DeliveryDelivered, orders.DeliveryReturning, orders.DeliveryReturned:
		return nil
	}
	return fmt.Errorf("%w: delivery is %s", domain.ErrIneligibleOrder, order.DeliveryStatus)
}

func buildExchangeOrder(original *orders.Order, req *domain.ReturnRequest, settlement domain.Settlement, now time.Time) *orders.Order {
	item := orders.LineItem{
		ProductRef: settlement.Replacement.Ref,
		Name:       settlement.Original.Name,
		Quantity:   settlement.Quantity,
		UnitPrice:  settlement.Replacement.UnitPrice,
	}
	if item.ProductID == "" {
		item.ProductRef = *req.DesiredReplacement
	}

	payment := orders.PaymentStatusPaid
	if settlement.PriceDifference > 0 {
		payment = orders.PaymentStatusPending
	}

	return &orders.Order{
		ID:              ulid.Make().String(),
		Code:            original.Code + "-EX-" + req.ID[len(req.ID)-6:],
		UserID:          original.UserID,
		Email:           original.Email,
		Items:           []orders.LineItem{item},
		TotalAmount:     item.Subtotal(),
		Currency:        original.Currency,
		PaymentStatus:   payment,
		DeliveryStatus:  orders.DeliveryNotShipped,
		PaymentIntentID: original.PaymentIntentID,
		Exchange: &orders.ExchangeInfo{
			OriginalOrderID: original.ID,
			ReturnRequestID: req.ID,
			PriceDifference: settlement.PriceDifference,
			ExchangeType:    domain.ExchangeTypeApproved,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reject moves a PENDING request to REJECTED, freeing the order for a new request.
func (s *ReturnService) Reject(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error) {
	req, err := s.finish(ctx, id, domain.StatusRejected, adminID, note, nil)
	s.observe("reject", id, err)
	if err != nil {
		return nil, err
	}

	s.log.Info("Return request rejected",
		zap.String("request_id", req.ID),
		zap.String("admin_id", adminID),
	)
	s.notify(ctx, notifications.EventRejected, req, s.recipient(ctx, req.OrderID))
	return req, nil
}

// Complete moves an APPROVED request to COMPLETED. Completing twice fails with ErrAlreadyTerminal.
func (s *ReturnService) Complete(ctx context.Context, id, adminID, note string) (*domain.ReturnRequest, error) {
	req, err := s.finish(ctx, id, domain.StatusCompleted, adminID, note, func(r *domain.ReturnRequest) {
		if r.Type == domain.TypeExchange {
			r.ExchangeFulfilled = true
		} else {
			r.RefundIssued = true
		}
	})
	s.observe("complete", id, err)
	if err != nil {
		return nil, err
	}

	s.log.Info("Return request completed",
		zap.String("request_id", req.ID),
		zap.String("admin_id", adminID),
	)

	order, err := s.loadOrder(ctx, req.OrderID)
	if err != nil {
		s.log.Error("Failed to load order after completion", zap.String("request_id", req.ID), zap.Error(err))
		s.notify(ctx, notifications.EventCompleted, req, "")
		return req, nil
	}

	s.notify(ctx, notifications.EventCompleted, req, order.Email)
	if req.Type != domain.TypeExchange && req.RefundAmount > 0 {
		s.settle(ctx, payments.Obligation{
			RequestID:       req.ID,
			OrderID:         req.OrderID,
			PaymentIntentID: order.PaymentIntentID,
			Amount:          -req.RefundAmount,
			Currency:        s.currencyOf(order),
			Reason:          strings.ToLower(string(req.Type)) + " " + strings.ToLower(string(req.Reason)),
		})
	}
	return req, nil
}

// finish runs a transition without staged writes.
func (s *ReturnService) finish(ctx context.Context, id string, to domain.Status, adminID, note string, extra func(*domain.ReturnRequest)) (*domain.ReturnRequest, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckTransition(current.Status, to); err != nil {
		return nil, err
	}
	return s.repo.Transition(ctx, id, current.Status, to, s.process(adminID, note, s.now().UTC(), extra), nil)
}

// process records who handled the request and when.
func (s *ReturnService) process(adminID, note string, now time.Time, extra func(*domain.ReturnRequest)) func(*domain.ReturnRequest) error {
	note = s.sanitize(note)
	return func(r *domain.ReturnRequest) error {
		if note != "" {
			r.AdminNote = note
		}
		r.ProcessedBy = adminID
		r.ProcessedAt = &now
		r.UpdatedAt = now
		if extra != nil {
			extra(r)
		}
		return nil
	}
}

func (s *ReturnService) loadOrder(ctx context.Context, id string) (*orders.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return order, nil
}

func (s *ReturnService) recipient(ctx context.Context, orderID string) string {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return ""
	}
	return order.Email
}

func (s *ReturnService) currencyOf(order *orders.Order) string {
	if order.Currency != "" {
		return strings.ToLower(order.Currency)
	}
	return s.currency
}

func (s *ReturnService) sanitize(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}

func (s *ReturnService) notify(ctx context.Context, kind notifications.EventType, req *domain.ReturnRequest, recipient string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notifications.Event{
		Type:            kind,
		RequestID:       req.ID,
		OrderID:         req.OrderID,
		RequestType:     string(req.Type),
		UserID:          req.UserID,
		Recipient:       recipient,
		PriceDifference: req.PriceDifference,
		RefundAmount:    req.RefundAmount,
		ExchangeOrderID: req.ExchangeOrderID,
		Note:            req.AdminNote,
	})
}

// settle hands the obligation to payments. Failures stay with the ledger and never undo the transition.
func (s *ReturnService) settle(ctx context.Context, obligation payments.Obligation) {
	if s.settlement == nil {
		return
	}
	if _, err := s.settlement.Trigger(ctx, obligation); err != nil {
		s.log.Error("Settlement trigger failed",
			zap.String("request_id", obligation.RequestID),
			zap.Int64("amount", obligation.Amount),
			zap.Error(err),
		)
	}
}

func (s *ReturnService) observe(action, id string, err error) {
	metrics.ReturnTransitionsTotal.WithLabelValues(action, outcome(err)).Inc()
	if err != nil {
		s.warnOrError("Return request "+action+" failed", err, zap.String("request_id", id))
	}
}

// warnOrError logs rejected operations at Warn and storage failures at Error.
func (s *ReturnService) warnOrError(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, domain.ErrPersistence) || outcome(err) == "error" {
		s.log.Error(msg, fields...)
		return
	}
	s.log.Warn(msg, fields...)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrStaleState):
		return "stale"
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrIneligibleOrder),
		errors.Is(err, domain.ErrInvalidRequester),
		errors.Is(err, domain.ErrConflictingRequest),
		errors.Is(err, domain.ErrInvalidInput):
		return "rejected"
	}
	return "error"
}
