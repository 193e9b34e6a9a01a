package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"returns-desk/internal/features/returns/domain"

	"go.uber.org/zap"
)

// AuditExchangeLinks sweeps exchange orders and approved exchanges for broken links.
// Anomalies are reported, not repaired.
func (s *ReturnService) AuditExchangeLinks(ctx context.Context) (*domain.AuditReport, error) {
	report := &domain.AuditReport{
		Anomalies: []domain.Anomaly{},
		CheckedAt: s.now().UTC(),
	}

	exchanges, err := s.orders.Exchanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	ordersByRequest := make(map[string][]string)
	for _, order := range exchanges {
		report.CheckedOrders++
		requestID := order.Exchange.ReturnRequestID
		ordersByRequest[requestID] = append(ordersByRequest[requestID], order.ID)

		req, err := s.repo.Get(ctx, requestID)
		if errors.Is(err, domain.ErrNotFound) {
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:            domain.AnomalyOrphanOrder,
				RequestID:       requestID,
				ExchangeOrderID: order.ID,
				Detail:          "return request does not exist",
			})
			continue
		}
		if err != nil {
			return nil, err
		}

		switch {
		case req.Type != domain.TypeExchange:
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:            domain.AnomalyRequestNotExchange,
				RequestID:       req.ID,
				ExchangeOrderID: order.ID,
				Detail:          "request type is " + string(req.Type),
			})
		case req.Status != domain.StatusApproved && req.Status != domain.StatusCompleted:
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:            domain.AnomalyRequestNotApproved,
				RequestID:       req.ID,
				ExchangeOrderID: order.ID,
				Detail:          "request status is " + string(req.Status),
			})
		}

		linked, err := s.repo.ExchangeOrderID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if linked != order.ID || req.ExchangeOrderID != order.ID {
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:            domain.AnomalyLinkMismatch,
				RequestID:       req.ID,
				ExchangeOrderID: order.ID,
				Detail:          fmt.Sprintf("request links %q, idempotency key holds %q", req.ExchangeOrderID, linked),
			})
		}
	}

	requestIDs := make([]string, 0, len(ordersByRequest))
	for id := range ordersByRequest {
		requestIDs = append(requestIDs, id)
	}
	sort.Strings(requestIDs)
	for _, id := range requestIDs {
		if ids := ordersByRequest[id]; len(ids) > 1 {
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:      domain.AnomalyDuplicateOrder,
				RequestID: id,
				Detail:    fmt.Sprintf("%d exchange orders: %v", len(ids), ids),
			})
		}
	}

	if err := s.auditApprovedExchanges(ctx, ordersByRequest, report); err != nil {
		return nil, err
	}

	if len(report.Anomalies) > 0 {
		s.log.Warn("Exchange link audit found anomalies",
			zap.Int("anomalies", len(report.Anomalies)),
			zap.Int("checked_orders", report.CheckedOrders),
		)
	}
	return report, nil
}

// auditApprovedExchanges walks every exchange request and flags approved ones without an order.
func (s *ReturnService) auditApprovedExchanges(ctx context.Context, ordersByRequest map[string][]string, report *domain.AuditReport) error {
	filter := domain.Filter{Type: domain.TypeExchange, Page: 1, PageSize: domain.MaxPageSize}
	for {
		page, err := s.repo.List(ctx, filter)
		if err != nil {
			return err
		}

		for _, req := range page.Items {
			if req.Status != domain.StatusApproved && req.Status != domain.StatusCompleted {
				continue
			}
			report.CheckedRequests++
			if _, ok := ordersByRequest[req.ID]; !ok {
				report.Anomalies = append(report.Anomalies, domain.Anomaly{
					Kind:            domain.AnomalyMissingOrder,
					RequestID:       req.ID,
					ExchangeOrderID: req.ExchangeOrderID,
					Detail:          "approved exchange has no exchange order",
				})
			}
		}

		if filter.Page*filter.PageSize >= page.Total {
			return nil
		}
		filter.Page++
	}
}
