package service

import (
	"context"
	"errors"
	"fmt"

	orders "returns-desk/internal/features/orders/domain"
	"returns-desk/internal/features/returns/domain"
	"returns-desk/internal/features/returns/ports"
)

// Calculator prices an exchange against a fresh catalog quote.
type Calculator struct {
	catalog ports.Catalog
}

// NewCalculator creates a new Calculator.
func NewCalculator(catalog ports.Catalog) *Calculator {
	return &Calculator{catalog: catalog}
}

// Settle computes the settlement of an exchange request. It fails with
// ErrInsufficientStock when the replacement cannot cover the original quantity.
func (c *Calculator) Settle(ctx context.Context, order *orders.Order, req *domain.ReturnRequest) (domain.Settlement, error) {
	if req.LineItem == nil || req.DesiredReplacement == nil {
		return domain.Settlement{}, fmt.Errorf("%w: exchange is missing its items", domain.ErrInvalidInput)
	}

	original, ok := order.FindItem(*req.LineItem)
	if !ok {
		return domain.Settlement{}, fmt.Errorf("%w: product %s is not part of order %s",
			domain.ErrInvalidInput, req.LineItem.ProductID, order.ID)
	}

	quote, err := c.catalog.StockQuote(ctx, *req.DesiredReplacement)
	if errors.Is(err, orders.ErrProductNotFound) {
		return domain.Settlement{}, fmt.Errorf("%w: replacement %s is no longer sold",
			domain.ErrInsufficientStock, req.DesiredReplacement.ProductID)
	}
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("failed to quote replacement: %w", err)
	}

	settlement := domain.ComputeSettlement(original, *quote)
	if !settlement.StockOK {
		return settlement, fmt.Errorf("%w: %d available, %d needed",
			domain.ErrInsufficientStock, quote.Available, settlement.Quantity)
	}
	return settlement, nil
}
