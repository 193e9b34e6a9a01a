package domain

import (
	orders "returns-desk/internal/features/orders/domain"
)

// SettlementAction is the money movement implied by a price difference.
type SettlementAction string

const (
	ActionAdditionalCharge SettlementAction = "ADDITIONAL_CHARGE"
	ActionPartialRefund    SettlementAction = "PARTIAL_REFUND"
	ActionEvenSwap         SettlementAction = "EVEN_SWAP"
)

// Settlement is the outcome of pricing an exchange.
type Settlement struct {
	Original    orders.LineItem   `json:"original"`
	Replacement orders.StockQuote `json:"replacement"`
	Quantity    int               `json:"quantity"`
	// PriceDifference is positive when the customer owes more.
	PriceDifference int64            `json:"price_difference"`
	StockOK         bool             `json:"stock_ok"`
	Action          SettlementAction `json:"action"`
}

// ComputeSettlement prices swapping the whole original line for the quoted replacement.
// The quantity is carried over unchanged.
func ComputeSettlement(original orders.LineItem, replacement orders.StockQuote) Settlement {
	qty := int64(original.Quantity)
	diff := replacement.UnitPrice*qty - original.UnitPrice*qty

	action := ActionEvenSwap
	switch {
	case diff > 0:
		action = ActionAdditionalCharge
	case diff < 0:
		action = ActionPartialRefund
	}

	return Settlement{
		Original:        original,
		Replacement:     replacement,
		Quantity:        original.Quantity,
		PriceDifference: diff,
		StockOK:         replacement.Available >= original.Quantity,
		Action:          action,
	}
}
