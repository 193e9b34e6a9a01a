package domain

import "time"

// ReasonPolicy is what the shop refunds for one reason.
type ReasonPolicy struct {
	// RefundPercent of the returned items' value goes back to the customer.
	RefundPercent int64 `json:"refund_percent"`
	// CustomerPaysShipping deducts the return shipping fee from the refund.
	CustomerPaysShipping bool `json:"customer_pays_shipping"`
}

// Policy holds the return window and the per-reason refund rules.
type Policy struct {
	Window            time.Duration
	ReturnShippingFee int64
	Reasons           map[Reason]ReasonPolicy
}

// DefaultPolicy builds the shop policy. Shop faults refund in full with the
// shop paying shipping; a change of mind refunds changeMindPercent and the
// customer pays shipping.
func DefaultPolicy(window time.Duration, returnShippingFee, changeMindPercent int64) Policy {
	return Policy{
		Window:            window,
		ReturnShippingFee: returnShippingFee,
		Reasons: map[Reason]ReasonPolicy{
			ReasonDefective:  {RefundPercent: 100},
			ReasonWrongItem:  {RefundPercent: 100},
			ReasonChangeMind: {RefundPercent: changeMindPercent, CustomerPaysShipping: true},
		},
	}
}

// For returns the rule for reason. Reasons without their own rule are
// treated as a change of mind.
func (p Policy) For(reason Reason) ReasonPolicy {
	if rule, ok := p.Reasons[reason]; ok {
		return rule
	}
	if rule, ok := p.Reasons[ReasonChangeMind]; ok {
		return rule
	}
	return ReasonPolicy{RefundPercent: 100}
}

// RefundBreakdown records how a refund was computed.
type RefundBreakdown struct {
	ItemsTotal          int64 `json:"items_total"`
	RefundPercent       int64 `json:"refund_percent"`
	ProcessingFee       int64 `json:"processing_fee"`
	CustomerShippingFee int64 `json:"customer_shipping_fee"`
	ShopShippingFee     int64 `json:"shop_shipping_fee"`
	Total               int64 `json:"total"`
}

// Refund applies the reason's rule to itemsTotal. The processing fee is the
// withheld share of itemsTotal and is deducted once. Total never goes below zero.
func (p Policy) Refund(reason Reason, itemsTotal int64) RefundBreakdown {
	rule := p.For(reason)
	pct := min(max(rule.RefundPercent, 0), 100)

	b := RefundBreakdown{
		ItemsTotal:    itemsTotal,
		RefundPercent: pct,
	}
	refunded := itemsTotal * pct / 100
	b.ProcessingFee = itemsTotal - refunded

	if rule.CustomerPaysShipping {
		b.CustomerShippingFee = p.ReturnShippingFee
	} else {
		b.ShopShippingFee = p.ReturnShippingFee
	}

	b.Total = max(refunded-b.CustomerShippingFee, 0)
	return b
}
