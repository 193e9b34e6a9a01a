package domain

import (
	"errors"
	"time"
)

var (
	// ErrOrderNotFound is returned when the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder is returned when an imported order is malformed.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrProductNotFound is returned by the catalog when a product or variant is unknown.
	ErrProductNotFound = errors.New("product not found")
)

// PaymentStatus represents the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid reports whether the payment status belongs to the known vocabulary.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// DeliveryStatus is the canonical shipment status of an order.
type DeliveryStatus string

const (
	DeliveryNotShipped DeliveryStatus = "not_shipped"
	DeliveryInTransit  DeliveryStatus = "in_transit"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryReturning  DeliveryStatus = "returning"
	DeliveryReturned   DeliveryStatus = "returned"
)

// Valid reports whether the delivery status belongs to the canonical vocabulary.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryNotShipped, DeliveryInTransit, DeliveryDelivered, DeliveryReturning, DeliveryReturned:
		return true
	}
	return false
}

// Settled reports whether the shipment has reached a state the carrier will not move on from.
func (s DeliveryStatus) Settled() bool {
	return s == DeliveryDelivered || s == DeliveryReturned
}

// ProductRef identifies a product, or one of its variants when VariantID is set.
type ProductRef struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

// Equal compares two references.
func (r ProductRef) Equal(other ProductRef) bool {
	return r.ProductID == other.ProductID && r.VariantID == other.VariantID
}

// LineItem is a purchased product with the unit price charged at checkout.
type LineItem struct {
	ProductRef
	// Name is the product display name at purchase time.
	Name string `json:"name"`
	// Quantity is the number of units purchased.
	Quantity int `json:"quantity"`
	// UnitPrice is in the smallest currency unit.
	UnitPrice int64 `json:"unit_price"`
}

// Subtotal returns UnitPrice × Quantity.
func (i LineItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ExchangeInfo links an exchange order back to what spawned it.
type ExchangeInfo struct {
	OriginalOrderID string `json:"original_order_id"`
	ReturnRequestID string `json:"return_request_id"`
	// PriceDifference is signed: positive means the customer owes more.
	PriceDifference int64  `json:"price_difference"`
	ExchangeType    string `json:"exchange_type"`
}

// Order represents a customer order.
type Order struct {
	// ID is the unique identifier for the order.
	ID string `json:"id"`
	// Code is the human facing order number.
	Code string `json:"code"`
	// UserID is the owning customer.
	UserID string `json:"user_id"`
	// Email is the contact email for the customer.
	Email string `json:"email"`
	// Items contains the products included in the order.
	Items []LineItem `json:"items"`
	// TotalAmount is in the smallest currency unit.
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`

	PaymentStatus   PaymentStatus  `json:"payment_status"`
	DeliveryStatus  DeliveryStatus `json:"delivery_status"`
	Carrier         string         `json:"carrier,omitempty"`
	ShippingCode    string         `json:"shipping_code,omitempty"`
	PaymentIntentID string         `json:"payment_intent_id,omitempty"`

	// Exchange is set only for orders spawned by an approved exchange.
	Exchange *ExchangeInfo `json:"exchange,omitempty"`

	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsExchange reports whether the order was spawned by an exchange approval.
func (o *Order) IsExchange() bool {
	return o.Exchange != nil
}

// FindItem returns the line item matching ref.
func (o *Order) FindItem(ref ProductRef) (LineItem, bool) {
	for _, item := range o.Items {
		if item.Equal(ref) {
			return item, true
		}
	}
	return LineItem{}, false
}

// ComputeTotal sums the line item subtotals.
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}

// Validate checks an order before it is persisted.
func (o *Order) Validate() error {
	if o.UserID == "" {
		return errors.Join(ErrInvalidOrder, errors.New("user_id is required"))
	}
	if len(o.Items) == 0 {
		return errors.Join(ErrInvalidOrder, errors.New("at least one item is required"))
	}
	for _, item := range o.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			return errors.Join(ErrInvalidOrder, errors.New("items need a product, a positive quantity and a price"))
		}
	}
	if !o.PaymentStatus.Valid() {
		return errors.Join(ErrInvalidOrder, errors.New("unknown payment status"))
	}
	if !o.DeliveryStatus.Valid() {
		return errors.Join(ErrInvalidOrder, errors.New("unknown delivery status"))
	}
	return nil
}

// ApplyDeliveryStatus moves the delivery status and stamps DeliveredAt on delivery.
// It reports whether anything changed.
func (o *Order) ApplyDeliveryStatus(status DeliveryStatus, at time.Time) bool {
	if !status.Valid() || o.DeliveryStatus == status {
		return false
	}
	o.DeliveryStatus = status
	if status == DeliveryDelivered {
		t := at.UTC()
		o.DeliveredAt = &t
	}
	o.UpdatedAt = time.Now().UTC()
	return true
}

// StockQuote is the current price and availability of a product or variant.
type StockQuote struct {
	Ref ProductRef `json:"ref"`
	// UnitPrice is in the smallest currency unit.
	UnitPrice int64 `json:"unit_price"`
	// Available is the in-stock count. Unmanaged stock is reported as unlimited.
	Available int `json:"available"`
}
