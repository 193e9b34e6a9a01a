package domain

import (
	"errors"
	"time"
)

var (
	// ErrZeroAmount is returned for an obligation that moves no money.
	ErrZeroAmount = errors.New("obligation amount is zero")
	// ErrMissingPaymentIntent is returned when a refund has no payment to reverse.
	ErrMissingPaymentIntent = errors.New("refund requires the original payment intent")
	// ErrObligationNotFound is returned by the ledger for unknown obligations.
	ErrObligationNotFound = errors.New("obligation not found")
)

// Kind tells whether money goes to or comes from the customer.
type Kind string

const (
	KindCharge Kind = "charge"
	KindRefund Kind = "refund"
)

// Status tracks an obligation through the gateway.
type Status string

const (
	StatusRecorded Status = "recorded"
	StatusSettled  Status = "settled"
	StatusFailed   Status = "failed"
)

// Obligation is a signed amount owed as a result of a return request.
// Positive amounts are charged to the customer, negative amounts refunded.
type Obligation struct {
	RequestID       string `json:"request_id"`
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`

	Status    Status    `json:"status"`
	Gateway   string    `json:"gateway,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind derives the direction from the sign of Amount.
func (o Obligation) Kind() Kind {
	if o.Amount < 0 {
		return KindRefund
	}
	return KindCharge
}

// Magnitude returns the absolute amount.
func (o Obligation) Magnitude() int64 {
	if o.Amount < 0 {
		return -o.Amount
	}
	return o.Amount
}

// IdempotencyKey is stable per request and direction so retries never double-settle.
func (o Obligation) IdempotencyKey() string {
	return "returns-desk:" + o.RequestID + ":" + string(o.Kind())
}

// Validate checks the obligation can be sent to a gateway.
func (o Obligation) Validate() error {
	if o.Amount == 0 {
		return ErrZeroAmount
	}
	if o.Kind() == KindRefund && o.PaymentIntentID == "" {
		return ErrMissingPaymentIntent
	}
	return nil
}
