package domain

import (
	"fmt"
	"strconv"
	"time"
)

// EventType is the workflow step that produced a notification.
type EventType string

const (
	EventSubmitted EventType = "return.submitted"
	EventApproved  EventType = "return.approved"
	EventRejected  EventType = "return.rejected"
	EventCompleted EventType = "return.completed"
)

// Event is a fire-and-forget notification about a return request.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	RequestID   string    `json:"request_id"`
	OrderID     string    `json:"order_id"`
	RequestType string    `json:"request_type"`
	UserID      string    `json:"user_id"`
	// Recipient is the customer email, empty when unknown.
	Recipient string `json:"recipient,omitempty"`
	// PriceDifference is signed: positive means the customer owes more.
	PriceDifference int64     `json:"price_difference,omitempty"`
	RefundAmount    int64     `json:"refund_amount,omitempty"`
	ExchangeOrderID string    `json:"exchange_order_id,omitempty"`
	Note            string    `json:"note,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Subject returns the customer facing email subject.
func (e Event) Subject() string {
	switch e.Type {
	case EventSubmitted:
		return "We received your return request"
	case EventApproved:
		return "Your return request was approved"
	case EventRejected:
		return "Your return request was declined"
	case EventCompleted:
		return "Your return request is complete"
	}
	return "Update on your return request"
}

// Body returns a plain text email body.
func (e Event) Body() string {
	body := fmt.Sprintf("Request %s for order %s (%s): %s.", e.RequestID, e.OrderID, e.RequestType, e.Subject())
	switch {
	case e.PriceDifference > 0:
		body += fmt.Sprintf("\nAmount due for the replacement: %d.", e.PriceDifference)
	case e.PriceDifference < 0:
		body += fmt.Sprintf("\nAmount to be refunded for the replacement: %d.", -e.PriceDifference)
	}
	if e.RefundAmount > 0 && e.Type == EventCompleted {
		body += fmt.Sprintf("\nRefund issued: %d.", e.RefundAmount)
	}
	if e.Note != "" {
		body += "\nNote: " + e.Note
	}
	return body
}

// Fields flattens the event for stream storage.
func (e Event) Fields() map[string]any {
	return map[string]any{
		"id":                e.ID,
		"type":              string(e.Type),
		"request_id":        e.RequestID,
		"order_id":          e.OrderID,
		"request_type":      e.RequestType,
		"user_id":           e.UserID,
		"price_difference":  strconv.FormatInt(e.PriceDifference, 10),
		"refund_amount":     strconv.FormatInt(e.RefundAmount, 10),
		"exchange_order_id": e.ExchangeOrderID,
		"note":              e.Note,
		"occurred_at":       e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
