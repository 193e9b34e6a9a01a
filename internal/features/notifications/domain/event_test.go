package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_Subject(t *testing.T) {
	assert.Equal(t, "Your return request was approved", Event{Type: EventApproved}.Subject())
	assert.Equal(t, "Update on your return request", Event{Type: "other"}.Subject())
}

func TestEvent_Body(t *testing.T) {
	charge := Event{Type: EventApproved, RequestID: "r-1", OrderID: "o-1", RequestType: "EXCHANGE", PriceDifference: 20}
	assert.Contains(t, charge.Body(), "Amount due for the replacement: 20.")

	refund := Event{Type: EventApproved, RequestType: "EXCHANGE", PriceDifference: -15, Note: "size swap"}
	assert.Contains(t, refund.Body(), "Amount to be refunded for the replacement: 15.")
	assert.Contains(t, refund.Body(), "Note: size swap")

	completed := Event{Type: EventCompleted, RequestType: "RETURN", RefundAmount: 100}
	assert.Contains(t, completed.Body(), "Refund issued: 100.")
}

func TestEvent_Fields(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fields := Event{ID: "e-1", Type: EventRejected, RequestID: "r-1", PriceDifference: -5, OccurredAt: at}.Fields()

	assert.Equal(t, "return.rejected", fields["type"])
	assert.Equal(t, "-5", fields["price_difference"])
	assert.Equal(t, "2024-05-01T10:00:00Z", fields["occurred_at"])
}
