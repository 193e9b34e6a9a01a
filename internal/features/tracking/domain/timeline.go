package domain

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrInvalidEvent is returned for events without a code, status or timestamp.
	ErrInvalidEvent = errors.New("invalid carrier event")
	// ErrShipmentNotFound is returned by providers that do not know the code.
	ErrShipmentNotFound = errors.New("shipment not found")
	// ErrNoProvider is returned when no carrier provider is configured.
	ErrNoProvider = errors.New("no carrier provider configured")
)

// CarrierEvent is one raw status report from the carrier.
type CarrierEvent struct {
	OrderCode   string    `json:"order_code"`
	RawStatus   string    `json:"raw_status"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the event can be ingested.
func (e CarrierEvent) Validate() error {
	switch {
	case e.OrderCode == "":
		return errors.Join(ErrInvalidEvent, errors.New("order code is required"))
	case NormalizeCode(e.RawStatus) == "":
		return errors.Join(ErrInvalidEvent, errors.New("status is required"))
	case e.Timestamp.IsZero():
		return errors.Join(ErrInvalidEvent, errors.New("timestamp is required"))
	}
	return nil
}

// DedupKey identifies the (code, status, timestamp) triple within a code's timeline.
func (e CarrierEvent) DedupKey() string {
	return NormalizeCode(e.RawStatus) + "|" + strconv.FormatInt(e.Timestamp.UTC().UnixNano(), 10)
}

// TimelineEntry is an append-only record of a carrier event.
type TimelineEntry struct {
	ID          string `json:"id"`
	OrderCode   string `json:"order_code"`
	RawStatus   string `json:"raw_status"`
	Status      Status `json:"status"`
	Description string `json:"description"`
	// CarrierNote is the carrier's own text, when it sent one.
	CarrierNote string    `json:"carrier_note,omitempty"`
	CarrierTime time.Time `json:"carrier_time"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Summary is the current status of a shipment, the entry with the latest carrier time.
type Summary struct {
	OrderCode   string    `json:"order_code"`
	Status      Status    `json:"status"`
	RawStatus   string    `json:"raw_status"`
	Description string    `json:"description"`
	CarrierTime time.Time `json:"carrier_time"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Supersedes reports whether an entry should replace the summary.
// Equal carrier times go to the later ingestion.
func (s *Summary) Supersedes(entry *TimelineEntry) bool {
	return s == nil || !entry.CarrierTime.Before(s.CarrierTime)
}

// Timeline is the full history of a shipment.
type Timeline struct {
	OrderCode string          `json:"order_code"`
	OrderID   string          `json:"order_id,omitempty"`
	Summary   *Summary        `json:"summary,omitempty"`
	Entries   []TimelineEntry `json:"entries"`
}

// IngestResult reports what an ingestion changed.
type IngestResult struct {
	Entry *TimelineEntry `json:"entry"`
	// Appended is false for duplicates.
	Appended bool `json:"appended"`
	// SummaryMoved is true when the entry became the current status.
	SummaryMoved bool   `json:"summary_moved"`
	OrderID      string `json:"order_id,omitempty"`
	OrderUpdated bool   `json:"order_updated"`
}

// SyncResult reports a carrier pull.
type SyncResult struct {
	OrderCode string `json:"order_code"`
	Provider  string `json:"provider"`
	Fetched   int    `json:"fetched"`
	Appended  int    `json:"appended"`
}
