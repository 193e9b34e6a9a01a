package domain

import (
	"fmt"
	"time"

	orders "returns-desk/internal/features/orders/domain"
)

// RequestType is what the customer asks for.
type RequestType string

const (
	TypeExchange RequestType = "EXCHANGE"
	TypeReturn   RequestType = "RETURN"
	TypeRefund   RequestType = "REFUND"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	return t == TypeExchange || t == TypeReturn || t == TypeRefund
}

// Reason is the enumerated cause given by the customer.
type Reason string

const (
	ReasonDefective  Reason = "DEFECTIVE"
	ReasonWrongItem  Reason = "WRONG_ITEM"
	ReasonChangeMind Reason = "CHANGE_MIND"
	ReasonOther      Reason = "OTHER"
)

// Valid reports whether r is a known reason code.
func (r Reason) Valid() bool {
	switch r {
	case ReasonDefective, ReasonWrongItem, ReasonChangeMind, ReasonOther:
		return true
	}
	return false
}

// Status is the workflow state of a request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// IsActive reports whether a request in s blocks new requests for the same order.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved
}

// transitions is the closed table of legal moves.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError for illegal moves.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// ReturnRequest is a customer ticket to return, refund or exchange purchased goods.
type ReturnRequest struct {
	ID             string      `json:"id"`
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	Type           RequestType `json:"type"`
	Reason         Reason      `json:"reason"`
	Description    string      `json:"description,omitempty"`
	EvidenceImages []string    `json:"evidence_images,omitempty"`
	Status         Status      `json:"status"`
	AdminNote      string      `json:"admin_note,omitempty"`

	// LineItem is the order line concerned. Nil means the whole order (RETURN/REFUND only).
	LineItem *orders.ProductRef `json:"line_item,omitempty"`
	// DesiredReplacement is the product or variant wanted in exchange.
	DesiredReplacement *orders.ProductRef `json:"desired_replacement,omitempty"`

	// RefundAmount is computed at submission for RETURN and REFUND.
	RefundAmount int64 `json:"refund_amount,omitempty"`
	// Refund is how RefundAmount was derived from the reason's policy.
	Refund *RefundBreakdown `json:"refund_breakdown,omitempty"`
	// PriceDifference is signed and set when an exchange is approved.
	PriceDifference int64  `json:"price_difference,omitempty"`
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`

	RefundIssued      bool `json:"refund_issued"`
	ExchangeFulfilled bool `json:"exchange_fulfilled"`

	ProcessedBy string     `json:"processed_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	// Version increases on every stored change.
	Version int64 `json:"version"`
}

// Filter selects requests for listing.
type Filter struct {
	Status   Status
	Type     RequestType
	UserID   string
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging values.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Matches reports whether r passes the status and type filters.
func (f Filter) Matches(r *ReturnRequest) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	return true
}

// Page is one page of requests, newest first.
type Page struct {
	Items    []*ReturnRequest `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
}

// ExchangeTypeApproved is the descriptor recorded on exchange orders spawned by approval.
const ExchangeTypeApproved = "APPROVED_EXCHANGE"

// Submission is the customer input for a new request.
type Submission struct {
	OrderID            string             `json:"order_id"`
	RequesterID        string             `json:"-"`
	Type               RequestType        `json:"type"`
	Reason             Reason             `json:"reason"`
	Description        string             `json:"description"`
	EvidenceImages     []string           `json:"evidence_images"`
	LineItem           *orders.ProductRef `json:"line_item"`
	DesiredReplacement *orders.ProductRef `json:"desired_replacement"`
}

// MaxEvidenceImages caps how many evidence URLs a request may carry.
const MaxEvidenceImages = 10

// Validate checks the shape of a submission before any lookup.
func (s Submission) Validate() error {
	switch {
	case s.OrderID == "":
		return fmt.Errorf("%w: order_id is required", ErrInvalidInput)
	case s.RequesterID == "":
		return fmt.Errorf("%w: requester is required", ErrInvalidInput)
	case !s.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, s.Type)
	case !s.Reason.Valid():
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidInput, s.Reason)
	case len(s.EvidenceImages) > MaxEvidenceImages:
		return fmt.Errorf("%w: at most %d evidence images", ErrInvalidInput, MaxEvidenceImages)
	}

	if s.Type == TypeExchange {
		if s.LineItem == nil || s.LineItem.ProductID == "" {
			return fmt.Errorf("%w: exchange requires the line item being exchanged", ErrInvalidInput)
		}
		if s.DesiredReplacement == nil || s.DesiredReplacement.ProductID == "" {
			return fmt.Errorf("%w: exchange requires a desired replacement", ErrInvalidInput)
		}
		if s.LineItem.Equal(*s.DesiredReplacement) {
			return fmt.Errorf("%w: replacement must differ from the original item", ErrInvalidInput)
		}
		return nil
	}

	if s.DesiredReplacement != nil {
		return fmt.Errorf("%w: only exchanges take a replacement", ErrInvalidInput)
	}
	return nil
}
