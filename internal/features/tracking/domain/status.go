package domain

import (
	"strings"

	orders "returns-desk/internal/features/orders/domain"
)

// Status is the canonical shipment status derived from carrier codes.
type Status string

const (
	StatusNotShipped Status = "not_shipped"
	StatusInTransit  Status = "in_transit"
	StatusDelivered  Status = "delivered"
	StatusReturning  Status = "returning"
	StatusReturned   Status = "returned"
	// StatusUnknown is assigned to carrier codes outside the mapping table.
	StatusUnknown Status = "unknown"
)

// Known reports whether s carries delivery information.
func (s Status) Known() bool {
	return s != StatusUnknown && s != ""
}

// DeliveryStatus converts s to the order vocabulary. ok is false for StatusUnknown.
func (s Status) DeliveryStatus() (status orders.DeliveryStatus, ok bool) {
	if !s.Known() {
		return "", false
	}
	status = orders.DeliveryStatus(s)
	return status, status.Valid()
}

// Settled reports whether the carrier will not move the shipment any further.
func (s Status) Settled() bool {
	return s == StatusDelivered || s == StatusReturned
}

// Mapping is the canonical reading of a raw carrier code.
type Mapping struct {
	Status      Status `json:"status"`
	Description string `json:"description"`
}

// ghnStatuses maps GHN codes. Keys are normalized with NormalizeCode.
var ghnStatuses = map[string]Mapping{
	"ready_to_pick":            {StatusNotShipped, "Waiting for pickup"},
	"picking":                  {StatusNotShipped, "Courier is picking up the parcel"},
	"money_collect_picking":    {StatusNotShipped, "Collecting payment at pickup"},
	"cancel":                   {StatusNotShipped, "Shipment cancelled"},
	"picked":                   {StatusInTransit, "Parcel picked up"},
	"storing":                  {StatusInTransit, "Parcel stored at hub"},
	"transporting":             {StatusInTransit, "Parcel in transit"},
	"sorting":                  {StatusInTransit, "Parcel being sorted"},
	"delivering":               {StatusInTransit, "Out for delivery"},
	"money_collect_delivering": {StatusInTransit, "Collecting payment at delivery"},
	"delivery_fail":            {StatusInTransit, "Delivery attempt failed"},
	"exception":                {StatusInTransit, "Shipment exception"},
	"damage":                   {StatusInTransit, "Parcel reported damaged"},
	"lost":                     {StatusInTransit, "Parcel reported lost"},
	"delivered":                {StatusDelivered, "Delivered"},
	"waiting_to_return":        {StatusReturning, "Waiting to return to sender"},
	"return":                   {StatusReturning, "Returning to sender"},
	"return_transporting":      {StatusReturning, "Return in transit"},
	"return_sorting":           {StatusReturning, "Return being sorted"},
	"returning":                {StatusReturning, "Returning to sender"},
	"return_fail":              {StatusReturning, "Return attempt failed"},
	"returned":                 {StatusReturned, "Returned to sender"},
}

// NormalizeCode lowercases a raw code and joins its words with underscores.
func NormalizeCode(raw string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_'
	}), "_")
}

// MapCarrierStatus maps a raw carrier code. It is total: unknown codes map to StatusUnknown.
func MapCarrierStatus(raw string) Mapping {
	if m, ok := ghnStatuses[NormalizeCode(raw)]; ok {
		return m
	}
	return Mapping{Status: StatusUnknown, Description: "Unrecognized carrier status"}
}
