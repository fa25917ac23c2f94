package order

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	MethodCOD     PaymentMethod = "COD"
	MethodPrepaid PaymentMethod = "PREPAID"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

type ShipmentStatus string

const (
	ShipmentCreated ShipmentStatus = "ORDER_CREATED"
	ShipmentFailed  ShipmentStatus = "FAILED"
)

// ShippingAddress is a snapshot of the user's address at order time.
// Later edits to the address book never change a placed order.
type ShippingAddress struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`

	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Status        Status        `json:"status"`

	// AmountPaise is the order total in the currency's minor unit.
	AmountPaise int64  `json:"amount_paise"`
	Currency    string `json:"currency"`

	GatewayOrderID   *string         `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty"`
	ShipmentOrderID  *string         `json:"shipment_order_id,omitempty"`
	TrackingID       *string         `json:"tracking_id,omitempty"`
	ShipmentStatus   *ShipmentStatus `json:"shipment_status,omitempty"`

	Address ShippingAddress `json:"address"`
	Notes   string          `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Item struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Size      *string `json:"size,omitempty"`
	// Price is the unit price at order time (NUMERIC -> string).
	Price      string `json:"price"`
	PricePaise int64  `json:"price_paise"`
}

// CanTransition reports whether an order status change is allowed.
// Transitions are monotonic along PENDING -> CONFIRMED -> SHIPPED -> DELIVERED;
// CANCELLED is reachable from any non-terminal state.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusShipped:
		return from == StatusConfirmed
	case StatusDelivered:
		return from == StatusShipped
	case StatusCancelled:
		return from != StatusDelivered && from != StatusCancelled
	default:
		return false
	}
}

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

const numberAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewOrderNumber builds a short human-readable order code. The timestamp
// prefix keeps numbers roughly increasing; the random suffix avoids collisions
// across instances.
func NewOrderNumber(now time.Time) string {
	var b strings.Builder
	b.WriteString("OD")
	ts := now.Unix()
	for i := 6; i >= 0; i-- {
		b.WriteByte(numberAlphabet[(ts>>(5*uint(i)))&31])
	}
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	for _, s := range suffix {
		b.WriteByte(numberAlphabet[int(s)%len(numberAlphabet)])
	}
	return b.String()
}

// AppendNote formats one audit line for the order's append-only notes trail.
func AppendNote(existing, note string, now time.Time) string {
	line := fmt.Sprintf("[%s] %s", now.UTC().Format(time.RFC3339), note)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
