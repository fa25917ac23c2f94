package order

// CheckoutItem is one cart line in a checkout request.
// swagger:model CheckoutItem
type CheckoutItem struct {
	ProductID string  `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int     `json:"quantity"   example:"2"`
	Size      *string `json:"size,omitempty" example:"M"`
}

// CheckoutRequest is the payload of POST /api/orders. Exactly one of
// address_id and address must be set.
// swagger:model CheckoutRequest
type CheckoutRequest struct {
	AddressID     string           `json:"address_id,omitempty"`
	Address       *ShippingAddress `json:"address,omitempty"`
	Items         []CheckoutItem   `json:"items"`
	PaymentMethod PaymentMethod    `json:"payment_method" example:"PREPAID"`
	Notes         string           `json:"notes,omitempty"`
}

// PendingPaymentResponse is returned for PREPAID checkouts: the gateway order
// exists but no local order does until the webhook confirms capture.
// swagger:model PendingPaymentResponse
type PendingPaymentResponse struct {
	GatewayOrderID string `json:"gatewayOrderId" example:"gw_abc123"`
	Amount         int64  `json:"amount" example:"99900"`
	Currency       string `json:"currency" example:"INR"`
	PendingPayment bool   `json:"pendingPayment" example:"true"`
}

// UpdateStatusRequest is the payload of PUT /api/orders/:id/status.
// swagger:model UpdateStatusRequest
type UpdateStatusRequest struct {
	Status Status `json:"status" example:"SHIPPED"`
}
