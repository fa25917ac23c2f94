// Package confirm owns the order-confirmation state machine: turning a
// captured payment into exactly one confirmed order, then best-effort
// shipment and notification.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/craftline/storefront/internal/checkout"
	"github.com/craftline/storefront/internal/gateway"
	"github.com/craftline/storefront/internal/notify"
	"github.com/craftline/storefront/internal/order"
	"github.com/craftline/storefront/internal/shipping"
)

var (
	// ErrUnknownGatewayOrder means the capture event references a gateway
	// order we hold no draft for and no order was ever created from.
	ErrUnknownGatewayOrder = errors.New("unknown gateway order")

	// ErrAmountMismatch is a tamper signal: the webhook reports a different
	// amount than the one reserved at gateway-order creation.
	ErrAmountMismatch = errors.New("webhook amount does not match gateway order")
)

// Shipper is the slice of the shipping client the confirmer needs.
type Shipper interface {
	CreateShipment(ctx context.Context, o *order.Order, items []order.Item) (*shipping.ShipmentResult, error)
}

type Service struct {
	orders   order.Repository
	drafts   *checkout.DraftStore
	shipper  Shipper
	notifier notify.Sender

	// async defers shipment and notification past the webhook response so the
	// gateway never waits on third-party latency. Tests run synchronously.
	async bool
}

func NewService(orders order.Repository, drafts *checkout.DraftStore, shipper Shipper, notifier notify.Sender, async bool) *Service {
	return &Service{orders: orders, drafts: drafts, shipper: shipper, notifier: notifier, async: async}
}

// HandleCaptured processes a verified payment.captured event. Delivering the
// same event any number of times yields exactly one order and one stock
// decrement; redeliveries are successful no-ops.
func (s *Service) HandleCaptured(ctx context.Context, pay gateway.PaymentEntity) error {
	existing, err := s.orders.GetByGatewayOrderID(ctx, pay.OrderID)
	if err == nil {
		if existing.PaymentStatus != order.PaymentCompleted {
			log.Printf("[confirm] gateway order %s exists with payment_status=%s, leaving untouched", pay.OrderID, existing.PaymentStatus)
		}
		return nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return err
	}

	draft, ok := s.drafts.Get(pay.OrderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGatewayOrder, pay.OrderID)
	}
	if draft.AmountPaise != pay.Amount || draft.Currency != pay.Currency {
		log.Printf("[confirm] SECURITY amount mismatch for gateway order %s: reserved %d %s, webhook reports %d %s",
			pay.OrderID, draft.AmountPaise, draft.Currency, pay.Amount, pay.Currency)
		return ErrAmountMismatch
	}

	gwOrderID := pay.OrderID
	gwPaymentID := pay.ID
	o := &order.Order{
		ID:               uuid.NewString(),
		OrderNumber:      order.NewOrderNumber(time.Now()),
		UserID:           draft.UserID,
		PaymentMethod:    order.MethodPrepaid,
		PaymentStatus:    order.PaymentCompleted,
		Status:           order.StatusConfirmed,
		AmountPaise:      draft.AmountPaise,
		Currency:         draft.Currency,
		GatewayOrderID:   &gwOrderID,
		GatewayPaymentID: &gwPaymentID,
		Address:          draft.Address,
		Notes:            draft.Notes,
	}
	items := make([]order.Item, len(draft.Items))
	copy(items, draft.Items)
	for i := range items {
		items[i].OrderID = o.ID
	}

	if err := s.orders.CreateConfirmed(ctx, o, items); err != nil {
		if errors.Is(err, order.ErrDuplicate) {
			// A concurrent delivery won the insert race.
			return nil
		}
		return err
	}
	s.drafts.Delete(pay.OrderID)
	log.Printf("[confirm] order %s confirmed for gateway order %s", o.OrderNumber, pay.OrderID)

	s.followUp(o, items)
	return nil
}

// HandleFailed records a failed payment against its draft. Unknown gateway
// orders are a no-op: there is nothing to mark.
func (s *Service) HandleFailed(_ context.Context, pay gateway.PaymentEntity) error {
	if s.drafts.MarkFailed(pay.OrderID) {
		log.Printf("[confirm] payment failed for gateway order %s", pay.OrderID)
	}
	return nil
}

func (s *Service) followUp(o *order.Order, items []order.Item) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.RequestShipment(ctx, o, items); err != nil {
			log.Printf("[confirm] shipment for order %s deferred to reconciliation: %v", o.OrderNumber, err)
		}
		if err := s.notifier.OrderConfirmed(ctx, o, items); err != nil {
			log.Printf("[confirm] notification for order %s failed: %v", o.OrderNumber, err)
		}
	}
	if s.async {
		go run()
	} else {
		run()
	}
}

// RequestShipment books a shipment for a confirmed order unless one already
// exists. Failure marks the order FAILED for the reconciliation worker and
// never touches payment or order status.
func (s *Service) RequestShipment(ctx context.Context, o *order.Order, items []order.Item) error {
	if o.ShipmentStatus != nil && *o.ShipmentStatus == order.ShipmentCreated {
		return nil
	}
	res, err := s.shipper.CreateShipment(ctx, o, items)
	if err != nil {
		if markErr := s.orders.MarkShipmentFailed(ctx, o.ID, "shipment creation failed: "+err.Error()); markErr != nil {
			log.Printf("[confirm] could not record shipment failure for order %s: %v", o.OrderNumber, markErr)
		}
		return err
	}
	return s.orders.SetShipment(ctx, o.ID, res.ShipmentID, res.TrackingID)
}
