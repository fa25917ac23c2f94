// Package notify is the fire-and-forget notification sink. Delivery failures
// are logged and never propagate: the order pipeline must not depend on mail.
package notify

import (
	"context"
	"log"

	"github.com/craftline/storefront/internal/order"
)

type Sender interface {
	OrderConfirmed(ctx context.Context, o *order.Order, items []order.Item) error
}

// LogSender stands in for the mail service boundary; the real sink is a
// template-rendering mailer owned by another team.
type LogSender struct{}

func (LogSender) OrderConfirmed(_ context.Context, o *order.Order, items []order.Item) error {
	log.Printf("[notify] order confirmed number=%s user=%s items=%d amount=%d %s",
		o.OrderNumber, o.UserID, len(items), o.AmountPaise, o.Currency)
	return nil
}
