// Package worker is the backstop for every failure mode in the confirmation
// path: missed webhooks and failed shipments are replayed here.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/craftline/storefront/internal/checkout"
	"github.com/craftline/storefront/internal/confirm"
	"github.com/craftline/storefront/internal/gateway"
	"github.com/craftline/storefront/internal/order"
)

// GatewayReader is the read-only slice of the payment client the worker uses
// to learn the true state of a gateway order.
type GatewayReader interface {
	FetchOrder(ctx context.Context, id string) (*gateway.GatewayOrder, error)
	FetchOrderPayment(ctx context.Context, orderID string) (*gateway.PaymentEntity, error)
}

type Reconciler struct {
	orders    order.Repository
	drafts    *checkout.DraftStore
	gateway   GatewayReader
	confirmer *confirm.Service

	interval         time.Duration
	pendingThreshold time.Duration
}

func NewReconciler(orders order.Repository, drafts *checkout.DraftStore, gw GatewayReader, confirmer *confirm.Service, interval, pendingThreshold time.Duration) *Reconciler {
	return &Reconciler{
		orders:           orders,
		drafts:           drafts,
		gateway:          gw,
		confirmer:        confirmer,
		interval:         interval,
		pendingThreshold: pendingThreshold,
	}
}

// Run loops until the context is cancelled. Every pass is idempotent, so the
// loop is safe to run alongside live webhook traffic and other instances.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[reconcile] worker started interval=%s threshold=%s", r.interval, r.pendingThreshold)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[reconcile] worker stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				log.Printf("[reconcile] pass failed: %v", err)
			}
		}
	}
}

// RunOnce executes one reconciliation pass: retry missing shipments, then
// re-query the gateway for drafts whose webhook never arrived.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if err := r.retryShipments(ctx); err != nil {
		return err
	}
	r.reconcileDrafts(ctx)
	return nil
}

func (r *Reconciler) retryShipments(ctx context.Context) error {
	stuck, err := r.orders.FindMissingShipments(ctx, 50)
	if err != nil {
		return err
	}
	for i := range stuck {
		o := stuck[i]
		items, err := r.orders.GetItems(ctx, o.ID)
		if err != nil {
			log.Printf("[reconcile] items for order %s: %v", o.OrderNumber, err)
			continue
		}
		if err := r.confirmer.RequestShipment(ctx, &o, items); err != nil {
			log.Printf("[reconcile] shipment retry for order %s: %v", o.OrderNumber, err)
			continue
		}
		log.Printf("[reconcile] shipment created for order %s", o.OrderNumber)
	}
	return nil
}

// reconcileDrafts handles the webhook-never-arrived case: ask the gateway for
// the truth and run the same idempotent confirmation path a webhook would.
func (r *Reconciler) reconcileDrafts(ctx context.Context) {
	for _, d := range r.drafts.Stale(r.pendingThreshold) {
		gwo, err := r.gateway.FetchOrder(ctx, d.GatewayOrderID)
		if err != nil {
			log.Printf("[reconcile] gateway order %s status check: %v", d.GatewayOrderID, err)
			continue
		}
		if gwo.Status != gateway.StatusPaid {
			log.Printf("[reconcile] gateway order %s still %s, flagging for manual review", d.GatewayOrderID, gwo.Status)
			continue
		}
		pay, err := r.gateway.FetchOrderPayment(ctx, d.GatewayOrderID)
		if err != nil {
			log.Printf("[reconcile] gateway order %s payments: %v", d.GatewayOrderID, err)
			continue
		}
		if pay == nil {
			log.Printf("[reconcile] gateway order %s paid but no captured payment listed", d.GatewayOrderID)
			continue
		}
		if err := r.confirmer.HandleCaptured(ctx, *pay); err != nil {
			log.Printf("[reconcile] confirm for gateway order %s: %v", d.GatewayOrderID, err)
			continue
		}
		log.Printf("[reconcile] recovered ghost order for gateway order %s", d.GatewayOrderID)
	}
}
