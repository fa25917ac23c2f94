package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/craftline/storefront/internal/checkout"
	"github.com/craftline/storefront/internal/confirm"
	"github.com/craftline/storefront/internal/gateway"
	"github.com/craftline/storefront/internal/httpx"
	"github.com/craftline/storefront/internal/order"
	"github.com/craftline/storefront/internal/product"
	"github.com/craftline/storefront/internal/shipping"
	"github.com/craftline/storefront/internal/worker"
)

// checkoutHandler creates a COD order or reserves a prepaid gateway order.
//
//	@Summary  Checkout the cart
//	@Accept   json
//	@Produce  json
//	@Param    payload body order.CheckoutRequest true "cart"
//	@Success  201 {object} map[string]any
//	@Router   /api/orders [post]
func checkoutHandler(svc *checkout.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(httpx.UserKey)
		var req order.CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		res, err := svc.Checkout(c.Request.Context(), uid, req)
		if err != nil {
			switch {
			case errors.Is(err, checkout.ErrValidation):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrAddressNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, order.ErrInsufficientStock):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				log.Printf("[http] checkout failed: %v", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "checkout failed"})
			}
			return
		}
		if res.Pending != nil {
			c.JSON(http.StatusOK, res.Pending)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order": res.Order, "items": res.Items})
	}
}

// webhookHandler receives payment events from the gateway. The signature is
// checked over the raw body before anything else happens; response codes
// deliberately steer the gateway's retry behaviour (4xx: don't retry,
// 5xx: retry later).
//
//	@Summary  Payment gateway webhook
//	@Accept   json
//	@Success  200 {object} map[string]string
//	@Router   /webhook [post]
// maxWebhookBody caps what an unauthenticated caller can make us buffer.
// Real gateway payloads are a few hundred bytes.
const maxWebhookBody = 1 << 20

func webhookHandler(verifier *gateway.Verifier, confirmer *confirm.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if err := verifier.Verify(raw, c.GetHeader(gateway.SignatureHeader)); err != nil {
			log.Printf("[webhook] SECURITY rejected delivery from %s: %v", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		evt, err := gateway.ParseEvent(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		switch evt.Event {
		case gateway.EventPaymentCaptured:
			err = confirmer.HandleCaptured(c.Request.Context(), evt.Payload.Payment.Entity)
		case gateway.EventPaymentFailed:
			err = confirmer.HandleFailed(c.Request.Context(), evt.Payload.Payment.Entity)
		default:
			// Unknown event types are acknowledged so the gateway stops resending.
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		if err != nil {
			switch {
			case errors.Is(err, confirm.ErrUnknownGatewayOrder):
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway order"})
			case errors.Is(err, confirm.ErrAmountMismatch):
				c.JSON(http.StatusBadRequest, gin.H{"error": "amount mismatch"})
			default:
				log.Printf("[webhook] processing failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// paymentReader is the slice of the gateway client the browser-return path
// needs.
type paymentReader interface {
	FetchOrderPayment(ctx context.Context, orderID string) (*gateway.PaymentEntity, error)
}

// confirmPaymentHandler serves the browser's return from the gateway. The
// redirect races the webhook; both run the same idempotent confirmation, so
// whichever lands second is a no-op.
//
//	@Summary  Confirm a prepaid payment after gateway redirect
//	@Accept   json
//	@Produce  json
//	@Success  200 {object} map[string]any
//	@Router   /api/orders/payment/confirm [post]
func confirmPaymentHandler(gw paymentReader, confirmer *confirm.Service, repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(httpx.UserKey)
		var req struct {
			GatewayOrderID string `json:"gateway_order_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.GatewayOrderID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "gateway_order_id required"})
			return
		}

		ctx := c.Request.Context()
		if _, err := repo.GetByGatewayOrderID(ctx, req.GatewayOrderID); err != nil {
			if !errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
				return
			}
			// The webhook has not landed yet; ask the gateway directly.
			pay, err := gw.FetchOrderPayment(ctx, req.GatewayOrderID)
			if err != nil {
				log.Printf("[http] payment confirm for %s: %v", req.GatewayOrderID, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable"})
				return
			}
			if pay == nil {
				c.JSON(http.StatusAccepted, gin.H{"gatewayOrderId": req.GatewayOrderID, "pendingPayment": true})
				return
			}
			if err := confirmer.HandleCaptured(ctx, *pay); err != nil {
				switch {
				case errors.Is(err, confirm.ErrUnknownGatewayOrder):
					c.JSON(http.StatusNotFound, gin.H{"error": "unknown gateway order"})
				case errors.Is(err, confirm.ErrAmountMismatch):
					c.JSON(http.StatusBadRequest, gin.H{"error": "amount mismatch"})
				default:
					log.Printf("[http] payment confirm for %s: %v", req.GatewayOrderID, err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation failed"})
				}
				return
			}
		}

		o, err := repo.GetByGatewayOrderID(ctx, req.GatewayOrderID)
		if err != nil || o.UserID != uid {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		items, err := repo.GetItems(ctx, o.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

// serviceabilityHandler lists couriers able to deliver to a pincode.
//
//	@Summary  Courier serviceability for a pincode
//	@Produce  json
//	@Success  200 {object} map[string]any
//	@Router   /api/orders/shipping/serviceability/{pincode} [get]
func serviceabilityHandler(ship *shipping.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		pincode := c.Param("pincode")
		if len(pincode) != 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pincode"})
			return
		}
		couriers, err := ship.Serviceability(c.Request.Context(), pincode)
		if err != nil {
			log.Printf("[http] serviceability failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "serviceability check failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pincode": pincode, "couriers": couriers})
	}
}

func listOrdersHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(httpx.UserKey)
		limit := intQuery(c, "limit", 20)
		offset := intQuery(c, "offset", 0)
		orders, err := repo.ListByUser(c.Request.Context(), uid, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		if orders == nil {
			orders = []order.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders, "limit": limit, "offset": offset})
	}
}

func getOrderHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(httpx.UserKey)
		o, items, err := repo.GetByNumber(c.Request.Context(), c.Param("number"))
		if err != nil || o.UserID != uid {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

// updateOrderStatusHandler drives the monotonic status progression. CANCELLED
// restocks the order's items.
func updateOrderStatusHandler(repo order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil || !order.ValidStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		id := c.Param("id")
		o, _, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		if !order.CanTransition(o.Status, req.Status) {
			c.JSON(http.StatusConflict, gin.H{"error": "invalid transition"})
			return
		}
		if req.Status == order.StatusConfirmed &&
			o.PaymentMethod == order.MethodPrepaid && o.PaymentStatus != order.PaymentCompleted {
			c.JSON(http.StatusConflict, gin.H{"error": "payment not completed"})
			return
		}

		if req.Status == order.StatusCancelled {
			err = repo.Cancel(c.Request.Context(), id)
		} else {
			err = repo.UpdateStatus(c.Request.Context(), id, o.Status, req.Status)
		}
		if err != nil {
			if errors.Is(err, order.ErrBadTransition) {
				c.JSON(http.StatusConflict, gin.H{"error": "invalid transition"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
		o.Status = req.Status
		c.JSON(http.StatusOK, gin.H{"order": o})
	}
}

// reconcileHandler triggers one reconciliation pass on demand. The scheduled
// loop makes this optional for correctness; operators use it to repair a
// stuck order without waiting for the next tick.
func reconcileHandler(rec *worker.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := rec.RunOnce(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	if s := c.Query(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
