package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/craftline/storefront/docs"
	"github.com/craftline/storefront/internal/checkout"
	"github.com/craftline/storefront/internal/config"
	"github.com/craftline/storefront/internal/confirm"
	"github.com/craftline/storefront/internal/gateway"
	"github.com/craftline/storefront/internal/httpx"
	"github.com/craftline/storefront/internal/notify"
	"github.com/craftline/storefront/internal/order"
	"github.com/craftline/storefront/internal/product"
	"github.com/craftline/storefront/internal/shipping"
	"github.com/craftline/storefront/internal/worker"
)

// @title        Storefront Checkout API
// @version      1.0
// @description  Checkout-to-fulfillment pipeline: cart to paid, confirmed, shippable order.
// @BasePath     /
func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("pgx pool: %v", err)
	}
	defer pool.Close()

	orders := order.NewPGRepo(pool)
	products := product.NewPGRepo(pool)
	addresses := order.NewPGAddressBook(pool)

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)
	verifier := gateway.NewVerifier(cfg.GatewayWebhookSecret)
	ship := shipping.NewClient(cfg.ShippingBaseURL, cfg.ShippingEmail, cfg.ShippingPassword)

	drafts := checkout.NewDraftStore(24 * time.Hour)
	co := checkout.NewService(orders, products, addresses, gw, drafts)
	confirmer := confirm.NewService(orders, drafts, ship, notify.LogSender{}, true)
	rec := worker.NewReconciler(orders, drafts, gw, confirmer, cfg.ReconcileInterval, cfg.PendingThreshold)
	go rec.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), cors.Default())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// One webhook secret; the legacy path aliases the same handler.
	wh := webhookHandler(verifier, confirmer)
	r.POST("/webhook", wh)
	r.POST("/api/orders/webhook", wh)
	r.POST("/internal/reconcile", reconcileHandler(rec))

	api := r.Group("/api", httpx.Auth(cfg.JWTSecret))
	api.POST("/orders", checkoutHandler(co))
	api.POST("/orders/payment/confirm", confirmPaymentHandler(gw, confirmer, orders))
	api.GET("/orders", listOrdersHandler(orders))
	api.GET("/orders/number/:number", getOrderHandler(orders))
	api.GET("/orders/shipping/serviceability/:pincode", serviceabilityHandler(ship))

	admin := r.Group("/api/admin", httpx.Auth(cfg.JWTSecret), httpx.AdminOnly())
	admin.PUT("/orders/:id/status", updateOrderStatusHandler(orders))

	log.Printf("checkout-service listening on %s", cfg.HTTPAddr)
	log.Fatal(r.Run(cfg.HTTPAddr))
}
