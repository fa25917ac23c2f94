// Package checkout is the synchronous half of the order pipeline: it prices
// the cart server-side, checks stock, and either creates a COD order or
// reserves a gateway order for prepaid payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftline/storefront/internal/gateway"
	"github.com/craftline/storefront/internal/order"
	"github.com/craftline/storefront/internal/product"
)

const DefaultCurrency = "INR"

var (
	ErrValidation = errors.New("invalid checkout request")
)

// Gateway is the slice of the payment client the orchestrator needs.
type Gateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*gateway.GatewayOrder, error)
}

type Service struct {
	orders    order.Repository
	products  product.Repository
	addresses order.AddressBook
	gateway   Gateway
	drafts    *DraftStore
}

func NewService(orders order.Repository, products product.Repository, addresses order.AddressBook, gw Gateway, drafts *DraftStore) *Service {
	return &Service{orders: orders, products: products, addresses: addresses, gateway: gw, drafts: drafts}
}

// Result is either a created COD order or a pending prepaid payment.
type Result struct {
	Order   *order.Order
	Items   []order.Item
	Pending *order.PendingPaymentResponse
}

// Checkout validates the cart, computes the total from current prices (the
// client-supplied total, if any, is ignored) and branches on payment method.
// The stock check here is advisory; the decrement inside order creation is
// the authoritative one.
func (s *Service) Checkout(ctx context.Context, userID string, req order.CheckoutRequest) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrValidation)
	}
	if req.PaymentMethod != order.MethodCOD && req.PaymentMethod != order.MethodPrepaid {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}

	addr, err := s.resolveAddress(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	items, totalPaise, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	if req.PaymentMethod == order.MethodCOD {
		return s.checkoutCOD(ctx, userID, *addr, items, totalPaise, req.Notes)
	}
	return s.checkoutPrepaid(ctx, userID, *addr, items, totalPaise, req.Notes)
}

func (s *Service) resolveAddress(ctx context.Context, userID string, req order.CheckoutRequest) (*order.ShippingAddress, error) {
	if req.Address != nil {
		a := *req.Address
		if a.Name == "" || a.Phone == "" || a.Line1 == "" || a.Pincode == "" {
			return nil, fmt.Errorf("%w: incomplete address", ErrValidation)
		}
		return &a, nil
	}
	if req.AddressID == "" {
		return nil, fmt.Errorf("%w: address required", ErrValidation)
	}
	return s.addresses.Get(ctx, userID, req.AddressID)
}

// priceItems loads each product, runs the advisory stock check and prices the
// line at the current catalog price.
func (s *Service) priceItems(ctx context.Context, reqItems []order.CheckoutItem) ([]order.Item, int64, error) {
	items := make([]order.Item, 0, len(reqItems))
	total := decimal.Zero
	for _, ri := range reqItems {
		if ri.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		p, err := s.products.GetByID(ctx, ri.ProductID)
		if err != nil {
			return nil, 0, err
		}

		available := p.Stock
		if ri.Size != nil {
			sized, err := s.products.SizeStock(ctx, ri.ProductID, *ri.Size)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return nil, 0, fmt.Errorf("%w: size %q not available for %s", ErrValidation, *ri.Size, p.Name)
				}
				return nil, 0, err
			}
			available = sized
		}
		if available < ri.Quantity {
			return nil, 0, fmt.Errorf("%w: %s", order.ErrInsufficientStock, p.Name)
		}

		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, 0, fmt.Errorf("bad price for product %s: %w", p.ID, err)
		}
		line := price.Mul(decimal.NewFromInt(int64(ri.Quantity)))
		total = total.Add(line)

		items = append(items, order.Item{
			ID:         uuid.NewString(),
			ProductID:  ri.ProductID,
			Quantity:   ri.Quantity,
			Size:       ri.Size,
			Price:      price.StringFixed(2),
			PricePaise: price.Mul(decimal.NewFromInt(100)).IntPart(),
		})
	}
	return items, total.Mul(decimal.NewFromInt(100)).IntPart(), nil
}

// checkoutCOD inserts the order immediately: COD has no gateway leg, so the
// order starts PENDING/PENDING and stock is taken right away.
func (s *Service) checkoutCOD(ctx context.Context, userID string, addr order.ShippingAddress, items []order.Item, totalPaise int64, notes string) (*Result, error) {
	o := &order.Order{
		ID:            uuid.NewString(),
		OrderNumber:   order.NewOrderNumber(time.Now()),
		UserID:        userID,
		PaymentMethod: order.MethodCOD,
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusPending,
		AmountPaise:   totalPaise,
		Currency:      DefaultCurrency,
		Address:       addr,
		Notes:         notes,
	}
	for i := range items {
		items[i].OrderID = o.ID
	}
	if err := s.orders.CreatePending(ctx, o, items); err != nil {
		return nil, err
	}
	return &Result{Order: o, Items: items}, nil
}

// checkoutPrepaid reserves the amount with the gateway and parks the cart as
// a draft. Deliberately no order row yet: unpaid gateway orders expire on
// their own and never clutter the order table.
func (s *Service) checkoutPrepaid(ctx context.Context, userID string, addr order.ShippingAddress, items []order.Item, totalPaise int64, notes string) (*Result, error) {
	gwo, err := s.gateway.CreateOrder(ctx, totalPaise, DefaultCurrency, uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.drafts.Put(&Draft{
		GatewayOrderID: gwo.ID,
		UserID:         userID,
		AmountPaise:    totalPaise,
		Currency:       DefaultCurrency,
		Items:          items,
		Address:        addr,
		Notes:          notes,
	})
	return &Result{Pending: &order.PendingPaymentResponse{
		GatewayOrderID: gwo.ID,
		Amount:         totalPaise,
		Currency:       DefaultCurrency,
		PendingPayment: true,
	}}, nil
}
