// Package shipping wraps the logistics provider: token auth, shipment
// creation and pincode serviceability.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/craftline/storefront/internal/order"
)

// ShipmentResult is what the provider returns for a created shipment.
type ShipmentResult struct {
	OrderID    string `json:"order_id"`
	ShipmentID string `json:"shipment_id"`
	TrackingID string `json:"awb_code"`
}

// Courier is one serviceability option for a destination pincode.
type Courier struct {
	Name          string  `json:"courier_name"`
	Rate          float64 `json:"rate"`
	EstimatedDays int     `json:"estimated_delivery_days"`
	CODAvailable  bool    `json:"cod"`
}

type Client struct {
	HTTP     *http.Client
	BaseURL  string
	Email    string
	Password string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(baseURL, email, password string) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 15 * time.Second},
		BaseURL:  baseURL,
		Email:    email,
		Password: password,
	}
}

// authToken returns a cached session token, logging in again when the cache
// is empty or expired.
func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}
	return c.loginLocked(ctx)
}

// invalidateToken drops the cached token after a 401 so the retry logs in fresh.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) loginLocked(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": c.Email, "password": c.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/external/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("shipping login: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shipping login: %s", res.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("shipping login: empty token")
	}
	c.token = out.Token
	// Provider tokens last 10 days; refresh well before that.
	c.tokenExp = time.Now().Add(24 * time.Hour)
	return c.token, nil
}

// do sends an authenticated request, retrying once with a fresh token when
// the provider answers 401.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.authToken(ctx)
		if err != nil {
			return nil, err
		}
		var body *bytes.Reader
		if payload != nil {
			b, _ := json.Marshal(payload)
			body = bytes.NewReader(b)
		} else {
			body = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		res, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode == http.StatusUnauthorized && attempt == 0 {
			res.Body.Close()
			c.invalidateToken()
			continue
		}
		return res, nil
	}
	return nil, fmt.Errorf("shipping: unauthorized after token refresh")
}

// CreateShipment books a shipment for a confirmed order. It never mutates
// order state itself; the caller records the outcome.
func (c *Client) CreateShipment(ctx context.Context, o *order.Order, items []order.Item) (*ShipmentResult, error) {
	lines := make([]map[string]any, 0, len(items))
	for _, it := range items {
		line := map[string]any{
			"sku":   it.ProductID,
			"units": it.Quantity,
			"price": it.Price,
		}
		if it.Size != nil {
			line["size"] = *it.Size
		}
		lines = append(lines, line)
	}
	payload := map[string]any{
		"order_id":          o.OrderNumber,
		"payment_method":    string(o.PaymentMethod),
		"sub_total":         float64(o.AmountPaise) / 100,
		"billing_name":      o.Address.Name,
		"billing_phone":     o.Address.Phone,
		"billing_address":   o.Address.Line1,
		"billing_address_2": o.Address.Line2,
		"billing_city":      o.Address.City,
		"billing_state":     o.Address.State,
		"billing_pincode":   o.Address.Pincode,
		"order_items":       lines,
	}

	res, err := c.do(ctx, http.MethodPost, "/v1/external/orders/create/adhoc", payload)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("shipping create: %s", res.Status)
	}
	var out ShipmentResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ShipmentID == "" {
		return nil, fmt.Errorf("shipping create: empty shipment id")
	}
	return &out, nil
}

// Serviceability lists couriers able to deliver to a pincode. Read-only.
func (c *Client) Serviceability(ctx context.Context, pincode string) ([]Courier, error) {
	res, err := c.do(ctx, http.MethodGet, "/v1/external/courier/serviceability?delivery_postcode="+pincode, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shipping serviceability: %s", res.Status)
	}
	var out struct {
		Data struct {
			AvailableCouriers []Courier `json:"available_courier_companies"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Data.AvailableCouriers, nil
}
