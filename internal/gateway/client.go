// Package gateway wraps the payment provider: order creation, status reads
// and webhook signature verification.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GatewayOrder is the provider's reservation of a payable amount. It is not
// persisted locally beyond its id.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// Status is one of "created", "attempted", "paid".
	Status string `json:"status"`
}

const StatusPaid = "paid"

type Client struct {
	HTTP      *http.Client
	BaseURL   string
	KeyID     string
	KeySecret string
}

func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
	}
}

// CreateOrder reserves amountPaise with the gateway and returns the gateway
// order id the webhook will later report against.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*GatewayOrder, error) {
	body, _ := json.Marshal(map[string]any{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway create order: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway create order: %s", res.Status)
	}
	var out GatewayOrder
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("gateway create order: empty id in response")
	}
	return &out, nil
}

// FetchOrderPayment reads the captured payment of a gateway order, if any.
// The reconciliation worker uses it to confirm orders whose webhook never
// arrived.
func (c *Client) FetchOrderPayment(ctx context.Context, orderID string) (*PaymentEntity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/orders/"+orderID+"/payments", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway fetch payments: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway fetch payments: %s", res.Status)
	}
	var out struct {
		Items []PaymentEntity `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	for i := range out.Items {
		if out.Items[i].Status == "captured" {
			return &out.Items[i], nil
		}
	}
	return nil, nil
}

// FetchOrder reads the current status of a gateway order. Used by the
// reconciliation worker when the webhook never arrived.
func (c *Client) FetchOrder(ctx context.Context, id string) (*GatewayOrder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/orders/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway fetch order: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway fetch order: %s", res.Status)
	}
	var out GatewayOrder
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
