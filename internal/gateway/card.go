package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// CardRequest is the order payload the card provider expects. Amounts are
// sent in the currency's minor unit.
type CardRequest struct {
	AmountMinor   int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
	CallbackURL   string `json:"callback_url"`
	CancelURL     string `json:"cancel_url"`
}

type cardOrderResponse struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

type cardStatusResponse struct {
	OrderID string `json:"order_id"`
	Status  int    `json:"status"`
}

type cardGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newCardGateway(baseURL, apiKey string, client *http.Client) *cardGateway {
	return &cardGateway{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (g *cardGateway) CreateOrder(ctx context.Context, req OrderRequest) (CreatedOrder, error) {
	payload := CardRequest{
		AmountMinor:   req.Amount * 100,
		Currency:      req.Currency,
		CustomerEmail: req.Email,
		CallbackURL:   req.ReturnURL,
		CancelURL:     req.FailURL,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CreatedOrder{}, fmt.Errorf("marshal card order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return CreatedOrder{}, fmt.Errorf("build card order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return CreatedOrder{}, fmt.Errorf("card order request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return CreatedOrder{}, fmt.Errorf("card gateway returned %d", resp.StatusCode)
	}

	var out cardOrderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return CreatedOrder{}, fmt.Errorf("decode card order response: %w", err)
	}
	if out.OrderID == "" || out.PaymentURL == "" {
		return CreatedOrder{}, fmt.Errorf("card gateway returned incomplete order")
	}
	return CreatedOrder{PaymentURL: out.PaymentURL, OrderRef: out.OrderID}, nil
}

func (g *cardGateway) GetOrderStatus(ctx context.Context, orderRef string) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/orders/"+orderRef, nil)
	if err != nil {
		return 0, fmt.Errorf("build card status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("card status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("card gateway returned %d", resp.StatusCode)
	}

	var out cardStatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode card status response: %w", err)
	}
	return out.Status, nil
}
