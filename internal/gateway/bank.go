package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// BankRequest is the order payload the bank provider expects; it is sent as
// form parameters, not JSON, and amounts stay in major units.
type BankRequest struct {
	Amount    int64
	Currency  string
	ReturnURL string
	FailURL   string
	Email     string
}

type bankOrderResponse struct {
	OrderRef string `json:"orderRef"`
	FormURL  string `json:"formUrl"`
	ErrorMsg string `json:"errorMessage,omitempty"`
}

type bankStatusResponse struct {
	OrderStatus int    `json:"orderStatus"`
	ErrorMsg    string `json:"errorMessage,omitempty"`
}

type bankGateway struct {
	baseURL string
	user    string
	pass    string
	client  *http.Client
}

func newBankGateway(baseURL, user, pass string, client *http.Client) *bankGateway {
	return &bankGateway{baseURL: baseURL, user: user, pass: pass, client: client}
}

func (g *bankGateway) CreateOrder(ctx context.Context, req OrderRequest) (CreatedOrder, error) {
	payload := BankRequest{
		Amount:    req.Amount,
		Currency:  req.Currency,
		ReturnURL: req.ReturnURL,
		FailURL:   req.FailURL,
		Email:     req.Email,
	}

	form := url.Values{}
	form.Set("userName", g.user)
	form.Set("password", g.pass)
	form.Set("amount", strconv.FormatInt(payload.Amount, 10))
	form.Set("currency", payload.Currency)
	form.Set("returnUrl", payload.ReturnURL)
	form.Set("failUrl", payload.FailURL)
	form.Set("email", payload.Email)

	out := bankOrderResponse{}
	if err := g.call(ctx, "/register.do", form, &out); err != nil {
		return CreatedOrder{}, err
	}
	if out.ErrorMsg != "" {
		return CreatedOrder{}, fmt.Errorf("bank gateway: %s", out.ErrorMsg)
	}
	if out.OrderRef == "" || out.FormURL == "" {
		return CreatedOrder{}, fmt.Errorf("bank gateway returned incomplete order")
	}
	return CreatedOrder{PaymentURL: out.FormURL, OrderRef: out.OrderRef}, nil
}

func (g *bankGateway) GetOrderStatus(ctx context.Context, orderRef string) (int, error) {
	form := url.Values{}
	form.Set("userName", g.user)
	form.Set("password", g.pass)
	form.Set("orderId", orderRef)

	out := bankStatusResponse{}
	if err := g.call(ctx, "/getOrderStatus.do", form, &out); err != nil {
		return 0, err
	}
	if out.ErrorMsg != "" {
		return 0, fmt.Errorf("bank gateway: %s", out.ErrorMsg)
	}
	return out.OrderStatus, nil
}

func (g *bankGateway) call(ctx context.Context, path string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build bank request: %w", err)
	}
	httpReq.URL.RawQuery = form.Encode()

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("bank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bank gateway returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(out); err != nil {
		return fmt.Errorf("decode bank response: %w", err)
	}
	return nil
}
