// Package gateway talks to the external payment providers. Two providers are
// wired: a card gateway used for INR charges and a bank gateway for
// everything else. Both expose the same two calls; the payload shapes differ
// per provider and are kept as typed request variants rather than free-form
// maps.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// StatusSuccessful is the only gateway status code this system acts on.
// Every other code leaves a payment Pending.
const StatusSuccessful = 2

var ErrNoGateway = errors.New("no gateway configured for currency")

// OrderRequest is the provider-independent order description.
type OrderRequest struct {
	Amount    int64
	Currency  string
	ReturnURL string
	FailURL   string
	Email     string
}

// CreatedOrder is the result of a successful CreateOrder call.
type CreatedOrder struct {
	PaymentURL string
	OrderRef   string
}

// PaymentGateway is the outbound boundary to one payment provider.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (CreatedOrder, error)
	GetOrderStatus(ctx context.Context, orderRef string) (int, error)
}

// Config carries provider endpoints and secrets, injected at construction.
type Config struct {
	CardBaseURL string
	CardAPIKey  string
	BankBaseURL string
	BankUser    string
	BankPass    string
	Timeout     time.Duration
}

// Selector dispatches by currency to the configured provider.
type Selector struct {
	card PaymentGateway
	bank PaymentGateway
}

func NewSelector(cfg Config) *Selector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	s := &Selector{}
	if cfg.CardBaseURL != "" {
		s.card = newCardGateway(cfg.CardBaseURL, cfg.CardAPIKey, client)
	}
	if cfg.BankBaseURL != "" {
		s.bank = newBankGateway(cfg.BankBaseURL, cfg.BankUser, cfg.BankPass, client)
	}
	return s
}

// ForCurrency returns the provider responsible for a currency. INR charges go
// through the card provider, all other currencies through the bank provider.
func (s *Selector) ForCurrency(currency string) (PaymentGateway, error) {
	var gw PaymentGateway
	if currency == "INR" {
		gw = s.card
	} else {
		gw = s.bank
	}
	if gw == nil {
		return nil, ErrNoGateway
	}
	return gw, nil
}

// Confirmable reports whether a currency has a provider that can be polled
// for an authoritative order status.
func (s *Selector) Confirmable(currency string) bool {
	_, err := s.ForCurrency(currency)
	return err == nil
}
