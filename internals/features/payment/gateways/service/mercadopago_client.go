package service

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"hnet_backend/internals/features/payment/gateways/dto"
)

const mercadoPagoAPIHost = "https://api.mercadopago.com"

// MercadoPagoPaymentFetcher is the boundary the webhook controller talks to:
// the notification only carries a payment id, the payment itself is fetched
// back from the provider.
type MercadoPagoPaymentFetcher interface {
	GetPayment(id string) (dto.MercadoPagoPayment, error)
}

// MercadoPagoClient fetches payment resources with the account access token.
type MercadoPagoClient struct {
	host        string
	accessToken string
	client      *http.Client
}

func NewMercadoPagoClient(accessToken string) (*MercadoPagoClient, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("the Mercado Pago access token must be configured")
	}

	return &MercadoPagoClient{
		host:        mercadoPagoAPIHost,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (c *MercadoPagoClient) GetPayment(id string) (dto.MercadoPagoPayment, error) {
	if strings.TrimSpace(id) == "" {
		return dto.MercadoPagoPayment{}, fmt.Errorf("the Mercado Pago payment id cannot be empty")
	}

	req, err := http.NewRequest(http.MethodGet, c.host+"/v1/payments/"+id, nil)
	if err != nil {
		return dto.MercadoPagoPayment{}, fmt.Errorf("could not prepare the Mercado Pago request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return dto.MercadoPagoPayment{}, fmt.Errorf("Mercado Pago did not answer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return dto.MercadoPagoPayment{}, fmt.Errorf("could not read the Mercado Pago answer: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dto.MercadoPagoPayment{}, fmt.Errorf("Mercado Pago rejected the request (HTTP %d)", resp.StatusCode)
	}

	var payment dto.MercadoPagoPayment
	if err := sonic.Unmarshal(raw, &payment); err != nil {
		return dto.MercadoPagoPayment{}, fmt.Errorf("Mercado Pago returned an invalid payment: %w", err)
	}

	return payment, nil
}
