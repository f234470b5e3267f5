package service

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"hnet_backend/internals/features/payment/transactions/store"
)

/* ===================== Payment intent (BancoEstado) ===================== */

// IntentItem is one line of the payment intent sent to BancoEstado.
type IntentItem struct {
	Nombre string `json:"nombre"`
	Valor  int64  `json:"valor"`
}

// Intent is the provider's answer: the raw body is kept for the audit trail.
type Intent struct {
	Raw  string
	Data store.Document
}

// BancoEstadoIntentClient is the boundary the pay controller talks to.
type BancoEstadoIntentClient interface {
	CreateIntent(orderID string, total int64, items []IntentItem) (*Intent, error)
}

// BancoEstadoPaymentService creates payment intents against the BancoEstado
// button API.
type BancoEstadoPaymentService struct {
	apiURL      string
	apiKey      string
	commerce    string
	redirectURL string
	statusURL   string
	client      *http.Client
}

func NewBancoEstadoPaymentService(apiURL, apiKey, commerce, redirectURL, statusURL string) (*BancoEstadoPaymentService, error) {
	if apiURL == "" || apiKey == "" {
		return nil, fmt.Errorf("the BancoEstado URL and API key must be configured")
	}
	if redirectURL == "" || statusURL == "" {
		return nil, fmt.Errorf("the BancoEstado redirect and notification URLs must be configured")
	}
	if commerce == "" {
		return nil, fmt.Errorf("the BancoEstado commerce id must be configured")
	}

	return &BancoEstadoPaymentService{
		apiURL:      apiURL,
		apiKey:      apiKey,
		commerce:    commerce,
		redirectURL: redirectURL,
		statusURL:   statusURL,
		client:      &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (s *BancoEstadoPaymentService) CreateIntent(orderID string, total int64, items []IntentItem) (*Intent, error) {
	if orderID == "" {
		return nil, fmt.Errorf("the BancoEstado order id cannot be empty")
	}
	if total <= 0 {
		return nil, fmt.Errorf("the BancoEstado order total must be greater than zero")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("BancoEstado requires at least one item to create a payment intent")
	}

	body, err := sonic.Marshal(map[string]any{
		"comercio":      s.commerce,
		"oc":            orderID,
		"total":         total,
		"url_redirect":  s.redirectURL,
		"url_respuesta": s.statusURL,
		"items":         items,
	})
	if err != nil {
		return nil, fmt.Errorf("could not prepare the BancoEstado request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not prepare the BancoEstado request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("BancoEstado did not answer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read the BancoEstado answer: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("BancoEstado rejected the request (HTTP %d)", resp.StatusCode)
	}

	var decoded store.Document
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("BancoEstado returned an invalid intent answer: %w", err)
	}

	return &Intent{Raw: string(raw), Data: decoded}, nil
}
