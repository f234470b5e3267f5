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

const (
	webpayIntegrationHost = "https://webpay3gint.transbank.cl"
	webpayProductionHost  = "https://webpay3g.transbank.cl"

	webpayTransactionPath = "/rswebpaytransaction/api/webpay/v1.2/transactions/"
)

// WebpayCommitter is the boundary the return controller talks to: commit the
// transaction identified by token_ws and hand back the provider's answer.
type WebpayCommitter interface {
	CommitTransaction(token string) (dto.WebpayResponse, error)
}

// WebpayPlusService commits Webpay Plus transactions over the REST API.
type WebpayPlusService struct {
	host         string
	commerceCode string
	apiKey       string
	client       *http.Client
}

func NewWebpayPlusService(profile CompanyProfile) (*WebpayPlusService, error) {
	commerceCode := strings.TrimSpace(profile.CommerceCode)
	apiKey := strings.TrimSpace(profile.APIKey)

	if commerceCode == "" {
		return nil, fmt.Errorf("the Webpay Plus commerce code must be configured")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("the Webpay Plus API key must be configured")
	}

	host := webpayProductionHost
	switch strings.ToUpper(strings.TrimSpace(profile.Environment)) {
	case "INTEGRACION", "INTEGRATION", "TEST":
		host = webpayIntegrationHost
	}

	return &WebpayPlusService{
		host:         host,
		commerceCode: commerceCode,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: 45 * time.Second},
	}, nil
}

type webpayCommitResponse struct {
	BuyOrder           string  `json:"buy_order"`
	SessionID          string  `json:"session_id"`
	Amount             float64 `json:"amount"`
	Status             string  `json:"status"`
	ResponseCode       *int64  `json:"response_code"`
	AuthorizationCode  string  `json:"authorization_code"`
	PaymentTypeCode    string  `json:"payment_type_code"`
	InstallmentsNumber int64   `json:"installments_number"`
	TransactionDate    string  `json:"transaction_date"`
	CardDetail         struct {
		CardNumber string `json:"card_number"`
	} `json:"card_detail"`
}

func (s *WebpayPlusService) CommitTransaction(token string) (dto.WebpayResponse, error) {
	req, err := http.NewRequest(http.MethodPut, s.host+webpayTransactionPath+token, nil)
	if err != nil {
		return dto.WebpayResponse{}, fmt.Errorf("could not prepare the Webpay commit: %w", err)
	}
	req.Header.Set("Tbk-Api-Key-Id", s.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return dto.WebpayResponse{}, fmt.Errorf("Webpay did not answer the commit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return dto.WebpayResponse{}, fmt.Errorf("could not read the Webpay commit answer: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dto.WebpayResponse{}, fmt.Errorf("Webpay rejected the commit (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded webpayCommitResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return dto.WebpayResponse{}, fmt.Errorf("Webpay returned an invalid commit answer: %w", err)
	}

	return dto.WebpayResponse{
		Token:              token,
		ResponseCode:       decoded.ResponseCode,
		AuthorizationCode:  decoded.AuthorizationCode,
		PaymentTypeCode:    decoded.PaymentTypeCode,
		InstallmentsNumber: decoded.InstallmentsNumber,
		Amount:             int64(decoded.Amount),
		TransactionDate:    decoded.TransactionDate,
		CardNumber:         decoded.CardDetail.CardNumber,
		BuyOrder:           decoded.BuyOrder,
		SessionID:          decoded.SessionID,
	}, nil
}
