package dto

import (
	"strings"

	"hnet_backend/internals/features/payment/transactions/store"
)

/* ===================== Canonical response ===================== */

// NormalizedResponse is the single canonical shape every gateway response is
// reduced to before it enters the settlement pipeline. Each gateway variant
// encodes its own success predicate when building this record; from here on
// nothing downstream needs to know which provider answered.
type NormalizedResponse struct {
	TransactionKey    string `json:"transaction_key"`
	Success           bool   `json:"success"`
	ResponseCode      string `json:"response_code"`
	AuthorizationCode string `json:"authorization_code"`
	PaymentTypeCode   string `json:"payment_type_code"`
	Installments      int64  `json:"installments"`
	Amount            int64  `json:"amount"`
	TransactionDate   string `json:"transaction_date"`
	MaskedCardNumber  string `json:"masked_card_number"`

	// Raw keeps the provider response for the audit trail. Card numbers must
	// already be masked before it lands here.
	Raw store.Document `json:"raw,omitempty"`
}

// Status mirrors the success flag as the stored status string.
func (n NormalizedResponse) Status() string {
	if n.Success {
		return "success"
	}
	return "error"
}

// Document is what gets appended to the record's gateway responses list.
func (n NormalizedResponse) Document(receivedAt int64) store.Document {
	return store.Document{
		"received_at": receivedAt,
		"success":     n.Success,
		"status":      n.Status(),
		"detail": store.Document{
			"response_code":      n.ResponseCode,
			"authorization_code": n.AuthorizationCode,
			"payment_type_code":  n.PaymentTypeCode,
			"shares_number":      n.Installments,
			"amount":             n.Amount,
			"transaction_date":   n.TransactionDate,
			"card_number":        n.MaskedCardNumber,
		},
		"raw": n.Raw,
	}
}

/* ===================== Card masking ===================== */

// MaskCardNumber keeps only the last four digits of a card or account number.
// Values of four digits or fewer are fully masked; non-digit input is left as
// received.
func MaskCardNumber(value string) string {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	cleaned := digits.String()
	if cleaned == "" {
		return value
	}

	if len(cleaned) <= 4 {
		return strings.Repeat("X", len(cleaned))
	}
	return strings.Repeat("X", len(cleaned)-4) + cleaned[len(cleaned)-4:]
}
