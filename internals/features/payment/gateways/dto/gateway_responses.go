package dto

import (
	"fmt"
	"strings"

	"hnet_backend/internals/features/payment/transactions/store"
)

// Each provider answers with its own shape and its own idea of "approved".
// These variants are the only place that knows each provider's code
// semantics; everything else consumes the canonical NormalizedResponse.

/* ===================== Webpay (Transbank) ===================== */

// WebpayResponse is the commit result of a Webpay Plus transaction.
type WebpayResponse struct {
	Token              string
	ResponseCode       *int64
	AuthorizationCode  string
	PaymentTypeCode    string
	InstallmentsNumber int64
	Amount             int64
	TransactionDate    string
	CardNumber         string
	BuyOrder           string
	SessionID          string
}

// Successful reports approval: Webpay uses the numeric code 0.
func (r WebpayResponse) Successful() bool {
	return r.ResponseCode != nil && *r.ResponseCode == 0
}

func (r WebpayResponse) Normalize() NormalizedResponse {
	code := ""
	if r.ResponseCode != nil {
		code = fmt.Sprintf("%d", *r.ResponseCode)
	}

	masked := MaskCardNumber(r.CardNumber)

	return NormalizedResponse{
		TransactionKey:    r.Token,
		Success:           r.Successful(),
		ResponseCode:      code,
		AuthorizationCode: r.AuthorizationCode,
		PaymentTypeCode:   r.PaymentTypeCode,
		Installments:      r.InstallmentsNumber,
		Amount:            r.Amount,
		TransactionDate:   r.TransactionDate,
		MaskedCardNumber:  masked,
		Raw: store.Document{
			"buy_order":   r.BuyOrder,
			"session_id":  r.SessionID,
			"card_number": masked,
		},
	}
}

/* ===================== BancoEstado ===================== */

// BancoEstadoCallback is the payload of the signed JWT BancoEstado posts to
// the status endpoint.
type BancoEstadoCallback struct {
	OrderID      string
	Resultado    string
	Fecha        string
	Hora         string
	Code         string
	ModoPago     string
	MarcaTarjeta string
	NumeroCuenta string
	TipoTarjeta  string
	Emisor       string
	Token        string
}

// Successful reports approval: BancoEstado answers resultado "ok".
func (r BancoEstadoCallback) Successful() bool {
	return strings.ToLower(strings.TrimSpace(r.Resultado)) == "ok"
}

func (r BancoEstadoCallback) Normalize() NormalizedResponse {
	transactionDate := strings.TrimSpace(strings.TrimSpace(r.Fecha) + " " + strings.TrimSpace(r.Hora))
	masked := MaskCardNumber(r.NumeroCuenta)

	return NormalizedResponse{
		TransactionKey:   r.OrderID,
		Success:          r.Successful(),
		ResponseCode:     r.Code,
		PaymentTypeCode:  r.ModoPago,
		TransactionDate:  transactionDate,
		MaskedCardNumber: masked,
		Raw: store.Document{
			"resultado":     strings.ToLower(strings.TrimSpace(r.Resultado)),
			"modo_pago":     r.ModoPago,
			"marca_tarjeta": r.MarcaTarjeta,
			"numero_cuenta": masked,
			"tipo_tarjeta":  r.TipoTarjeta,
			"emisor":        r.Emisor,
			"token":         r.Token,
		},
	}
}

/* ===================== Zumpago ===================== */

// ZumpagoNotification is the parsed server-to-server notification.
type ZumpagoNotification struct {
	IdTransaccion        string
	IdComercio           string
	CodigoRespuesta      string
	DescripcionRespuesta string
	FechaProcesamiento   string
	MontoTotal           string
}

// ResponseCode left-pads the provider code to three characters with zeros,
// the way Zumpago documents it ("0" and "000" are the same approval).
func (r ZumpagoNotification) ResponseCode() string {
	code := strings.TrimSpace(r.CodigoRespuesta)
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}

// Successful reports approval: Zumpago uses the string code "000".
func (r ZumpagoNotification) Successful() bool {
	return r.ResponseCode() == "000"
}

func (r ZumpagoNotification) Normalize() NormalizedResponse {
	var digits strings.Builder
	for _, c := range r.MontoTotal {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	var amount int64
	for _, c := range digits.String() {
		amount = amount*10 + int64(c-'0')
	}

	return NormalizedResponse{
		TransactionKey:  r.IdTransaccion,
		Success:         r.Successful(),
		ResponseCode:    r.ResponseCode(),
		Amount:          amount,
		TransactionDate: r.FechaProcesamiento,
		Raw: store.Document{
			"id_comercio": r.IdComercio,
			"description": r.DescripcionRespuesta,
		},
	}
}

/* ===================== Mercado Pago ===================== */

// MercadoPagoPayment is the payment resource fetched after a webhook.
type MercadoPagoPayment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	DateApproved      string  `json:"date_approved"`
	PaymentMethodID   string  `json:"payment_method_id"`
	PaymentTypeID     string  `json:"payment_type_id"`
	Installments      int64   `json:"installments"`
	Card              struct {
		LastFourDigits string `json:"last_four_digits"`
	} `json:"card"`
}

// TransactionKey prefers the portal's own reference over the provider id.
func (r MercadoPagoPayment) TransactionKey() string {
	if strings.TrimSpace(r.ExternalReference) != "" {
		return strings.TrimSpace(r.ExternalReference)
	}
	return fmt.Sprintf("%d", r.ID)
}

// Successful reports approval: Mercado Pago uses the status "approved".
func (r MercadoPagoPayment) Successful() bool {
	return strings.ToLower(strings.TrimSpace(r.Status)) == "approved"
}

func (r MercadoPagoPayment) Normalize() NormalizedResponse {
	return NormalizedResponse{
		TransactionKey:   r.TransactionKey(),
		Success:          r.Successful(),
		ResponseCode:     strings.ToLower(strings.TrimSpace(r.Status)),
		PaymentTypeCode:  r.PaymentTypeID,
		Installments:     r.Installments,
		Amount:           int64(r.TransactionAmount),
		TransactionDate:  r.DateApproved,
		MaskedCardNumber: MaskCardNumber(r.Card.LastFourDigits),
		Raw: store.Document{
			"payment_id":        r.ID,
			"status_detail":     r.StatusDetail,
			"payment_method_id": r.PaymentMethodID,
		},
	}
}
