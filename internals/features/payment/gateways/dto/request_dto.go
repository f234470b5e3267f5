package dto

/* ===================== Inbound requests ===================== */

// DebtInput is one selected debt line item.
type DebtInput struct {
	IdEmpresa string `json:"idempresa" validate:"required"`
	IdCliente int64  `json:"idcliente" validate:"required,gt=0"`
	Mes       int64  `json:"mes" validate:"omitempty,min=1,max=12"`
	Ano       int64  `json:"ano" validate:"omitempty,gte=2000"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Nombre    string `json:"nombre"`
}

// Document returns the debt as stored inside the transaction record.
func (d DebtInput) Document() map[string]any {
	return map[string]any{
		"idempresa": d.IdEmpresa,
		"idcliente": d.IdCliente,
		"mes":       d.Mes,
		"ano":       d.Ano,
		"amount":    d.Amount,
		"nombre":    d.Nombre,
	}
}

// BancoEstadoPayRequest starts a BancoEstado payment intent for the selected
// debts. RUT validation beyond presence is handled upstream.
type BancoEstadoPayRequest struct {
	Rut   string      `json:"rut" validate:"required"`
	Email string      `json:"email" validate:"required,email"`
	Debts []DebtInput `json:"debts" validate:"required,min=1,dive"`
}

// MercadoPagoWebhookRequest is the notification body Mercado Pago posts; only
// the payment id is consumed, the payment itself is fetched back.
type MercadoPagoWebhookRequest struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}
