package constants

/* ===================== Providers ===================== */

const (
	ProviderWebpay      = "webpay"
	ProviderBancoEstado = "bancoestado"
	ProviderZumpago     = "zumpago"
	ProviderMercadoPago = "mercadopago"
)

/* ===================== Collectors ===================== */

// Collector labels identify the payment network on settlement payloads.
const (
	CollectorTransbank   = "TRANSBANK"
	CollectorBancoEstado = "BANCOESTADO"
	CollectorZumpago     = "ZUMPAGO"
	CollectorMercadoPago = "MERCADOPAGO"
)

/* ===================== Order prefixes ===================== */

const (
	OrderPrefixBancoEstado = "HNBE"
	OrderPrefixMercadoPago = "HNMP"
)

// Webpay and Zumpago keep the shared backend prefix: their orders are created
// before the gateway redirect and reconciled by token afterwards.
const (
	OrderPrefixWebpay  = "HNBE"
	OrderPrefixZumpago = "HNBE"
)
