package dto

import "hnet_backend/internals/features/payment/transactions/store"

// Payload is one IngresarPago settlement call, one per paid debt line item.
// The field order and types are fixed by the downstream service's contract;
// do not reorder.
type Payload struct {
	IdEmpresa     string `json:"IdEmpresa"`
	IdCliente     int64  `json:"IdCliente"`
	RutCliente    string `json:"RutCliente"`
	Mail          string `json:"Mail"`
	Recaudador    string `json:"Recaudador"`
	Canal         string `json:"Canal"`
	FechaPago     string `json:"FechaPago"`
	FechaContable string `json:"FechaContable"`
	Mes           int64  `json:"Mes"`
	Ano           int64  `json:"Ano"`
	Monto         int64  `json:"Monto"`
	MontoFlow     int64  `json:"MontoFlow"`
}

// Document returns the payload as a loose map for logs and stored attempts.
func (p Payload) Document() store.Document {
	return store.Document{
		"IdEmpresa":     p.IdEmpresa,
		"IdCliente":     p.IdCliente,
		"RutCliente":    p.RutCliente,
		"Mail":          p.Mail,
		"Recaudador":    p.Recaudador,
		"Canal":         p.Canal,
		"FechaPago":     p.FechaPago,
		"FechaContable": p.FechaContable,
		"Mes":           p.Mes,
		"Ano":           p.Ano,
		"Monto":         p.Monto,
		"MontoFlow":     p.MontoFlow,
	}
}

// SubmissionResult is the outcome of one IngresarPago call: what was sent,
// over which endpoint, and what the service answered.
type SubmissionResult struct {
	Payload    Payload
	Envelope   string
	Response   string
	HTTPStatus int
	WSDL       string
}

// Document returns the result as stored in the settlement sub-document.
func (r SubmissionResult) Document() store.Document {
	return store.Document{
		"payload":     r.Payload.Document(),
		"envelope":    r.Envelope,
		"response":    r.Response,
		"http_status": r.HTTPStatus,
		"wsdl":        r.WSDL,
	}
}
