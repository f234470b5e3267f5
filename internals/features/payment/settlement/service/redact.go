package service

import (
	gatewayDTO "hnet_backend/internals/features/payment/gateways/dto"
	"hnet_backend/internals/features/payment/transactions/store"
)

// Audit entries never carry the full record or raw gateway response: only the
// whitelisted fields below, with card and account numbers masked.

func sanitizeRecordForLog(record store.Document) store.Document {
	if record == nil {
		return nil
	}

	return store.Document{
		"order_id":     record["order_id"],
		"token":        record["token"],
		"rut":          record["rut"],
		"email":        record["email"],
		"amount":       record["amount"],
		"selected_ids": record["selected_ids"],
		"status":       record["status"],
		"debts":        sanitizeDebtsForLog(record["debts"]),
	}
}

func sanitizeResponseForLog(response store.Document) store.Document {
	if response == nil {
		return nil
	}

	detail, _ := store.AsDocument(response["detail"])
	if detail == nil {
		detail = store.Document{}
	}

	return store.Document{
		"status":            response["status"],
		"code":              detail["response_code"],
		"authorization":     detail["authorization_code"],
		"amount":            detail["amount"],
		"transaction_date":  detail["transaction_date"],
		"payment_type_code": detail["payment_type_code"],
		"shares_number":     detail["shares_number"],
		"card_number":       gatewayDTO.MaskCardNumber(store.AsString(detail["card_number"])),
	}
}

func sanitizeDebtsForLog(value any) []store.Document {
	debts := store.AsSlice(value)
	if len(debts) == 0 {
		return nil
	}

	sanitized := make([]store.Document, 0, len(debts))
	for _, item := range debts {
		debt, ok := store.AsDocument(item)
		if !ok {
			continue
		}
		sanitized = append(sanitized, store.Document{
			"idempresa": debt["idempresa"],
			"idcliente": debt["idcliente"],
			"mes":       debt["mes"],
			"ano":       debt["ano"],
			"amount":    debt["amount"],
		})
	}

	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}
