package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"hnet_backend/internals/features/payment/audit"
	"hnet_backend/internals/features/payment/gateways/dto"
	"hnet_backend/internals/features/payment/gateways/service"
	settlement "hnet_backend/internals/features/payment/settlement/service"
	"hnet_backend/internals/features/payment/transactions/store"
	helper "hnet_backend/internals/helpers"
)

/*
	========================================================
	  Mercado Pago webhook
========================================================
*/

type MercadoPagoController struct {
	Storage  *store.Storage
	Reporter *settlement.Reporter
	Payments service.MercadoPagoPaymentFetcher
	Log      *audit.Logger
}

func NewMercadoPagoController(storage *store.Storage, reporter *settlement.Reporter, payments service.MercadoPagoPaymentFetcher, auditLog *audit.Logger) *MercadoPagoController {
	return &MercadoPagoController{Storage: storage, Reporter: reporter, Payments: payments, Log: auditLog}
}

// Webhook receives the payment notification, fetches the payment back and
// runs the settlement pipeline on approved payments.
func (ctrl *MercadoPagoController) Webhook(c *fiber.Ctx) error {
	var body dto.MercadoPagoWebhookRequest
	if err := c.BodyParser(&body); err != nil {
		return helper.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}

	paymentID := strings.TrimSpace(body.Data.ID)
	if paymentID == "" {
		paymentID = strings.TrimSpace(c.Query("data.id"))
	}
	if paymentID == "" {
		return helper.Error(c, fiber.StatusUnprocessableEntity, "The notification does not include a payment id.")
	}

	payment, err := ctrl.Payments.GetPayment(paymentID)
	if err != nil {
		ctrl.Log.Append("[MercadoPago][fetch-error]", map[string]any{
			"payment_id": paymentID,
			"error":      err.Error(),
		})
		return helper.Error(c, fiber.StatusBadGateway, "Could not obtain the payment from Mercado Pago.")
	}

	normalized := payment.Normalize()
	key := normalized.TransactionKey

	if _, err := ctrl.Storage.AppendResponse(key, normalized.Document(time.Now().Unix())); err != nil {
		log.Println("[ERROR] could not append the Mercado Pago response:", err)
	}

	if normalized.Success {
		if err := ctrl.Reporter.Report(key); err != nil {
			ctrl.Log.Append("[MercadoPago][ingresar-pago-error]", map[string]any{
				"transaction_id": key,
				"error":          err.Error(),
			})
		}
	}

	return helper.Success(c, "ok", fiber.Map{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
}
