package controller

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"hnet_backend/internals/features/payment/audit"
	"hnet_backend/internals/features/payment/gateways/service"
	settlement "hnet_backend/internals/features/payment/settlement/service"
	"hnet_backend/internals/features/payment/transactions/store"
)

/*
	========================================================
	  Zumpago notify
========================================================
*/

type ZumpagoController struct {
	Storage  *store.Storage
	Reporter *settlement.Reporter
	Parser   *service.ZumpagoParser
	Log      *audit.Logger
}

func NewZumpagoController(storage *store.Storage, reporter *settlement.Reporter, parser *service.ZumpagoParser, auditLog *audit.Logger) *ZumpagoController {
	return &ZumpagoController{Storage: storage, Reporter: reporter, Parser: parser, Log: auditLog}
}

// Notify is Zumpago's server-to-server notification. Whatever happens the
// answer is a plain 200 "OK": the provider keeps retrying anything else and
// the record of what went wrong lives in the notify log.
func (ctrl *ZumpagoController) Notify(c *fiber.Ctx) error {
	entry := map[string]any{
		"received_at": time.Now().UTC().Format(time.RFC3339),
		"method":      c.Method(),
		"remote_addr": c.IP(),
	}
	var entryErrors []any
	defer func() {
		entry["errors"] = entryErrors
		ctrl.Log.Append("[Zumpago][notify]", entry)
	}()

	payload := strings.TrimSpace(c.FormValue("xml"))
	if payload == "" {
		payload = strings.TrimSpace(c.Query("xml"))
	}
	if payload == "" {
		payload = strings.TrimSpace(string(c.Body()))
	}
	entry["xml_present"] = payload != ""

	if payload == "" {
		entryErrors = append(entryErrors, `the notification did not include the "xml" parameter`)
		return c.Status(fiber.StatusOK).SendString("OK")
	}

	notification, err := ctrl.Parser.Parse(payload)
	if err != nil {
		entryErrors = append(entryErrors, err.Error())
		return c.Status(fiber.StatusOK).SendString("OK")
	}

	normalized := notification.Normalize()
	entry["transaction_id"] = notification.IdTransaccion
	entry["code"] = normalized.ResponseCode

	responseDoc := normalized.Document(time.Now().Unix())
	responseDoc["context"] = "notify"
	if _, err := ctrl.Storage.AppendResponse(notification.IdTransaccion, responseDoc); err != nil {
		entryErrors = append(entryErrors, err.Error())
		return c.Status(fiber.StatusOK).SendString("OK")
	}
	entry["stored"] = true

	if normalized.Success {
		if err := ctrl.Reporter.Report(notification.IdTransaccion); err != nil {
			entryErrors = append(entryErrors, "IngresarPago: "+err.Error())
			log.Println("[ERROR] Zumpago IngresarPago report failed:", err)
		} else {
			entry["ingresar_pago_reported"] = true
		}
	}

	return c.Status(fiber.StatusOK).SendString("OK")
}
