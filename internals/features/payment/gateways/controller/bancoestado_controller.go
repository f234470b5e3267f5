package controller

import (
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"hnet_backend/internals/features/payment/audit"
	"hnet_backend/internals/features/payment/gateways/dto"
	"hnet_backend/internals/features/payment/gateways/service"
	settlement "hnet_backend/internals/features/payment/settlement/service"
	"hnet_backend/internals/features/payment/transactions/store"
	helper "hnet_backend/internals/helpers"
)

var validate = validator.New()

/*
	========================================================
	  BancoEstado pay & status
========================================================
*/

type BancoEstadoController struct {
	Storage   *store.Storage
	Reporter  *settlement.Reporter
	Intents   service.BancoEstadoIntentClient
	JWTSecret string
	Log       *audit.Logger
}

func NewBancoEstadoController(storage *store.Storage, reporter *settlement.Reporter, intents service.BancoEstadoIntentClient, jwtSecret string, auditLog *audit.Logger) *BancoEstadoController {
	return &BancoEstadoController{
		Storage:   storage,
		Reporter:  reporter,
		Intents:   intents,
		JWTSecret: jwtSecret,
		Log:       auditLog,
	}
}

// Pay creates the transaction record and asks BancoEstado for a payment
// intent over the selected debts.
func (ctrl *BancoEstadoController) Pay(c *fiber.Ctx) error {
	var body dto.BancoEstadoPayRequest
	if err := c.BodyParser(&body); err != nil {
		return helper.Error(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(body); err != nil {
		return helper.ValidationError(c, err)
	}

	var total int64
	selectedIDs := make([]any, 0, len(body.Debts))
	debts := make([]any, 0, len(body.Debts))
	items := make([]service.IntentItem, 0, len(body.Debts))
	for _, debt := range body.Debts {
		total += debt.Amount
		selectedIDs = append(selectedIDs, debt.IdCliente)
		debts = append(debts, any(debt.Document()))
		items = append(items, service.IntentItem{Nombre: debt.Nombre, Valor: debt.Amount})
	}

	if total <= 0 {
		return helper.Error(c, fiber.StatusUnprocessableEntity, "The total amount to pay must be greater than zero.")
	}

	record, err := ctrl.Storage.Create(store.Document{
		"rut":          body.Rut,
		"email":        body.Email,
		"selected_ids": selectedIDs,
		"debts":        debts,
		"amount":       total,
		"status":       "initiated",
	})
	if err != nil {
		log.Println("[ERROR] could not create the BancoEstado transaction:", err)
		return helper.Error(c, fiber.StatusInternalServerError, "Could not start the BancoEstado payment.")
	}

	orderID := store.AsString(record["order_id"])

	intent, err := ctrl.Intents.CreateIntent(orderID, total, items)
	if err != nil {
		ctrl.Log.Append("[BancoEstado][intent-error]", map[string]any{
			"order_id": orderID,
			"rut":      body.Rut,
			"error":    err.Error(),
		})
		return helper.Error(c, fiber.StatusBadGateway, "Could not start the BancoEstado payment.")
	}

	if _, err := ctrl.Storage.Merge(orderID, store.Document{
		"intent": store.Document{"raw": intent.Raw, "data": intent.Data},
	}); err != nil {
		log.Println("[ERROR] could not store the BancoEstado intent:", err)
	}

	if err := ctrl.Storage.AppendHistory(orderID, store.Document{
		"event":   "intent-created",
		"details": intent.Data,
	}); err != nil {
		log.Println("[ERROR] could not record the BancoEstado intent history:", err)
	}

	ctrl.Log.Append("[BancoEstado][intent-created]", map[string]any{
		"order_id":     orderID,
		"rut":          body.Rut,
		"amount":       total,
		"selected_ids": selectedIDs,
	})

	return helper.Success(c, "Payment intent created.", fiber.Map{
		"order_id": orderID,
		"intent":   intent.Data,
	})
}

// Status receives BancoEstado's signed callback, updates the record and, when
// the payment is approved, runs the settlement pipeline. The reporter's own
// failures are logged but never bounce the callback, so the gateway does not
// retry a payment we already stored.
func (ctrl *BancoEstadoController) Status(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.FormValue("JWT"))
	if token == "" {
		var body struct {
			JWT string `json:"JWT"`
		}
		if err := c.BodyParser(&body); err == nil {
			token = strings.TrimSpace(body.JWT)
		}
	}
	if token == "" {
		return helper.Error(c, fiber.StatusUnprocessableEntity, "The JWT from BancoEstado is missing.")
	}

	claims, err := service.DecodeBancoEstadoJWT(token, ctrl.JWTSecret)
	if err != nil {
		ctrl.Log.Append("[BancoEstado][decode-error]", map[string]any{"error": err.Error()})
		return helper.Error(c, fiber.StatusBadRequest, "Could not validate the received information.")
	}

	callback := service.CallbackFromClaims(claims)
	if callback.OrderID == "" {
		return helper.Error(c, fiber.StatusUnprocessableEntity, "The JWT does not include the order id.")
	}

	normalized := callback.Normalize()

	if _, err := ctrl.Storage.Merge(callback.OrderID, store.Document{
		"status": strings.ToLower(strings.TrimSpace(callback.Resultado)),
		"callback": store.Document{
			"received_at": time.Now().Unix(),
			"payload":     normalized.Raw,
		},
	}); err != nil {
		return helper.Error(c, fiber.StatusNotFound, "No order was found for this payment.")
	}

	if _, err := ctrl.Storage.AppendResponse(callback.OrderID, normalized.Document(time.Now().Unix())); err != nil {
		log.Println("[ERROR] could not append the BancoEstado response:", err)
	}

	reported := false
	if normalized.Success {
		if err := ctrl.Reporter.Report(callback.OrderID); err != nil {
			ctrl.Log.Append("[BancoEstado][ingresar-pago-error]", map[string]any{
				"order_id": callback.OrderID,
				"error":    err.Error(),
			})
		} else {
			reported = true
		}
	}

	if err := ctrl.Storage.AppendHistory(callback.OrderID, store.Document{
		"event": "callback",
		"details": store.Document{
			"payload":  normalized.Raw,
			"reported": reported,
		},
	}); err != nil {
		log.Println("[ERROR] could not record the BancoEstado callback history:", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"msg": "ok"})
}
