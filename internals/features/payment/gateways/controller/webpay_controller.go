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
	helper "hnet_backend/internals/helpers"
)

/*
	========================================================
	  Webpay return
========================================================
*/

type WebpayController struct {
	Storage   *store.Storage
	Reporter  *settlement.Reporter
	Committer service.WebpayCommitter
	Log       *audit.Logger
}

func NewWebpayController(storage *store.Storage, reporter *settlement.Reporter, committer service.WebpayCommitter, auditLog *audit.Logger) *WebpayController {
	return &WebpayController{Storage: storage, Reporter: reporter, Committer: committer, Log: auditLog}
}

// Return handles the browser coming back from Webpay: token_ws means the
// payment went through the flow, TBK_TOKEN means the user aborted it.
func (ctrl *WebpayController) Return(c *fiber.Ctx) error {
	tokenWs := requestValue(c, "token_ws")
	tbkToken := requestValue(c, "TBK_TOKEN")
	tbkOrder := requestValue(c, "TBK_ORDEN_COMPRA")
	tbkSessionID := requestValue(c, "TBK_ID_SESION")

	ctrl.Log.Append("[WebpayPlus][return-received]", map[string]any{
		"token_ws":       presence(tokenWs),
		"tbk_token":      presence(tbkToken),
		"tbk_order":      tbkOrder,
		"tbk_session_id": tbkSessionID,
		"remote_addr":    c.IP(),
	})

	if tokenWs != "" {
		return ctrl.handleCommit(c, tokenWs)
	}

	if tbkToken != "" {
		if err := ctrl.Storage.AppendHistory(tbkToken, store.Document{
			"event": "payment-cancelled",
			"details": store.Document{
				"buy_order":  tbkOrder,
				"session_id": tbkSessionID,
			},
		}); err != nil {
			log.Println("[ERROR] could not record the Webpay abort:", err)
		}
		return helper.Success(c, "The payment was cancelled before completing. No charge was made.", fiber.Map{
			"buy_order":  tbkOrder,
			"session_id": tbkSessionID,
		})
	}

	return helper.Error(c, fiber.StatusUnprocessableEntity, "The Webpay return did not include a transaction token.")
}

func (ctrl *WebpayController) handleCommit(c *fiber.Ctx, tokenWs string) error {
	result, err := ctrl.Committer.CommitTransaction(tokenWs)
	if err != nil {
		ctrl.Log.Append("[WebpayPlus][commit-error]", map[string]any{
			"token": tokenWs,
			"error": err.Error(),
		})
		return helper.Error(c, fiber.StatusBadGateway, "Could not obtain the transaction result.")
	}

	normalized := result.Normalize()
	if _, err := ctrl.Storage.AppendResponse(tokenWs, normalized.Document(time.Now().Unix())); err != nil {
		ctrl.Log.Append("[Webpay][storage-error]", map[string]any{
			"token":   tokenWs,
			"context": "return",
			"error":   err.Error(),
		})
	}

	if !normalized.Success {
		return helper.ErrorWithDetails(c, fiber.StatusUnprocessableEntity, "The payment was rejected by Transbank.", fiber.Map{
			"response_code": normalized.ResponseCode,
		})
	}

	if err := ctrl.Reporter.Report(tokenWs); err != nil {
		return helper.Error(c, fiber.StatusBadGateway, "The payment was approved but could not be registered. It will be retried.")
	}

	return helper.Success(c, "Payment processed correctly.", fiber.Map{
		"token":              tokenWs,
		"authorization_code": normalized.AuthorizationCode,
		"amount":             normalized.Amount,
		"card_number":        normalized.MaskedCardNumber,
	})
}

// requestValue looks the key up in the form body first, then the query, the
// way the gateway alternates between POST and GET redirects.
func requestValue(c *fiber.Ctx, key string) string {
	if value := strings.TrimSpace(c.FormValue(key)); value != "" {
		return value
	}
	return strings.TrimSpace(c.Query(key))
}

func presence(value string) string {
	if value != "" {
		return "present"
	}
	return ""
}
