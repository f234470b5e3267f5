package details

import (
	"github.com/gofiber/fiber/v2"

	"hnet_backend/internals/features/payment/gateways/controller"
	middlewares "hnet_backend/internals/middlewares"
)

type PaymentControllers struct {
	Webpay      *controller.WebpayController
	BancoEstado *controller.BancoEstadoController
	Zumpago     *controller.ZumpagoController
	MercadoPago *controller.MercadoPagoController
}

func PaymentRoutes(app *fiber.App, ctrls PaymentControllers) {
	// Webpay redirects the browser back with POST or GET depending on the
	// outcome, both must land on the same handler.
	app.Post("/webpay/return", ctrls.Webpay.Return)
	app.Get("/webpay/return", ctrls.Webpay.Return)

	// Starting a payment is the only user-initiated endpoint, so it gets the
	// stricter limiter; the callbacks are server-to-server.
	app.Post("/bancoestado/pay", middlewares.PayRateLimiter(), ctrls.BancoEstado.Pay)
	app.Post("/bancoestado/status", ctrls.BancoEstado.Status)

	app.Post("/zumpago/notify", ctrls.Zumpago.Notify)

	app.Post("/mercadopago/webhook", ctrls.MercadoPago.Webhook)
}
