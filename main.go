package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/utils"

	"hnet_backend/internals/configs"
	"hnet_backend/internals/constants"
	"hnet_backend/internals/features/payment/audit"
	gatewayController "hnet_backend/internals/features/payment/gateways/controller"
	gatewayService "hnet_backend/internals/features/payment/gateways/service"
	settlementService "hnet_backend/internals/features/payment/settlement/service"
	"hnet_backend/internals/features/payment/transactions/store"
	helper "hnet_backend/internals/helpers"
	middlewares "hnet_backend/internals/middlewares"
	routes "hnet_backend/internals/route"
	routeDetails "hnet_backend/internals/route/details"
)

func main() {
	configs.LoadEnv()

	app := fiber.New(fiber.Config{
		// 🚀 fast JSON
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		ErrorHandler:            helper.FromFiberError,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
	})

	// ⚙️ base + performance middleware
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault})) // gzip
	app.Use(etag.New())                                                  // 304 caching

	// 🔎 Request-ID + timing (light observability)
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = utils.UUID()
		}
		c.Set("X-Request-ID", id)
		c.Locals("reqid", id)
		start := time.Now()
		// generous guard: a settlement submission inside a callback can
		// legitimately take close to a minute
		ctx, cancel := context.WithTimeout(c.Context(), 60*time.Second)
		defer cancel()
		c.SetUserContext(ctx)
		err := c.Next()
		dur := time.Since(start)
		log.Printf("[REQ] id=%s %s %s status=%d dur=%s", id, c.Method(), c.OriginalURL(), c.Response().StatusCode(), dur)
		return err
	})

	middlewares.SetupMiddlewares(app)

	// 🗄️ transaction stores, one directory per gateway
	ttl := configs.ProcessingTTLSeconds
	webpayStore := store.New(filepath.Join(configs.StorageRoot, constants.ProviderWebpay), constants.ProviderWebpay, constants.OrderPrefixWebpay, ttl)
	bancoEstadoStore := store.New(filepath.Join(configs.StorageRoot, constants.ProviderBancoEstado), constants.ProviderBancoEstado, constants.OrderPrefixBancoEstado, ttl)
	zumpagoStore := store.New(filepath.Join(configs.StorageRoot, constants.ProviderZumpago), constants.ProviderZumpago, constants.OrderPrefixZumpago, ttl)
	mercadoPagoStore := store.New(filepath.Join(configs.StorageRoot, constants.ProviderMercadoPago), constants.ProviderMercadoPago, constants.OrderPrefixMercadoPago, ttl)

	// 📜 audit logs
	settlementLog := audit.New(filepath.Join(configs.LogDir, "ingresar-pago.log"))
	settlementErrorLog := audit.New(filepath.Join(configs.LogDir, "ingresar-pago-error.log"))
	webpayLog := audit.New(filepath.Join(configs.LogDir, "webpay.log"))
	bancoEstadoLog := audit.New(filepath.Join(configs.LogDir, "bancoestado.log"))
	zumpagoLog := audit.New(filepath.Join(configs.LogDir, "zumpago.log"))
	mercadoPagoLog := audit.New(filepath.Join(configs.LogDir, "mercadopago.log"))

	// 🧾 IngresarPago settlement pipeline
	ingresarPago, err := settlementService.NewIngresarPagoService(configs.IngresarPagoWSDL)
	if err != nil {
		log.Fatalf("❌ IngresarPago service: %v", err)
	}
	endpoints := settlementService.NewEndpointResolver(configs.EndpointOverrides())
	submitterFactory := func(endpoint string) (settlementService.Submitter, error) {
		return settlementService.NewIngresarPagoService(endpoint)
	}

	webpayReporter := settlementService.NewReporter(webpayStore, ingresarPago, endpoints, constants.CollectorTransbank, "Webpay", settlementLog, settlementErrorLog, submitterFactory)
	bancoEstadoReporter := settlementService.NewReporter(bancoEstadoStore, ingresarPago, endpoints, constants.CollectorBancoEstado, "BancoEstado", settlementLog, settlementErrorLog, submitterFactory)
	zumpagoReporter := settlementService.NewReporter(zumpagoStore, ingresarPago, endpoints, constants.CollectorZumpago, "Zumpago", settlementLog, settlementErrorLog, submitterFactory)
	mercadoPagoReporter := settlementService.NewReporter(mercadoPagoStore, ingresarPago, endpoints, constants.CollectorMercadoPago, "MercadoPago", settlementLog, settlementErrorLog, submitterFactory)

	// 🏦 gateway clients
	webpayProfiles := gatewayService.NewConfigResolver(gatewayService.CompanyProfile{
		Label:        "hnet",
		CommerceCode: configs.WebpayCommerceCode,
		APIKey:       configs.WebpayAPIKey,
		Environment:  configs.WebpayEnvironment,
		FinalURL:     configs.WebpayFinalURL,
	}, nil)
	webpayClient, err := gatewayService.NewWebpayPlusService(webpayProfiles.DefaultProfile())
	if err != nil {
		log.Fatalf("❌ Webpay client: %v", err)
	}
	bancoEstadoClient, err := gatewayService.NewBancoEstadoPaymentService(
		configs.BancoEstadoAPIURL,
		configs.BancoEstadoAPIKey,
		configs.BancoEstadoCommerce,
		configs.BancoEstadoRedirectURL,
		configs.BancoEstadoStatusURL,
	)
	if err != nil {
		log.Fatalf("❌ BancoEstado client: %v", err)
	}
	zumpagoParser := &gatewayService.ZumpagoParser{}
	mercadoPagoClient, err := gatewayService.NewMercadoPagoClient(configs.MercadoPagoAccessToken)
	if err != nil {
		log.Fatalf("❌ MercadoPago client: %v", err)
	}

	controllers := routeDetails.PaymentControllers{
		Webpay:      gatewayController.NewWebpayController(webpayStore, webpayReporter, webpayClient, webpayLog),
		BancoEstado: gatewayController.NewBancoEstadoController(bancoEstadoStore, bancoEstadoReporter, bancoEstadoClient, configs.BancoEstadoJWTSecret, bancoEstadoLog),
		Zumpago:     gatewayController.NewZumpagoController(zumpagoStore, zumpagoReporter, zumpagoParser, zumpagoLog),
		MercadoPago: gatewayController.NewMercadoPagoController(mercadoPagoStore, mercadoPagoReporter, mercadoPagoClient, mercadoPagoLog),
	}

	// ✅ Routes
	routes.SetupRoutes(app, controllers)

	// 🔒 keep-alive & connection timeouts
	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 90 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	// start server non-blocking
	go func() {
		log.Printf("✅ Listening on :%s", port)
		if err := app.Listen("0.0.0.0:" + port); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
}
