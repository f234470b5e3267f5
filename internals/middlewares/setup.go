package middlewares

import (
	"github.com/gofiber/fiber/v2"

	loggerMiddleware "hnet_backend/internals/middlewares/logger"
)

// SetupMiddlewares wires the shared middleware chain. Order matters: recovery
// first so everything below is covered, logging last so it records the final
// status code.
func SetupMiddlewares(app *fiber.App) {
	app.Use(RecoveryMiddleware())
	app.Use(CorsMiddleware())
	app.Use(GlobalRateLimiter())
	app.Use(loggerMiddleware.LoggerMiddleware())
}
