package routes

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"hnet_backend/internals/configs"
)

func BaseRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("hnet payment backend up 🚀")
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		storageStatus := "Writable"
		serverStatus := "OK"
		httpStatus := fiber.StatusOK

		if err := os.MkdirAll(configs.StorageRoot, 0o775); err != nil {
			storageStatus = "Storage root unavailable"
			serverStatus = "DOWN"
			httpStatus = fiber.StatusServiceUnavailable
		}

		uptime := time.Since(startTime).Seconds()

		return c.Status(httpStatus).JSON(fiber.Map{
			"status":         serverStatus,
			"storage":        storageStatus,
			"server_time":    time.Now().Format(time.RFC3339),
			"uptime_seconds": int(uptime),
			"environment":    os.Getenv("RAILWAY_ENVIRONMENT"),
		})
	})
}
