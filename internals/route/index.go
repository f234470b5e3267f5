package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	routeDetails "hnet_backend/internals/route/details"
)

var startTime time.Time

func SetupRoutes(app *fiber.App, payments routeDetails.PaymentControllers) {
	startTime = time.Now()

	log.Println("[INFO] Setting up BaseRoutes...")
	BaseRoutes(app)

	log.Println("[INFO] Setting up PaymentRoutes...")
	routeDetails.PaymentRoutes(app, payments)
}
