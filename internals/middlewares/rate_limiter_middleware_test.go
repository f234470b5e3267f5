package middlewares

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestPayRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Post("/pay", PayRateLimiter(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	for i := 0; i < 10; i++ {
		req, err := http.NewRequest(http.MethodPost, "/pay", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := app.Test(req, 5000)
		if err != nil {
			t.Fatalf("app.Test #%d: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request #%d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	req, err := http.NewRequest(http.MethodPost, "/pay", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("app.Test over the limit: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("request over the limit status = %d, want 429", resp.StatusCode)
	}
}
