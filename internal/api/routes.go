// Package api exposes the operational HTTP surface of a bot: health,
// Prometheus metrics, and read-only views of the tracked state.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crossbarhq/paradigm-services/internal/rfq"
)

// RegisterRoutes mounts the operational routes. nc may be nil when the bot
// runs without a broker.
func RegisterRoutes(app *fiber.App, nc *nats.Conn, book *rfq.Book, instruments *rfq.ManagedInstruments, mmp *rfq.ManagedMMP) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc != nil && !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		if nc == nil {
			checks["nats"] = "not configured"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/rfqs", func(c *fiber.Ctx) error {
		tracked := book.List()
		out := make([]fiber.Map, 0, len(tracked))
		for _, r := range tracked {
			out = append(out, fiber.Map{
				"id":              r.ID,
				"state":           r.State,
				"quantity":        r.Quantity,
				"legs":            len(r.Legs),
				"buy_rfq_orders":  r.RFQOrderCount(rfq.Buy),
				"sell_rfq_orders": r.RFQOrderCount(rfq.Sell),
			})
		}
		return c.JSON(fiber.Map{"count": len(out), "rfqs": out})
	})

	v1.Get("/instruments", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"count": instruments.Count()})
	})

	v1.Get("/mmp", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"triggered": mmp.Triggered()})
	})
}
