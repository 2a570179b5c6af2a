package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/simcheck/simcheck/internal/broker"
)

// RegisterSubscriberCheckRoutes wires the check creation, status and exchange endpoints.
func RegisterSubscriberCheckRoutes(r fiber.Router, h *broker.Handler) {
	r.Post("/subscribercheck", h.CreateCheck)
	r.Get("/subscribercheck/:checkId", h.GetCheck)
	r.Post("/subscribercheck/:checkId/exchange", h.Exchange)
}

// RegisterDevRoutes wires the stand-in check URL served by the static provider.
func RegisterDevRoutes(app *fiber.App, p *broker.StaticProvider) {
	app.Get("/dev/checks/:checkId/redirect", broker.StaticRedirect(p))
}
