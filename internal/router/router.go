package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/mathieu-neron/toptabled/internal/handler"
	"github.com/mathieu-neron/toptabled/internal/middleware"
	"github.com/mathieu-neron/toptabled/internal/service"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Item   *handler.ItemHandler
	Vote   *handler.VoteHandler
	Health *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, classifier *service.Classifier, corsOrigins string) {
	// Middleware stack (order matters): identity runs before logging so the
	// request log can tag the caller.
	app.Use(recoverer.New())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewIdentity(classifier))
	app.Use(middleware.NewRequestLogger())
	app.Use(middleware.NewCORS(corsOrigins))

	// Health and metrics (outside the API group, no rate limit)
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", handler.MetricsHandler())

	readLimit := middleware.NewReadRateLimiter().Handler()
	voteLimit := middleware.NewVoteRateLimiter().Handler()
	submitLimit := middleware.NewSubmitRateLimiter().Handler()

	// API routes
	api := app.Group("/api")

	// Item routes
	api.Get("/items", readLimit, h.Item.List)
	api.Get("/items/:itemId", readLimit, h.Item.Get)
	api.Post("/items", submitLimit, h.Item.Submit)
	api.Get("/trending", readLimit, h.Item.Trending)
	api.Get("/view", readLimit, h.Item.View)

	// Vote routes
	api.Get("/votes", readLimit, h.Vote.List)
	api.Post("/votes", voteLimit, h.Vote.Submit)
}
