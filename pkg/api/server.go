package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/travigo/departureboard/pkg/api/routes"
	"github.com/travigo/departureboard/pkg/departureboard"
	"github.com/travigo/departureboard/pkg/stats"
)

func NewApp(core *departureboard.Core, loader routes.SourceLoader) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             512 * 1024 * 1024,
	})
	webApp.Use(NewLogger())

	webApp.Get("/health", routes.GetHealth(core))
	webApp.Get("/metrics", adaptor.HTTPHandler(stats.Handler()))

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)
	group.Get("status", routes.GetStatus(core))
	group.Post("reload", routes.PostReload(core, loader))

	routes.StopsRouter(group.Group("/stops"), core)
	routes.RoutesRouter(group.Group("/routes"), core)
	routes.VehiclesRouter(group.Group("/vehicles"), core)

	return webApp
}
