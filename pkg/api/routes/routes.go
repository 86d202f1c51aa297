package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/travigo/departureboard/pkg/departureboard"
)

func RoutesRouter(router fiber.Router, core *departureboard.Core) {
	router.Get("/", listRoutes(core))
}

func listRoutes(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("query")
		if query == "" {
			return errorResponse(c, fiber.StatusBadRequest, "A filter must be applied to the request")
		}

		routes, err := reduced(c, core.SearchRoutes(query))
		if err != nil {
			return errorResponse(c, fiber.StatusInternalServerError, "Sheriff could not reduce routes")
		}

		return c.JSON(routes)
	}
}
