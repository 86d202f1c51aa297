package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/travigo/departureboard/pkg/departureboard"
)

func VehiclesRouter(router fiber.Router, core *departureboard.Core) {
	router.Get("/", listVehicles(core))
}

func listVehicles(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := departureboard.VehicleFilter{
			TripID: c.Query("trip"),
			Route:  c.Query("route"),
		}

		vehicles, err := core.LiveVehicles(c.UserContext(), filter)
		stale := errors.Is(err, departureboard.ErrStale)
		if err != nil && !stale {
			return errorResponse(c, fiber.StatusServiceUnavailable, err.Error())
		}

		vehiclesReduced, reduceErr := reduced(c, vehicles)
		if reduceErr != nil {
			return errorResponse(c, fiber.StatusInternalServerError, "Sheriff could not reduce vehicles")
		}

		return c.JSON(fiber.Map{
			"Stale":    stale,
			"Vehicles": vehiclesReduced,
		})
	}
}
