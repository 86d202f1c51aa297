package routes

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/travigo/departureboard/pkg/departureboard"
	"github.com/travigo/departureboard/pkg/gtfs"
)

// SourceLoader fetches the GTFS feed a reload without an uploaded archive
// should use
type SourceLoader func(ctx context.Context) (gtfs.Source, error)

func GetStatus(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(core.Status())
	}
}

func GetHealth(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := core.Status()

		return c.JSON(fiber.Map{
			"status":     "ok",
			"ready":      status.Ready,
			"generation": status.Generation,
		})
	}
}

// PostReload rebuilds the timetable from the zip in the request body, or from
// loader when the body is empty
func PostReload(core *departureboard.Core, loader SourceLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var source gtfs.Source

		if body := c.Body(); len(body) > 0 {
			zipSource, err := gtfs.NewZipSourceFromBytes(body)
			if err != nil {
				return errorResponse(c, fiber.StatusBadRequest, "Request body is not a GTFS zip archive")
			}
			source = zipSource
		} else if loader != nil {
			loaded, err := loader(c.UserContext())
			if err != nil {
				log.Error().Err(err).Msg("Failed to load GTFS for reload")
				return errorResponse(c, fiber.StatusBadGateway, err.Error())
			}
			source = loaded
		} else {
			return errorResponse(c, fiber.StatusBadRequest, "A GTFS zip archive must be uploaded")
		}

		report := core.Reload(c.UserContext(), source)
		if !report.Ready {
			c.Status(fiber.StatusUnprocessableEntity)
		}

		return c.JSON(report)
	}
}
