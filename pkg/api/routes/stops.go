package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/travigo/departureboard/pkg/ctdf"
	"github.com/travigo/departureboard/pkg/departureboard"
	"github.com/travigo/departureboard/pkg/livefeed"
)

func StopsRouter(router fiber.Router, core *departureboard.Core) {
	router.Get("/", listStops(core))
	router.Get("/:identifier", getStop(core))
	router.Get("/:identifier/departures", getStopDepartures(core))
	router.Get("/:identifier/live", getStopLiveDepartures(core))
}

func listStops(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("query")
		if query == "" {
			return errorResponse(c, fiber.StatusBadRequest, "A filter must be applied to the request")
		}

		limit, err := intQuery(c, "limit", 25)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}

		stops, err := reduced(c, core.SearchStops(query, limit))
		if err != nil {
			return errorResponse(c, fiber.StatusInternalServerError, "Sheriff could not reduce stops")
		}

		return c.JSON(stops)
	}
}

func getStop(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stop, exists := core.Stop(c.Params("identifier"))
		if !exists {
			return errorResponse(c, fiber.StatusNotFound, "Could not find Stop matching Stop Identifier")
		}

		return c.JSON(stop)
	}
}

func getStopDepartures(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stopIdentifier := c.Params("identifier")

		count, err := intQuery(c, "count", 25)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}
		lookahead, err := lookaheadQuery(c, core.Now(), departureboard.DefaultLookahead)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}

		if _, exists := core.Stop(stopIdentifier); !exists {
			return errorResponse(c, fiber.StatusNotFound, "Could not find Stop matching Stop Identifier")
		}

		var departureBoard []*ctdf.DepartureBoard
		var liveErr error
		if c.QueryBool("live", false) {
			departureBoard, liveErr = core.Departures(c.UserContext(), stopIdentifier, lookahead)
		} else {
			departureBoard = core.ScheduledDepartures(stopIdentifier, lookahead)
		}

		if count > 0 && len(departureBoard) > count {
			departureBoard = departureBoard[:count]
		}

		departureBoardReduced, err := reduced(c, departureBoard)
		if err != nil {
			return errorResponse(c, fiber.StatusInternalServerError, "Sheriff could not reduce departureBoard")
		}

		response := fiber.Map{
			"StopID":     stopIdentifier,
			"Minutes":    int(lookahead.Minutes()),
			"Departures": departureBoardReduced,
		}
		if liveErr != nil {
			response["LiveError"] = liveErr.Error()
		}

		return c.JSON(response)
	}
}

// getStopLiveDepartures lists the live feed's calls at the stop. The stop
// doesn't need to be in the timetable as live feeds can reference stops it
// doesn't have.
func getStopLiveDepartures(core *departureboard.Core) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stopIdentifier := c.Params("identifier")

		count, err := intQuery(c, "count", 25)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}

		window, err := lookaheadQuery(c, core.Now(), 0)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}

		departureBoard, err := core.LiveDeparturesWithin(c.UserContext(), stopIdentifier, window, count)
		stale := errors.Is(err, departureboard.ErrStale)
		if err != nil && !stale {
			if errors.Is(err, livefeed.ErrNotConfigured) {
				return errorResponse(c, fiber.StatusServiceUnavailable, "Live feed is not configured")
			}
			return errorResponse(c, fiber.StatusServiceUnavailable, err.Error())
		}

		departureBoardReduced, reduceErr := reduced(c, departureBoard)
		if reduceErr != nil {
			return errorResponse(c, fiber.StatusInternalServerError, "Sheriff could not reduce departureBoard")
		}

		return c.JSON(fiber.Map{
			"StopID":     stopIdentifier,
			"Stale":      stale,
			"Departures": departureBoardReduced,
		})
	}
}
