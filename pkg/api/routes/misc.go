package routes

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"

	iso8601 "github.com/senseyeio/duration"
)

const maxLookahead = 24 * time.Hour

func errorResponse(c *fiber.Ctx, status int, message string) error {
	c.Status(status)
	return c.JSON(fiber.Map{
		"error": message,
	})
}

// reduced marshals data down to the basic group, or basic and detailed when
// the request asks for ?detailed=true
func reduced(c *fiber.Ctx, data interface{}) (interface{}, error) {
	groups := []string{"basic"}
	if c.QueryBool("detailed", false) {
		groups = append(groups, "detailed")
	}

	return sheriff.Marshal(&sheriff.Options{
		Groups: groups,
	}, data)
}

func intQuery(c *fiber.Ctx, key string, fallback int) (int, error) {
	value := c.Query(key)
	if value == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("Parameter %s should be a positive integer", key)
	}

	return n, nil
}

// lookaheadQuery reads the query window either as an ISO8601 duration in
// window (PT90M) or as a number of minutes
func lookaheadQuery(c *fiber.Ctx, now time.Time, fallback time.Duration) (time.Duration, error) {
	var lookahead time.Duration

	if window := c.Query("window"); window != "" {
		duration, err := iso8601.ParseISO8601(window)
		if err != nil {
			return 0, errors.New("Parameter window should be an ISO8601 duration")
		}
		lookahead = duration.Shift(now).Sub(now)
	} else if c.Query("minutes") != "" {
		minutes, err := intQuery(c, "minutes", 0)
		if err != nil {
			return 0, err
		}
		lookahead = time.Duration(minutes) * time.Minute
	} else {
		return fallback, nil
	}

	if lookahead <= 0 || lookahead > maxLookahead {
		return 0, fmt.Errorf("Window must be positive and at most %s", maxLookahead)
	}

	return lookahead, nil
}
