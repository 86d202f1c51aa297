package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	_ "time/tzdata"
)

func TestEnvironmentHelpers(t *testing.T) {
	env := map[string]string{
		"NAME":     " departures ",
		"TTL":      "45s",
		"BAD_TTL":  "soon",
		"RETRIES":  "3",
		"ENABLED":  "YES",
		"PREFIXES": "HAA, ,SN",
	}

	assert.Equal(t, "departures", EnvString(env, "NAME", "fallback"))
	assert.Equal(t, "fallback", EnvString(env, "MISSING", "fallback"))
	assert.Equal(t, 45*time.Second, EnvDuration(env, "TTL", time.Second))
	assert.Equal(t, time.Second, EnvDuration(env, "BAD_TTL", time.Second))
	assert.Equal(t, 3, EnvInt(env, "RETRIES", 1))
	assert.True(t, EnvBool(env, "ENABLED", false))
	assert.False(t, EnvBool(env, "MISSING", false))
	assert.Equal(t, []string{"HAA", "SN"}, EnvList(env, "PREFIXES"))
	assert.Nil(t, EnvList(env, "MISSING"))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "LineRef", FirstNonEmpty("", "  ", "LineRef", "other"))
	assert.Equal(t, "", FirstNonEmpty())
	assert.Equal(t, "Inval", TrimString("Invalid API key", 5))
	assert.Equal(t, "short", TrimString("short", 10))
	assert.Equal(t, []string{"HAA", "SN"}, RemoveDuplicateStrings([]string{"HAA", "", "SN", "HAA", "X"}, []string{"X"}))
}

func TestServiceDay(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	assert.NoError(t, err)

	// Clocks go forward at 01:00 so the service day starts at 23:00 the day before
	start := ServiceDayStart(time.Date(2025, time.March, 30, 15, 0, 0, 0, london))
	assert.True(t, start.Equal(time.Date(2025, time.March, 29, 23, 0, 0, 0, time.UTC)), start)

	assert.Equal(t, 8*3600+5*60+7, SecondsIntoServiceDay(time.Date(2025, time.August, 12, 8, 5, 7, 0, time.UTC)))

	// Half past midnight is an hour and a half into the day clocks go forward
	assert.Equal(t, 5400, SecondsIntoServiceDay(time.Date(2025, time.March, 30, 0, 30, 0, 0, london)))
	// and half an hour before the start of the day they go back
	assert.Equal(t, -1800, SecondsIntoServiceDay(time.Date(2025, time.October, 26, 0, 30, 0, 0, london)))
}
