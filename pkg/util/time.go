package util

import (
	"time"
)

// ServiceDayStart returns the reference instant GTFS stop times are offset from
// for the given date: noon minus twelve hours, which is midnight except on
// days with a daylight saving change.
func ServiceDayStart(date time.Time) time.Time {
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, date.Location())

	return noon.Add(-12 * time.Hour)
}

// SecondsIntoServiceDay is how far t is past the ServiceDayStart of its own
// date, in whole seconds. It differs from the wall clock time of day by an
// hour on daylight saving change days and can be negative.
func SecondsIntoServiceDay(t time.Time) int {
	return int(t.Sub(ServiceDayStart(t)) / time.Second)
}
