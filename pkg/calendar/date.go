package calendar

import (
	"fmt"
	"strings"
	"time"
)

const YearMonthDayFormat = "20060102"

// Date is a civil calendar date with no time of day or location attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses the GTFS YYYYMMDD date format
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(YearMonthDayFormat, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}

	return DateOf(parsed), nil
}

// DateOf returns the date t falls on in t's own location
func DateOf(t time.Time) Date {
	year, month, day := t.Date()

	return Date{Year: year, Month: month, Day: day}
}

// Time returns midnight of the date in loc
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(days int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+days, 0, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

func (d Date) Before(other Date) bool {
	return d.compare(other) < 0
}

func (d Date) After(other Date) bool {
	return d.compare(other) > 0
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return d.Year - other.Year
	case d.Month != other.Month:
		return int(d.Month) - int(other.Month)
	default:
		return d.Day - other.Day
	}
}
