package calendar

import (
	"sort"
	"time"

	"golang.org/x/exp/maps"
)

type ExceptionType int

// Values match the GTFS calendar_dates.txt exception_type codes
const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

// Rule is the weekly running pattern of a service between two dates.
type Rule struct {
	ServiceID string
	Start     Date
	End       Date
	Weekdays  [7]bool // indexed by time.Weekday
}

// Exception overrides the weekly pattern of a service on one date.
type Exception struct {
	ServiceID string
	Date      Date
	Type      ExceptionType
}

type ServiceSet map[string]struct{}

func (s ServiceSet) Contains(serviceID string) bool {
	_, ok := s[serviceID]
	return ok
}

// IDs returns the service identifiers in lexical order
func (s ServiceSet) IDs() []string {
	ids := maps.Keys(s)
	sort.Strings(ids)

	return ids
}

// RunsOn reports whether the weekly pattern covers date, ignoring exceptions
func (r *Rule) RunsOn(date Date) bool {
	if date.Before(r.Start) || date.After(r.End) {
		return false
	}

	return r.Weekdays[date.Weekday()]
}

// ActiveServices resolves the services operating on date. Rules contribute
// their service when the date is inside their range and the weekday flag is
// set, then the exceptions dated on that day add or remove services. Removing
// a service that isn't active is a no-op.
func ActiveServices(rules []Rule, exceptions []Exception, date Date) ServiceSet {
	active := ServiceSet{}

	for i := range rules {
		if rules[i].RunsOn(date) {
			active[rules[i].ServiceID] = struct{}{}
		}
	}

	for _, exception := range exceptions {
		if exception.Date != date {
			continue
		}
		applyException(active, exception)
	}

	return active
}

func applyException(active ServiceSet, exception Exception) {
	switch exception.Type {
	case ExceptionAdded:
		active[exception.ServiceID] = struct{}{}
	case ExceptionRemoved:
		delete(active, exception.ServiceID)
	}
}

// Calendar holds rules and exceptions with the exceptions indexed by date so
// repeated resolution doesn't rescan every exception.
type Calendar struct {
	rules      []Rule
	exceptions map[Date][]Exception
	size       int
}

func New(rules []Rule, exceptions []Exception) *Calendar {
	c := &Calendar{
		rules:      rules,
		exceptions: make(map[Date][]Exception),
		size:       len(rules) + len(exceptions),
	}

	for _, exception := range exceptions {
		c.exceptions[exception.Date] = append(c.exceptions[exception.Date], exception)
	}

	return c
}

// Empty is true when neither rules nor exceptions were provided
func (c *Calendar) Empty() bool {
	return c == nil || c.size == 0
}

func (c *Calendar) Rules() []Rule {
	return c.rules
}

// Active gives the same answer as ActiveServices for the calendar's data
func (c *Calendar) Active(date Date) ServiceSet {
	if c == nil {
		return ServiceSet{}
	}

	return ActiveServices(c.rules, c.exceptions[date], date)
}

// ActiveAt resolves the services for the calendar date of t in t's location
func (c *Calendar) ActiveAt(t time.Time) ServiceSet {
	return c.Active(DateOf(t))
}
