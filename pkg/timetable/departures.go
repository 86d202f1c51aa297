package timetable

import (
	"sort"
	"time"

	"github.com/travigo/departureboard/pkg/calendar"
	"github.com/travigo/departureboard/pkg/ctdf"
	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/util"
)

const MaxDepartures = 100

// ServiceDays reports whether a service runs on a service date. The funcs
// handed out by Snapshot.ServiceDays memoise per date and are meant for a
// single query, not for sharing between goroutines.
type ServiceDays func(serviceID string, date calendar.Date) bool

func AllServices(string, calendar.Date) bool {
	return true
}

type Departure struct {
	StopTime    *gtfs.StopTime
	Trip        *gtfs.Trip
	RouteLabel  string
	Destination string
	ServiceDate calendar.Date
	// Seconds relative to the start of the query's service date, so a trip
	// from yesterday's timetable at 25:10:00 is 3000
	EffectiveSeconds int
	Time             time.Time
}

func (d *Departure) DepartureBoard() *ctdf.DepartureBoard {
	return &ctdf.DepartureBoard{
		StopID:        d.StopTime.StopID,
		TripID:        d.Trip.ID,
		RouteID:       d.Trip.RouteID,
		RouteLabel:    d.RouteLabel,
		Destination:   d.Destination,
		Type:          ctdf.DepartureBoardRecordTypeScheduled,
		Time:          d.Time,
		ScheduledTime: d.Time,
	}
}

// ScheduledDepartures lists departures from the stop between now and now plus
// lookahead using the snapshot's calendar
func (s *Snapshot) ScheduledDepartures(stopID string, lookahead time.Duration, now time.Time) []*Departure {
	return s.ScheduledDeparturesWithServices(stopID, lookahead, now, s.ServiceDays())
}

func (s *Snapshot) ScheduledDeparturesWithServices(stopID string, lookahead time.Duration, now time.Time, services ServiceDays) []*Departure {
	now = now.In(s.Location)

	from := util.SecondsIntoServiceDay(now)
	to := from + int(lookahead/time.Second)

	return s.DeparturesBetween(stopID, calendar.DateOf(now), from, to, services)
}

// DeparturesBetween is the time arithmetic behind every departure query.
// from and to are seconds past the ServiceDayStart of serviceDate. A stop
// time at t seconds on the timetable of serviceDate+d is found when
// from <= t + shift <= to, for d of -1, 0 and +1, and its service runs on
// serviceDate+d. shift is the distance between the two service day starts,
// d*86400 except across a daylight saving change. That covers trips listed
// past midnight on yesterday's timetable and the early trips of tomorrow
// when the window crosses midnight. from may be past 86400 or negative.
func (s *Snapshot) DeparturesBetween(stopID string, serviceDate calendar.Date, from int, to int, services ServiceDays) []*Departure {
	stopTimes := s.stopDepartures[stopID]
	if len(stopTimes) == 0 || to < from {
		return nil
	}
	if services == nil {
		services = AllServices
	}

	var departures []*Departure

	baseStart := util.ServiceDayStart(serviceDate.Time(s.Location))

	for offset := -1; offset <= 1; offset++ {
		date := serviceDate.AddDays(offset)
		dayStart := util.ServiceDayStart(date.Time(s.Location))
		shift := int(dayStart.Sub(baseStart) / time.Second)

		low := from - shift
		high := to - shift
		if high < 0 {
			continue
		}

		first := sort.Search(len(stopTimes), func(i int) bool {
			return stopTimes[i].QuerySeconds() >= low
		})

		for _, stopTime := range stopTimes[first:] {
			seconds := stopTime.QuerySeconds()
			if seconds > high {
				break
			}

			trip, exists := s.trips[stopTime.TripID]
			if !exists || !services(trip.ServiceID, date) {
				continue
			}

			departures = append(departures, &Departure{
				StopTime:         stopTime,
				Trip:             trip,
				RouteLabel:       s.routeLabel(trip),
				Destination:      s.destination(trip),
				ServiceDate:      date,
				EffectiveSeconds: seconds + shift,
				Time:             dayStart.Add(time.Duration(seconds) * time.Second),
			})
		}
	}

	sort.SliceStable(departures, func(i, j int) bool {
		if departures[i].EffectiveSeconds != departures[j].EffectiveSeconds {
			return departures[i].EffectiveSeconds < departures[j].EffectiveSeconds
		}
		return departures[i].Trip.ID < departures[j].Trip.ID
	})

	if len(departures) > MaxDepartures {
		departures = departures[:MaxDepartures]
	}

	return departures
}

func (s *Snapshot) routeLabel(trip *gtfs.Trip) string {
	if route, exists := s.routes[trip.RouteID]; exists {
		return route.Label()
	}
	if trip.RouteID != "" {
		return trip.RouteID
	}

	return "?"
}

func (s *Snapshot) destination(trip *gtfs.Trip) string {
	if trip.Headsign != "" {
		return trip.Headsign
	}

	stopTimes := s.tripStopTimes[trip.ID]
	if len(stopTimes) == 0 {
		return ""
	}
	if stop, exists := s.stops[stopTimes[len(stopTimes)-1].StopID]; exists {
		return stop.Name
	}

	return ""
}
