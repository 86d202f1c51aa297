package timetable

import (
	"time"

	"github.com/travigo/departureboard/pkg/calendar"
	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/merge"
)

// Snapshot is one fully indexed timetable. It is never modified once Load
// returns it, so any number of goroutines can query it.
type Snapshot struct {
	Generation string
	LoadedAt   time.Time
	Ready      bool
	Location   *time.Location
	Tables     map[string]gtfs.TableStats

	normaliser *merge.Normaliser

	stops     map[string]*gtfs.Stop
	stopNames []stopName
	routes    map[string]*gtfs.Route
	routeKeys map[string][]*gtfs.Route
	trips     map[string]*gtfs.Trip
	calendar  *calendar.Calendar

	// trip id to its stop times by sequence
	tripStopTimes map[string][]*gtfs.StopTime
	// stop id to its timed stop times ordered by query seconds
	stopDepartures map[string][]*gtfs.StopTime
	// shape id to points by sequence
	shapes map[string][]*gtfs.ShapePoint
}

type stopName struct {
	lower string
	stop  *gtfs.Stop
}

func emptySnapshot(location *time.Location, normaliser *merge.Normaliser) *Snapshot {
	return &Snapshot{
		Location:       location,
		Tables:         map[string]gtfs.TableStats{},
		normaliser:     normaliser,
		stops:          map[string]*gtfs.Stop{},
		routes:         map[string]*gtfs.Route{},
		routeKeys:      map[string][]*gtfs.Route{},
		trips:          map[string]*gtfs.Trip{},
		calendar:       calendar.New(nil, nil),
		tripStopTimes:  map[string][]*gtfs.StopTime{},
		stopDepartures: map[string][]*gtfs.StopTime{},
		shapes:         map[string][]*gtfs.ShapePoint{},
	}
}

// Counts gives the number of indexed entities per table
func (s *Snapshot) Counts() map[string]int {
	stopTimes := 0
	for _, times := range s.tripStopTimes {
		stopTimes += len(times)
	}
	shapePoints := 0
	for _, points := range s.shapes {
		shapePoints += len(points)
	}

	return map[string]int{
		gtfs.TableStops:     len(s.stops),
		gtfs.TableRoutes:    len(s.routes),
		gtfs.TableTrips:     len(s.trips),
		gtfs.TableStopTimes: stopTimes,
		gtfs.TableShapes:    shapePoints,
	}
}

func (s *Snapshot) Stop(id string) (*gtfs.Stop, bool) {
	stop, ok := s.stops[id]
	return stop, ok
}

func (s *Snapshot) Trip(id string) (*gtfs.Trip, bool) {
	trip, ok := s.trips[id]
	return trip, ok
}

func (s *Snapshot) Route(id string) (*gtfs.Route, bool) {
	route, ok := s.routes[id]
	return route, ok
}

// StopTimesForTrip returns the trip's stop times ordered by stop sequence
func (s *Snapshot) StopTimesForTrip(tripID string) ([]*gtfs.StopTime, bool) {
	stopTimes, ok := s.tripStopTimes[tripID]
	return stopTimes, ok
}

// ShapeForTrip returns the points of the shape the trip follows
func (s *Snapshot) ShapeForTrip(tripID string) ([]*gtfs.ShapePoint, bool) {
	trip, ok := s.trips[tripID]
	if !ok || trip.ShapeID == "" {
		return nil, false
	}

	points, ok := s.shapes[trip.ShapeID]
	return points, ok
}

// ServiceDays answers service activity questions from the snapshot's own
// calendar. Without any calendar data every service counts as running.
func (s *Snapshot) ServiceDays() ServiceDays {
	if s.calendar.Empty() {
		return AllServices
	}

	resolved := map[calendar.Date]calendar.ServiceSet{}

	return func(serviceID string, date calendar.Date) bool {
		active, exists := resolved[date]
		if !exists {
			active = s.calendar.Active(date)
			resolved[date] = active
		}

		return active.Contains(serviceID)
	}
}

// ActiveServices resolves the services running on date
func (s *Snapshot) ActiveServices(date calendar.Date) calendar.ServiceSet {
	return s.calendar.Active(date)
}
