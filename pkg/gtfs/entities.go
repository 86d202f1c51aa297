package gtfs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/travigo/departureboard/pkg/calendar"
)

type Stop struct {
	ID        string
	Code      string
	Name      string
	Latitude  float64
	Longitude float64
}

type Route struct {
	ID        string
	ShortName string
	LongName  string
	Type      int
}

// Label is the name passengers see for the route
func (r *Route) Label() string {
	switch {
	case r.ShortName != "":
		return r.ShortName
	case r.LongName != "":
		return r.LongName
	default:
		return r.ID
	}
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShapeID     string
	DirectionID string
}

type StopTime struct {
	TripID           string
	StopID           string
	ArrivalSeconds   int
	DepartureSeconds int
	Sequence         int
	HasArrival       bool
	HasDeparture     bool
}

// QuerySeconds is the time used when searching departures at the stop
func (s *StopTime) QuerySeconds() int {
	if s.HasDeparture {
		return s.DepartureSeconds
	}

	return s.ArrivalSeconds
}

// Timed is false for stop times carrying neither an arrival nor a departure
func (s *StopTime) Timed() bool {
	return s.HasArrival || s.HasDeparture
}

type ShapePoint struct {
	ShapeID   string
	Latitude  float64
	Longitude float64
	Sequence  int
}

func (r *StopRecord) Stop() (*Stop, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("stop without stop_id")
	}

	stop := &Stop{
		ID:   r.ID,
		Code: r.Code,
		Name: r.Name,
	}

	var err error
	if stop.Latitude, err = parseOptionalFloat(r.Latitude); err != nil {
		return nil, fmt.Errorf("stop %s stop_lat: %w", r.ID, err)
	}
	if stop.Longitude, err = parseOptionalFloat(r.Longitude); err != nil {
		return nil, fmt.Errorf("stop %s stop_lon: %w", r.ID, err)
	}

	return stop, nil
}

func (r *RouteRecord) Route() (*Route, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("route without route_id")
	}

	routeType, err := parseOptionalInt(r.Type)
	if err != nil {
		return nil, fmt.Errorf("route %s route_type: %w", r.ID, err)
	}

	return &Route{
		ID:        r.ID,
		ShortName: r.ShortName,
		LongName:  r.LongName,
		Type:      routeType,
	}, nil
}

func (r *TripRecord) Trip() (*Trip, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("trip without trip_id")
	}

	return &Trip{
		ID:          r.ID,
		RouteID:     r.RouteID,
		ServiceID:   r.ServiceID,
		Headsign:    r.Headsign,
		ShapeID:     r.ShapeID,
		DirectionID: r.DirectionID,
	}, nil
}

// StopTime converts the row. Blank times are allowed and leave the matching
// Has flag unset, a time that is present but malformed rejects the row.
func (r *StopTimeRecord) StopTime() (*StopTime, error) {
	if r.TripID == "" || r.StopID == "" {
		return nil, fmt.Errorf("stop time without trip_id or stop_id")
	}

	sequence, err := strconv.Atoi(r.StopSequence)
	if err != nil {
		return nil, fmt.Errorf("trip %s stop_sequence %q: %w", r.TripID, r.StopSequence, err)
	}

	stopTime := &StopTime{
		TripID:   r.TripID,
		StopID:   r.StopID,
		Sequence: sequence,
	}

	if r.ArrivalTime != "" {
		if stopTime.ArrivalSeconds, err = ParseTime(r.ArrivalTime); err != nil {
			return nil, fmt.Errorf("trip %s arrival_time: %w", r.TripID, err)
		}
		stopTime.HasArrival = true
	}
	if r.DepartureTime != "" {
		if stopTime.DepartureSeconds, err = ParseTime(r.DepartureTime); err != nil {
			return nil, fmt.Errorf("trip %s departure_time: %w", r.TripID, err)
		}
		stopTime.HasDeparture = true
	}

	return stopTime, nil
}

func (r *CalendarRecord) Rule() (*calendar.Rule, error) {
	start, err := calendar.ParseDate(r.Start)
	if err != nil {
		return nil, fmt.Errorf("service %s start_date: %w", r.ServiceID, err)
	}
	end, err := calendar.ParseDate(r.End)
	if err != nil {
		return nil, fmt.Errorf("service %s end_date: %w", r.ServiceID, err)
	}

	rule := &calendar.Rule{
		ServiceID: r.ServiceID,
		Start:     start,
		End:       end,
	}

	flags := []string{r.Sunday, r.Monday, r.Tuesday, r.Wednesday, r.Thursday, r.Friday, r.Saturday}
	for day, flag := range flags {
		rule.Weekdays[day] = flag == "1"
	}

	return rule, nil
}

func (r *CalendarDateRecord) Exception() (*calendar.Exception, error) {
	date, err := calendar.ParseDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("service %s date: %w", r.ServiceID, err)
	}

	exceptionType, err := strconv.Atoi(r.ExceptionType)
	if err != nil || (exceptionType != int(calendar.ExceptionAdded) && exceptionType != int(calendar.ExceptionRemoved)) {
		return nil, fmt.Errorf("service %s exception_type %q unknown", r.ServiceID, r.ExceptionType)
	}

	return &calendar.Exception{
		ServiceID: r.ServiceID,
		Date:      date,
		Type:      calendar.ExceptionType(exceptionType),
	}, nil
}

func (r *ShapeRecord) ShapePoint() (*ShapePoint, error) {
	latitude, err := strconv.ParseFloat(r.PointLatitude, 64)
	if err != nil {
		return nil, fmt.Errorf("shape %s shape_pt_lat: %w", r.ID, err)
	}
	longitude, err := strconv.ParseFloat(r.PointLongitude, 64)
	if err != nil {
		return nil, fmt.Errorf("shape %s shape_pt_lon: %w", r.ID, err)
	}
	sequence, err := strconv.Atoi(r.PointSequence)
	if err != nil {
		return nil, fmt.Errorf("shape %s shape_pt_sequence: %w", r.ID, err)
	}

	return &ShapePoint{
		ShapeID:   r.ID,
		Latitude:  latitude,
		Longitude: longitude,
		Sequence:  sequence,
	}, nil
}

func parseOptionalFloat(value string) (float64, error) {
	if value = strings.TrimSpace(value); value == "" {
		return 0, nil
	}

	return strconv.ParseFloat(value, 64)
}

func parseOptionalInt(value string) (int, error) {
	if value = strings.TrimSpace(value); value == "" {
		return 0, nil
	}

	return strconv.Atoi(value)
}
