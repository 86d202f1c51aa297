package livefeed

import (
	"sort"
	"strings"
	"time"

	"github.com/travigo/departureboard/pkg/ctdf"
	"github.com/travigo/departureboard/pkg/merge"
)

type RecordKind string

const (
	RecordKindVehicle RecordKind = "vehicle"
	RecordKindCall    RecordKind = "call"
)

// Record is one vehicle position or one predicted stop call, whichever
// shape the feed delivered it in
type Record struct {
	Kind RecordKind

	VehicleRef string
	Latitude   float64
	Longitude  float64
	Bearing    float64
	RecordedAt time.Time

	Route       string
	RouteKey    string
	TripID      string
	Destination string

	StopRef string
	Label   string

	// Time is the expected time when the feed has one, otherwise the aimed time
	Time      time.Time
	AimedTime time.Time
	IsLive    bool
}

// DepartureBoard converts a call record into the shared departure record
func (r *Record) DepartureBoard() *ctdf.DepartureBoard {
	recordType := ctdf.DepartureBoardRecordTypeScheduled
	if r.IsLive {
		recordType = ctdf.DepartureBoardRecordTypeRealtimeTracked
	}

	return &ctdf.DepartureBoard{
		StopID:        r.StopRef,
		TripID:        r.TripID,
		RouteID:       r.Route,
		RouteLabel:    r.Route,
		Destination:   r.Destination,
		Type:          recordType,
		IsLive:        r.IsLive,
		Time:          r.Time,
		ScheduledTime: r.AimedTime,
	}
}

// FeedSnapshot is one parsed fetch of the live feed. It is never modified
// once published.
type FeedSnapshot struct {
	Shape     Shape
	FetchedAt time.Time
	Records   []*Record
	Malformed int

	// Set on copies handed out after a failed refresh
	Stale bool

	normaliser *merge.Normaliser
}

func (f *FeedSnapshot) normalise(route string) string {
	if f.normaliser == nil {
		return merge.NormaliseRoute(route)
	}
	return f.normaliser.Normalise(route)
}

func (f *FeedSnapshot) stale() *FeedSnapshot {
	copied := *f
	copied.Stale = true

	return &copied
}

func (f *FeedSnapshot) count(kind RecordKind) int {
	count := 0
	for _, record := range f.Records {
		if record.Kind == kind {
			count++
		}
	}
	return count
}

// DeparturesForStop returns the calls at stopID. Exact stop references win,
// only when there are none are references containing stopID used.
func (f *FeedSnapshot) DeparturesForStop(stopID string, limit int) []*Record {
	stopID = strings.TrimSpace(stopID)
	if f == nil || stopID == "" {
		return nil
	}

	var exact []*Record
	var contained []*Record
	lowerStopID := strings.ToLower(stopID)

	for _, record := range f.Records {
		if record.Kind != RecordKindCall {
			continue
		}

		if record.StopRef == stopID {
			exact = append(exact, record)
		} else if len(exact) == 0 && strings.Contains(strings.ToLower(record.StopRef), lowerStopID) {
			contained = append(contained, record)
		}
	}

	departures := exact
	if len(departures) == 0 {
		departures = contained
	}

	sort.SliceStable(departures, func(i, j int) bool {
		if !departures[i].Time.Equal(departures[j].Time) {
			return departures[i].Time.Before(departures[j].Time)
		}
		return departures[i].TripID < departures[j].TripID
	})

	if limit > 0 && len(departures) > limit {
		departures = departures[:limit]
	}

	return departures
}

// Vehicles returns the vehicle positions, optionally only those on tripID
// and on route. Routes are compared after normalisation.
func (f *FeedSnapshot) Vehicles(tripID string, route string) []*Record {
	if f == nil {
		return nil
	}

	tripID = strings.TrimSpace(tripID)
	routeKey := ""
	if strings.TrimSpace(route) != "" {
		routeKey = f.normalise(route)
	}

	var vehicles []*Record
	for _, record := range f.Records {
		if record.Kind != RecordKindVehicle {
			continue
		}
		if tripID != "" && record.TripID != tripID {
			continue
		}
		if routeKey != "" && record.RouteKey != routeKey {
			continue
		}

		vehicles = append(vehicles, record)
	}

	sort.SliceStable(vehicles, func(i, j int) bool {
		return vehicles[i].VehicleRef < vehicles[j].VehicleRef
	})

	return vehicles
}
