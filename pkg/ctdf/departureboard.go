package ctdf

import (
	"sort"
	"time"
)

type DepartureBoard struct {
	StopID      string                   `groups:"basic"`
	TripID      string                   `groups:"basic"`
	RouteID     string                   `groups:"detailed"`
	RouteLabel  string                   `groups:"basic"`
	Destination string                   `groups:"basic"`
	Type        DepartureBoardRecordType `groups:"basic"`
	IsLive      bool                     `groups:"basic"`

	Time          time.Time `groups:"basic"`
	ScheduledTime time.Time `groups:"detailed"`
}

type DepartureBoardRecordType string

const (
	DepartureBoardRecordTypeScheduled       DepartureBoardRecordType = "Scheduled"
	DepartureBoardRecordTypeRealtimeTracked DepartureBoardRecordType = "RealtimeTracked"
)

// Delay is how far the shown time is behind the timetabled one, zero when
// either time is unknown
func (d *DepartureBoard) Delay() time.Duration {
	if d.Time.IsZero() || d.ScheduledTime.IsZero() {
		return 0
	}

	return d.Time.Sub(d.ScheduledTime)
}

// SortDepartureBoard orders records by time then trip id
func SortDepartureBoard(departureBoard []*DepartureBoard) {
	sort.SliceStable(departureBoard, func(i, j int) bool {
		if !departureBoard[i].Time.Equal(departureBoard[j].Time) {
			return departureBoard[i].Time.Before(departureBoard[j].Time)
		}

		return departureBoard[i].TripID < departureBoard[j].TripID
	})
}
