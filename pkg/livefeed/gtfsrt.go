package livefeed

import (
	"errors"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/travigo/departureboard/pkg/util"
)

func (p *parser) gtfsRealtime(body []byte) error {
	feed := gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, &feed); err != nil {
		return err
	}
	if feed.GetHeader() == nil {
		return errors.New("missing feed header")
	}

	var headerTime time.Time
	if timestamp := feed.GetHeader().GetTimestamp(); timestamp > 0 {
		headerTime = time.Unix(int64(timestamp), 0)
	}

	for _, entity := range feed.GetEntity() {
		if entity.GetIsDeleted() {
			continue
		}

		if vehiclePosition := entity.GetVehicle(); vehiclePosition != nil {
			p.vehiclePosition(vehiclePosition, headerTime)
		}
		if tripUpdate := entity.GetTripUpdate(); tripUpdate != nil {
			p.tripUpdate(tripUpdate)
		}
	}

	return nil
}

func (p *parser) vehiclePosition(vehiclePosition *gtfs.VehiclePosition, headerTime time.Time) {
	position := vehiclePosition.GetPosition()
	if position == nil {
		p.malformed()
		return
	}

	recordedAt := headerTime
	if timestamp := vehiclePosition.GetTimestamp(); timestamp > 0 {
		recordedAt = time.Unix(int64(timestamp), 0)
	}

	trip := vehiclePosition.GetTrip()
	descriptor := vehiclePosition.GetVehicle()

	record := Record{
		VehicleRef: util.FirstNonEmpty(descriptor.GetId(), descriptor.GetLabel()),
		Label:      util.FirstNonEmpty(descriptor.GetLabel(), descriptor.GetId()),
		Route:      trip.GetRouteId(),
		TripID:     trip.GetTripId(),
		Bearing:    float64(position.GetBearing()),
	}

	p.vehicle(record, float64(position.GetLatitude()), float64(position.GetLongitude()), recordedAt)
}

// tripUpdate makes a call per stop time update. The feed gives the predicted
// time and the delay, the aimed time is derived from the two.
func (p *parser) tripUpdate(tripUpdate *gtfs.TripUpdate) {
	trip := tripUpdate.GetTrip()

	base := Record{
		VehicleRef: tripUpdate.GetVehicle().GetId(),
		Route:      trip.GetRouteId(),
		TripID:     trip.GetTripId(),
	}

	for _, update := range tripUpdate.GetStopTimeUpdate() {
		if update.GetScheduleRelationship() == gtfs.TripUpdate_StopTimeUpdate_SKIPPED {
			continue
		}

		event := update.GetDeparture()
		if event.GetTime() == 0 {
			event = update.GetArrival()
		}
		if event.GetTime() == 0 {
			p.malformed()
			continue
		}

		expected := time.Unix(event.GetTime(), 0)
		aimed := expected.Add(-time.Duration(event.GetDelay()) * time.Second)

		record := base
		record.StopRef = update.GetStopId()
		p.call(record, expected, aimed)
	}
}
