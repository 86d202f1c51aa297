package livefeed

import (
	"bytes"
	"errors"

	"github.com/travigo/departureboard/pkg/siri_vm"
	"github.com/travigo/departureboard/pkg/util"
)

func (p *parser) siriXML(body []byte) error {
	parseStats, err := siri_vm.ParseXML(bytes.NewReader(body), p.activity)
	if err != nil {
		return err
	}
	p.snapshot.Malformed += parseStats.Malformed

	return nil
}

func (p *parser) siriJSON(body []byte) error {
	document, err := siri_vm.ParseJSON(body)
	if err != nil {
		return err
	}

	activities := document.Activities()
	if len(activities) == 0 && len(document.ServiceDelivery.VehicleMonitoringDelivery) == 0 {
		return errors.New("no VehicleMonitoringDelivery")
	}
	for _, activity := range activities {
		p.activity(activity)
	}

	return nil
}

// activity turns one VehicleActivity into a vehicle record and a call record
// per stop visit
func (p *parser) activity(activity *siri_vm.VehicleActivity) {
	journey := activity.MonitoredVehicleJourney
	if journey == nil {
		p.malformed()
		return
	}

	base := Record{
		VehicleRef:  util.FirstNonEmpty(journey.VehicleRef, activity.Extensions.VehicleJourney.VehicleUniqueId),
		Route:       util.FirstNonEmpty(journey.PublishedLineName, journey.LineRef),
		TripID:      journey.JourneyRef(),
		Destination: util.FirstNonEmpty(journey.DestinationName, journey.DestinationRef),
	}

	if activity.RecordedAtTime != "" {
		recordedAt, err := siri_vm.ParseTime(activity.RecordedAtTime)
		if err != nil {
			p.malformed()
		} else {
			vehicle := base
			vehicle.Bearing = journey.Bearing
			vehicle.Label = base.VehicleRef
			p.vehicle(vehicle, journey.VehicleLocation.Latitude, journey.VehicleLocation.Longitude, recordedAt)
		}
	}

	sawOrigin := false
	for _, call := range journey.Calls() {
		if journey.OriginRef != "" && call.StopPointRef == journey.OriginRef {
			sawOrigin = true
		}

		record := base
		record.StopRef = call.StopPointRef
		record.Label = call.StopPointName
		p.siriCall(record,
			util.FirstNonEmpty(call.ExpectedDepartureTime, call.ExpectedArrivalTime),
			util.FirstNonEmpty(call.AimedDepartureTime, call.AimedArrivalTime),
		)
	}

	// Feeds that only describe the journey still give its departure from the
	// origin
	if !sawOrigin && journey.OriginRef != "" && (journey.OriginExpectedDepartureTime != "" || journey.OriginAimedDepartureTime != "") {
		record := base
		record.StopRef = journey.OriginRef
		record.Label = journey.OriginName
		p.siriCall(record, journey.OriginExpectedDepartureTime, journey.OriginAimedDepartureTime)
	}
}

func (p *parser) siriCall(record Record, expectedValue string, aimedValue string) {
	expected, expectedErr := parseOptionalTime(expectedValue)
	aimed, aimedErr := parseOptionalTime(aimedValue)
	if expectedErr != nil || aimedErr != nil {
		p.malformed()
		return
	}

	p.call(record, expected, aimed)
}
