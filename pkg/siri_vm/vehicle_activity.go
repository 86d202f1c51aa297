package siri_vm

type VehicleActivity struct {
	RecordedAtTime string
	ItemIdentifier string
	ValidUntilTime string

	MonitoredVehicleJourney *MonitoredVehicleJourney

	Extensions struct {
		VehicleJourney struct {
			VehicleUniqueId string
		}
	}
}

type MonitoredVehicleJourney struct {
	LineRef           string
	DirectionRef      string
	PublishedLineName string

	FramedVehicleJourneyRef struct {
		DataFrameRef           string
		DatedVehicleJourneyRef string
	}

	VehicleJourneyRef string

	OperatorRef string

	OriginRef  string
	OriginName string

	DestinationRef              string
	DestinationName             string
	OriginAimedDepartureTime    string
	OriginExpectedDepartureTime string

	VehicleLocation struct {
		Longitude float64
		Latitude  float64
	}
	Bearing   float64
	Occupancy string

	BlockRef   string
	VehicleRef string

	MonitoredCall *Call
	OnwardCalls   struct {
		OnwardCall OneOrMany[*Call]
	}
}

// Call is a monitored or onward stop visit of the journey
type Call struct {
	StopPointRef  string
	StopPointName string
	Order         int

	AimedArrivalTime      string
	ExpectedArrivalTime   string
	AimedDepartureTime    string
	ExpectedDepartureTime string
}

// Calls lists the monitored call followed by the onward calls
func (j *MonitoredVehicleJourney) Calls() []*Call {
	var calls []*Call
	if j.MonitoredCall != nil {
		calls = append(calls, j.MonitoredCall)
	}
	for _, call := range j.OnwardCalls.OnwardCall {
		if call != nil {
			calls = append(calls, call)
		}
	}

	return calls
}

// JourneyRef prefers the dated journey reference inside the framed reference
func (j *MonitoredVehicleJourney) JourneyRef() string {
	if j.FramedVehicleJourneyRef.DatedVehicleJourneyRef != "" {
		return j.FramedVehicleJourneyRef.DatedVehicleJourneyRef
	}

	return j.VehicleJourneyRef
}
