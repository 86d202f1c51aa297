package departureboard

import "time"

type StopResult struct {
	ID        string  `groups:"basic"`
	Name      string  `groups:"basic"`
	Latitude  float64 `groups:"basic"`
	Longitude float64 `groups:"basic"`
}

type RouteResult struct {
	ID        string `groups:"basic"`
	ShortName string `groups:"basic"`
	LongName  string `groups:"basic"`
}

type VehicleFilter struct {
	TripID string
	Route  string
}

type VehicleResult struct {
	VehicleRef  string    `groups:"basic"`
	Label       string    `groups:"detailed"`
	Route       string    `groups:"basic"`
	TripID      string    `groups:"basic"`
	Destination string    `groups:"basic"`
	Latitude    float64   `groups:"basic"`
	Longitude   float64   `groups:"basic"`
	Bearing     float64   `groups:"detailed"`
	RecordedAt  time.Time `groups:"basic"`
}
