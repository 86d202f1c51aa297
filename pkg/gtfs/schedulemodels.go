package gtfs

// Raw rows as they appear in the GTFS text tables. Every column is kept as a
// string so a single malformed value rejects its row rather than the table.

type StopRecord struct {
	ID            string `csv:"stop_id"`
	Code          string `csv:"stop_code"`
	Name          string `csv:"stop_name"`
	Description   string `csv:"stop_desc"`
	Latitude      string `csv:"stop_lat"`
	Longitude     string `csv:"stop_lon"`
	ZoneID        string `csv:"zone_id"`
	Type          string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
	PlatformCode  string `csv:"platform_code"`
}

type RouteRecord struct {
	ID         string `csv:"route_id"`
	AgencyID   string `csv:"agency_id"`
	ShortName  string `csv:"route_short_name"`
	LongName   string `csv:"route_long_name"`
	Type       string `csv:"route_type"`
	Colour     string `csv:"route_color"`
	TextColour string `csv:"route_text_color"`
}

type TripRecord struct {
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	ID          string `csv:"trip_id"`
	Headsign    string `csv:"trip_headsign"`
	Name        string `csv:"trip_short_name"`
	DirectionID string `csv:"direction_id"`
	BlockID     string `csv:"block_id"`
	ShapeID     string `csv:"shape_id"`
}

type StopTimeRecord struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
	StopHeadsign  string `csv:"stop_headsign"`
	PickupType    string `csv:"pickup_type"`
	DropOffType   string `csv:"drop_off_type"`
}

type CalendarRecord struct {
	ServiceID string `csv:"service_id"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
	Start     string `csv:"start_date"`
	End       string `csv:"end_date"`
}

type CalendarDateRecord struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

type ShapeRecord struct {
	ID               string `csv:"shape_id"`
	PointLatitude    string `csv:"shape_pt_lat"`
	PointLongitude   string `csv:"shape_pt_lon"`
	PointSequence    string `csv:"shape_pt_sequence"`
	DistanceTraveled string `csv:"shape_dist_traveled"`
}
