package livefeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	jsonListKeys = []string{"result", "results", "vehicles", "data", "items"}

	vehicleRefKeys  = []string{"vehicleref", "vehicle_ref", "vehicleid", "vehicle_id", "vehicle", "fleetnumber", "fleet_number", "id"}
	latitudeKeys    = []string{"latitude", "lat"}
	longitudeKeys   = []string{"longitude", "lon", "lng", "long"}
	bearingKeys     = []string{"bearing", "heading"}
	routeKeys       = []string{"publishedlinename", "route", "route_name", "routename", "line", "line_name", "linename", "lineref", "route_id", "routeid", "service"}
	tripKeys        = []string{"tripid", "trip_id", "trip", "journeyref", "journey_ref", "journeyid", "journey_id"}
	destinationKeys = []string{"destination", "destinationname", "destination_name", "headsign", "destinationref"}
	stopKeys        = []string{"stopref", "stop_ref", "stoppointref", "stopid", "stop_id", "atcocode", "atco_code"}
	stopNameKeys    = []string{"stopname", "stop_name", "stoppointname"}
	expectedKeys    = []string{"expectedtime", "expected_time", "expected", "expecteddeparturetime", "expected_departure", "expectedarrivaltime", "expected_arrival", "estimated"}
	aimedKeys       = []string{"aimedtime", "aimed_time", "aimed", "aimeddeparturetime", "aimed_departure", "aimedarrivaltime", "aimed_arrival", "scheduled", "scheduledtime", "scheduled_time"}
	recordedKeys    = []string{"recordedat", "recorded_at", "recordedattime", "timestamp", "lastupdated", "last_updated", "updated_at", "time"}
)

// jsonListItem is one vehicle object with its keys lower-cased so the many
// spellings used by different providers can be looked up together
type jsonListItem map[string]any

func (p *parser) jsonList(body []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var document any
	if err := decoder.Decode(&document); err != nil {
		return err
	}

	items, err := listFromDocument(document)
	if err != nil {
		return err
	}

	for _, value := range items {
		object, ok := value.(map[string]any)
		if !ok {
			p.malformed()
			continue
		}

		p.jsonListItem(lowerKeys(object))
	}

	return nil
}

func listFromDocument(document any) ([]any, error) {
	switch value := document.(type) {
	case []any:
		return value, nil
	case map[string]any:
		envelope := lowerKeys(value)
		for _, key := range jsonListKeys {
			if list, ok := envelope[key].([]any); ok {
				return list, nil
			}
		}
		if message := envelope.str("error", "message", "detail"); message != "" {
			return nil, fmt.Errorf("provider error: %s", message)
		}
		return nil, errors.New("no vehicle list in object")
	}

	return nil, errors.New("expected an array or object")
}

func (p *parser) jsonListItem(item jsonListItem) {
	record := Record{
		VehicleRef:  item.str(vehicleRefKeys...),
		Route:       item.str(routeKeys...),
		TripID:      item.str(tripKeys...),
		Destination: item.str(destinationKeys...),
		StopRef:     item.str(stopKeys...),
	}

	expected, expectedErr := item.time(p.options.Location, expectedKeys...)
	aimed, aimedErr := item.time(p.options.Location, aimedKeys...)
	if expectedErr != nil || aimedErr != nil {
		log.Debug().AnErr("expected", expectedErr).AnErr("aimed", aimedErr).Msg("Skipping live record with unreadable time")
		p.malformed()
		return
	}

	if record.StopRef != "" && (!expected.IsZero() || !aimed.IsZero()) {
		record.Label = item.str(stopNameKeys...)
		p.call(record, expected, aimed)
		return
	}

	latitude, latOK := item.float(latitudeKeys...)
	longitude, lonOK := item.float(longitudeKeys...)
	recordedAt, err := item.time(p.options.Location, recordedKeys...)
	if !latOK || !lonOK || err != nil {
		p.malformed()
		return
	}

	record.StopRef = ""
	record.Label = record.VehicleRef
	record.Bearing, _ = item.float(bearingKeys...)
	p.vehicle(record, latitude, longitude, recordedAt)
}

func lowerKeys(object map[string]any) jsonListItem {
	item := make(jsonListItem, len(object))
	for key, value := range object {
		item[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return item
}

func (i jsonListItem) lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := i[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func (i jsonListItem) str(keys ...string) string {
	for _, key := range keys {
		switch value := i[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		case json.Number:
			return value.String()
		}
	}
	return ""
}

func (i jsonListItem) float(keys ...string) (float64, bool) {
	value, ok := i.lookup(keys...)
	if !ok {
		return 0, false
	}

	switch typed := value.(type) {
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	}
	return 0, false
}

// time reads RFC 3339 strings, "2006-01-02 15:04:05" wall clock strings in
// loc and unix timestamps in seconds or milliseconds. A missing value is the
// zero time without an error.
func (i jsonListItem) time(loc *time.Location, keys ...string) (time.Time, error) {
	value, ok := i.lookup(keys...)
	if !ok {
		return time.Time{}, nil
	}

	var text string
	switch typed := value.(type) {
	case json.Number:
		text = typed.String()
	case string:
		text = strings.TrimSpace(typed)
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %v", value)
	}
	if text == "" {
		return time.Time{}, nil
	}

	if unix, err := strconv.ParseInt(text, 10, 64); err == nil {
		if unix > 1e12 {
			return time.UnixMilli(unix), nil
		}
		return time.Unix(unix, 0), nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return parsed, nil
	}
	for _, layout := range []string{time.DateTime, "2006-01-02T15:04:05"} {
		if parsed, err := time.ParseInLocation(layout, text, loc); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised time %q", text)
}
