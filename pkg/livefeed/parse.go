package livefeed

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/travigo/departureboard/pkg/merge"
)

const (
	DefaultVehicleMaxAge = 20 * time.Minute
	DefaultCallMaxAge    = time.Minute
)

type ParseOptions struct {
	Now time.Time

	// Vehicle positions recorded longer ago than this are dropped
	VehicleMaxAge time.Duration
	// Calls whose time is further in the past than this are dropped
	CallMaxAge time.Duration

	// Used for feed times written without an offset
	Location   *time.Location
	Normaliser *merge.Normaliser
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.VehicleMaxAge <= 0 {
		o.VehicleMaxAge = DefaultVehicleMaxAge
	}
	if o.CallMaxAge <= 0 {
		o.CallMaxAge = DefaultCallMaxAge
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Normaliser == nil {
		o.Normaliser = merge.NewNormaliser(merge.DefaultLegacyPrefixes)
	}

	return o
}

// Parse detects the shape of body and normalises it into a snapshot. Bad
// records are skipped and counted, only an unreadable payload is an error.
func Parse(contentType string, body []byte, options ParseOptions) (*FeedSnapshot, error) {
	options = options.withDefaults()

	shape := DetectShape(contentType, body)
	p := &parser{
		options: options,
		snapshot: &FeedSnapshot{
			Shape:      shape,
			FetchedAt:  options.Now,
			normaliser: options.Normaliser,
		},
	}

	var err error
	switch shape {
	case ShapeSIRIXML:
		err = p.siriXML(body)
	case ShapeSIRIJSON:
		err = p.siriJSON(body)
	case ShapeJSONList:
		err = p.jsonList(body)
	case ShapeGTFSRealtime:
		err = p.gtfsRealtime(body)
	default:
		err = fmt.Errorf("unrecognised payload of %d bytes", len(body))
	}
	if err != nil {
		return nil, &ParseError{Shape: shape, Err: err}
	}

	log.Debug().
		Str("shape", string(shape)).
		Int("records", len(p.snapshot.Records)).
		Int("malformed", p.snapshot.Malformed).
		Msg("Parsed live feed")

	return p.snapshot, nil
}

type parser struct {
	options  ParseOptions
	snapshot *FeedSnapshot
}

func (p *parser) malformed() {
	p.snapshot.Malformed++
}

func (p *parser) routeKey(route string) string {
	if route == "" {
		return ""
	}
	return p.options.Normaliser.Normalise(route)
}

// vehicle keeps a position when it has coordinates and was recorded recently
// enough
func (p *parser) vehicle(record Record, latitude float64, longitude float64, recordedAt time.Time) {
	if latitude == 0 && longitude == 0 || recordedAt.IsZero() {
		p.malformed()
		return
	}
	if p.options.Now.Sub(recordedAt) > p.options.VehicleMaxAge {
		return
	}

	record.Kind = RecordKindVehicle
	record.Latitude = latitude
	record.Longitude = longitude
	record.RecordedAt = recordedAt
	record.Time = recordedAt
	record.RouteKey = p.routeKey(record.Route)

	p.snapshot.Records = append(p.snapshot.Records, &record)
}

// call keeps a stop call, timed by the expected time when there is one
func (p *parser) call(record Record, expected time.Time, aimed time.Time) {
	if record.StopRef == "" || expected.IsZero() && aimed.IsZero() {
		p.malformed()
		return
	}

	record.Kind = RecordKindCall
	record.AimedTime = aimed
	record.RouteKey = p.routeKey(record.Route)
	if !expected.IsZero() {
		record.Time = expected
		record.IsLive = true
	} else {
		record.Time = aimed
	}

	if record.Time.Before(p.options.Now.Add(-p.options.CallMaxAge)) {
		return
	}

	p.snapshot.Records = append(p.snapshot.Records, &record)
}
