package timetable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/travigo/departureboard/pkg/calendar"
	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/merge"
)

type Option func(*options)

type options struct {
	location   *time.Location
	normaliser *merge.Normaliser
}

// WithLocation sets the timezone service days are anchored in
func WithLocation(location *time.Location) Option {
	return func(o *options) {
		if location != nil {
			o.location = location
		}
	}
}

// WithNormaliser sets how route ids and names are keyed for route search
func WithNormaliser(normaliser *merge.Normaliser) Option {
	return func(o *options) {
		if normaliser != nil {
			o.normaliser = normaliser
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		location:   time.Local,
		normaliser: merge.NewNormaliser(merge.DefaultLegacyPrefixes),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

type tables struct {
	stops       []*gtfs.Stop
	routes      []*gtfs.Route
	trips       []*gtfs.Trip
	stopTimes   []*gtfs.StopTime
	rules       []*calendar.Rule
	exceptions  []*calendar.Exception
	shapePoints []*gtfs.ShapePoint
	stats       map[string]*gtfs.TableStats
}

// Load parses every table of the feed and builds a ready snapshot. When a
// required table is missing the returned snapshot is empty and not ready,
// and the error is a *LoadError naming the missing tables.
func Load(ctx context.Context, source gtfs.Source, opts ...Option) (*Snapshot, error) {
	o := newOptions(opts)
	start := time.Now()

	data := &tables{stats: map[string]*gtfs.TableStats{}}
	for _, table := range append(append([]string{}, gtfs.RequiredTables...), gtfs.OptionalTables...) {
		data.stats[table] = &gtfs.TableStats{Table: table}
	}

	p := pool.New().WithErrors()
	p.Go(collect(ctx, source, gtfs.TableStops, (*gtfs.StopRecord).Stop, &data.stops, data.stats))
	p.Go(collect(ctx, source, gtfs.TableRoutes, (*gtfs.RouteRecord).Route, &data.routes, data.stats))
	p.Go(collect(ctx, source, gtfs.TableTrips, (*gtfs.TripRecord).Trip, &data.trips, data.stats))
	p.Go(collect(ctx, source, gtfs.TableStopTimes, (*gtfs.StopTimeRecord).StopTime, &data.stopTimes, data.stats))
	p.Go(collect(ctx, source, gtfs.TableCalendar, (*gtfs.CalendarRecord).Rule, &data.rules, data.stats))
	p.Go(collect(ctx, source, gtfs.TableCalendarDates, (*gtfs.CalendarDateRecord).Exception, &data.exceptions, data.stats))
	p.Go(collect(ctx, source, gtfs.TableShapes, (*gtfs.ShapeRecord).ShapePoint, &data.shapePoints, data.stats))
	err := p.Wait()

	empty := emptySnapshot(o.location, o.normaliser)
	for table, stats := range data.stats {
		empty.Tables[table] = *stats
	}

	var missing []string
	for _, table := range gtfs.RequiredTables {
		if data.stats[table].Missing {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return empty, &LoadError{Missing: missing}
	}
	if err != nil {
		return empty, fmt.Errorf("load timetable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return empty, err
	}

	snapshot := build(data, o)
	snapshot.Generation = uuid.New().String()
	snapshot.LoadedAt = time.Now()
	snapshot.Ready = true

	for _, table := range append(append([]string{}, gtfs.RequiredTables...), gtfs.OptionalTables...) {
		stats := data.stats[table]
		log.Info().
			Str("table", table).
			Int("rows", stats.Rows).
			Int("skipped", stats.Skipped).
			Bool("missing", stats.Missing).
			Msg("Loaded table")
	}
	log.Info().
		Str("generation", snapshot.Generation).
		Int("stops", len(snapshot.stops)).
		Int("trips", len(snapshot.trips)).
		Dur("duration", time.Since(start)).
		Msg("Timetable snapshot built")

	return snapshot, nil
}

func collect[R any, E any](ctx context.Context, source gtfs.Source, table string, convert func(*R) (*E, error), into *[]*E, stats map[string]*gtfs.TableStats) func() error {
	// Each task owns exactly one entry in stats and one destination slice
	entry := stats[table]

	return func() error {
		result, err := gtfs.ReadTable(ctx, source, table, func(row *R) error {
			entity, err := convert(row)
			if err != nil {
				return err
			}
			*into = append(*into, entity)
			return nil
		})
		*entry = result

		if errors.Is(err, gtfs.ErrTableMissing) {
			return nil
		}
		return err
	}
}

func build(data *tables, o *options) *Snapshot {
	snapshot := emptySnapshot(o.location, o.normaliser)
	for table, stats := range data.stats {
		snapshot.Tables[table] = *stats
	}

	for _, stop := range data.stops {
		snapshot.stops[stop.ID] = stop
	}
	for _, stop := range snapshot.stops {
		snapshot.stopNames = append(snapshot.stopNames, stopName{lower: strings.ToLower(stop.Name), stop: stop})
	}
	sort.Slice(snapshot.stopNames, func(i, j int) bool {
		if snapshot.stopNames[i].lower != snapshot.stopNames[j].lower {
			return snapshot.stopNames[i].lower < snapshot.stopNames[j].lower
		}
		return snapshot.stopNames[i].stop.ID < snapshot.stopNames[j].stop.ID
	})

	for _, route := range data.routes {
		snapshot.routes[route.ID] = route
	}
	for _, route := range snapshot.routes {
		for _, key := range routeKeys(o.normaliser, route) {
			snapshot.routeKeys[key] = append(snapshot.routeKeys[key], route)
		}
	}
	for key := range snapshot.routeKeys {
		sortRoutes(snapshot.routeKeys[key])
	}

	for _, trip := range data.trips {
		snapshot.trips[trip.ID] = trip
	}

	orphaned := 0
	for _, stopTime := range data.stopTimes {
		if _, exists := snapshot.trips[stopTime.TripID]; !exists {
			orphaned++
			continue
		}

		snapshot.tripStopTimes[stopTime.TripID] = append(snapshot.tripStopTimes[stopTime.TripID], stopTime)
		if stopTime.Timed() {
			snapshot.stopDepartures[stopTime.StopID] = append(snapshot.stopDepartures[stopTime.StopID], stopTime)
		}
	}
	if orphaned > 0 {
		log.Warn().Int("count", orphaned).Msg("Stop times reference unknown trips")
	}

	for _, stopTimes := range snapshot.tripStopTimes {
		sort.SliceStable(stopTimes, func(i, j int) bool {
			return stopTimes[i].Sequence < stopTimes[j].Sequence
		})
	}
	for _, stopTimes := range snapshot.stopDepartures {
		sort.SliceStable(stopTimes, func(i, j int) bool {
			if stopTimes[i].QuerySeconds() != stopTimes[j].QuerySeconds() {
				return stopTimes[i].QuerySeconds() < stopTimes[j].QuerySeconds()
			}
			return stopTimes[i].TripID < stopTimes[j].TripID
		})
	}

	for _, point := range data.shapePoints {
		snapshot.shapes[point.ShapeID] = append(snapshot.shapes[point.ShapeID], point)
	}
	for _, points := range snapshot.shapes {
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Sequence < points[j].Sequence
		})
	}

	rules := make([]calendar.Rule, 0, len(data.rules))
	for _, rule := range data.rules {
		rules = append(rules, *rule)
	}
	exceptions := make([]calendar.Exception, 0, len(data.exceptions))
	for _, exception := range data.exceptions {
		exceptions = append(exceptions, *exception)
	}
	snapshot.calendar = calendar.New(rules, exceptions)

	return snapshot
}

func routeKeys(normaliser *merge.Normaliser, route *gtfs.Route) []string {
	var keys []string
	for _, value := range []string{route.ID, route.ShortName} {
		key := normaliser.Normalise(value)
		if key == "" {
			continue
		}
		if len(keys) == 1 && keys[0] == key {
			continue
		}
		keys = append(keys, key)
	}

	return keys
}

func sortRoutes(routes []*gtfs.Route) {
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].ID < routes[j].ID
	})
}
