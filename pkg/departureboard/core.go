package departureboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"

	"github.com/travigo/departureboard/pkg/ctdf"
	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/livefeed"
	"github.com/travigo/departureboard/pkg/merge"
	"github.com/travigo/departureboard/pkg/timetable"
)

const (
	DefaultLookahead  = time.Hour
	DefaultRouteLimit = 50
)

// ErrStale is wrapped into live query errors when the results come from the
// last good fetch of a feed that is currently failing
var ErrStale = errors.New("serving last good live feed")

// LiveFeed is the part of the live feed client the core depends on
type LiveFeed interface {
	Fetch(ctx context.Context) (*livefeed.FeedSnapshot, error)
}

// Core answers the departure board questions from the timetable store and,
// when one is configured, the live feed
type Core struct {
	store      *timetable.Store
	live       LiveFeed
	normaliser *merge.Normaliser
	tolerance  time.Duration
	clock      func() time.Time
}

type Option func(*Core)

func WithClock(clock func() time.Time) Option {
	return func(c *Core) {
		c.clock = clock
	}
}

func WithLiveFeed(live LiveFeed) Option {
	return func(c *Core) {
		c.live = live
	}
}

func WithNormaliser(normaliser *merge.Normaliser) Option {
	return func(c *Core) {
		c.normaliser = normaliser
	}
}

// WithMatchTolerance sets how far a live call's aimed time may be from the
// timetabled time and still be matched to it by route
func WithMatchTolerance(tolerance time.Duration) Option {
	return func(c *Core) {
		c.tolerance = tolerance
	}
}

func New(store *timetable.Store, opts ...Option) *Core {
	core := &Core{
		store:      store,
		normaliser: merge.NewNormaliser(merge.DefaultLegacyPrefixes),
		tolerance:  merge.DefaultTolerance,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(core)
	}

	return core
}

func (c *Core) Now() time.Time {
	return c.clock()
}

func (c *Core) Snapshot() *timetable.Snapshot {
	return c.store.Current()
}

func (c *Core) Stop(stopID string) (*gtfs.Stop, bool) {
	return c.store.Current().Stop(stopID)
}

func (c *Core) SearchStops(query string, limit int) []StopResult {
	stops := c.store.Current().FindStopsByNameSubstring(query, limit)

	results := []StopResult{}
	if err := copier.Copy(&results, &stops); err != nil {
		log.Error().Err(err).Msg("Failed to map stop results")
		return []StopResult{}
	}

	log.Debug().Str("query", query).Int("results", len(results)).Msg("Stop search")

	return results
}

func (c *Core) SearchRoutes(query string) []RouteResult {
	routes := c.store.Current().FindRoutesByNormalizedID(query, DefaultRouteLimit)

	results := []RouteResult{}
	if err := copier.Copy(&results, &routes); err != nil {
		log.Error().Err(err).Msg("Failed to map route results")
		return []RouteResult{}
	}

	return results
}

// ScheduledDepartures lists the timetabled departures from stopID in the
// next lookahead
func (c *Core) ScheduledDepartures(stopID string, lookahead time.Duration) []*ctdf.DepartureBoard {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	departures := c.store.Current().ScheduledDepartures(stopID, lookahead, c.clock())

	departureBoard := make([]*ctdf.DepartureBoard, 0, len(departures))
	for _, departure := range departures {
		departureBoard = append(departureBoard, departure.DepartureBoard())
	}

	return departureBoard
}

// LiveDepartures lists the live calls at stopID
func (c *Core) LiveDepartures(ctx context.Context, stopID string, limit int) ([]*ctdf.DepartureBoard, error) {
	return c.LiveDeparturesWithin(ctx, stopID, 0, limit)
}

// LiveDeparturesWithin lists the live calls at stopID no later than window
// from now, a window of zero is unbounded. When the feed fails the calls of
// the last good fetch are returned along with an error matching ErrStale, if
// there was one.
func (c *Core) LiveDeparturesWithin(ctx context.Context, stopID string, window time.Duration, limit int) ([]*ctdf.DepartureBoard, error) {
	feed, err := c.fetch(ctx)
	if feed == nil {
		return []*ctdf.DepartureBoard{}, err
	}

	var end time.Time
	if window > 0 {
		end = c.clock().Add(window)
	}

	departureBoard := []*ctdf.DepartureBoard{}
	for _, record := range feed.DeparturesForStop(stopID, 0) {
		if !end.IsZero() && record.Time.After(end) {
			break
		}
		departureBoard = append(departureBoard, record.DepartureBoard())

		if limit > 0 && len(departureBoard) == limit {
			break
		}
	}

	return departureBoard, err
}

// Departures is the scheduled board for the stop with live predictions
// applied where a live call matches a timetabled departure. The scheduled
// board is always returned, a live feed error only means fewer predictions.
func (c *Core) Departures(ctx context.Context, stopID string, lookahead time.Duration) ([]*ctdf.DepartureBoard, error) {
	scheduled := c.ScheduledDepartures(stopID, lookahead)

	feed, err := c.fetch(ctx)
	if feed == nil {
		return scheduled, err
	}

	var live []*ctdf.DepartureBoard
	for _, record := range feed.DeparturesForStop(stopID, 0) {
		live = append(live, record.DepartureBoard())
	}

	return c.normaliser.Overlay(scheduled, live, c.tolerance), err
}

func (c *Core) LiveVehicles(ctx context.Context, filter VehicleFilter) ([]VehicleResult, error) {
	feed, err := c.fetch(ctx)
	if feed == nil {
		return []VehicleResult{}, err
	}

	vehicles := feed.Vehicles(filter.TripID, filter.Route)

	results := []VehicleResult{}
	if copyErr := copier.Copy(&results, &vehicles); copyErr != nil {
		log.Error().Err(copyErr).Msg("Failed to map vehicle results")
		return []VehicleResult{}, err
	}

	return results, err
}

func (c *Core) Reload(ctx context.Context, source gtfs.Source) timetable.ReadinessReport {
	return c.store.Reload(ctx, source)
}

func (c *Core) Status() timetable.ReadinessReport {
	return c.store.Status()
}

func (c *Core) fetch(ctx context.Context) (*livefeed.FeedSnapshot, error) {
	if c.live == nil {
		return nil, livefeed.ErrNotConfigured
	}

	feed, err := c.live.Fetch(ctx)
	if err != nil && !errors.Is(err, livefeed.ErrNotConfigured) {
		log.Warn().Err(err).Bool("stale", feed != nil).Msg("Live feed unavailable")
	}
	if err != nil && feed != nil {
		err = fmt.Errorf("%w: %w", ErrStale, err)
	}

	return feed, err
}
