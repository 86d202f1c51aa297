package timetable

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travigo/departureboard/pkg/calendar"
	"github.com/travigo/departureboard/pkg/ctdf"
	"github.com/travigo/departureboard/pkg/gtfs"

	_ "time/tzdata"
)

func lines(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

func baseFeed() gtfs.MemorySource {
	return gtfs.MemorySource{
		"stops": lines(
			"stop_id,stop_name,stop_lat,stop_lon",
			"S1,Vincent's Walk [CK],50.9040,-1.4040",
			"S2,Airport Parkway,50.9500,-1.3630",
			"S3,Vincent's Walk [CM],50.9041,-1.4041",
		),
		"routes": lines(
			"route_id,route_short_name,route_long_name,route_type",
			"R1,12,City - Airport,3",
			"R2,,Night Express,3",
			"HAA00018,,,3",
		),
		"trips": lines(
			"route_id,service_id,trip_id,trip_headsign,shape_id",
			"R1,WK,T1,Airport,SH1",
			"R1,WK,T2,,",
			"R2,WK,T3,Night Express,",
			"R2,WK,T4,City,",
			"HAA00018,SAT,T5,,",
		),
		"stop_times": lines(
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"T1,08:00:00,08:00:00,S1,1",
			"T1,08:20:00,08:20:00,S2,2",
			"T2,08:15:00,08:15:00,S1,1",
			"T2,08:35:00,08:35:00,S2,2",
			"T3,25:10:00,25:10:00,S1,1",
			"T4,00:10:00,00:10:00,S1,1",
			"T5,08:30:00,08:30:00,S1,1",
		),
		"calendar": lines(
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WK,1,1,1,1,1,0,0,20250101,20251231",
			"SAT,0,0,0,0,0,1,0,20250101,20251231",
		),
		"calendar_dates": lines(
			"service_id,date,exception_type",
			"WK,20250815,2",
		),
		"shapes": lines(
			"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
			"SH1,50.95,-1.36,2",
			"SH1,50.90,-1.40,1",
		),
	}
}

func loadFeed(t *testing.T, source gtfs.Source) *Snapshot {
	snapshot, err := Load(context.Background(), source, WithLocation(time.UTC))
	require.NoError(t, err)
	require.True(t, snapshot.Ready)
	return snapshot
}

func tripIDs(departures []*Departure) []string {
	var ids []string
	for _, departure := range departures {
		ids = append(ids, departure.Trip.ID)
	}
	return ids
}

// Monday 11 August 2025
func at(hour, minute int) time.Time {
	return time.Date(2025, time.August, 11, hour, minute, 0, 0, time.UTC)
}

func TestLoadIndexes(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())

	assert.NotEmpty(t, snapshot.Generation)
	assert.Equal(t, 3, snapshot.Counts()[gtfs.TableStops])
	assert.Equal(t, 7, snapshot.Counts()[gtfs.TableStopTimes])

	stop, ok := snapshot.Stop("S1")
	require.True(t, ok)
	assert.Equal(t, "Vincent's Walk [CK]", stop.Name)
	assert.InDelta(t, 50.904, stop.Latitude, 0.0001)

	_, ok = snapshot.Stop("NOPE")
	assert.False(t, ok)

	trip, ok := snapshot.Trip("T1")
	require.True(t, ok)
	assert.Equal(t, "WK", trip.ServiceID)

	route, ok := snapshot.Route("R2")
	require.True(t, ok)
	assert.Equal(t, "Night Express", route.Label())

	stopTimes, ok := snapshot.StopTimesForTrip("T1")
	require.True(t, ok)
	require.Len(t, stopTimes, 2)
	assert.Equal(t, "S1", stopTimes[0].StopID)
	assert.Equal(t, "S2", stopTimes[1].StopID)

	shape, ok := snapshot.ShapeForTrip("T1")
	require.True(t, ok)
	require.Len(t, shape, 2)
	assert.Equal(t, 1, shape[0].Sequence)

	_, ok = snapshot.ShapeForTrip("T2")
	assert.False(t, ok)
	_, ok = snapshot.StopTimesForTrip("NOPE")
	assert.False(t, ok)
}

func TestScheduledDepartures(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())

	departures := snapshot.ScheduledDepartures("S1", 30*time.Minute, at(7, 55))
	require.Equal(t, []string{"T1", "T2"}, tripIDs(departures))

	assert.Equal(t, at(8, 0), departures[0].Time)
	assert.Equal(t, "12", departures[0].RouteLabel)
	assert.Equal(t, "Airport", departures[0].Destination)

	// No headsign, so the last stop names the destination
	assert.Equal(t, at(8, 15), departures[1].Time)
	assert.Equal(t, "Airport Parkway", departures[1].Destination)

	departures = snapshot.ScheduledDepartures("S1", 10*time.Minute, at(7, 55))
	assert.Equal(t, []string{"T1"}, tripIDs(departures))

	// Window bounds are inclusive
	departures = snapshot.ScheduledDepartures("S1", 15*time.Minute, at(8, 0))
	assert.Equal(t, []string{"T1", "T2"}, tripIDs(departures))

	assert.Empty(t, snapshot.ScheduledDepartures("S1", 30*time.Minute, at(9, 0)))
	assert.Empty(t, snapshot.ScheduledDepartures("UNKNOWN", time.Hour, at(7, 55)))
	assert.Empty(t, snapshot.ScheduledDepartures("S1", -time.Hour, at(8, 0)))
}

func TestDeparturesPastMidnightOnServiceDay(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())
	monday := calendar.DateOf(at(0, 0))

	departures := snapshot.DeparturesBetween("S1", monday, 89400, 89400+30*60, snapshot.ServiceDays())
	require.Equal(t, []string{"T3"}, tripIDs(departures))
	assert.Equal(t, 90600, departures[0].StopTime.DepartureSeconds)
	assert.Equal(t, time.Date(2025, time.August, 12, 1, 10, 0, 0, time.UTC), departures[0].Time)
	assert.Equal(t, "Night Express", departures[0].RouteLabel)
}

func TestDeparturesAcrossMidnight(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())

	// 23:50 on Monday with half an hour ahead reaches Tuesday's 00:10 trip
	// and Monday's 25:10 trip is still too late
	departures := snapshot.ScheduledDepartures("S1", 30*time.Minute, at(23, 50))
	require.Equal(t, []string{"T4"}, tripIDs(departures))
	assert.Equal(t, time.Date(2025, time.August, 12, 0, 10, 0, 0, time.UTC), departures[0].Time)
	assert.Equal(t, calendar.DateOf(at(0, 0)).AddDays(1), departures[0].ServiceDate)
	assert.Equal(t, 86400+600, departures[0].EffectiveSeconds)

	// 01:00 on Tuesday finds Monday's 25:10 trip from yesterday's timetable
	tuesday := at(1, 0).AddDate(0, 0, 1)
	departures = snapshot.ScheduledDepartures("S1", 30*time.Minute, tuesday)
	require.Equal(t, []string{"T3"}, tripIDs(departures))
	assert.Equal(t, time.Date(2025, time.August, 12, 1, 10, 0, 0, time.UTC), departures[0].Time)
	assert.Equal(t, calendar.DateOf(at(0, 0)), departures[0].ServiceDate)
	assert.Equal(t, 600+3600, departures[0].EffectiveSeconds)
}

func TestDeparturesOnDaylightSavingChanges(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	feed := gtfs.MemorySource{
		"stops": lines(
			"stop_id,stop_name,stop_lat,stop_lon",
			"S1,Vincent's Walk [CK],50.9040,-1.4040",
		),
		"routes": lines(
			"route_id,route_short_name,route_long_name,route_type",
			"R1,12,City - Airport,3",
		),
		"trips": lines(
			"route_id,service_id,trip_id",
			"R1,ALL,D1",
			"R1,ALL,D2",
			"R1,ALL,D3",
			"R1,ALL,D4",
			"R1,ALL,D5",
		),
		"stop_times": lines(
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"D1,00:40:00,00:40:00,S1,1",
			"D2,00:45:00,00:45:00,S1,1",
			"D3,01:40:00,01:40:00,S1,1",
			"D4,01:45:00,01:45:00,S1,1",
			"D5,24:40:00,24:40:00,S1,1",
		),
	}

	snapshot, err := Load(context.Background(), feed, WithLocation(london))
	require.NoError(t, err)

	for _, test := range []struct {
		now      time.Time
		expected []string
	}{
		// Clocks go forward at 01:00, the service day started at 23:00
		{time.Date(2025, time.March, 30, 0, 30, 0, 0, london), []string{"D3", "D5", "D4"}},
		// Clocks go back at 02:00, the service day starts at 01:00
		{time.Date(2025, time.October, 26, 0, 30, 0, 0, london), []string{"D5"}},
	} {
		lookahead := 20 * time.Minute
		departures := snapshot.ScheduledDepartures("S1", lookahead, test.now)
		assert.Equal(t, test.expected, tripIDs(departures), test.now)

		for _, departure := range departures {
			assert.False(t, departure.Time.Before(test.now), departure.Time)
			assert.False(t, departure.Time.After(test.now.Add(lookahead)), departure.Time)
		}
	}
}

func TestDeparturesRespectCalendar(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())

	// Friday 15th is removed for WK
	friday := time.Date(2025, time.August, 15, 7, 55, 0, 0, time.UTC)
	assert.Empty(t, snapshot.ScheduledDepartures("S1", 30*time.Minute, friday))

	saturday := time.Date(2025, time.August, 16, 8, 0, 0, 0, time.UTC)
	departures := snapshot.ScheduledDepartures("S1", time.Hour, saturday)
	require.Equal(t, []string{"T5"}, tripIDs(departures))
	assert.Equal(t, "HAA00018", departures[0].RouteLabel)

	// Overriding the calendar
	departures = snapshot.ScheduledDeparturesWithServices("S1", time.Hour, saturday, AllServices)
	assert.Equal(t, []string{"T1", "T2", "T5"}, tripIDs(departures))
}

func TestDeparturesWithoutCalendar(t *testing.T) {
	feed := baseFeed()
	delete(feed, "calendar")
	delete(feed, "calendar_dates")

	snapshot := loadFeed(t, feed)
	saturday := time.Date(2025, time.August, 16, 7, 55, 0, 0, time.UTC)

	departures := snapshot.ScheduledDepartures("S1", time.Hour, saturday)
	assert.Equal(t, []string{"T1", "T2", "T5"}, tripIDs(departures))
}

func TestDeparturesSortAndCap(t *testing.T) {
	rows := []string{"trip_id,arrival_time,departure_time,stop_id,stop_sequence"}
	trips := []string{"route_id,service_id,trip_id"}
	for i := 0; i < 150; i++ {
		trips = append(trips, fmt.Sprintf("R1,WK,X%03d", i))
		rows = append(rows, fmt.Sprintf("X%03d,,09:%02d:00,S1,1", i, 59-(i%60)))
	}

	feed := baseFeed()
	feed["trips"] = lines(trips...)
	feed["stop_times"] = lines(rows...)
	snapshot := loadFeed(t, feed)

	departures := snapshot.ScheduledDepartures("S1", time.Hour, at(9, 0))
	require.Len(t, departures, MaxDepartures)

	for i := 1; i < len(departures); i++ {
		previous, current := departures[i-1], departures[i]
		assert.True(t, previous.EffectiveSeconds < current.EffectiveSeconds ||
			(previous.EffectiveSeconds == current.EffectiveSeconds && previous.Trip.ID < current.Trip.ID))
	}

	// X059 and X119 share 09:00 and the earlier trip id comes first
	assert.Equal(t, "X059", departures[0].Trip.ID)
	assert.Equal(t, "X119", departures[1].Trip.ID)
}

func TestDepartureBoardRecord(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())

	departures := snapshot.ScheduledDepartures("S1", 10*time.Minute, at(7, 55))
	require.Len(t, departures, 1)

	record := departures[0].DepartureBoard()
	assert.Equal(t, "S1", record.StopID)
	assert.Equal(t, "T1", record.TripID)
	assert.Equal(t, "R1", record.RouteID)
	assert.Equal(t, ctdf.DepartureBoardRecordTypeScheduled, record.Type)
	assert.False(t, record.IsLive)
	assert.Equal(t, record.Time, record.ScheduledTime)
}

func TestSearch(t *testing.T) {
	snapshot := loadFeed(t, baseFeed())

	stops := snapshot.FindStopsByNameSubstring("vincent", 10)
	require.Len(t, stops, 2)
	assert.Equal(t, "S1", stops[0].ID)
	assert.Equal(t, "S3", stops[1].ID)

	assert.Len(t, snapshot.FindStopsByNameSubstring("VINCENT", 1), 1)
	assert.Empty(t, snapshot.FindStopsByNameSubstring("  ", 10))
	assert.Empty(t, snapshot.FindStopsByNameSubstring("nowhere", 10))

	routes := snapshot.FindRoutesByNormalizedID("HAA00012", 10)
	require.Len(t, routes, 1)
	assert.Equal(t, "R1", routes[0].ID)

	routes = snapshot.FindRoutesByNormalizedID("18", 10)
	require.Len(t, routes, 1)
	assert.Equal(t, "HAA00018", routes[0].ID)

	routes = snapshot.FindRoutesByNormalizedID("r", 10)
	assert.Len(t, routes, 2)

	assert.Empty(t, snapshot.FindRoutesByNormalizedID("", 10))
}

func TestLoadEmptyStopTimes(t *testing.T) {
	feed := baseFeed()
	feed["stop_times"] = "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n"

	snapshot := loadFeed(t, feed)
	assert.Empty(t, snapshot.ScheduledDepartures("S1", time.Hour, at(7, 55)))
	assert.Equal(t, 0, snapshot.Counts()[gtfs.TableStopTimes])
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	feed := baseFeed()
	feed["stop_times"] = lines(
		"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
		"T1,08:00:00,08:00:00,S1,1",
		"T2,8am,8am,S1,1",
		"T2,08:15:00,08:15:00,S1,first",
	)

	snapshot := loadFeed(t, feed)
	assert.Equal(t, 2, snapshot.Tables[gtfs.TableStopTimes].Skipped)
	assert.Equal(t, []string{"T1"}, tripIDs(snapshot.ScheduledDepartures("S1", time.Hour, at(7, 55))))
}

func TestLoadMissingRequiredTable(t *testing.T) {
	feed := baseFeed()
	delete(feed, "stop_times")
	delete(feed, "routes")

	snapshot, err := Load(context.Background(), feed)
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.ElementsMatch(t, []string{"routes", "stop_times"}, loadErr.Missing)

	require.NotNil(t, snapshot)
	assert.False(t, snapshot.Ready)
	assert.Equal(t, 0, snapshot.Counts()[gtfs.TableStops])
}

func TestStoreKeepsLastGoodSnapshot(t *testing.T) {
	store := NewStore(WithLocation(time.UTC))
	assert.False(t, store.Status().Ready)

	report := store.Reload(context.Background(), baseFeed())
	require.True(t, report.Ready)
	assert.Empty(t, report.MissingTables)
	generation := report.Generation
	assert.Equal(t, generation, report.Serving)

	broken := baseFeed()
	delete(broken, "stop_times")

	report = store.Reload(context.Background(), broken)
	assert.False(t, report.Ready)
	assert.Equal(t, []string{"stop_times"}, report.MissingTables)
	assert.Equal(t, generation, report.Serving)
	assert.NotEmpty(t, report.Error)

	assert.Equal(t, generation, store.Current().Generation)
	assert.True(t, store.Status().Ready)
	assert.Len(t, store.Current().ScheduledDepartures("S1", 30*time.Minute, at(7, 55)), 2)
}

func TestStoreConcurrentReloadsAndReads(t *testing.T) {
	store := NewStore(WithLocation(time.UTC))
	store.Reload(context.Background(), baseFeed())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Reload(context.Background(), baseFeed())
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snapshot := store.Current()
				assert.True(t, snapshot.Ready)
				assert.Len(t, snapshot.ScheduledDepartures("S1", 30*time.Minute, at(7, 55)), 2)
			}
		}()
	}
	wg.Wait()
}
