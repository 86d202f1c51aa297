package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travigo/departureboard/pkg/departureboard"
	"github.com/travigo/departureboard/pkg/gtfs"
	"github.com/travigo/departureboard/pkg/livefeed"
	"github.com/travigo/departureboard/pkg/timetable"
)

var now = time.Date(2025, time.August, 12, 7, 55, 0, 0, time.UTC)

func lines(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

func feed() gtfs.MemorySource {
	return gtfs.MemorySource{
		"stops": lines(
			"stop_id,stop_name,stop_lat,stop_lon",
			"S1,Vincent's Walk [CK],50.9040,-1.4040",
			"S2,Airport Parkway,50.9500,-1.3630",
		),
		"routes": lines(
			"route_id,route_short_name,route_long_name,route_type",
			"R1,12,City - Airport,3",
		),
		"trips": lines(
			"route_id,service_id,trip_id,trip_headsign",
			"R1,WK,T1,Airport",
			"R1,WK,T2,Airport",
		),
		"stop_times": lines(
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"T1,08:00:00,08:00:00,S1,1",
			"T1,08:20:00,08:20:00,S2,2",
			"T2,09:30:00,09:30:00,S1,1",
			"T2,09:50:00,09:50:00,S2,2",
		),
	}
}

const liveXML = `<Siri><ServiceDelivery><VehicleMonitoringDelivery>
  <VehicleActivity>
    <RecordedAtTime>2025-08-12T07:54:30Z</RecordedAtTime>
    <MonitoredVehicleJourney>
      <LineRef>12</LineRef>
      <FramedVehicleJourneyRef><DatedVehicleJourneyRef>T1</DatedVehicleJourneyRef></FramedVehicleJourneyRef>
      <DestinationName>Airport</DestinationName>
      <VehicleLocation><Longitude>-1.41</Longitude><Latitude>50.90</Latitude></VehicleLocation>
      <Bearing>90</Bearing>
      <VehicleRef>BLUS-1</VehicleRef>
      <MonitoredCall>
        <StopPointRef>S1</StopPointRef>
        <AimedDepartureTime>2025-08-12T08:00:00Z</AimedDepartureTime>
        <ExpectedDepartureTime>2025-08-12T08:04:00Z</ExpectedDepartureTime>
      </MonitoredCall>
    </MonitoredVehicleJourney>
  </VehicleActivity>
</VehicleMonitoringDelivery></ServiceDelivery></Siri>`

type fakeLiveFeed struct {
	snapshot *livefeed.FeedSnapshot
	err      error
}

func (f *fakeLiveFeed) Fetch(context.Context) (*livefeed.FeedSnapshot, error) {
	return f.snapshot, f.err
}

func newApp(t *testing.T, live departureboard.LiveFeed, loader func(context.Context) (gtfs.Source, error)) (*fiber.App, *departureboard.Core) {
	opts := []departureboard.Option{departureboard.WithClock(func() time.Time { return now })}
	if live != nil {
		opts = append(opts, departureboard.WithLiveFeed(live))
	}

	core := departureboard.New(timetable.NewStore(timetable.WithLocation(time.UTC)), opts...)
	require.True(t, core.Reload(context.Background(), feed()).Ready)

	return NewApp(core, loader), core
}

func liveFeed(t *testing.T) *fakeLiveFeed {
	snapshot, err := livefeed.Parse("application/xml", []byte(liveXML), livefeed.ParseOptions{Now: now, Location: time.UTC})
	require.NoError(t, err)
	return &fakeLiveFeed{snapshot: snapshot}
}

func request(t *testing.T, app *fiber.App, method string, target string, body io.Reader) (int, map[string]any) {
	resp, err := app.Test(httptest.NewRequest(method, target, body), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}

	return resp.StatusCode, decoded
}

func requestList(t *testing.T, app *fiber.App, target string) (int, []map[string]any) {
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded []map[string]any
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}

	return resp.StatusCode, decoded
}

func departures(t *testing.T, body map[string]any) []map[string]any {
	raw, ok := body["Departures"].([]any)
	require.True(t, ok, body)

	var records []map[string]any
	for _, item := range raw {
		records = append(records, item.(map[string]any))
	}
	return records
}

func TestVersionAndHealth(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	status, body := request(t, app, http.MethodGet, "/core/version", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v1.0", body["version"])

	status, body = request(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
	assert.NotEmpty(t, body["generation"])

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "departureboard_timetable_reloads_total")
}

func TestStopSearch(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	status, stops := requestList(t, app, "/core/stops?query=vincent")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, stops, 1)
	assert.Equal(t, "S1", stops[0]["ID"])

	status, _ = requestList(t, app, "/core/stops")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = requestList(t, app, "/core/stops?query=vincent&limit=abc")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := request(t, app, http.MethodGet, "/core/stops/S2", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Airport Parkway", body["Name"])

	status, body = request(t, app, http.MethodGet, "/core/stops/S9", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Could not find Stop matching Stop Identifier", body["error"])
}

func TestRouteSearch(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	status, routes := requestList(t, app, "/core/routes?query=HAA00012")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, routes, 1)
	assert.Equal(t, "R1", routes[0]["ID"])

	status, _ = requestList(t, app, "/core/routes")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestScheduledStopDepartures(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	status, body := request(t, app, http.MethodGet, "/core/stops/S1/departures", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(60), body["Minutes"])
	records := departures(t, body)
	require.Len(t, records, 1)
	assert.Equal(t, "T1", records[0]["TripID"])
	assert.Equal(t, "Scheduled", records[0]["Type"])
	assert.NotContains(t, records[0], "ScheduledTime")

	status, body = request(t, app, http.MethodGet, "/core/stops/S1/departures?window=PT2H&detailed=true", nil)
	require.Equal(t, http.StatusOK, status)
	records = departures(t, body)
	assert.Len(t, records, 2)
	assert.Contains(t, records[0], "ScheduledTime")

	status, body = request(t, app, http.MethodGet, "/core/stops/S1/departures?minutes=120&count=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, departures(t, body), 1)

	for _, target := range []string{
		"/core/stops/S1/departures?window=tomorrow",
		"/core/stops/S1/departures?minutes=0",
		"/core/stops/S1/departures?window=P2D",
		"/core/stops/S1/departures?count=-1",
	} {
		status, _ = request(t, app, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, status, target)
	}

	status, _ = request(t, app, http.MethodGet, "/core/stops/S9/departures", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLiveStopDepartures(t *testing.T) {
	app, _ := newApp(t, liveFeed(t), nil)

	status, body := request(t, app, http.MethodGet, "/core/stops/S1/departures?live=true", nil)
	require.Equal(t, http.StatusOK, status)
	records := departures(t, body)
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0]["IsLive"])
	assert.Equal(t, "2025-08-12T08:04:00Z", records[0]["Time"])
	assert.NotContains(t, body, "LiveError")

	status, body = request(t, app, http.MethodGet, "/core/stops/S1/live", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["Stale"])
	assert.Len(t, departures(t, body), 1)

	status, body = request(t, app, http.MethodGet, "/core/stops/S1/live?minutes=5", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["Departures"])
}

func TestLiveUnavailable(t *testing.T) {
	app, _ := newApp(t, nil, nil)

	status, body := request(t, app, http.MethodGet, "/core/stops/S1/live", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "Live feed is not configured", body["error"])

	status, body = request(t, app, http.MethodGet, "/core/stops/S1/departures?live=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, departures(t, body), 1)
	assert.NotEmpty(t, body["LiveError"])

	status, _ = request(t, app, http.MethodGet, "/core/vehicles", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	stale := liveFeed(t)
	stale.err = errors.New("upstream returned 502 Bad Gateway")
	app, _ = newApp(t, stale, nil)

	status, body = request(t, app, http.MethodGet, "/core/stops/S1/live", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["Stale"])

	// Nothing at this stop in the last good fetch is still a stale answer
	status, body = request(t, app, http.MethodGet, "/core/stops/S2/live", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["Stale"])
	assert.Empty(t, body["Departures"])

	status, body = request(t, app, http.MethodGet, "/core/vehicles?trip=T2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["Stale"])
	assert.Empty(t, body["Vehicles"])
}

func TestVehicles(t *testing.T) {
	app, _ := newApp(t, liveFeed(t), nil)

	status, body := request(t, app, http.MethodGet, "/core/vehicles?route=12", nil)
	require.Equal(t, http.StatusOK, status)
	vehicles, ok := body["Vehicles"].([]any)
	require.True(t, ok)
	require.Len(t, vehicles, 1)
	vehicle := vehicles[0].(map[string]any)
	assert.Equal(t, "BLUS-1", vehicle["VehicleRef"])
	assert.NotContains(t, vehicle, "Bearing")

	status, body = request(t, app, http.MethodGet, "/core/vehicles?trip=T1&detailed=true", nil)
	require.Equal(t, http.StatusOK, status)
	vehicle = body["Vehicles"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(90), vehicle["Bearing"])

	status, body = request(t, app, http.MethodGet, "/core/vehicles?trip=T2", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["Vehicles"])
}

func zipFeed(t *testing.T, source gtfs.MemorySource) []byte {
	var buffer bytes.Buffer
	archive := zip.NewWriter(&buffer)
	for table, contents := range source {
		writer, err := archive.Create(table + ".txt")
		require.NoError(t, err)
		_, err = writer.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, archive.Close())

	return buffer.Bytes()
}

func TestReload(t *testing.T) {
	app, core := newApp(t, nil, nil)
	serving := core.Status().Generation

	status, body := request(t, app, http.MethodPost, "/core/reload", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = request(t, app, http.MethodPost, "/core/reload", strings.NewReader("not a zip"))
	assert.Equal(t, http.StatusBadRequest, status)

	broken := feed()
	delete(broken, "trips")
	status, body = request(t, app, http.MethodPost, "/core/reload", bytes.NewReader(zipFeed(t, broken)))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, serving, body["Serving"])
	assert.Equal(t, []any{"trips"}, body["MissingTables"])

	status, body = request(t, app, http.MethodPost, "/core/reload", bytes.NewReader(zipFeed(t, feed())))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["Ready"])
	assert.NotEqual(t, serving, body["Serving"])

	status, body = request(t, app, http.MethodGet, "/core/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, core.Status().Generation, body["Generation"])
}

func TestReloadFromLoader(t *testing.T) {
	loads := 0
	app, _ := newApp(t, nil, func(context.Context) (gtfs.Source, error) {
		loads++
		if loads > 1 {
			return nil, errors.New("download gtfs: connection refused")
		}
		return feed(), nil
	})

	status, body := request(t, app, http.MethodPost, "/core/reload", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["Ready"])

	status, _ = request(t, app, http.MethodPost, "/core/reload", nil)
	assert.Equal(t, http.StatusBadGateway, status)
}
