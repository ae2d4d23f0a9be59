package planner_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transitplan.dev/core/ingest"
	"transitplan.dev/core/planner"
	"transitplan.dev/core/storage"
	"transitplan.dev/core/testutil"
)

func buildSingleRideFixture(t *testing.T) storage.Store {
	t.Helper()
	s := testutil.BuildStore(t, "sqlite")

	files := map[string][]string{
		"agency.txt": {"agency_id,agency_name,agency_url,agency_timezone", "AG,Agency,http://x,UTC"},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Stop A,48.85000,2.35000",
			"B,Stop B,48.86000,2.35000",
			"C,Stop C,48.87000,2.35000",
			"D,Stop D,48.87001,2.35000", // ~1m from C
		},
		"routes.txt": {"route_id,agency_id,route_type", "R1,AG,3"},
		"trips.txt":  {"trip_id,route_id,service_id", "T1,R1,WEEKDAY"},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"T1,A,0,08:00:00,08:00:00",
			"T1,B,1,08:10:00,08:10:00",
			"T1,C,2,08:20:00,08:20:00",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WEEKDAY,1,1,1,1,1,0,0,20250101,20251231",
		},
	}
	zipBytes := testutil.BuildZip(t, files)

	ig := ingest.New(s, nil)
	err := ig.LoadAndPrepare(context.Background(), []ingest.FeedSource{
		{Name: "fixture", Opener: func(ctx context.Context) (io.ReadCloser, int64, error) {
			return io.NopCloser(bytes.NewReader(zipBytes)), int64(len(zipBytes)), nil
		}},
	}, ingest.Options{})
	require.NoError(t, err)

	return s
}

func TestSearch_RideThenTransfer(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	p.SetLocation(time.UTC)

	departure := time.Date(2025, 7, 14, 7, 55, 0, 0, time.UTC) // a Monday
	path, err := p.Search(ctx, "00/A", "00/D", departure, planner.SearchOptions{Mode: planner.ModeFastest})
	require.NoError(t, err)
	require.Equal(t, 1, path.RideCount)
	require.True(t, path.Arrival.After(departure))

	steps, err := p.Hydrate(ctx, path)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	require.True(t, steps[0].IsRide())
	require.Equal(t, "00/A", steps[0].FromStopID)
	require.Equal(t, "00/C", steps[0].ToStopID)

	require.False(t, steps[1].IsRide())
	require.Equal(t, "00/C", steps[1].FromStopID)
	require.Equal(t, "00/D", steps[1].ToStopID)
}

func TestSearch_LeastTransfersMode(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	p.SetLocation(time.UTC)

	departure := time.Date(2025, 7, 14, 7, 55, 0, 0, time.UTC)
	path, err := p.Search(ctx, "00/A", "00/D", departure, planner.SearchOptions{Mode: planner.ModeLeastTransfers})
	require.NoError(t, err)
	require.Equal(t, 1, path.RideCount)
}

func TestSearch_InvalidStopID(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	departure := time.Date(2025, 7, 14, 7, 55, 0, 0, time.UTC)
	_, err := p.Search(ctx, "does-not-exist", "00/D", departure, planner.SearchOptions{})
	require.ErrorIs(t, err, planner.ErrInvalidInput)
}

func TestSearch_NoServiceOnDate(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	p.SetLocation(time.UTC)

	// 2025-07-19 is a Saturday; WEEKDAY service doesn't run.
	departure := time.Date(2025, 7, 19, 7, 55, 0, 0, time.UTC)
	_, err := p.Search(ctx, "00/A", "00/D", departure, planner.SearchOptions{Budget: time.Second})
	require.ErrorIs(t, err, planner.ErrNoPath)
}

func TestSearchStop_PrefixMatch(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	stops, err := p.SearchStop(ctx, "Stop", 10)
	require.NoError(t, err)
	require.Len(t, stops, 4)
}

func TestSearchStopCustom_PrefersConfiguredFeed(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	ctx := context.Background()

	testutil.IngestMultiFeedFixture(t, store, []map[string][]string{
		{"stops.txt": {"stop_id,stop_name,stop_lat,stop_lon", "PARIS1,Paris Gare,48.85,2.35"}},
		{"stops.txt": {"stop_id,stop_name,stop_lat,stop_lon", "PARIS2,Paris Gare,48.86,2.36"}},
	})

	prefs := planner.CityPreferences{Prefer: map[string]string{"paris": "01"}}
	p := planner.New(store, prefs)

	stops, err := p.SearchStopCustom(ctx, "paris", 10)
	require.NoError(t, err)
	require.Len(t, stops, 2)
	require.Equal(t, "01/PARIS2", stops[0].ID)
}

func TestGeometry_RideStepIncludesIntermediateStops(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	p.SetLocation(time.UTC)

	departure := time.Date(2025, 7, 14, 7, 55, 0, 0, time.UTC)
	path, err := p.Search(ctx, "00/A", "00/D", departure, planner.SearchOptions{Mode: planner.ModeFastest})
	require.NoError(t, err)
	steps, err := p.Hydrate(ctx, path)
	require.NoError(t, err)
	require.True(t, steps[0].IsRide())

	points, err := p.Geometry(ctx, steps[0]) // the ride step, A -> B -> C
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.Equal(t, 48.85, points[0].Lat)
	require.Equal(t, 48.86, points[1].Lat) // Stop B, the intermediate stop
	require.Equal(t, 48.87, points[2].Lat)
}

func TestGeometry_FallsBackToStraightLineWithoutShape(t *testing.T) {
	store := buildSingleRideFixture(t)
	defer store.Close()
	ctx := context.Background()

	p := planner.New(store, planner.CityPreferences{})
	p.SetLocation(time.UTC)

	departure := time.Date(2025, 7, 14, 7, 55, 0, 0, time.UTC)
	path, err := p.Search(ctx, "00/A", "00/D", departure, planner.SearchOptions{Mode: planner.ModeFastest})
	require.NoError(t, err)
	steps, err := p.Hydrate(ctx, path)
	require.NoError(t, err)

	points, err := p.Geometry(ctx, steps[1]) // the transfer step, definitely shape-less
	require.NoError(t, err)
	require.Len(t, points, 2)

	encoded := planner.EncodePolyline(points)
	require.NotEmpty(t, encoded)

	feature := planner.GeometryToGeoJSON(points)
	require.NotNil(t, feature)
}
