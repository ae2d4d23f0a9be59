package ingest_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"transitplan.dev/core/ingest"
	"transitplan.dev/core/testutil"
)

func TestIngestFeed_PrefixesIdentifiers(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	testutil.IngestMultiFeedFixture(t, store, []map[string][]string{
		{},
		{},
		{
			"stops.txt": {"stop_id,stop_name,stop_lat,stop_lon", "A,Stop A,48.85,2.35"},
		},
	})

	stop, err := store.Stop(context.Background(), "02/A")
	require.NoError(t, err)
	require.Equal(t, "Stop A", stop.Name)
}

func TestIngestFeed_RequiresCalendarOrCalendarDates(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	files := map[string][]string{
		"agency.txt":     {"agency_id,agency_name,agency_url,agency_timezone", "A,Foo,http://x,UTC"},
		"stops.txt":      {"stop_id,stop_name,stop_lat,stop_lon", "S,Stop,0,0"},
		"routes.txt":     {"route_id,agency_id,route_type", "R,A,3"},
		"trips.txt":      {"trip_id,route_id,service_id", "T,R,SVC"},
		"stop_times.txt": {"trip_id,stop_id,stop_sequence,arrival_time,departure_time", "T,S,0,08:00:00,08:00:00"},
	}
	zipBytes := testutil.BuildZip(t, files)

	ig := ingest.New(store, nil)
	err := ig.IngestFeed(context.Background(), 0, "bad", bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.ErrorIs(t, err, ingest.ErrMalformedFeed)
}

func TestIngestFeed_MissingRequiredFile(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	zipBytes := testutil.BuildZip(t, map[string][]string{})
	ig := ingest.New(store, nil)
	err := ig.IngestFeed(context.Background(), 0, "bad", bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.ErrorIs(t, err, ingest.ErrMalformedFeed)
}

func TestIngestFeed_CalendarWeekdayMask(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	testutil.IngestFixture(t, store, map[string][]string{
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WEEKDAY,1,1,1,1,1,0,0,20250101,20251231",
		},
	})

	services, err := store.ActiveServices(context.Background(), "20250714") // a Monday
	require.NoError(t, err)
	require.Contains(t, services, "00/WEEKDAY")
}

func TestIngestFeed_ContinuesPastOneBadFileInAnOtherwiseGoodFeed(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	files := map[string][]string{
		"agency.txt": {"agency_id,agency_name,agency_url,agency_timezone", "A,Agency,http://x,UTC"},
		"stops.txt":  {"stop_id,stop_name,stop_lat,stop_lon", "S,Stop,0,0"},
		"routes.txt": {"route_id,agency_id,route_type", "R,A,3"},
		"trips.txt":  {"trip_id,route_id,service_id", "T,R,WEEKDAY"},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"T,S,0,08:00:00,08:00:00",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WEEKDAY,1,1,1,1,1,0,0,20250101,20251231",
		},
		// exception_type is neither 1 nor 2: this single file is
		// malformed, but every other file in the feed is fine.
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"WEEKDAY,20250714,9",
		},
	}
	zipBytes := testutil.BuildZip(t, files)

	ig := ingest.New(store, nil)
	err := ig.IngestFeed(context.Background(), 0, "partial", bytes.NewReader(zipBytes), int64(len(zipBytes)))
	require.NoError(t, err) // the whole feed still succeeds

	stop, err := store.Stop(context.Background(), "00/S")
	require.NoError(t, err)
	require.Equal(t, "Stop", stop.Name)

	services, err := store.ActiveServices(context.Background(), "20250714")
	require.NoError(t, err)
	require.Contains(t, services, "00/WEEKDAY") // calendar.txt's rule still applies; the bad exception was skipped
}

func TestIngestFeed_CalendarExceptionOverridesRule(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	testutil.IngestFixture(t, store, map[string][]string{
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"WEEKDAY,1,1,1,1,1,0,0,20250101,20251231",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"WEEKDAY,20250714,2", // removed on this specific Monday
			"WEEKDAY,20250719,1", // added on this specific Saturday, which wouldn't run otherwise
		},
	})

	removed, err := store.ActiveServices(context.Background(), "20250714")
	require.NoError(t, err)
	require.NotContains(t, removed, "00/WEEKDAY")

	added, err := store.ActiveServices(context.Background(), "20250719")
	require.NoError(t, err)
	require.Contains(t, added, "00/WEEKDAY")
}

// readCloserOpener wraps a byte slice as a FeedSource opener, as a caller
// who already has the archive in memory would.
func readCloserOpener(data []byte) func(ctx context.Context) (io.ReadCloser, int64, error) {
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}
}

func TestLoadAndPrepare_BuildsTransfersAndMetadata(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	files := map[string][]string{
		"agency.txt":     {"agency_id,agency_name,agency_url,agency_timezone", "AG,Agency,http://x,UTC"},
		"routes.txt":     {"route_id,agency_id,route_type"},
		"trips.txt":      {"trip_id,route_id,service_id"},
		"stop_times.txt": {"trip_id,stop_id,stop_sequence,arrival_time,departure_time"},
		"calendar.txt":   {"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date"},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Stop A,48.85000,2.35000",
			"B,Stop B,48.85010,2.35000", // ~11m north of A
		},
	}
	zipBytes := testutil.BuildZip(t, files)

	ig := ingest.New(store, nil)
	err := ig.LoadAndPrepare(context.Background(), []ingest.FeedSource{
		{Name: "feed", Opener: readCloserOpener(zipBytes)},
	}, ingest.Options{})
	require.NoError(t, err)

	pairs, err := store.AllTransferPairs(context.Background())
	require.NoError(t, err)
	require.Contains(t, pairs, [2]string{"00/A", "00/B"})
	require.Contains(t, pairs, [2]string{"00/B", "00/A"})

	updatedAt, err := store.GetMetadata(context.Background(), "updated_at")
	require.NoError(t, err)
	require.NotEmpty(t, updatedAt)
}

func TestLoadAndPrepare_ContinuesPastOneBadFeed(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()

	goodFiles := map[string][]string{
		"agency.txt":     {"agency_id,agency_name,agency_url,agency_timezone", "AG,Agency,http://x,UTC"},
		"routes.txt":     {"route_id,agency_id,route_type"},
		"trips.txt":      {"trip_id,route_id,service_id"},
		"stop_times.txt": {"trip_id,stop_id,stop_sequence,arrival_time,departure_time"},
		"calendar.txt":   {"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date"},
		"stops.txt":      {"stop_id,stop_name,stop_lat,stop_lon", "A,Stop A,0,0"},
	}
	goodZip := testutil.BuildZip(t, goodFiles)
	badZip := testutil.BuildZip(t, map[string][]string{}) // missing required files

	ig := ingest.New(store, nil)
	err := ig.LoadAndPrepare(context.Background(), []ingest.FeedSource{
		{Name: "bad", Opener: readCloserOpener(badZip)},
		{Name: "good", Opener: readCloserOpener(goodZip)},
	}, ingest.Options{})
	require.NoError(t, err) // per-feed errors are logged, not fatal

	stop, err := store.Stop(context.Background(), "01/A")
	require.NoError(t, err)
	require.Equal(t, "Stop A", stop.Name)
}

func TestUpdate_SkipsWhenFresh(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	require.NoError(t, store.SetMetadata(context.Background(), "updated_at", "2099-01-01T00:00:00Z"))

	ig := ingest.New(store, nil)
	calledOpener := false
	err := ig.Update(context.Background(), []ingest.FeedSource{
		{Name: "feed", Opener: func(ctx context.Context) (io.ReadCloser, int64, error) {
			calledOpener = true
			return nil, 0, nil
		}},
	}, ingest.Options{}, false)
	require.NoError(t, err)
	require.False(t, calledOpener)
}
