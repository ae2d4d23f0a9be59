package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"transitplan.dev/core/model"
	"transitplan.dev/core/storage"
)

func newSQLite(t *testing.T) storage.Store {
	s, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_WriteAndReadStop(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteStop(ctx, model.Stop{ID: "00/A", Name: "Stop A", Lat: 1, Lon: 2}))

	got, err := s.Stop(ctx, "00/A")
	require.NoError(t, err)
	require.Equal(t, "Stop A", got.Name)
}

func TestSQLiteStore_StopNotFound(t *testing.T) {
	s := newSQLite(t)
	_, err := s.Stop(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteStore_WritesAreIdempotent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	stop := model.Stop{ID: "00/A", Name: "Stop A"}
	require.NoError(t, s.WriteStop(ctx, stop))
	require.NoError(t, s.WriteStop(ctx, stop)) // repeated row, same feed re-ingested

	stops, err := s.Stops(ctx)
	require.NoError(t, err)
	require.Len(t, stops, 1)
}

func TestSQLiteStore_NextStopTime(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.BeginStopTimes(ctx))
	require.NoError(t, s.WriteStopTime(ctx, model.StopTime{TripID: "T", StopID: "A", StopSequence: 0, Departure: "08:00:00", Arrival: "08:00:00"}))
	require.NoError(t, s.WriteStopTime(ctx, model.StopTime{TripID: "T", StopID: "B", StopSequence: 1, Departure: "08:10:00", Arrival: "08:10:00"}))
	require.NoError(t, s.WriteStopTime(ctx, model.StopTime{TripID: "T", StopID: "C", StopSequence: 2, Departure: "08:20:00", Arrival: "08:20:00"}))
	require.NoError(t, s.EndStopTimes(ctx))

	next, ok, err := s.NextStopTime(ctx, "T", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", next.StopID)

	_, ok, err = s.NextStopTime(ctx, "T", 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteStore_ActiveServices_WeekdayAndExceptions(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCalendarRule(ctx, model.CalendarRule{
		ServiceID: "WEEKDAY", StartDate: "20250101", EndDate: "20251231", Weekday: model.WeekdayBit(1), // Monday bit
	}))
	require.NoError(t, s.WriteCalendarException(ctx, model.CalendarException{
		ServiceID: "WEEKDAY", Date: "20250714", ExceptionType: model.ExceptionRemoved,
	}))
	require.NoError(t, s.WriteCalendarException(ctx, model.CalendarException{
		ServiceID: "EXTRA", Date: "20250715", ExceptionType: model.ExceptionAdded,
	}))

	removed, err := s.ActiveServices(ctx, "20250714")
	require.NoError(t, err)
	require.NotContains(t, removed, "WEEKDAY")

	added, err := s.ActiveServices(ctx, "20250715")
	require.NoError(t, err)
	require.Contains(t, added, "EXTRA")
}

func TestSQLiteStore_SearchStops_PrefixRanksFirst(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteStop(ctx, model.Stop{ID: "00/A", Name: "Gare du Nord"}))
	require.NoError(t, s.WriteStop(ctx, model.Stop{ID: "00/B", Name: "Nord-Sud Plaza"}))

	results, err := s.SearchStops(ctx, "Nord", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "Nord-Sud Plaza", results[0].Name) // prefix match ranks first
}

func TestSQLiteStore_SpatialIndex_Query(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.WriteStop(ctx, model.Stop{ID: "00/A", Name: "A", Lat: 48.85, Lon: 2.35}))
	require.NoError(t, s.WriteStop(ctx, model.Stop{ID: "00/B", Name: "B", Lat: 48.8501, Lon: 2.35})) // ~11m away
	require.NoError(t, s.WriteStop(ctx, model.Stop{ID: "00/C", Name: "C", Lat: 40.0, Lon: -70.0}))   // far away

	idx, err := s.SpatialIndex(ctx)
	require.NoError(t, err)

	nearby := idx.Query(48.85, 2.35, 100)
	ids := map[string]bool{}
	for _, st := range nearby {
		ids[st.ID] = true
	}
	require.True(t, ids["00/A"])
	require.True(t, ids["00/B"])
	require.False(t, ids["00/C"])
}
