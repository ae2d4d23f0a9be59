package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGtfsTimeString_OverflowsPastMidnight(t *testing.T) {
	require.Equal(t, "25:30:00", gtfsTimeString(25*time.Hour+30*time.Minute))
	require.Equal(t, "08:00:00", gtfsTimeString(8*time.Hour))
}

func TestDaySpans_SingleDayWindow(t *testing.T) {
	start := time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)
	spans := daySpans(start, time.Hour, time.UTC)

	var today *daySpan
	for i := range spans {
		if spans[i].Date == "20250714" {
			today = &spans[i]
		}
	}
	require.NotNil(t, today)
	require.Equal(t, "08:00:00", today.Start)
	require.Equal(t, "09:00:00", today.End)
}

func TestDaySpans_IncludesPreviousDayOverflow(t *testing.T) {
	// A departure at 00:30 can still be served by a trip whose GTFS time
	// is expressed as e.g. 24:30:00 against the previous service day.
	start := time.Date(2025, 7, 14, 0, 30, 0, 0, time.UTC)
	spans := daySpans(start, time.Hour, time.UTC)

	var yesterday *daySpan
	for i := range spans {
		if spans[i].Date == "20250713" {
			yesterday = &spans[i]
		}
	}
	require.NotNil(t, yesterday)
	require.Equal(t, "24:30:00", yesterday.Start)
}
