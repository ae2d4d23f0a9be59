package planner

import (
	"time"

	"transitplan.dev/core/model"
)

// absoluteTime resolves a GTFS "service day" (YYYYMMDD, in loc) plus a
// time-of-day duration (which may exceed 24h to express post-midnight
// service) into an absolute time.Time.
func absoluteTime(date string, loc *time.Location, timeOfDay time.Duration) (time.Time, error) {
	y, m, d, err := splitYYYYMMDD(date)
	if err != nil {
		return time.Time{}, err
	}
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return midnight.Add(timeOfDay), nil
}

// serviceDate renders t (interpreted in loc) as the YYYYMMDD string used
// to key calendar rules/exceptions.
func serviceDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("20060102")
}

func splitYYYYMMDD(date string) (year int, month time.Month, day int, err error) {
	t, err := time.Parse("20060102", date)
	if err != nil {
		return 0, 0, 0, err
	}
	return t.Year(), t.Month(), t.Day(), nil
}

// stopTimeArrival/stopTimeDeparture wrap model.StopTime's duration
// parsing, returning the parse error for a malformed time so the search
// loop can skip that row rather than abort.
func stopTimeDeparture(st model.StopTime, date string, loc *time.Location) (time.Time, error) {
	d, err := st.DepartureTime()
	if err != nil {
		return time.Time{}, err
	}
	return absoluteTime(date, loc, d)
}

func stopTimeArrival(st model.StopTime, date string, loc *time.Location) (time.Time, error) {
	d, err := st.ArrivalTime()
	if err != nil {
		return time.Time{}, err
	}
	return absoluteTime(date, loc, d)
}
