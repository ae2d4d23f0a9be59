package planner

import (
	"context"
	"fmt"
	"time"

	"transitplan.dev/core/storage"
)

// location resolves the timezone a search's time-of-day arithmetic runs
// in. A Planner can be pinned to a specific feed's timezone via
// SetLocation; absent that, every search runs in UTC, treating GTFS
// time-of-day values as already being in the zone the caller's departure
// time.Time uses. Cross-timezone journeys spanning feeds with different
// agency.txt timezones are a Non-goal.
func (p *Planner) location(ctx context.Context) (*time.Location, error) {
	if p.loc != nil {
		return p.loc, nil
	}
	return time.UTC, nil
}

// SetLocation pins the timezone used for service-day/time-of-day
// arithmetic, overriding the UTC default.
func (p *Planner) SetLocation(loc *time.Location) {
	p.loc = loc
}

// daySpan is one calendar day's departure-time query window, expressed in
// that day's own "HH:MM:SS" GTFS range (which may exceed 24:00:00 to cover
// a previous day's overflow trips), grounded on the teacher's
// static.go:rangePerDate.
type daySpan struct {
	Date  string
	Start string
	End   string
}

func gtfsTimeString(offset time.Duration) string {
	h := int(offset.Hours())
	m := int(offset.Minutes()) - h*60
	s := int(offset.Seconds()) - h*3600 - m*60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// daySpans computes, for each calendar day touched by [start, start+window],
// the "HH:MM:SS" departure range that must be queried on that day's
// stop_times — including the previous day's overflow trips when start
// falls in the first hours of a day.
func daySpans(start time.Time, window time.Duration, loc *time.Location) []daySpan {
	const maxOverflow = 30 * time.Hour // no GTFS feed runs a trip past hour 30
	end := start.Add(window)

	var spans []daySpan
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)

	for day := dayStart.AddDate(0, 0, -1); day.Before(end); day = day.AddDate(0, 0, 1) {
		tomorrow := day.AddDate(0, 0, 1)
		span := daySpan{Date: day.Format("20060102")}

		switch {
		case start.Before(day):
		case start.Before(tomorrow):
			span.Start = gtfsTimeString(start.Sub(day))
		default:
			offset := start.Sub(day)
			if offset > maxOverflow {
				continue
			}
			span.Start = gtfsTimeString(offset)
		}

		if end.Before(tomorrow) {
			span.End = gtfsTimeString(end.Sub(day))
		} else {
			offset := end.Sub(day)
			if offset <= maxOverflow {
				span.End = gtfsTimeString(offset)
			} else {
				span.End = gtfsTimeString(maxOverflow)
			}
		}

		spans = append(spans, span)
	}
	return spans
}

// rideCandidate is one reachable next-stop via boarding (or continuing) a
// trip at stopID no earlier than after.
type rideCandidate struct {
	tripID    string
	routeID   string
	headsign  string
	toStopID  string
	fromSeq   uint32
	toSeq     uint32
	departure time.Time
	arrival   time.Time
}

// rideNeighbours returns every trip departure from stopID within
// [after, after+window], each paired with the very next stop that trip
// calls at.
func (p *Planner) rideNeighbours(ctx context.Context, stopID string, after time.Time, window time.Duration) ([]rideCandidate, error) {
	loc, err := p.location(ctx)
	if err != nil {
		return nil, err
	}

	var out []rideCandidate
	for _, span := range daySpans(after, window, loc) {
		if span.Start == "" && span.End == "" {
			continue
		}
		valid, err := p.validServicesOn(ctx, span.Date)
		if err != nil {
			return nil, err
		}
		if len(valid) == 0 {
			continue
		}
		serviceIDs := make([]string, 0, len(valid))
		for id := range valid {
			serviceIDs = append(serviceIDs, id)
		}

		events, err := p.store.StopTimeEvents(ctx, storage.StopTimeEventFilter{
			StopID:         stopID,
			ServiceIDs:     serviceIDs,
			DirectionID:    -1,
			DepartureStart: span.Start,
			DepartureEnd:   span.End,
		})
		if err != nil {
			return nil, err
		}

		for _, ev := range events {
			departure, err := stopTimeDeparture(ev.StopTime, span.Date, loc)
			if err != nil || departure.Before(after) {
				continue
			}
			next, ok, err := p.store.NextStopTime(ctx, ev.Trip.ID, ev.StopTime.StopSequence)
			if err != nil || !ok {
				continue
			}
			arrival, err := stopTimeArrival(next, span.Date, loc)
			if err != nil {
				continue
			}
			headsign := ev.StopTime.Headsign
			if headsign == "" {
				headsign = ev.Trip.Headsign
			}
			out = append(out, rideCandidate{
				tripID:    ev.Trip.ID,
				routeID:   ev.Trip.RouteID,
				headsign:  headsign,
				toStopID:  next.StopID,
				fromSeq:   ev.StopTime.StopSequence,
				toSeq:     next.StopSequence,
				departure: departure,
				arrival:   arrival,
			})
		}
	}
	return out, nil
}
