package planner

import (
	"context"
	"time"
)

// JourneyStep is one hydrated leg of an itinerary: either a ride on a
// single trip/route, or a pedestrian transfer.
type JourneyStep struct {
	Kind       edgeKind
	FromStopID string
	ToStopID   string
	FromName   string
	ToName     string
	Departure  time.Time
	Arrival    time.Time
	RouteID    string
	AgencyID   string
	Headsign   string
	TripID     string

	// FromSeq/ToSeq are the ride's boarding and alighting stop_sequence
	// values on TripID, used by Geometry to fetch the intermediate stops
	// between them. Unset for transfer steps.
	FromSeq uint32
	ToSeq   uint32
}

func reconstructPath(p *Planner, opts SearchOptions, departure time.Time, goal *node, predecessor map[string]*node) *Path {
	var chain []*node
	for n := goal; n != nil; {
		chain = append(chain, n)
		if n.kind == edgeStart {
			break
		}
		n = predecessor[n.stopID]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return &Path{
		Mode:      opts.Mode,
		Departure: departure,
		Arrival:   goal.arrival,
		RideCount: goal.rideCount,
		nodes:     chain,
	}
}

// Hydrate resolves a raw Path into human-facing JourneyStep records,
// merging consecutive ride nodes that share a trip id into a single step,
// resolving route/agency/headsign data, and dropping a leading or
// trailing step whose from/to stop names coincide (a degenerate
// zero-distance hop some feeds produce via duplicate stop rows at the
// same physical location).
func (p *Planner) Hydrate(ctx context.Context, path *Path) ([]JourneyStep, error) {
	var steps []JourneyStep

	i := 1 // nodes[0] is the start node, never a step on its own
	for i < len(path.nodes) {
		n := path.nodes[i]
		switch n.kind {
		case edgeRide:
			j := i
			for j+1 < len(path.nodes) && path.nodes[j+1].kind == edgeRide && path.nodes[j+1].tripID == n.tripID {
				j++
			}
			last := path.nodes[j]

			route, _ := p.store.Route(ctx, n.routeID)
			trip, _ := p.store.Trip(ctx, n.tripID)
			from, _ := p.store.Stop(ctx, path.nodes[i-1].stopID)
			to, _ := p.store.Stop(ctx, last.stopID)

			steps = append(steps, JourneyStep{
				Kind:       edgeRide,
				FromStopID: from.ID,
				ToStopID:   to.ID,
				FromName:   from.Name,
				ToName:     to.Name,
				RouteID:    route.ID,
				AgencyID:   route.AgencyID,
				Headsign:   trip.Headsign,
				TripID:     n.tripID,
				Departure:  path.nodes[i-1].arrival,
				Arrival:    last.arrival,
				FromSeq:    n.boardSeq,
				ToSeq:      last.seq,
			})
			i = j + 1

		case edgeTransfer:
			from, _ := p.store.Stop(ctx, path.nodes[i-1].stopID)
			to, _ := p.store.Stop(ctx, n.stopID)
			steps = append(steps, JourneyStep{
				Kind:       edgeTransfer,
				FromStopID: from.ID,
				ToStopID:   to.ID,
				FromName:   from.Name,
				ToName:     to.Name,
				Departure:  path.nodes[i-1].arrival,
				Arrival:    n.arrival,
			})
			i++

		default:
			i++
		}
	}

	return dropDegenerateEnds(steps), nil
}

// IsRide reports whether the step is a ride on a trip, as opposed to a
// pedestrian transfer.
func (s JourneyStep) IsRide() bool {
	return s.Kind == edgeRide
}

// dropDegenerateEnds removes a leading or trailing step whose boundary with
// the next/previous step shares a stop name — e.g. a transfer onto a
// platform-level stop record of the same station the ride already reached,
// which carries no information a rider needs.
func dropDegenerateEnds(steps []JourneyStep) []JourneyStep {
	for len(steps) > 1 && steps[0].FromName == steps[1].FromName {
		steps = steps[1:]
	}
	for len(steps) > 1 && steps[len(steps)-1].ToName == steps[len(steps)-2].ToName {
		steps = steps[:len(steps)-1]
	}
	return steps
}
