package planner

import (
	"container/heap"
	"context"
	"time"

	"transitplan.dev/core/model"
	"transitplan.dev/core/storage"
)

// Path is the result of a successful Search: the raw stop-by-stop route,
// before step hydration collapses consecutive same-trip hops into rides.
type Path struct {
	Mode      Mode
	Departure time.Time
	Arrival   time.Time
	RideCount int
	nodes     []*node // start .. goal, inclusive
}

// Search runs the time-dependent A* described in SPEC_FULL.md §4.4.5 from
// fromStopID to toStopID, departing no earlier than departure.
func (p *Planner) Search(ctx context.Context, fromStopID, toStopID string, departure time.Time, opts SearchOptions) (*Path, error) {
	opts = opts.withDefaults()

	dest, err := p.store.Stop(ctx, toStopID)
	if err != nil {
		return nil, ErrInvalidInput
	}
	if _, err := p.store.Stop(ctx, fromStopID); err != nil {
		return nil, ErrInvalidInput
	}

	h := func(n *node) float64 { return p.heuristic(ctx, n, dest, departure, opts) }

	start := &node{stopID: fromStopID, arrival: departure, kind: edgeStart}
	start.f = h(start)

	fr := &frontier{start}
	heap.Init(fr)

	bestCost := map[string]float64{fromStopID: start.f}
	predecessor := map[string]*node{}
	visited := map[string]bool{}

	deadline := time.Now().Add(opts.Budget)
	pops := 0

	for fr.Len() > 0 {
		n := heap.Pop(fr).(*node)
		pops++
		if pops%pumpEvery == 0 && time.Now().After(deadline) {
			return nil, ErrNoPath
		}
		if visited[n.stopID] {
			continue
		}
		visited[n.stopID] = true

		if opts.OnProgress != nil && p.progressLimiter.Allow() {
			opts.OnProgress(ProgressSnapshot{
				BestStopID:   n.stopID,
				BestArrival:  n.arrival,
				RidesSoFar:   n.rideCount,
				FrontierSize: fr.Len(),
			})
		}

		if n.stopID == toStopID {
			return reconstructPath(p, opts, departure, n, predecessor), nil
		}

		if n.rideCount > opts.MaxRides {
			continue
		}

		for _, cand := range p.expand(ctx, n, opts) {
			if visited[cand.stopID] {
				continue
			}
			cand.f = h(cand)

			if prevBest, seen := bestCost[cand.stopID]; seen && cand.f >= prevBest {
				continue
			}

			bestCost[cand.stopID] = cand.f
			predecessor[cand.stopID] = n
			heap.Push(fr, cand)
		}
	}

	return nil, ErrNoPath
}

// expand returns every node reachable from n by either boarding/continuing
// a ride or taking a pedestrian transfer.
func (p *Planner) expand(ctx context.Context, n *node, opts SearchOptions) []*node {
	var out []*node

	window := opts.Window
	rides, err := p.rideNeighbours(ctx, n.stopID, n.arrival, window)
	for err == nil && len(rides) == 0 && window < opts.MaxWindow {
		window *= 2
		if window > opts.MaxWindow {
			window = opts.MaxWindow
		}
		rides, err = p.rideNeighbours(ctx, n.stopID, n.arrival, window)
	}
	if err == nil {
		for _, r := range rides {
			rideCount := n.rideCount
			if n.kind != edgeRide || n.tripID != r.tripID {
				rideCount++
			}
			out = append(out, &node{
				stopID:      r.toStopID,
				arrival:     r.arrival,
				rideCount:   rideCount,
				transferAcc: n.transferAcc,
				kind:        edgeRide,
				tripID:      r.tripID,
				routeID:     r.routeID,
				fromID:      n.stopID,
				boardSeq:    r.fromSeq,
				seq:         r.toSeq,
			})
		}
	}

	if transfers, err := p.store.TransfersFrom(ctx, n.stopID); err == nil {
		for _, t := range transfers {
			dur := time.Duration(t.MinTransferTime) * time.Second
			out = append(out, &node{
				stopID:      t.ToStopID,
				arrival:     n.arrival.Add(dur),
				rideCount:   n.rideCount,
				transferAcc: n.transferAcc + dur,
				kind:        edgeTransfer,
				fromID:      n.stopID,
			})
		}
	}

	return out
}

// heuristic computes f(n) = g(n) + h(n) in seconds. g is elapsed wall
// time since departure; h is an inadmissible estimate combining remaining
// great-circle distance (at an optimistic assumed speed) with a
// "convenience" penalty for accumulated rides and transfer time — the
// penalty is what makes h inadmissible, since it can outweigh genuine
// time savings and bias the search toward fewer, calmer transfers instead
// of strictly-earliest arrival.
func (p *Planner) heuristic(ctx context.Context, n *node, dest model.Stop, departure time.Time, opts SearchOptions) float64 {
	g := n.arrival.Sub(departure).Seconds()

	remainingKM := 0.0
	if from, err := p.store.Stop(ctx, n.stopID); err == nil {
		remainingKM = storage.HaversineDistance(from.Lat, from.Lon, dest.Lat, dest.Lon)
	}
	remainingSeconds := remainingKM / assumedSpeedKMH * 3600

	pRide := opts.PBase.Seconds() * (1 + float64(n.rideCount)/10)
	convenience := float64(n.rideCount)*pRide + n.transferAcc.Seconds()*opts.PTransfer

	return g + remainingSeconds + convenience
}
