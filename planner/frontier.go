package planner

import (
	"container/heap"
	"time"
)

// edgeKind distinguishes how a node was reached, for step hydration.
type edgeKind int

const (
	edgeStart edgeKind = iota
	edgeRide
	edgeTransfer
)

// node is one frontier entry: a stop reached at a given time via a given
// predecessor edge.
type node struct {
	stopID      string
	arrival     time.Time
	rideCount   int
	transferAcc time.Duration

	f float64 // priority: g + h, in seconds

	kind    edgeKind
	tripID  string
	routeID string
	fromID  string // predecessor stop id

	// boardSeq/seq are this ride edge's boarding and arrival stop_sequence
	// values on tripID, used by Hydrate to recover a merged ride's
	// from/to sequence range for geometry assembly. Unset for non-ride
	// nodes.
	boardSeq uint32
	seq      uint32

	index int // heap bookkeeping
}

// frontier orders nodes by (f, stop_id, arrival_time, ride_count,
// accumulated_transfer), ascending — the tie-break tuple keeps the search
// deterministic across runs with identical input, which matters for
// reproducible tests.
type frontier []*node

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	a, b := f[i], f[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.stopID != b.stopID {
		return a.stopID < b.stopID
	}
	if !a.arrival.Equal(b.arrival) {
		return a.arrival.Before(b.arrival)
	}
	if a.rideCount != b.rideCount {
		return a.rideCount < b.rideCount
	}
	return a.transferAcc < b.transferAcc
}

func (f frontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].index = i
	f[j].index = j
}

func (f *frontier) Push(x interface{}) {
	n := x.(*node)
	n.index = len(*f)
	*f = append(*f, n)
}

func (f *frontier) Pop() interface{} {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*f = old[:n-1]
	return item
}

var _ heap.Interface = (*frontier)(nil)
