package planner

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrontier_OrdersByFThenTiebreakTuple(t *testing.T) {
	now := time.Now()

	fr := &frontier{}
	heap.Init(fr)
	heap.Push(fr, &node{stopID: "B", f: 10, arrival: now})
	heap.Push(fr, &node{stopID: "A", f: 10, arrival: now})
	heap.Push(fr, &node{stopID: "Z", f: 5, arrival: now})

	first := heap.Pop(fr).(*node)
	require.Equal(t, "Z", first.stopID) // lowest f wins regardless of stop id

	second := heap.Pop(fr).(*node)
	require.Equal(t, "A", second.stopID) // equal f, tie-broken by stop id

	third := heap.Pop(fr).(*node)
	require.Equal(t, "B", third.stopID)
}

func TestFrontier_TiebreaksByArrivalThenRideCount(t *testing.T) {
	earlier := time.Now()
	later := earlier.Add(time.Minute)

	fr := &frontier{}
	heap.Init(fr)
	heap.Push(fr, &node{stopID: "S", f: 1, arrival: later, rideCount: 0})
	heap.Push(fr, &node{stopID: "S", f: 1, arrival: earlier, rideCount: 5})

	first := heap.Pop(fr).(*node)
	require.True(t, first.arrival.Equal(earlier))
}
