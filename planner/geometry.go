package planner

import (
	"context"

	"github.com/paulmach/go.geojson"
	"github.com/twpayne/go-polyline"
)

// LatLon is one point of an itinerary's assembled geometry.
type LatLon struct {
	Lat float64
	Lon float64
}

// Geometry assembles the rider-facing line for a single JourneyStep: for a
// ride, the ordered lat/lon of the stops the trip calls at between (and
// including) its boarding and alighting stops; falling back to the trip's
// shapes.txt polyline when the stop_times rows can't be resolved, and to a
// straight line between the step's two stops for transfers and shape-less,
// stop-less rides.
func (p *Planner) Geometry(ctx context.Context, step JourneyStep) ([]LatLon, error) {
	if step.Kind == edgeRide && step.TripID != "" {
		points, err := p.rideStopGeometry(ctx, step)
		if err == nil && len(points) > 1 {
			return points, nil
		}
		if trip, err := p.tripShape(ctx, step.TripID); err == nil && len(trip) > 1 {
			return trip, nil
		}
	}

	from, err := p.store.Stop(ctx, step.FromStopID)
	if err != nil {
		return nil, err
	}
	to, err := p.store.Stop(ctx, step.ToStopID)
	if err != nil {
		return nil, err
	}
	return dedupe([]LatLon{{from.Lat, from.Lon}, {to.Lat, to.Lon}}), nil
}

// rideStopGeometry resolves a ride step's geometry from the boarding stop,
// every intermediate stop_times row strictly between its from/to
// sequences, and the alighting stop.
func (p *Planner) rideStopGeometry(ctx context.Context, step JourneyStep) ([]LatLon, error) {
	from, err := p.store.Stop(ctx, step.FromStopID)
	if err != nil {
		return nil, err
	}
	to, err := p.store.Stop(ctx, step.ToStopID)
	if err != nil {
		return nil, err
	}

	points := []LatLon{{Lat: from.Lat, Lon: from.Lon}}
	mids, err := p.store.IntermediateStops(ctx, step.TripID, step.FromSeq, step.ToSeq)
	if err != nil {
		return nil, err
	}
	for _, s := range mids {
		points = append(points, LatLon{Lat: s.Lat, Lon: s.Lon})
	}
	points = append(points, LatLon{Lat: to.Lat, Lon: to.Lon})
	return dedupe(points), nil
}

func (p *Planner) tripShape(ctx context.Context, tripID string) ([]LatLon, error) {
	trip, err := p.store.Trip(ctx, tripID)
	if err != nil || trip.ShapeID == "" {
		return nil, err
	}
	points, err := p.store.ShapePoints(ctx, trip.ShapeID)
	if err != nil {
		return nil, err
	}
	out := make([]LatLon, len(points))
	for i, pt := range points {
		out[i] = LatLon{Lat: pt.Lat, Lon: pt.Lon}
	}
	return dedupe(out), nil
}

// dedupe collapses a run of consecutive identical points, which otherwise
// appear at every join between steps that share a stop.
func dedupe(points []LatLon) []LatLon {
	out := points[:0:0]
	for i, pt := range points {
		if i > 0 && pt == points[i-1] {
			continue
		}
		out = append(out, pt)
	}
	return out
}

// EncodePolyline encodes points using Google's polyline algorithm, for
// collaborators (map-rendering GUIs) that want a compact wire format
// rather than a JSON array of floats.
func EncodePolyline(points []LatLon) string {
	coords := make([][]float64, len(points))
	for i, pt := range points {
		coords[i] = []float64{pt.Lat, pt.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// GeometryToGeoJSON renders points as a GeoJSON LineString Feature, for
// collaborators wanting a standards-based export (a debugging map viewer,
// or handing a route to an external GIS tool). GeoJSON coordinate order is
// [lon, lat], the reverse of LatLon's field order.
func GeometryToGeoJSON(points []LatLon) *geojson.Feature {
	line := make([][]float64, len(points))
	for i, pt := range points {
		line[i] = []float64{pt.Lon, pt.Lat}
	}
	return geojson.NewLineStringFeature(line)
}
