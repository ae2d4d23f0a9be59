package storage

import (
	"context"
	"math"

	"github.com/tidwall/rtree"

	"transitplan.dev/core/model"
)

// SpatialIndex is an in-process R-tree over every ingested stop's lat/lon,
// used by the transfer builder for proximity queries. Each
// Store.SpatialIndex() call builds a new one from the Store's current
// stops; an index does not reflect stops written after it was built.
type SpatialIndex struct {
	tr    rtree.RTreeG[model.Stop]
	count int
}

// NewSpatialIndex builds an index over stops.
func NewSpatialIndex(stops []model.Stop) *SpatialIndex {
	idx := &SpatialIndex{}
	for _, s := range stops {
		idx.tr.Insert([2]float64{s.Lon, s.Lat}, [2]float64{s.Lon, s.Lat}, s)
		idx.count++
	}
	return idx
}

// Len returns the number of stops indexed.
func (s *SpatialIndex) Len() int { return s.count }

// BoundingBox returns the lat/lon delta (in degrees) such that every point
// within distanceM meters of (lat, lon) lies within the resulting box, per
// the equirectangular approximation used throughout GTFS tooling.
func BoundingBox(lat, distanceM float64) (deltaLat, deltaLon float64) {
	deltaLat = distanceM / 111320.0
	deltaLon = distanceM / (40075000.0 * math.Cos(lat*math.Pi/180) / 360.0)
	return
}

// Query returns every stop within the bounding box around (lat, lon) sized
// for distanceM meters, without filtering by exact distance — callers
// should apply HaversineDistance themselves to discard corner false
// positives from the box approximation.
func (s *SpatialIndex) Query(lat, lon, distanceM float64) []model.Stop {
	dLat, dLon := BoundingBox(lat, distanceM)
	min := [2]float64{lon - dLon, lat - dLat}
	max := [2]float64{lon + dLon, lat + dLat}

	var out []model.Stop
	s.tr.Search(min, max, func(_, _ [2]float64, stop model.Stop) bool {
		out = append(out, stop)
		return true
	})
	return out
}

// Nearest returns up to limit stops closest to (lat, lon), expanding the
// search radius geometrically until enough candidates are found, giving up
// after the first query whose radius exceeds 160 km (256 km). limit <= 0
// means no limit: it returns every stop only when all of them lie within
// that last radius; stops farther away are not returned.
func Nearest(ctx context.Context, idx *SpatialIndex, lat, lon float64, limit int) []model.Stop {
	radius := 250.0
	var candidates []model.Stop
	for {
		candidates = idx.Query(lat, lon, radius)
		if (limit <= 0 && len(candidates) >= idx.Len()) || (limit > 0 && len(candidates) >= limit) || radius > 160000 {
			break
		}
		radius *= 4
	}

	type ranked struct {
		stop model.Stop
		dist float64
	}
	rs := make([]ranked, len(candidates))
	for i, c := range candidates {
		rs[i] = ranked{c, HaversineDistance(lat, lon, c.Lat, c.Lon)}
	}
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].dist < rs[j-1].dist; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}

	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	out := make([]model.Stop, len(rs))
	for i, r := range rs {
		out[i] = r.stop
	}
	return out
}
