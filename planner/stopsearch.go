package planner

import (
	"context"
	"sort"

	"golang.org/x/text/cases"

	"transitplan.dev/core/model"
)

var foldCase = cases.Fold()

// normalizeCityName case-folds s the Unicode-correct way rather than with
// strings.ToLower, since stop and city names in this corpus's overlapping
// European feeds are frequently non-ASCII.
func normalizeCityName(s string) string {
	return foldCase.String(s)
}

// SearchStop returns up to limit stops whose name matches query, ranked by
// the store's own prefix-over-substring ordering.
func (p *Planner) SearchStop(ctx context.Context, query string, limit int) ([]model.Stop, error) {
	return p.store.SearchStops(ctx, query, limit)
}

// SearchStopCustom is SearchStop re-ranked by p.cityPrefs: stops ingested
// from a city's preferred feed sort ahead of all other matches, and stops
// from a deprioritised feed sort behind all of them. Ranking is stable
// relative to the store's own ordering among stops the preference table
// doesn't distinguish.
func (p *Planner) SearchStopCustom(ctx context.Context, query string, limit int) ([]model.Stop, error) {
	stops, err := p.store.SearchStops(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(p.cityPrefs.Prefer) == 0 && len(p.cityPrefs.Deprioritize) == 0 {
		return stops, nil
	}

	type scored struct {
		stop  model.Stop
		score int
	}
	ranked := make([]scored, len(stops))
	for i, s := range stops {
		ranked[i] = scored{stop: s, score: p.cityPrefs.rank(query, s.ID)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	out := make([]model.Stop, len(ranked))
	for i, r := range ranked {
		out[i] = r.stop
	}
	return out, nil
}
