package planner

import "context"

// validServicesOn returns the set of service ids active on date (a
// YYYYMMDD string), using and refreshing the Planner's single-date cache.
// The cache holds exactly one date's worth of data at a time: a search
// spanning midnight invalidates and rebuilds it when the date frontier
// advances, trading a little repeated work for a tiny, constant-size
// cache instead of an unbounded per-date map.
func (p *Planner) validServicesOn(ctx context.Context, date string) (map[string]bool, error) {
	if date == p.lastCachedDate && p.validServices != nil {
		return p.validServices, nil
	}

	ids, err := p.store.ActiveServices(ctx, date)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	p.lastCachedDate = date
	p.validServices = set
	return set, nil
}
