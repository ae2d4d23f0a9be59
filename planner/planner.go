// Package planner answers journey queries against a storage.Store:
// stop name search, time-dependent A* route search, step hydration and
// geometry assembly. A Planner instance caches per-date service validity
// and is not safe for concurrent use — callers needing concurrency should
// create one Planner per goroutine.
package planner

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"transitplan.dev/core/storage"
)

var (
	// ErrNoPath covers both "search exhausted the frontier" and "search
	// exceeded its wall-clock budget" — callers cannot and need not tell
	// the two apart.
	ErrNoPath = errors.New("no path found")

	// ErrInvalidInput is returned when the origin or destination stop id
	// is not in the store. A departure time outside every feed's
	// calendar range is not detected and ends in ErrNoPath.
	ErrInvalidInput = errors.New("invalid input")
)

// Mode selects the cost-weighting regime for the search heuristic.
type Mode int

const (
	ModeFastest Mode = iota
	ModeLeastTransfers
)

// assumedSpeedKMH stands in for a rider's walking/waiting-adjusted average
// progress rate when estimating remaining travel time for the heuristic.
// It is higher than most modes' real average speed, so the distance term
// on its own tends to underestimate remaining time; the heuristic's
// inadmissibility comes from the convenience penalty added on top.
const assumedSpeedKMH = 100.0

// modeParams are the per-mode tuning constants feeding the heuristic's
// "convenience" penalty, which trades strict arrival-time optimality for
// itineraries with fewer, shorter transfers.
type modeParams struct {
	// pBase is the convenience penalty charged per ride taken.
	pBase time.Duration
	// pTransfer is the multiplier applied to accumulated transfer
	// (walking) time when folded into the heuristic.
	pTransfer float64
	// maxRides caps ride_count before a path is pruned outright.
	maxRides int
}

var modeDefaults = map[Mode]modeParams{
	ModeFastest:        {pBase: 3 * time.Minute, pTransfer: 1.5, maxRides: 20},
	ModeLeastTransfers: {pBase: 5 * time.Minute, pTransfer: 2.0, maxRides: 5},
}

// SearchOptions configures a single journey_search call.
type SearchOptions struct {
	Mode Mode

	// Window is how far past Departure the ride-neighbour expansion
	// looks for departures before giving up on a stop; it doubles (up
	// to MaxWindow) when no onward ride is found in range.
	Window    time.Duration
	MaxWindow time.Duration

	// Budget bounds search wall-clock time; zero means DefaultBudget.
	Budget time.Duration

	// Overrides for modeDefaults, zero value means "use the mode's
	// default".
	PBase     time.Duration
	PTransfer float64
	MaxRides  int

	OnProgress ProgressFunc
}

const (
	DefaultWindow    = time.Hour
	DefaultMaxWindow = 5 * time.Hour
	DefaultBudget    = 10 * time.Second

	// pumpEvery is how many frontier pops elapse between budget checks,
	// avoiding a time.Now() call on every pop.
	pumpEvery = 1000
)

func (o SearchOptions) withDefaults() SearchOptions {
	p := modeDefaults[o.Mode]
	if o.Window == 0 {
		o.Window = DefaultWindow
	}
	if o.MaxWindow == 0 {
		o.MaxWindow = DefaultMaxWindow
	}
	if o.Budget == 0 {
		o.Budget = DefaultBudget
	}
	if o.PBase == 0 {
		o.PBase = p.pBase
	}
	if o.PTransfer == 0 {
		o.PTransfer = p.pTransfer
	}
	if o.MaxRides == 0 {
		o.MaxRides = p.maxRides
	}
	return o
}

// ProgressFunc receives a snapshot of the search's current best partial
// path. It must not block; Planner rate-limits calls to at most one per
// 40ms regardless of how often the search loop would otherwise invoke it.
type ProgressFunc func(ProgressSnapshot)

// ProgressSnapshot is an immutable view of in-progress search state.
type ProgressSnapshot struct {
	BestStopID      string
	BestArrival     time.Time
	RidesSoFar      int
	FrontierSize    int
}

// Planner answers queries against store. Not safe for concurrent use.
type Planner struct {
	store storage.Store

	lastCachedDate string
	validServices  map[string]bool

	cityPrefs CityPreferences
	loc       *time.Location

	progressLimiter *rate.Limiter
}

// New returns a Planner over store. prefs may be the zero value.
func New(store storage.Store, prefs CityPreferences) *Planner {
	return &Planner{
		store:           store,
		cityPrefs:       prefs,
		progressLimiter: rate.NewLimiter(rate.Every(40*time.Millisecond), 1),
	}
}
