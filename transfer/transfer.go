// Package transfer synthesizes pedestrian transfers between nearby stops
// that a feed didn't already declare, grounded on
// original_source/transfer_generator.py: a spatial index over stops,
// parallel bounding-box queries per worker, Haversine-filtered pair
// emission, and a single serialized batched write.
package transfer

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"transitplan.dev/core/model"
	"transitplan.dev/core/storage"
)

// defaultExcludedPrefixes mirrors transfer_generator.py's
// EXCLUDED_PREFIXES: feeds whose own stop data is already exhaustive about
// pedestrian connections, so synthesizing more would only add noise.
var defaultExcludedPrefixes = []string{"IDFM", "de", "NSR", "cz", "ch", "pl"}

// Options configures a transfer Build pass.
type Options struct {
	MaxDistanceM     float64
	TimeSec          int
	ExcludedPrefixes []string
	ProgressEvery    int
}

func (o Options) withDefaults() Options {
	if o.MaxDistanceM == 0 {
		o.MaxDistanceM = 100
	}
	if o.TimeSec == 0 {
		o.TimeSec = 120
	}
	if o.ExcludedPrefixes == nil {
		o.ExcludedPrefixes = defaultExcludedPrefixes
	}
	if o.ProgressEvery == 0 {
		o.ProgressEvery = 1000
	}
	return o
}

// ProgressFunc is called with (stopsProcessed, totalStops) once every
// ProgressEvery stops processed, counted across all workers together.
type ProgressFunc func(done, total int)

// Builder synthesizes and writes pedestrian transfers.
type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.withDefaults()}
}

type pair struct {
	from, to string
	distM    float64
}

// Build computes synthetic transfers for every stop pair within
// MaxDistanceM of each other (excluding pairs already present, and pairs
// where both stops belong to one of ExcludedPrefixes' feeds), and writes
// both directions as a single batch. No partial write occurs if any worker
// fails: the whole pass aborts before the insert transaction begins.
func (b *Builder) Build(ctx context.Context, store storage.Store, progress ProgressFunc) error {
	idx, err := store.SpatialIndex(ctx)
	if err != nil {
		return fmt.Errorf("building spatial index: %w", err)
	}

	existing, err := store.AllTransferPairs(ctx)
	if err != nil {
		return fmt.Errorf("loading existing transfers: %w", err)
	}

	stops, err := store.Stops(ctx)
	if err != nil {
		return fmt.Errorf("listing stops: %w", err)
	}
	if len(stops) == 0 {
		return nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(stops) {
		numWorkers = len(stops)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunkSize := (len(stops) + numWorkers - 1) / numWorkers

	var (
		mu       sync.Mutex
		allPairs []pair
		done     int32
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(stops) {
			end = len(stops)
		}
		if start >= end {
			continue
		}
		chunk := stops[start:end]

		g.Go(func() error {
			local := processChunk(gctx, idx, chunk, existing, b.opts, &done, len(stops), progress)
			mu.Lock()
			allPairs = append(allPairs, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("transfer worker failed: %w", err)
	}

	canonical := map[[2]string]float64{}
	for _, p := range allPairs {
		from, to := p.from, p.to
		if from > to {
			from, to = to, from
		}
		key := [2]string{from, to}
		if d, ok := canonical[key]; !ok || p.distM < d {
			canonical[key] = p.distM
		}
	}

	if err := store.BeginTransfers(ctx); err != nil {
		return fmt.Errorf("beginning transfer write: %w", err)
	}
	for key := range canonical {
		t1 := model.Transfer{FromStopID: key[0], ToStopID: key[1], TransferType: model.TransferTypeMinimumTime, MinTransferTime: b.opts.TimeSec}
		t2 := model.Transfer{FromStopID: key[1], ToStopID: key[0], TransferType: model.TransferTypeMinimumTime, MinTransferTime: b.opts.TimeSec}
		if err := store.WriteTransfer(ctx, t1); err != nil {
			return fmt.Errorf("writing transfer: %w", err)
		}
		if err := store.WriteTransfer(ctx, t2); err != nil {
			return fmt.Errorf("writing transfer: %w", err)
		}
	}
	return store.EndTransfers(ctx)
}

func processChunk(
	ctx context.Context,
	idx *storage.SpatialIndex,
	chunk []model.Stop,
	existing map[[2]string]struct{},
	opts Options,
	done *int32,
	total int,
	progress ProgressFunc,
) []pair {
	var out []pair

	for _, s := range chunk {
		if ctx.Err() != nil {
			return out
		}

		candidates := idx.Query(s.Lat, s.Lon, opts.MaxDistanceM)
		for _, c := range candidates {
			if c.ID == s.ID {
				continue
			}
			if excludedPair(s.ID, c.ID, opts.ExcludedPrefixes) {
				continue
			}
			if _, ok := existing[[2]string{s.ID, c.ID}]; ok {
				continue
			}
			if _, ok := existing[[2]string{c.ID, s.ID}]; ok {
				continue
			}

			d := storage.HaversineDistance(s.Lat, s.Lon, c.Lat, c.Lon) * 1000
			if d <= opts.MaxDistanceM {
				out = append(out, pair{from: s.ID, to: c.ID, distM: d})
			}
		}

		n := atomic.AddInt32(done, 1)
		if progress != nil && n%int32(opts.ProgressEvery) == 0 {
			progress(int(n), total)
		}
	}

	return out
}

// excludedPair reports whether both stops belong to the same excluded
// prefix's feed — a feed with exhaustive transfer data of its own shouldn't
// have synthetic noise added within itself. A stop id is
// "{feed_index:02}/{raw_id}"; raw_id is checked against each excluded
// prefix, and the pair is only excluded when both sides match the *same*
// prefix — a "de"-prefixed stop and a "ch"-prefixed stop are a legitimate
// cross-feed candidate, not an intra-feed one.
func excludedPair(aID, bID string, excluded []string) bool {
	for _, p := range excluded {
		if hasPrefix(aID, p) && hasPrefix(bID, p) {
			return true
		}
	}
	return false
}

func hasPrefix(stopID, prefix string) bool {
	parts := strings.SplitN(stopID, "/", 2)
	if len(parts) != 2 {
		return false
	}
	return strings.HasPrefix(parts[1], prefix)
}
