package transfer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"transitplan.dev/core/model"
	"transitplan.dev/core/testutil"
	"transitplan.dev/core/transfer"
)

func TestBuild_WritesBidirectionalTransferForNearbyStops(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/A", Name: "A", Lat: 48.85000, Lon: 2.35000}))
	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/B", Name: "B", Lat: 48.85010, Lon: 2.35000})) // ~11m north

	b := transfer.NewBuilder(transfer.Options{})
	require.NoError(t, b.Build(ctx, store, nil))

	from, err := store.TransfersFrom(ctx, "00/A")
	require.NoError(t, err)
	require.Len(t, from, 1)
	require.Equal(t, "00/B", from[0].ToStopID)
	require.Equal(t, 120, from[0].MinTransferTime)
	require.Equal(t, model.TransferTypeMinimumTime, from[0].TransferType)

	back, err := store.TransfersFrom(ctx, "00/B")
	require.NoError(t, err)
	require.Len(t, back, 1)
	require.Equal(t, "00/A", back[0].ToStopID)
}

func TestBuild_SkipsStopsBeyondMaxDistance(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/A", Name: "A", Lat: 48.85, Lon: 2.35}))
	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/B", Name: "B", Lat: 40.0, Lon: -70.0}))

	b := transfer.NewBuilder(transfer.Options{})
	require.NoError(t, b.Build(ctx, store, nil))

	from, err := store.TransfersFrom(ctx, "00/A")
	require.NoError(t, err)
	require.Empty(t, from)
}

func TestBuild_ExcludesIntraFeedPairsOfExcludedPrefix(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/IDFM:A", Name: "A", Lat: 48.85000, Lon: 2.35000}))
	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/IDFM:B", Name: "B", Lat: 48.85010, Lon: 2.35000}))

	b := transfer.NewBuilder(transfer.Options{})
	require.NoError(t, b.Build(ctx, store, nil))

	from, err := store.TransfersFrom(ctx, "00/IDFM:A")
	require.NoError(t, err)
	require.Empty(t, from)
}

func TestBuild_DoesNotExcludeCrossPrefixPair(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	ctx := context.Background()

	// Each side matches a different excluded prefix ("de" and "ch"), so
	// the pair is a legitimate cross-feed candidate, not an intra-feed one.
	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/de:A", Name: "A", Lat: 48.85000, Lon: 2.35000}))
	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/ch:B", Name: "B", Lat: 48.85010, Lon: 2.35000}))

	b := transfer.NewBuilder(transfer.Options{})
	require.NoError(t, b.Build(ctx, store, nil))

	from, err := store.TransfersFrom(ctx, "00/de:A")
	require.NoError(t, err)
	require.Len(t, from, 1)
	require.Equal(t, "00/ch:B", from[0].ToStopID)
}

func TestBuild_DoesNotDuplicateExistingTransfer(t *testing.T) {
	store := testutil.BuildStore(t, "sqlite")
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/A", Name: "A", Lat: 48.85000, Lon: 2.35000}))
	require.NoError(t, store.WriteStop(ctx, model.Stop{ID: "00/B", Name: "B", Lat: 48.85010, Lon: 2.35000}))

	require.NoError(t, store.BeginTransfers(ctx))
	require.NoError(t, store.WriteTransfer(ctx, model.Transfer{FromStopID: "00/A", ToStopID: "00/B", TransferType: model.TransferTypeRecommended, MinTransferTime: 60}))
	require.NoError(t, store.EndTransfers(ctx))

	b := transfer.NewBuilder(transfer.Options{})
	require.NoError(t, b.Build(ctx, store, nil))

	from, err := store.TransfersFrom(ctx, "00/A")
	require.NoError(t, err)
	require.Len(t, from, 1)
	require.Equal(t, 60, from[0].MinTransferTime) // the feed-supplied row was preserved, not duplicated

	// The reverse direction wasn't declared by the feed, but the pair is
	// still considered pre-existing on both sides, so no new (B,A) row
	// should have been synthesized either.
	back, err := store.TransfersFrom(ctx, "00/B")
	require.NoError(t, err)
	require.Empty(t, back)
}
