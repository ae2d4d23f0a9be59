// Package ingest reads GTFS feed archives and writes their contents into a
// storage.Store, namespacing every identifier by the feed's ordinal
// position so that overlapping feeds never collide.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	pkgerrors "github.com/pkg/errors"
	"github.com/spkg/bom"

	"transitplan.dev/core/model"
	"transitplan.dev/core/storage"
	"transitplan.dev/core/transfer"
)

var (
	// ErrMalformedFeed is returned when a feed archive is not a readable
	// zip or is missing a required file. A file that fails to parse is
	// logged and skipped, not returned.
	ErrMalformedFeed = errors.New("malformed feed")

	// ErrNetworkUnavailable is returned by a feed source opener when the
	// archive can't be fetched, including the http(s) opener that
	// LoadFeedConfig builds for URL locations.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// requiredFiles are the GTFS files without which a feed cannot be ingested.
var requiredFiles = []string{"agency.txt", "stops.txt", "routes.txt", "trips.txt", "stop_times.txt"}

// optionalFiles are tolerated but not required. calendar.txt/calendar_dates.txt
// are handled specially: at least one of the two must be present.
var optionalFiles = []string{"calendar.txt", "calendar_dates.txt", "transfers.txt", "shapes.txt", "feed_info.txt"}

func init() {
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// FeedSource names one entry of the ingestion config: a feed name and a
// function that opens its archive for reading.
type FeedSource struct {
	Name   string
	Opener func(ctx context.Context) (io.ReadCloser, int64, error)
}

// Ingestor loads GTFS feed archives into a Store.
type Ingestor struct {
	store storage.Store
	log   *slog.Logger
}

// New returns an Ingestor writing to store. A nil logger falls back to
// slog.Default().
func New(store storage.Store, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{store: store, log: log}
}

// Options configures LoadAndPrepare.
type Options struct {
	TransferMaxDistanceM  float64
	TransferTimeSec       int
	TransferProgressEvery int
}

func (o Options) withDefaults() Options {
	if o.TransferMaxDistanceM == 0 {
		o.TransferMaxDistanceM = 100
	}
	if o.TransferTimeSec == 0 {
		o.TransferTimeSec = 120
	}
	if o.TransferProgressEvery == 0 {
		o.TransferProgressEvery = 1000
	}
	return o
}

// LoadAndPrepare ensures schema, resets the store, ingests every source in
// order (continuing past a malformed individual feed), builds synthetic
// transfers, and records the updated_at metadata timestamp.
func (ig *Ingestor) LoadAndPrepare(ctx context.Context, sources []FeedSource, opts Options) error {
	opts = opts.withDefaults()
	runID := uuid.NewString()
	log := ig.log.With(slog.String("run_id", runID))

	if err := ig.store.EnsureSchema(ctx); err != nil {
		return pkgerrors.Wrap(err, "ensuring schema")
	}
	if err := ig.store.Reset(ctx, false); err != nil {
		return pkgerrors.Wrap(err, "resetting store")
	}

	for i, src := range sources {
		rc, size, err := src.Opener(ctx)
		if err != nil {
			log.Error("opening feed source", "feed", src.Name, "index", i, "error", err)
			continue
		}

		err = ig.IngestFeed(ctx, i, src.Name, rc, size)
		rc.Close()
		if err != nil {
			log.Error("ingesting feed", "feed", src.Name, "index", i, "error", err)
			continue
		}
		log.Info("ingested feed", "feed", src.Name, "index", i)
	}

	builder := transfer.NewBuilder(transfer.Options{
		MaxDistanceM:  opts.TransferMaxDistanceM,
		TimeSec:       opts.TransferTimeSec,
		ProgressEvery: opts.TransferProgressEvery,
	})
	if err := builder.Build(ctx, ig.store, nil); err != nil {
		return pkgerrors.Wrap(err, "building transfers")
	}

	if err := ig.store.SetMetadata(ctx, "updated_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return pkgerrors.Wrap(err, "writing updated_at")
	}

	return nil
}

// Update runs LoadAndPrepare if the store has never been loaded, if
// updated_at is more than 24h old, or if force is set.
func (ig *Ingestor) Update(ctx context.Context, sources []FeedSource, opts Options, force bool) error {
	if !force {
		v, err := ig.store.GetMetadata(ctx, "updated_at")
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return pkgerrors.Wrap(err, "reading updated_at")
		}
		if err == nil {
			updatedAt, parseErr := time.Parse(time.RFC3339, v)
			if parseErr == nil && time.Since(updatedAt) < 24*time.Hour {
				ig.log.Info("store is fresh, skipping update", "updated_at", v)
				return nil
			}
		}
	}
	return ig.LoadAndPrepare(ctx, sources, opts)
}

// IngestFeed streams one feed archive's CSV files into the store,
// rewriting every cross-feed identifier as "{index:02}/{raw}".
func (ig *Ingestor) IngestFeed(ctx context.Context, index int, name string, r io.Reader, size int64) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return pkgerrors.Wrap(err, "reading feed archive")
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("%w: opening zip: %v", ErrMalformedFeed, err)
	}

	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}

	for _, req := range requiredFiles {
		if _, ok := files[req]; !ok {
			return fmt.Errorf("%w: missing required file %s", ErrMalformedFeed, req)
		}
	}
	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		return fmt.Errorf("%w: missing calendar.txt or calendar_dates.txt", ErrMalformedFeed)
	}

	prefix := func(id string) string {
		if id == "" {
			return ""
		}
		return fmt.Sprintf("%02d/%s", index, id)
	}

	open := func(name string) (io.ReadCloser, bool, error) {
		f, ok := files[name]
		if !ok {
			return nil, false, nil
		}
		rc, err := f.Open()
		return rc, true, err
	}

	// Each file is ingested independently: a malformed file is logged and
	// skipped, but does not abort the rest of the archive. Only the
	// required-file-presence checks above are feed-fatal.
	steps := []struct {
		file string
		fn   func() error
	}{
		{"agency.txt", func() error { return ig.ingestAgency(ctx, open, prefix) }},
		{"stops.txt", func() error { return ig.ingestStops(ctx, open, prefix) }},
		{"routes.txt", func() error { return ig.ingestRoutes(ctx, open, prefix) }},
		{"calendar.txt", func() error { return ig.ingestCalendar(ctx, open, prefix) }},
		{"calendar_dates.txt", func() error { return ig.ingestCalendarDates(ctx, open, prefix) }},
		{"trips.txt", func() error { return ig.ingestTrips(ctx, open, prefix) }},
		{"stop_times.txt", func() error { return ig.ingestStopTimes(ctx, open, prefix) }},
		{"transfers.txt", func() error { return ig.ingestTransfers(ctx, open, prefix) }},
		{"shapes.txt", func() error { return ig.ingestShapes(ctx, open, prefix) }},
		{"feed_info.txt", func() error { return ig.ingestFeedInfo(ctx, open, index) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			ig.log.Error("skipping malformed file", "feed", name, "file", s.file, "error", err)
		}
	}

	ig.log.Debug("ingested feed archive", "feed", name, "bytes", size)
	return nil
}

type opener func(name string) (io.ReadCloser, bool, error)
type prefixer func(id string) string

func withCSVReader[T any](open opener, filename string, fn func(T) error) error {
	rc, ok, err := open(filename)
	if err != nil {
		return pkgerrors.Wrapf(err, "opening %s", filename)
	}
	if !ok {
		return nil
	}
	defer rc.Close()

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	return gocsv.UnmarshalToCallbackWithError(rc, func(row T) error {
		return fn(row)
	})
}

func (ig *Ingestor) ingestAgency(ctx context.Context, open opener, px prefixer) error {
	return withCSVReader(open, "agency.txt", func(row agencyRow) error {
		return ig.store.WriteAgency(ctx, model.Agency{
			ID:       px(row.ID),
			Name:     row.Name,
			URL:      row.URL,
			Timezone: row.Timezone,
		})
	})
}

func (ig *Ingestor) ingestStops(ctx context.Context, open opener, px prefixer) error {
	return withCSVReader(open, "stops.txt", func(row stopRow) error {
		lt, _ := strconv.Atoi(row.LocationType)
		return ig.store.WriteStop(ctx, model.Stop{
			ID:            px(row.ID),
			Code:          row.Code,
			Name:          row.Name,
			Desc:          row.Desc,
			Lat:           row.Lat,
			Lon:           row.Lon,
			URL:           row.URL,
			LocationType:  model.LocationType(lt),
			ParentStation: px(row.ParentStation),
			PlatformCode:  row.PlatformCode,
		})
	})
}

func (ig *Ingestor) ingestRoutes(ctx context.Context, open opener, px prefixer) error {
	return withCSVReader(open, "routes.txt", func(row routeRow) error {
		return ig.store.WriteRoute(ctx, model.Route{
			ID:        px(row.ID),
			AgencyID:  px(row.AgencyID),
			ShortName: row.ShortName,
			LongName:  row.LongName,
			Desc:      row.Desc,
			Type:      model.RouteType(row.Type),
			URL:       row.URL,
			Color:     row.Color,
			TextColor: row.TextColor,
		})
	})
}

func (ig *Ingestor) ingestTrips(ctx context.Context, open opener, px prefixer) error {
	if err := ig.store.BeginTrips(ctx); err != nil {
		return err
	}
	err := withCSVReader(open, "trips.txt", func(row tripRow) error {
		dir, _ := strconv.Atoi(row.DirectionID)
		return ig.store.WriteTrip(ctx, model.Trip{
			ID:          px(row.ID),
			RouteID:     px(row.RouteID),
			ServiceID:   px(row.ServiceID),
			Headsign:    row.Headsign,
			ShortName:   row.ShortName,
			DirectionID: int8(dir),
			ShapeID:     px(row.ShapeID),
		})
	})
	// End the transaction (committing whatever rows were already written)
	// even on error, so a malformed trips.txt doesn't leave the
	// transaction open and block later files' own Begin calls.
	endErr := ig.store.EndTrips(ctx)
	if err != nil {
		return err
	}
	return endErr
}

func (ig *Ingestor) ingestStopTimes(ctx context.Context, open opener, px prefixer) error {
	if err := ig.store.BeginStopTimes(ctx); err != nil {
		return err
	}
	err := withCSVReader(open, "stop_times.txt", func(row stopTimeRow) error {
		if _, parseErr := model.ParseGTFSTimeOfDay(row.Arrival); row.Arrival != "" && parseErr != nil {
			return pkgerrors.Wrapf(parseErr, "trip %s seq %d", row.TripID, row.StopSequence)
		}
		return ig.store.WriteStopTime(ctx, model.StopTime{
			TripID:       px(row.TripID),
			StopID:       px(row.StopID),
			Headsign:     row.Headsign,
			StopSequence: row.StopSequence,
			Arrival:      row.Arrival,
			Departure:    row.Departure,
		})
	})
	endErr := ig.store.EndStopTimes(ctx)
	if err != nil {
		return err
	}
	return endErr
}

func (ig *Ingestor) ingestCalendar(ctx context.Context, open opener, px prefixer) error {
	return withCSVReader(open, "calendar.txt", func(row calendarRow) error {
		var mask uint8
		days := []string{row.Monday, row.Tuesday, row.Wednesday, row.Thursday, row.Friday, row.Saturday, row.Sunday}
		for i, d := range days {
			if d == "1" {
				mask |= 1 << uint(i)
			}
		}
		return ig.store.WriteCalendarRule(ctx, model.CalendarRule{
			ServiceID: px(row.ServiceID),
			StartDate: row.StartDate,
			EndDate:   row.EndDate,
			Weekday:   mask,
		})
	})
}

func (ig *Ingestor) ingestCalendarDates(ctx context.Context, open opener, px prefixer) error {
	return withCSVReader(open, "calendar_dates.txt", func(row calendarDateRow) error {
		et, err := strconv.Atoi(row.ExceptionType)
		if err != nil || (et != 1 && et != 2) {
			return fmt.Errorf("%w: invalid exception_type %q", ErrMalformedFeed, row.ExceptionType)
		}
		return ig.store.WriteCalendarException(ctx, model.CalendarException{
			ServiceID:     px(row.ServiceID),
			Date:          row.Date,
			ExceptionType: int8(et),
		})
	})
}

func (ig *Ingestor) ingestTransfers(ctx context.Context, open opener, px prefixer) error {
	if err := ig.store.BeginTransfers(ctx); err != nil {
		return err
	}
	err := withCSVReader(open, "transfers.txt", func(row transferRow) error {
		tt, _ := strconv.Atoi(row.TransferType)
		mtt, _ := strconv.Atoi(row.MinTransferTime)
		return ig.store.WriteTransfer(ctx, model.Transfer{
			FromStopID:      px(row.FromStopID),
			ToStopID:        px(row.ToStopID),
			TransferType:    int8(tt),
			MinTransferTime: mtt,
		})
	})
	endErr := ig.store.EndTransfers(ctx)
	if err != nil {
		return err
	}
	return endErr
}

func (ig *Ingestor) ingestShapes(ctx context.Context, open opener, px prefixer) error {
	return withCSVReader(open, "shapes.txt", func(row shapeRow) error {
		return ig.store.WriteShape(ctx, model.Shape{
			ShapeID:  px(row.ShapeID),
			Lat:      row.Lat,
			Lon:      row.Lon,
			Sequence: row.Sequence,
		})
	})
}

func (ig *Ingestor) ingestFeedInfo(ctx context.Context, open opener, index int) error {
	return withCSVReader(open, "feed_info.txt", func(row feedInfoRow) error {
		return ig.store.WriteFeedInfo(ctx, model.FeedInfo{
			FeedIndex:     index,
			PublisherName: row.PublisherName,
			PublisherURL:  row.PublisherURL,
			Lang:          row.Lang,
			StartDate:     row.StartDate,
			EndDate:       row.EndDate,
			Version:       row.Version,
		})
	})
}
