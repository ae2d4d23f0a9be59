// Package storage defines the persistence layer: a single relational
// database holding the combined, feed-prefixed contents of every ingested
// GTFS feed, plus a process-local spatial index over stops.
package storage

import (
	"context"
	"errors"

	"transitplan.dev/core/model"
)

var (
	// ErrNotFound is returned when a lookup by id finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when the underlying database cannot be
	// reached or is in a state that prevents the requested operation.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the single persistence surface used by ingest, transfer and
// planner. A Store instance is safe for concurrent readers; writes are
// expected to be serialized by the caller (ingest and transfer already do
// this).
type Store interface {
	// Reset deletes every row of the GTFS tables (the tables themselves
	// remain), leaving metadata untouched unless includeMetadata is set.
	Reset(ctx context.Context, includeMetadata bool) error

	// EnsureSchema creates any missing tables/indices. Safe to call
	// repeatedly.
	EnsureSchema(ctx context.Context) error

	// OpenSession returns a Session bound to a read-only transaction
	// (both backends). Callers must Close it.
	OpenSession(ctx context.Context) (Session, error)

	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	Writer
	Reader

	// SpatialIndex builds the stop spatial index (and persists per-stop
	// index keys) afresh on every call; the result is not cached.
	SpatialIndex(ctx context.Context) (*SpatialIndex, error)

	Close() error
}

// Session is a borrowed connection or transaction. Every OpenSession call
// must be matched with exactly one Close.
type Session interface {
	Close() error
}

// Writer covers all per-row writes performed during ingestion. FeedIndex
// is the ordinal position (0-based) of the source feed in the config file;
// callers are responsible for rewriting every *_id-suffixed field to
// "{feedIndex:02}/{raw}" before calling these methods — Writer itself does
// not re-prefix anything, matching the teacher's writer, which is a thin
// per-row sink.
type Writer interface {
	WriteAgency(ctx context.Context, a model.Agency) error
	WriteStop(ctx context.Context, s model.Stop) error
	WriteRoute(ctx context.Context, r model.Route) error
	BeginTrips(ctx context.Context) error
	WriteTrip(ctx context.Context, t model.Trip) error
	EndTrips(ctx context.Context) error
	BeginStopTimes(ctx context.Context) error
	WriteStopTime(ctx context.Context, st model.StopTime) error
	EndStopTimes(ctx context.Context) error
	WriteCalendarRule(ctx context.Context, c model.CalendarRule) error
	WriteCalendarException(ctx context.Context, c model.CalendarException) error
	WriteTransfer(ctx context.Context, t model.Transfer) error
	WriteShape(ctx context.Context, s model.Shape) error
	WriteFeedInfo(ctx context.Context, f model.FeedInfo) error
	BeginTransfers(ctx context.Context) error
	EndTransfers(ctx context.Context) error
}

type Reader interface {
	Agency(ctx context.Context, id string) (model.Agency, error)
	Stop(ctx context.Context, id string) (model.Stop, error)
	Route(ctx context.Context, id string) (model.Route, error)
	Trip(ctx context.Context, id string) (model.Trip, error)

	Stops(ctx context.Context) ([]model.Stop, error)
	AllTransferPairs(ctx context.Context) (map[[2]string]struct{}, error)

	// ActiveServices returns service ids valid on the given YYYYMMDD
	// date, combining CalendarRule weekday/date-range matches with
	// CalendarException add/remove overrides.
	ActiveServices(ctx context.Context, date string) ([]string, error)

	// MinMaxStopSeq returns, for each trip id, the [min, max]
	// stop_sequence values from its stop_times rows.
	MinMaxStopSeq(ctx context.Context) (map[string][2]uint32, error)

	// StopTimeEvents returns stop_time rows (joined with trip/route/stop
	// data) matching filter.
	StopTimeEvents(ctx context.Context, filter StopTimeEventFilter) ([]StopTimeEvent, error)

	// NextStopTime returns the stop_times row for tripID with the
	// smallest stop_sequence greater than afterSeq — the next stop a
	// vehicle on that trip calls at. ok is false if there is none
	// (afterSeq was the trip's last stop).
	NextStopTime(ctx context.Context, tripID string, afterSeq uint32) (st model.StopTime, ok bool, err error)

	// Trips returns every row of the trips table.
	Trips(ctx context.Context) ([]model.Trip, error)

	// TransfersFrom returns all transfers departing fromStopID,
	// including both feed-supplied and synthesized ones.
	TransfersFrom(ctx context.Context, fromStopID string) ([]model.Transfer, error)

	// ShapePoints returns a shape's points ordered by sequence.
	ShapePoints(ctx context.Context, shapeID string) ([]model.Shape, error)

	// IntermediateStops returns the stops a trip calls at strictly between
	// fromSeq and toSeq (both exclusive), ordered by stop_sequence — the
	// stop-by-stop geometry of a ride step between its boarding and
	// alighting stops.
	IntermediateStops(ctx context.Context, tripID string, fromSeq, toSeq uint32) ([]model.Stop, error)

	// SearchStops returns stops whose name matches the query, ranked by
	// the teacher's usual prefix-first ordering: "name LIKE 'q%'" before
	// "name LIKE '%q%'".
	SearchStops(ctx context.Context, query string, limit int) ([]model.Stop, error)
}

// StopTimeEventFilter narrows StopTimeEvents results; zero-value fields
// impose no constraint, except where noted.
type StopTimeEventFilter struct {
	StopID         string
	ServiceIDs     []string
	RouteID        string
	DirectionID    int // -1 means "any"
	DepartureStart string
	DepartureEnd   string
}

// StopTimeEvent bundles a stop_time row with the trip/route/stop context
// the planner's ride-neighbour expansion needs to avoid N+1 lookups.
type StopTimeEvent struct {
	StopTime model.StopTime
	Trip     model.Trip
	Route    model.Route
	Stop     model.Stop
}

