package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"transitplan.dev/core/model"
)

// SQLiteStore is the default backend, grounded on the teacher's
// storage/sqlite.go DDL and prepared-statement writer lifecycle.
type SQLiteStore struct {
	db *sql.DB

	tripTx   *sql.Tx
	stopTxTx *sql.Tx
	stopTxSt *sql.Stmt
	xferTx   *sql.Tx
}

// NewSQLite opens (or creates) a SQLite database at path. Pass ":memory:"
// for an ephemeral store, matching testutil's default test backend.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT);

CREATE TABLE IF NOT EXISTS agency (
  id TEXT PRIMARY KEY, name TEXT, url TEXT, timezone TEXT
);
CREATE TABLE IF NOT EXISTS stops (
  id TEXT PRIMARY KEY, code TEXT, name TEXT, desc TEXT,
  lat REAL, lon REAL, url TEXT, location_type INTEGER,
  parent_station TEXT, platform_code TEXT
);
CREATE INDEX IF NOT EXISTS stops_name ON stops(name);
CREATE INDEX IF NOT EXISTS stops_parent ON stops(parent_station);
CREATE INDEX IF NOT EXISTS stops_latlon ON stops(lat, lon);

CREATE TABLE IF NOT EXISTS routes (
  id TEXT PRIMARY KEY, agency_id TEXT, short_name TEXT, long_name TEXT,
  desc TEXT, type INTEGER, url TEXT, color TEXT, text_color TEXT
);
CREATE TABLE IF NOT EXISTS trips (
  id TEXT PRIMARY KEY, route_id TEXT, service_id TEXT, headsign TEXT,
  short_name TEXT, direction_id INTEGER, shape_id TEXT
);
CREATE INDEX IF NOT EXISTS trips_route ON trips(route_id);
CREATE INDEX IF NOT EXISTS trips_service ON trips(service_id);

CREATE TABLE IF NOT EXISTS stop_times (
  trip_id TEXT, stop_id TEXT, headsign TEXT, stop_sequence INTEGER,
  arrival TEXT, departure TEXT,
  PRIMARY KEY (trip_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS stop_times_stop ON stop_times(stop_id);
CREATE INDEX IF NOT EXISTS stop_times_trip ON stop_times(trip_id);
CREATE INDEX IF NOT EXISTS stop_times_departure ON stop_times(departure);
CREATE INDEX IF NOT EXISTS stop_times_stop_arrival ON stop_times(stop_id, arrival);
CREATE INDEX IF NOT EXISTS stop_times_trip_sequence ON stop_times(trip_id, stop_sequence);
CREATE INDEX IF NOT EXISTS stop_times_sequence ON stop_times(stop_sequence);

CREATE TABLE IF NOT EXISTS calendar_rules (
  service_id TEXT PRIMARY KEY, start_date TEXT, end_date TEXT, weekday INTEGER
);
CREATE INDEX IF NOT EXISTS calendar_rules_range ON calendar_rules(start_date, end_date);
CREATE TABLE IF NOT EXISTS calendar_exceptions (
  service_id TEXT, date TEXT, exception_type INTEGER,
  PRIMARY KEY (service_id, date)
);
CREATE INDEX IF NOT EXISTS calendar_exceptions_date ON calendar_exceptions(date);
CREATE INDEX IF NOT EXISTS calendar_exceptions_date_type ON calendar_exceptions(date, exception_type);

CREATE TABLE IF NOT EXISTS transfers (
  from_stop_id TEXT, to_stop_id TEXT, transfer_type INTEGER, min_transfer_time INTEGER,
  PRIMARY KEY (from_stop_id, to_stop_id)
);
CREATE INDEX IF NOT EXISTS transfers_from ON transfers(from_stop_id);
CREATE INDEX IF NOT EXISTS transfers_to ON transfers(to_stop_id);

CREATE TABLE IF NOT EXISTS shapes (
  shape_id TEXT, lat REAL, lon REAL, sequence INTEGER,
  PRIMARY KEY (shape_id, sequence)
);

CREATE TABLE IF NOT EXISTS feed_info (
  feed_index INTEGER PRIMARY KEY, publisher_name TEXT, publisher_url TEXT,
  lang TEXT, start_date TEXT, end_date TEXT, version TEXT
);

CREATE TABLE IF NOT EXISTS stop_spatial_keys (
  stop_id TEXT PRIMARY KEY, spatial_key INTEGER
);
`

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return errors.Wrap(err, "creating schema")
}

var sqliteTables = []string{
	"agency", "stops", "routes", "trips", "stop_times",
	"calendar_rules", "calendar_exceptions", "transfers", "shapes",
	"feed_info", "stop_spatial_keys",
}

func (s *SQLiteStore) Reset(ctx context.Context, includeMetadata bool) error {
	tables := sqliteTables
	if includeMetadata {
		tables = append(append([]string{}, tables...), "metadata")
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return errors.Wrapf(err, "clearing %s", t)
		}
	}
	return nil
}

type sqliteSession struct{ tx *sql.Tx }

func (s *sqliteSession) Close() error { return s.tx.Rollback() }

func (s *SQLiteStore) OpenSession(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "opening session")
	}
	return &sqliteSession{tx: tx}, nil
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return errors.Wrap(err, "writing metadata")
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "reading metadata")
	}
	return v, nil
}

// --- Writer ---

func (s *SQLiteStore) WriteAgency(ctx context.Context, a model.Agency) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agency(id, name, url, timezone) VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.URL, a.Timezone)
	return errors.Wrap(err, "writing agency")
}

func (s *SQLiteStore) WriteStop(ctx context.Context, st model.Stop) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stops(id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.Code, st.Name, st.Desc, st.Lat, st.Lon, st.URL, st.LocationType, st.ParentStation, st.PlatformCode)
	return errors.Wrap(err, "writing stop")
}

func (s *SQLiteStore) WriteRoute(ctx context.Context, r model.Route) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO routes(id, agency_id, short_name, long_name, desc, type, url, color, text_color)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc, r.Type, r.URL, r.Color, r.TextColor)
	return errors.Wrap(err, "writing route")
}

func (s *SQLiteStore) BeginTrips(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning trips tx")
	}
	s.tripTx = tx
	return nil
}

func (s *SQLiteStore) WriteTrip(ctx context.Context, t model.Trip) error {
	_, err := s.tripTx.ExecContext(ctx,
		`INSERT OR IGNORE INTO trips(id, route_id, service_id, headsign, short_name, direction_id, shape_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RouteID, t.ServiceID, t.Headsign, t.ShortName, t.DirectionID, t.ShapeID)
	return errors.Wrap(err, "writing trip")
}

func (s *SQLiteStore) EndTrips(ctx context.Context) error {
	err := s.tripTx.Commit()
	s.tripTx = nil
	return errors.Wrap(err, "committing trips")
}

func (s *SQLiteStore) BeginStopTimes(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning stop_times tx")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO stop_times(trip_id, stop_id, headsign, stop_sequence, arrival, departure)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "preparing stop_times insert")
	}
	s.stopTxTx = tx
	s.stopTxSt = stmt
	return nil
}

func (s *SQLiteStore) WriteStopTime(ctx context.Context, st model.StopTime) error {
	_, err := s.stopTxSt.ExecContext(ctx, st.TripID, st.StopID, st.Headsign, st.StopSequence, st.Arrival, st.Departure)
	return errors.Wrap(err, "writing stop_time")
}

func (s *SQLiteStore) EndStopTimes(ctx context.Context) error {
	s.stopTxSt.Close()
	err := s.stopTxTx.Commit()
	s.stopTxTx, s.stopTxSt = nil, nil
	return errors.Wrap(err, "committing stop_times")
}

func (s *SQLiteStore) WriteCalendarRule(ctx context.Context, c model.CalendarRule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO calendar_rules(service_id, start_date, end_date, weekday) VALUES (?, ?, ?, ?)`,
		c.ServiceID, c.StartDate, c.EndDate, c.Weekday)
	return errors.Wrap(err, "writing calendar rule")
}

func (s *SQLiteStore) WriteCalendarException(ctx context.Context, c model.CalendarException) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO calendar_exceptions(service_id, date, exception_type) VALUES (?, ?, ?)`,
		c.ServiceID, c.Date, c.ExceptionType)
	return errors.Wrap(err, "writing calendar exception")
}

func (s *SQLiteStore) WriteTransfer(ctx context.Context, t model.Transfer) error {
	db := s.db.ExecContext
	if s.xferTx != nil {
		db = s.xferTx.ExecContext
	}
	_, err := db(ctx,
		`INSERT OR IGNORE INTO transfers(from_stop_id, to_stop_id, transfer_type, min_transfer_time) VALUES (?, ?, ?, ?)`,
		t.FromStopID, t.ToStopID, t.TransferType, t.MinTransferTime)
	return errors.Wrap(err, "writing transfer")
}

func (s *SQLiteStore) BeginTransfers(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transfers tx")
	}
	s.xferTx = tx
	return nil
}

func (s *SQLiteStore) EndTransfers(ctx context.Context) error {
	err := s.xferTx.Commit()
	s.xferTx = nil
	return errors.Wrap(err, "committing transfers")
}

func (s *SQLiteStore) WriteShape(ctx context.Context, sh model.Shape) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO shapes(shape_id, lat, lon, sequence) VALUES (?, ?, ?, ?)`,
		sh.ShapeID, sh.Lat, sh.Lon, sh.Sequence)
	return errors.Wrap(err, "writing shape")
}

func (s *SQLiteStore) WriteFeedInfo(ctx context.Context, f model.FeedInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feed_info(feed_index, publisher_name, publisher_url, lang, start_date, end_date, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.FeedIndex, f.PublisherName, f.PublisherURL, f.Lang, f.StartDate, f.EndDate, f.Version)
	return errors.Wrap(err, "writing feed_info")
}

// --- Reader ---

func (s *SQLiteStore) Agency(ctx context.Context, id string) (model.Agency, error) {
	var a model.Agency
	err := s.db.QueryRowContext(ctx, `SELECT id, name, url, timezone FROM agency WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &a.URL, &a.Timezone)
	return a, wrapNotFound(err, "agency")
}

func (s *SQLiteStore) Stop(ctx context.Context, id string) (model.Stop, error) {
	var st model.Stop
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code
		 FROM stops WHERE id=?`, id).
		Scan(&st.ID, &st.Code, &st.Name, &st.Desc, &st.Lat, &st.Lon, &st.URL, &st.LocationType, &st.ParentStation, &st.PlatformCode)
	return st, wrapNotFound(err, "stop")
}

func (s *SQLiteStore) Route(ctx context.Context, id string) (model.Route, error) {
	var r model.Route
	err := s.db.QueryRowContext(ctx,
		`SELECT id, agency_id, short_name, long_name, desc, type, url, color, text_color
		 FROM routes WHERE id=?`, id).
		Scan(&r.ID, &r.AgencyID, &r.ShortName, &r.LongName, &r.Desc, &r.Type, &r.URL, &r.Color, &r.TextColor)
	return r, wrapNotFound(err, "route")
}

func (s *SQLiteStore) Trip(ctx context.Context, id string) (model.Trip, error) {
	var t model.Trip
	err := s.db.QueryRowContext(ctx,
		`SELECT id, route_id, service_id, headsign, short_name, direction_id, shape_id
		 FROM trips WHERE id=?`, id).
		Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName, &t.DirectionID, &t.ShapeID)
	return t, wrapNotFound(err, "trip")
}

func wrapNotFound(err error, what string) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return errors.Wrapf(err, "reading %s", what)
}

func (s *SQLiteStore) Stops(ctx context.Context) ([]model.Stop, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code FROM stops`)
	if err != nil {
		return nil, errors.Wrap(err, "listing stops")
	}
	defer rows.Close()

	var out []model.Stop
	for rows.Next() {
		var st model.Stop
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Desc, &st.Lat, &st.Lon, &st.URL, &st.LocationType, &st.ParentStation, &st.PlatformCode); err != nil {
			return nil, errors.Wrap(err, "scanning stop")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AllTransferPairs(ctx context.Context) (map[[2]string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_stop_id, to_stop_id FROM transfers`)
	if err != nil {
		return nil, errors.Wrap(err, "listing transfers")
	}
	defer rows.Close()

	out := map[[2]string]struct{}{}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, errors.Wrap(err, "scanning transfer")
		}
		out[[2]string{from, to}] = struct{}{}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ActiveServices(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service_id FROM calendar_rules
		WHERE start_date <= ? AND end_date >= ? AND (weekday & ?) != 0
		  AND service_id NOT IN (
		    SELECT service_id FROM calendar_exceptions WHERE date=? AND exception_type=2)
		UNION
		SELECT service_id FROM calendar_exceptions WHERE date=? AND exception_type=1
	`, date, date, weekdayBitForDate(date), date, date)
	if err != nil {
		return nil, errors.Wrap(err, "querying active services")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning service id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MinMaxStopSeq(ctx context.Context) (map[string][2]uint32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trip_id, MIN(stop_sequence), MAX(stop_sequence) FROM stop_times GROUP BY trip_id`)
	if err != nil {
		return nil, errors.Wrap(err, "querying min/max stop seq")
	}
	defer rows.Close()

	out := map[string][2]uint32{}
	for rows.Next() {
		var id string
		var min, max uint32
		if err := rows.Scan(&id, &min, &max); err != nil {
			return nil, errors.Wrap(err, "scanning min/max stop seq")
		}
		out[id] = [2]uint32{min, max}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) StopTimeEvents(ctx context.Context, filter StopTimeEventFilter) ([]StopTimeEvent, error) {
	where := []string{}
	args := []interface{}{}

	if filter.StopID != "" {
		where = append(where, "st.stop_id = ?")
		args = append(args, filter.StopID)
	}
	if len(filter.ServiceIDs) > 0 {
		placeholders := make([]string, len(filter.ServiceIDs))
		for i, id := range filter.ServiceIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, "t.service_id IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.RouteID != "" {
		where = append(where, "t.route_id = ?")
		args = append(args, filter.RouteID)
	}
	if filter.DirectionID >= 0 {
		where = append(where, "t.direction_id = ?")
		args = append(args, filter.DirectionID)
	}
	if filter.DepartureStart != "" {
		where = append(where, "st.departure >= ?")
		args = append(args, filter.DepartureStart)
	}
	if filter.DepartureEnd != "" {
		where = append(where, "st.departure <= ?")
		args = append(args, filter.DepartureEnd)
	}

	query := `
		SELECT st.trip_id, st.stop_id, st.headsign, st.stop_sequence, st.arrival, st.departure,
		       t.id, t.route_id, t.service_id, t.headsign, t.short_name, t.direction_id, t.shape_id,
		       r.id, r.agency_id, r.short_name, r.long_name, r.desc, r.type, r.url, r.color, r.text_color,
		       s.id, s.code, s.name, s.desc, s.lat, s.lon, s.url, s.location_type, s.parent_station, s.platform_code
		FROM stop_times st
		JOIN trips t ON t.id = st.trip_id
		JOIN routes r ON r.id = t.route_id
		JOIN stops s ON s.id = st.stop_id
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying stop time events")
	}
	defer rows.Close()

	var out []StopTimeEvent
	for rows.Next() {
		var e StopTimeEvent
		if err := rows.Scan(
			&e.StopTime.TripID, &e.StopTime.StopID, &e.StopTime.Headsign, &e.StopTime.StopSequence, &e.StopTime.Arrival, &e.StopTime.Departure,
			&e.Trip.ID, &e.Trip.RouteID, &e.Trip.ServiceID, &e.Trip.Headsign, &e.Trip.ShortName, &e.Trip.DirectionID, &e.Trip.ShapeID,
			&e.Route.ID, &e.Route.AgencyID, &e.Route.ShortName, &e.Route.LongName, &e.Route.Desc, &e.Route.Type, &e.Route.URL, &e.Route.Color, &e.Route.TextColor,
			&e.Stop.ID, &e.Stop.Code, &e.Stop.Name, &e.Stop.Desc, &e.Stop.Lat, &e.Stop.Lon, &e.Stop.URL, &e.Stop.LocationType, &e.Stop.ParentStation, &e.Stop.PlatformCode,
		); err != nil {
			return nil, errors.Wrap(err, "scanning stop time event")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) NextStopTime(ctx context.Context, tripID string, afterSeq uint32) (model.StopTime, bool, error) {
	var st model.StopTime
	err := s.db.QueryRowContext(ctx,
		`SELECT trip_id, stop_id, headsign, stop_sequence, arrival, departure
		 FROM stop_times WHERE trip_id=? AND stop_sequence>? ORDER BY stop_sequence LIMIT 1`,
		tripID, afterSeq).
		Scan(&st.TripID, &st.StopID, &st.Headsign, &st.StopSequence, &st.Arrival, &st.Departure)
	if err == sql.ErrNoRows {
		return model.StopTime{}, false, nil
	}
	if err != nil {
		return model.StopTime{}, false, errors.Wrap(err, "querying next stop time")
	}
	return st, true, nil
}

func (s *SQLiteStore) Trips(ctx context.Context) ([]model.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, route_id, service_id, headsign, short_name, direction_id, shape_id FROM trips`)
	if err != nil {
		return nil, errors.Wrap(err, "listing trips")
	}
	defer rows.Close()
	var out []model.Trip
	for rows.Next() {
		var t model.Trip
		if err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName, &t.DirectionID, &t.ShapeID); err != nil {
			return nil, errors.Wrap(err, "scanning trip")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransfersFrom(ctx context.Context, fromStopID string) ([]model.Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_stop_id, to_stop_id, transfer_type, min_transfer_time FROM transfers WHERE from_stop_id=?`,
		fromStopID)
	if err != nil {
		return nil, errors.Wrap(err, "querying transfers")
	}
	defer rows.Close()

	var out []model.Transfer
	for rows.Next() {
		var t model.Transfer
		if err := rows.Scan(&t.FromStopID, &t.ToStopID, &t.TransferType, &t.MinTransferTime); err != nil {
			return nil, errors.Wrap(err, "scanning transfer")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ShapePoints(ctx context.Context, shapeID string) ([]model.Shape, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shape_id, lat, lon, sequence FROM shapes WHERE shape_id=? ORDER BY sequence`, shapeID)
	if err != nil {
		return nil, errors.Wrap(err, "querying shape")
	}
	defer rows.Close()

	var out []model.Shape
	for rows.Next() {
		var sh model.Shape
		if err := rows.Scan(&sh.ShapeID, &sh.Lat, &sh.Lon, &sh.Sequence); err != nil {
			return nil, errors.Wrap(err, "scanning shape point")
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IntermediateStops(ctx context.Context, tripID string, fromSeq, toSeq uint32) ([]model.Stop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.code, s.name, s.desc, s.lat, s.lon, s.url, s.location_type, s.parent_station, s.platform_code
		FROM stop_times st
		JOIN stops s ON s.id = st.stop_id
		WHERE st.trip_id=? AND st.stop_sequence>? AND st.stop_sequence<?
		ORDER BY st.stop_sequence
	`, tripID, fromSeq, toSeq)
	if err != nil {
		return nil, errors.Wrap(err, "querying intermediate stops")
	}
	defer rows.Close()

	var out []model.Stop
	for rows.Next() {
		var st model.Stop
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Desc, &st.Lat, &st.Lon, &st.URL, &st.LocationType, &st.ParentStation, &st.PlatformCode); err != nil {
			return nil, errors.Wrap(err, "scanning intermediate stop")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchStops(ctx context.Context, query string, limit int) ([]model.Stop, error) {
	like := "%" + query + "%"
	prefix := query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code
		FROM stops
		WHERE name LIKE ?
		ORDER BY (name LIKE ?) DESC, name
		LIMIT ?
	`, like, prefix, limit)
	if err != nil {
		return nil, errors.Wrap(err, "searching stops")
	}
	defer rows.Close()

	var out []model.Stop
	for rows.Next() {
		var st model.Stop
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Desc, &st.Lat, &st.Lon, &st.URL, &st.LocationType, &st.ParentStation, &st.PlatformCode); err != nil {
			return nil, errors.Wrap(err, "scanning stop")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SpatialIndex(ctx context.Context) (*SpatialIndex, error) {
	stops, err := s.Stops(ctx)
	if err != nil {
		return nil, err
	}
	idx := NewSpatialIndex(stops)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning spatial key tx")
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO stop_spatial_keys(stop_id, spatial_key) VALUES (?, ?)`)
	if err != nil {
		return nil, errors.Wrap(err, "preparing spatial key insert")
	}
	for i, st := range stops {
		if _, err := stmt.ExecContext(ctx, st.ID, i); err != nil {
			stmt.Close()
			return nil, errors.Wrap(err, "writing spatial key")
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing spatial keys")
	}

	return idx, nil
}

func weekdayBitForDate(date string) int {
	t, err := time.Parse("20060102", date)
	if err != nil {
		return 0
	}
	return int(model.WeekdayBit(t.Weekday()))
}
