package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/band"
	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
)

// PassReader provides an iterator-based interface for reading the sweep passes
// of a session with optional time and frequency filtering.
type PassReader interface {
	// Session returns metadata about the session this reader is accessing
	Session() *spectrum.ScanSession

	// Next advances the iterator and returns true if there is another pass
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current pass in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *spectrum.Pass

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// the end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SqlitePassReader filter
type ReaderOption func(*SqlitePassReader)

// WithFreqRange limits the passes to the frequencies between start and end
// inclusive. Points are filled over this range.
func WithFreqRange(start, end uint16) ReaderOption {
	return func(r *SqlitePassReader) {
		r.minFreq = &start
		r.maxFreq = &end
	}
}

// WithTimeRange limits the readings to those taken between start and end inclusive
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(r *SqlitePassReader) {
		r.startTime = &start
		r.endTime = &end
	}
}

// SqlitePassReader implements PassReader for the SQLite backend. Readings are
// grouped into passes in insertion order: a pass ends when the frequency does
// not increase. Channels without a reading in a pass are filled with RSSI 0.
type SqlitePassReader struct {
	db *sql.DB

	sessionID int64
	session   *spectrum.ScanSession

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter
	minFreq   *uint16    // Optional minimum frequency filter
	maxFreq   *uint16    // Optional maximum frequency filter

	rows    *sql.Rows
	pending *spectrum.RSSIPoint // First reading of the next pass
	current *spectrum.Pass
	index   int
	err     error
}

func newSqlitePassReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqlitePassReader, error) {
	r := &SqlitePassReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *SqlitePassReader) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: r.loadSession},
		{msg: "initializing filters", fn: r.initFilters},
		{msg: "initializing query", fn: r.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (r *SqlitePassReader) loadSession(ctx context.Context) (err error) {
	stmt, err := r.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if r.session, err = scanSession(stmt.QueryRowContext(ctx, r.sessionID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: session %d", ErrNoData, r.sessionID)
		}
		return fmt.Errorf("querying session: %w", err)
	}
	return nil
}

func (r *SqlitePassReader) initFilters(ctx context.Context) (err error) {
	timeFiltersSet := r.startTime != nil && r.endTime != nil
	freqFiltersSet := r.minFreq != nil && r.maxFreq != nil

	if timeFiltersSet && r.startTime.After(*r.endTime) {
		return fmt.Errorf("start time %s is after end time %s", r.startTime, r.endTime)
	}
	if freqFiltersSet {
		if err = (band.Range{Start: *r.minFreq, End: *r.maxFreq}).Validate(); err != nil {
			return fmt.Errorf("frequency filter: %w", err)
		}
	}
	if timeFiltersSet && freqFiltersSet {
		return nil
	}

	// the scanned range of the session takes precedence over the recorded bounds
	if !freqFiltersSet && (band.Range{Start: r.session.FrequencyStart, End: r.session.FrequencyEnd}).Validate() == nil {
		r.minFreq = &r.session.FrequencyStart
		r.maxFreq = &r.session.FrequencyEnd
		freqFiltersSet = true
	}
	if timeFiltersSet && freqFiltersSet {
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, selectFilterValuesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var minFreq, maxFreq, startTime, endTime int64
	if err = stmt.QueryRowContext(ctx, r.sessionID).Scan(&minFreq, &maxFreq, &startTime, &endTime); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}

	if !freqFiltersSet {
		lo, hi := uint16(minFreq), uint16(maxFreq)
		r.minFreq = &lo
		r.maxFreq = &hi
	}
	if !timeFiltersSet {
		start, end := fromMillis(startTime), fromMillis(endTime)
		r.startTime = &start
		r.endTime = &end
	}

	return nil
}

func (r *SqlitePassReader) initQuery(ctx context.Context) (err error) {
	stmt, err := r.db.PrepareContext(ctx, selectSamplesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	r.rows, err = stmt.QueryContext(ctx,
		r.sessionID,
		toMillis(*r.startTime),
		toMillis(*r.endTime),
		*r.minFreq,
		*r.maxFreq,
	)
	return err
}

func (r *SqlitePassReader) scanPoint() (spectrum.RSSIPoint, error) {
	var d sampleData
	if err := r.rows.Scan(&d.Timestamp, &d.Frequency, &d.RSSI); err != nil {
		return spectrum.RSSIPoint{}, fmt.Errorf("scanning sample: %w", err)
	}
	return spectrum.RSSIPoint{
		Timestamp: fromMillis(d.Timestamp),
		Frequency: uint16(d.Frequency),
		RSSI:      uint8(d.RSSI),
	}, nil
}

// fill spreads the ascending readings of a pass over the filter range
func (r *SqlitePassReader) fill(readings []spectrum.RSSIPoint) *spectrum.Pass {
	pass := &spectrum.Pass{
		Index:          r.index,
		Timestamp:      readings[0].Timestamp,
		FrequencyStart: *r.minFreq,
		FrequencyEnd:   *r.maxFreq,
		Points:         make([]spectrum.RSSIPoint, 0, int(*r.maxFreq-*r.minFreq)+1),
	}

	j := 0
	for mhz := range (band.Range{Start: *r.minFreq, End: *r.maxFreq}).Frequencies() {
		if j < len(readings) && readings[j].Frequency == mhz {
			pass.Points = append(pass.Points, readings[j])
			j++
			continue
		}
		pass.Points = append(pass.Points, spectrum.RSSIPoint{Timestamp: pass.Timestamp, Frequency: mhz})
	}

	return pass
}

func (r *SqlitePassReader) Session() *spectrum.ScanSession {
	return r.session
}

func (r *SqlitePassReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	var readings []spectrum.RSSIPoint
	if r.pending != nil {
		readings = append(readings, *r.pending)
		r.pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			r.err = ctx.Err()
			return false
		default:
		}

		if !r.rows.Next() {
			break
		}

		point, err := r.scanPoint()
		if err != nil {
			r.err = err
			return false
		}

		// frequency rolled over, the pass is complete
		if n := len(readings); n > 0 && point.Frequency <= readings[n-1].Frequency {
			r.pending = &point
			break
		}

		readings = append(readings, point)
	}

	if len(readings) == 0 {
		r.current = nil
		return false
	}

	r.current = r.fill(readings)
	r.index++
	return true
}

func (r *SqlitePassReader) Current() *spectrum.Pass {
	return r.current
}

func (r *SqlitePassReader) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

func (r *SqlitePassReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.current = nil
		r.pending = nil
		r.rows = nil
		return err
	}
	return nil
}
