package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
)

// DefaultMaxBatchRows bounds the rows of one multi-row insert
const DefaultMaxBatchRows = 500

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath       string
	maxBatchRows int

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// WithMaxBatchRows sets the number of rows per multi-row insert statement
func WithMaxBatchRows(n int) func(*SqliteStore) {
	return func(s *SqliteStore) {
		if n > 0 {
			s.maxBatchRows = n
		}
	}
}

// NewSqliteStore creates a store backed by the sqlite database at dbPath.
// Connections are opened lazily; the schema is created on first write.
func NewSqliteStore(dbPath string, options ...func(*SqliteStore)) *SqliteStore {
	s := &SqliteStore{
		dbPath:       dbPath,
		maxBatchRows: DefaultMaxBatchRows,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// DriverVersion returns the version of the linked sqlite library
func DriverVersion() string {
	version, _, _ := sqlite3.Version()
	return version
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// sqlite allows a single writer
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, session *spectrum.ScanSession, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch c := config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx,
		toMillis(session.StartTime),
		session.Mode,
		session.FrequencyStart,
		session.FrequencyEnd,
		session.Receiver,
		configData,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func scanSession(row interface{ Scan(...any) error }) (*spectrum.ScanSession, error) {
	var d sessionData
	if err := row.Scan(&d.ID, &d.StartTime, &d.Mode, &d.FrequencyStart, &d.FrequencyEnd, &d.Receiver, &d.Config); err != nil {
		return nil, err
	}
	return toSessionModel(&d), nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *spectrum.ScanSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: session %d", ErrNoData, id)
			return
		}
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*spectrum.ScanSession, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *spectrum.ScanSession
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreSamples(ctx context.Context, sessionID int64, points []spectrum.RSSIPoint) (err error) {
	if len(points) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for chunk := range slices.Chunk(points, s.maxBatchRows) {
		values := make([]any, 0, len(chunk)*sampleParams)

		var sb strings.Builder
		sb.WriteString(insertSampleSQL)

		for i, p := range chunk {
			data := toSampleData(sessionID, p)
			values = append(values, data.SessionID, data.Timestamp, data.Frequency, data.RSSI)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(samplePlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) StoreDetections(ctx context.Context, sessionID int64, detections []spectrum.Detection) (err error) {
	if len(detections) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, upsertDetectionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, d := range detections {
		var artifact sql.NullString
		if d.Artifact != nil {
			artifact = sql.NullString{String: *d.Artifact, Valid: true}
		}

		if _, err = stmt.ExecContext(ctx,
			sessionID,
			d.Frequency,
			d.RSSI,
			d.VideoDetected,
			toMillis(d.DetectedAt),
			toMillis(d.LastSeen),
			artifact,
		); err != nil {
			return fmt.Errorf("upserting detection %d MHz: %w", d.Frequency, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SqliteStore) Detections(ctx context.Context, sessionID int64) (detections []spectrum.Detection, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectDetectionsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying detections: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d detectionData
		if err = rows.Scan(&d.Frequency, &d.RSSI, &d.VideoDetected, &d.DetectedAt, &d.LastSeen, &d.Artifact); err != nil {
			err = fmt.Errorf("scanning detection: %w", err)
			return
		}
		detections = append(detections, toDetectionModel(&d))
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreCapture(ctx context.Context, sessionID int64, c *spectrum.Capture) (captureID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertCaptureSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	data := toCaptureData(sessionID, c)

	result, err := stmt.ExecContext(ctx,
		data.SessionID,
		data.Timestamp,
		data.Frequency,
		data.RSSI,
		data.Artifact,
		data.Latitude,
		data.Longitude,
		data.Altitude,
		data.Satellites,
	)
	if err != nil {
		err = fmt.Errorf("inserting capture: %w", err)
		return
	}

	captureID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting capture ID: %w", err)
	}
	return
}

func (s *SqliteStore) Captures(ctx context.Context, sessionID int64) (captures []*spectrum.Capture, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCapturesSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying captures: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d captureData
		if err = rows.Scan(&d.ID, &d.Timestamp, &d.Frequency, &d.RSSI, &d.Artifact,
			&d.Latitude, &d.Longitude, &d.Altitude, &d.Satellites); err != nil {
			err = fmt.Errorf("scanning capture: %w", err)
			return
		}
		captures = append(captures, toCaptureModel(&d))
	}
	err = rows.Err()
	return
}

// ReadPasses creates a reader over the sweep passes of a session, see SqlitePassReader.
// The returned reader must be closed after use.
func (s *SqliteStore) ReadPasses(ctx context.Context, sessionID int64, opts ...ReaderOption) (PassReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqlitePassReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
