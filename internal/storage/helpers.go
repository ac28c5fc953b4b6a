package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
	"github.com/roman-kulish/fpv-interceptor/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back a transaction which was not committed
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toSessionModel(d *sessionData) *spectrum.ScanSession {
	s := &spectrum.ScanSession{
		ID:             d.ID,
		StartTime:      fromMillis(d.StartTime),
		Mode:           d.Mode,
		FrequencyStart: uint16(d.FrequencyStart),
		FrequencyEnd:   uint16(d.FrequencyEnd),
		Receiver:       d.Receiver,
	}
	if d.Config.Valid {
		s.Config = &d.Config.String
	}
	return s
}

func toSampleData(sessionID int64, p spectrum.RSSIPoint) sampleData {
	return sampleData{
		SessionID: sessionID,
		Timestamp: toMillis(p.Timestamp),
		Frequency: int64(p.Frequency),
		RSSI:      int64(p.RSSI),
	}
}

func toDetectionModel(d *detectionData) spectrum.Detection {
	det := spectrum.Detection{
		Frequency:     uint16(d.Frequency),
		RSSI:          uint8(d.RSSI),
		VideoDetected: d.VideoDetected,
		DetectedAt:    fromMillis(d.DetectedAt),
		LastSeen:      fromMillis(d.LastSeen),
	}
	if d.Artifact.Valid {
		det.Artifact = &d.Artifact.String
	}
	return det
}

func toCaptureData(sessionID int64, c *spectrum.Capture) *captureData {
	data := &captureData{
		SessionID: sessionID,
		Timestamp: toMillis(c.Timestamp),
		Frequency: int64(c.Frequency),
		RSSI:      int64(c.RSSI),
		Artifact:  c.Artifact,
	}

	if t := c.Telemetry; t != nil {
		data.Latitude = sql.NullFloat64{Float64: toSQLNullType[float64](t.Latitude), Valid: t.Latitude != nil}
		data.Longitude = sql.NullFloat64{Float64: toSQLNullType[float64](t.Longitude), Valid: t.Longitude != nil}
		data.Altitude = sql.NullFloat64{Float64: toSQLNullType[float64](t.Altitude), Valid: t.Altitude != nil}
		data.Satellites = sql.NullInt64{Int64: toSQLNullType[int64](t.Satellites), Valid: t.Satellites != nil}
	}

	return data
}

func toCaptureModel(d *captureData) *spectrum.Capture {
	c := &spectrum.Capture{
		ID:        d.ID,
		Timestamp: fromMillis(d.Timestamp),
		Frequency: uint16(d.Frequency),
		RSSI:      uint8(d.RSSI),
		Artifact:  d.Artifact,
	}

	if !d.Latitude.Valid && !d.Longitude.Valid && !d.Altitude.Valid && !d.Satellites.Valid {
		return c
	}

	c.Telemetry = &telemetry.Telemetry{Timestamp: c.Timestamp}
	if d.Latitude.Valid {
		c.Telemetry.Latitude = &d.Latitude.Float64
	}
	if d.Longitude.Valid {
		c.Telemetry.Longitude = &d.Longitude.Float64
	}
	if d.Altitude.Valid {
		c.Telemetry.Altitude = &d.Altitude.Float64
	}
	if d.Satellites.Valid {
		sats := int(d.Satellites.Int64)
		c.Telemetry.Satellites = &sats
	}

	return c
}

func toSQLNullType[T float64 | int64, Y float64 | int | int64](f *Y) T {
	if f == nil {
		return 0
	}
	return T(*f)
}
