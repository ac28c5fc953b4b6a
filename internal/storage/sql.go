package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_samples_session_frequency ON samples (session_id, frequency);
CREATE INDEX IF NOT EXISTS idx_samples_session_timestamp ON samples (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_captures_session ON captures (session_id, timestamp);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      mode,
                      frequency_start,
                      frequency_end,
                      receiver,
                      config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id,
       start_time,
       mode,
       frequency_start,
       frequency_end,
       receiver,
       config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       mode,
       frequency_start,
       frequency_end,
       receiver,
       config
FROM sessions
ORDER BY start_time, id`

	// rows are appended by the batch writer
	insertSampleSQL = `
INSERT INTO samples (session_id,
                     timestamp,
                     frequency,
                     rssi)
VALUES `

	samplePlaceholder = "(?, ?, ?, ?)"
	sampleParams      = 4

	upsertDetectionSQL = `
INSERT INTO detections (session_id,
                        frequency,
                        rssi,
                        video_detected,
                        detected_at,
                        last_seen,
                        artifact)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, frequency) DO UPDATE SET rssi           = excluded.rssi,
                                                  video_detected = excluded.video_detected,
                                                  last_seen      = excluded.last_seen,
                                                  artifact       = COALESCE(excluded.artifact, detections.artifact)`

	selectDetectionsSQL = `
SELECT frequency,
       rssi,
       video_detected,
       detected_at,
       last_seen,
       artifact
FROM detections
WHERE session_id = ?
ORDER BY detected_at, frequency`

	insertCaptureSQL = `
INSERT INTO captures (session_id,
                      timestamp,
                      frequency,
                      rssi,
                      artifact,
                      latitude,
                      longitude,
                      altitude,
                      satellites)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCapturesSQL = `
SELECT id,
       timestamp,
       frequency,
       rssi,
       artifact,
       latitude,
       longitude,
       altitude,
       satellites
FROM captures
WHERE session_id = ?
ORDER BY timestamp, id`

	selectFilterValuesSQL = `
SELECT COALESCE(MIN(frequency), 0),
       COALESCE(MAX(frequency), 0),
       COALESCE(MIN(timestamp), 0),
       COALESCE(MAX(timestamp), 0)
FROM samples
WHERE session_id = ?`

	// insertion order is sweep order
	selectSamplesSQL = `
SELECT timestamp,
       frequency,
       rssi
FROM samples
WHERE session_id = ?
  AND timestamp BETWEEN ? AND ?
  AND frequency BETWEEN ? AND ?
ORDER BY id`
)
