package storage

import (
	"database/sql"
)

type sessionData struct {
	ID             int64
	StartTime      int64
	Mode           string
	FrequencyStart int64
	FrequencyEnd   int64
	Receiver       string
	Config         sql.NullString
}

type sampleData struct {
	SessionID int64
	Timestamp int64
	Frequency int64
	RSSI      int64
}

type detectionData struct {
	Frequency     int64
	RSSI          int64
	VideoDetected bool
	DetectedAt    int64
	LastSeen      int64
	Artifact      sql.NullString
}

type captureData struct {
	ID         int64
	SessionID  int64
	Timestamp  int64
	Frequency  int64
	RSSI       int64
	Artifact   string
	Latitude   sql.NullFloat64
	Longitude  sql.NullFloat64
	Altitude   sql.NullFloat64
	Satellites sql.NullInt64
}
