package spectrum

import (
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/telemetry"
)

// ScanSession is one run of the scanner: a single sweep, continuous sweep or monitor.
type ScanSession struct {
	ID             int64     `json:"ID"`                      // Unique identifier for the session
	StartTime      time.Time `json:"startTime"`               // When the run began
	Mode           string    `json:"mode"`                    // Scan mode, e.g. "single-sweep", "monitor"
	FrequencyStart uint16    `json:"frequencyStart"`          // First frequency of the scanned range in MHz
	FrequencyEnd   uint16    `json:"frequencyEnd"`            // Last frequency of the scanned range in MHz
	Receiver       string    `json:"receiver"`                // Receiver type, e.g. "stub", "serial"
	Config         *string   `json:"config,string,omitempty"` // Optional run configuration in JSON format
}

// RSSIPoint is a single reading taken on a channel
type RSSIPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Frequency uint16    `json:"frequency"` // MHz
	RSSI      uint8     `json:"rssi"`      // 0..100, 0 when no reading was taken
}

// Pass is one sweep of a frequency range, densely filled: channels without a
// reading in the pass hold RSSI 0.
type Pass struct {
	Index          int         `json:"index"`
	Timestamp      time.Time   `json:"timestamp"` // Time of the first reading of the pass
	FrequencyStart uint16      `json:"frequencyStart"`
	FrequencyEnd   uint16      `json:"frequencyEnd"`
	Points         []RSSIPoint `json:"points,omitempty"` // One point per channel in ascending frequency
}

// Detection is the persisted state of a detected signal at the end of a run
type Detection struct {
	Frequency     uint16    `json:"frequency"`
	RSSI          uint8     `json:"rssi"`
	VideoDetected bool      `json:"videoDetected"`
	DetectedAt    time.Time `json:"detectedAt"`
	LastSeen      time.Time `json:"lastSeen"`
	Artifact      *string   `json:"artifact,omitempty"`
}

// Capture is a video detection handed to the capture collaborator, tagged
// with the receiver position when one is known.
type Capture struct {
	ID        int64                `json:"ID"`
	Timestamp time.Time            `json:"timestamp"`
	Frequency uint16               `json:"frequency"`
	RSSI      uint8                `json:"rssi"`
	Artifact  string               `json:"artifact"`
	Telemetry *telemetry.Telemetry `json:"telemetry,omitempty"`
}
