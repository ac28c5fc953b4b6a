package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/fpv-interceptor/internal/spectrum"
	"github.com/roman-kulish/fpv-interceptor/internal/telemetry"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "scan.db"), WithMaxBatchRows(3))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestSession(t *testing.T, s *SqliteStore, start, end uint16) int64 {
	t.Helper()

	id, err := s.CreateSession(context.Background(), &spectrum.ScanSession{
		StartTime:      time.UnixMilli(1_700_000_000_000),
		Mode:           "continuous-sweep",
		FrequencyStart: start,
		FrequencyEnd:   end,
		Receiver:       "simulated",
	}, map[string]int{"dwell": 100})
	if err != nil {
		t.Fatalf("Expected no error creating session, got %v", err)
	}
	return id
}

func TestSqliteStore_Session(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestSession(t, s, 5800, 5805)

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if sess.Mode != "continuous-sweep" || sess.FrequencyStart != 5800 || sess.FrequencyEnd != 5805 {
		t.Errorf("Expected stored session fields, got %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"dwell":100}` {
		t.Errorf("Expected JSON config, got %v", sess.Config)
	}
	if !sess.StartTime.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("Expected start time to round trip, got %s", sess.StartTime)
	}

	if _, err = s.Session(ctx, id+1); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData for missing session, got %v", err)
	}

	createTestSession(t, s, 5725, 6000)
	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(sessions))
	}
}

func TestSqliteStore_ReadPasses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestSession(t, s, 5800, 5804)

	ts := time.UnixMilli(1_700_000_001_000).UTC()
	point := func(offset int, mhz uint16, rssi uint8) spectrum.RSSIPoint {
		return spectrum.RSSIPoint{Timestamp: ts.Add(time.Duration(offset) * time.Millisecond), Frequency: mhz, RSSI: rssi}
	}

	// second pass misses 5801 and 5804
	points := []spectrum.RSSIPoint{
		point(0, 5800, 10), point(1, 5801, 20), point(2, 5802, 70), point(3, 5803, 30), point(4, 5804, 40),
		point(10, 5800, 11), point(12, 5802, 72), point(13, 5803, 33),
	}
	if err := s.StoreSamples(ctx, id, points); err != nil {
		t.Fatalf("Expected no error storing samples, got %v", err)
	}

	r, err := s.ReadPasses(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer r.Close()

	if r.Session().ID != id {
		t.Errorf("Expected session %d, got %d", id, r.Session().ID)
	}

	var passes []*spectrum.Pass
	for r.Next(ctx) {
		passes = append(passes, r.Current())
	}
	if err = r.Error(); err != nil {
		t.Fatalf("Expected no iteration error, got %v", err)
	}

	if len(passes) != 2 {
		t.Fatalf("Expected 2 passes, got %d", len(passes))
	}

	expected := [][]uint8{
		{10, 20, 70, 30, 40},
		{11, 0, 72, 33, 0},
	}
	for i, pass := range passes {
		if pass.Index != i {
			t.Errorf("Expected pass index %d, got %d", i, pass.Index)
		}
		if len(pass.Points) != 5 {
			t.Fatalf("Expected 5 points in pass %d, got %d", i, len(pass.Points))
		}
		for j, p := range pass.Points {
			if p.Frequency != 5800+uint16(j) {
				t.Errorf("Expected frequency %d, got %d", 5800+j, p.Frequency)
			}
			if p.RSSI != expected[i][j] {
				t.Errorf("Expected pass %d point %d rssi %d, got %d", i, j, expected[i][j], p.RSSI)
			}
		}
	}
	if !passes[1].Timestamp.Equal(ts.Add(10 * time.Millisecond)) {
		t.Errorf("Expected second pass timestamp of its first reading, got %s", passes[1].Timestamp)
	}
}

func TestSqliteStore_ReadPassesFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestSession(t, s, 5800, 5804)
	ts := time.UnixMilli(1_700_000_001_000).UTC()

	var points []spectrum.RSSIPoint
	for pass := range 3 {
		for mhz := uint16(5800); mhz <= 5804; mhz++ {
			points = append(points, spectrum.RSSIPoint{
				Timestamp: ts.Add(time.Duration(pass) * time.Second),
				Frequency: mhz,
				RSSI:      uint8(pass*10) + 1,
			})
		}
	}
	if err := s.StoreSamples(ctx, id, points); err != nil {
		t.Fatalf("Expected no error storing samples, got %v", err)
	}

	r, err := s.ReadPasses(ctx, id,
		WithFreqRange(5801, 5802),
		WithTimeRange(ts.Add(time.Second), ts.Add(2*time.Second)),
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer r.Close()

	count := 0
	for r.Next(ctx) {
		pass := r.Current()
		if pass.FrequencyStart != 5801 || pass.FrequencyEnd != 5802 || len(pass.Points) != 2 {
			t.Errorf("Expected pass over 5801-5802, got %+v", pass)
		}
		if expected := uint8((count+1)*10) + 1; pass.Points[0].RSSI != expected {
			t.Errorf("Expected rssi %d, got %d", expected, pass.Points[0].RSSI)
		}
		count++
	}
	if count != 2 {
		t.Errorf("Expected 2 passes in the time range, got %d", count)
	}

	if _, err = s.ReadPasses(ctx, id, WithFreqRange(5810, 5800)); err == nil {
		t.Error("Expected error for inverted frequency filter, got nil")
	}
}

func TestSqliteStore_Detections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestSession(t, s, 5725, 6000)
	first := time.UnixMilli(1_700_000_002_000).UTC()
	artifact := "capture-1"

	err := s.StoreDetections(ctx, id, []spectrum.Detection{
		{Frequency: 5800, RSSI: 70, VideoDetected: true, DetectedAt: first, LastSeen: first, Artifact: &artifact},
		{Frequency: 5865, RSSI: 55, DetectedAt: first, LastSeen: first},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// the update keeps the artifact which is not repeated
	later := first.Add(time.Minute)
	err = s.StoreDetections(ctx, id, []spectrum.Detection{
		{Frequency: 5800, RSSI: 80, VideoDetected: true, DetectedAt: later, LastSeen: later},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	detections, err := s.Detections(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(detections))
	}

	d := detections[0]
	if d.Frequency != 5800 || d.RSSI != 80 || !d.VideoDetected {
		t.Errorf("Expected updated 5800 detection, got %+v", d)
	}
	if !d.DetectedAt.Equal(first) || !d.LastSeen.Equal(later) {
		t.Errorf("Expected first detection time kept and last seen updated, got %s / %s", d.DetectedAt, d.LastSeen)
	}
	if d.Artifact == nil || *d.Artifact != artifact {
		t.Errorf("Expected artifact %q, got %v", artifact, d.Artifact)
	}
	if detections[1].Artifact != nil {
		t.Errorf("Expected no artifact for 5865, got %v", *detections[1].Artifact)
	}
}

func TestSqliteStore_Captures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestSession(t, s, 5725, 6000)
	ts := time.UnixMilli(1_700_000_003_000).UTC()

	lat, lon, sats := -33.8688, 151.2093, 9
	tests := []*spectrum.Capture{
		{Timestamp: ts, Frequency: 5800, RSSI: 70, Artifact: "a", Telemetry: &telemetry.Telemetry{
			Timestamp: ts, Latitude: &lat, Longitude: &lon, Satellites: &sats,
		}},
		{Timestamp: ts.Add(time.Second), Frequency: 5865, RSSI: 66, Artifact: "b"},
	}

	for _, c := range tests {
		captureID, err := s.StoreCapture(ctx, id, c)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if captureID <= 0 {
			t.Errorf("Expected positive capture ID, got %d", captureID)
		}
	}

	captures, err := s.Captures(ctx, id)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("Expected 2 captures, got %d", len(captures))
	}

	tagged := captures[0]
	if tagged.Telemetry == nil || !tagged.Telemetry.HasPosition() {
		t.Fatalf("Expected position on first capture, got %+v", tagged.Telemetry)
	}
	if *tagged.Telemetry.Latitude != lat || *tagged.Telemetry.Longitude != lon {
		t.Errorf("Expected %f,%f, got %f,%f", lat, lon, *tagged.Telemetry.Latitude, *tagged.Telemetry.Longitude)
	}
	if tagged.Telemetry.Altitude != nil {
		t.Errorf("Expected no altitude, got %f", *tagged.Telemetry.Altitude)
	}
	if tagged.Telemetry.Satellites == nil || *tagged.Telemetry.Satellites != sats {
		t.Errorf("Expected %d satellites, got %v", sats, tagged.Telemetry.Satellites)
	}
	if captures[1].Telemetry != nil {
		t.Errorf("Expected no telemetry on second capture, got %+v", captures[1].Telemetry)
	}
}

func TestSqliteStore_CloseTwice(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "scan.db"))
	createTestSession(t, s, 5800, 5800)

	if err := s.Close(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Expected no error on second close, got %v", err)
	}
}
