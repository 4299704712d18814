package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tormoder/fit"

	activity "github.com/lucasjlepore/activity-engine"
	"github.com/lucasjlepore/activity-engine/blobcodec"
	"github.com/lucasjlepore/activity-engine/fitdecode"
)

var rideStart = time.Date(2023, 6, 10, 8, 0, 0, 0, time.UTC)

func encodeRideFIT(t *testing.T, withGPS bool) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}

	act, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	event := fit.NewEventMsg()
	event.Timestamp = rideStart
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	act.Events = append(act.Events, event)

	first := fit.NewRecordMsg()
	first.Timestamp = rideStart
	first.Distance = 12000 // 120.00 m
	first.Speed = 2500     // 2.5 m/s
	first.HeartRate = 135
	if withGPS {
		first.PositionLat = fit.NewLatitudeDegrees(40.0)
		first.PositionLong = fit.NewLongitudeDegrees(-105.0)
		first.Altitude = 2600
	}
	act.Records = append(act.Records, first)

	second := fit.NewRecordMsg()
	second.Timestamp = rideStart.Add(time.Second)
	second.Distance = 12500
	second.Speed = 2600
	second.HeartRate = 137
	if withGPS {
		second.PositionLat = fit.NewLatitudeDegrees(40.0005)
		second.PositionLong = fit.NewLongitudeDegrees(-105.0005)
		second.Altitude = 2610
	}
	act.Records = append(act.Records, second)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func writeRideFIT(t *testing.T, dir, name string, withGPS bool) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, encodeRideFIT(t, withGPS), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRunWritesCoreArtifacts(t *testing.T) {
	dir := t.TempDir()
	fitPath := writeRideFIT(t, dir, "morning_ride.fit", true)
	outDir := filepath.Join(dir, "out")

	res, err := Run(Options{
		FitPath:   fitPath,
		OutDir:    outDir,
		Analytics: activity.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	blob, err := os.ReadFile(res.BlobPath)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	track, err := blobcodec.Decode(blob)
	if err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	if track.Len() != 2 {
		t.Errorf("round-tripped track Len = %d, want 2", track.Len())
	}

	raw, err := os.ReadFile(res.SummaryPath)
	if err != nil {
		t.Fatalf("read summary.json: %v", err)
	}
	var sidecar struct {
		SourceSHA256   string    `json:"source_sha256"`
		SampleCount    int       `json:"sample_count"`
		StartTime      time.Time `json:"start_time"`
		TotalDistanceM float64   `json:"total_distance_m"`
		ActiveTimeS    float64   `json:"active_time_s"`
		DecoderSource  string    `json:"decoder_source"`
	}
	if err := json.Unmarshal(raw, &sidecar); err != nil {
		t.Fatalf("unmarshal summary.json: %v", err)
	}

	src, _ := os.ReadFile(fitPath)
	sum := sha256.Sum256(src)
	if sidecar.SourceSHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("source_sha256 = %q", sidecar.SourceSHA256)
	}
	if sidecar.SampleCount != 2 {
		t.Errorf("sample_count = %d, want 2", sidecar.SampleCount)
	}
	if !sidecar.StartTime.Equal(rideStart) {
		t.Errorf("start_time = %v, want %v", sidecar.StartTime, rideStart)
	}
	// Cumulative distance: 125.00 - 120.00 m.
	if sidecar.TotalDistanceM != 5.0 {
		t.Errorf("total_distance_m = %v, want 5.0", sidecar.TotalDistanceM)
	}
	if sidecar.ActiveTimeS != 1.0 {
		t.Errorf("active_time_s = %v, want 1.0", sidecar.ActiveTimeS)
	}
	if sidecar.DecoderSource != track.Source() {
		t.Errorf("decoder_source = %q, want %q", sidecar.DecoderSource, track.Source())
	}

	if res.GPXPath != "" || res.ParquetPath != "" || res.SourceCopyPath != "" {
		t.Errorf("optional artifacts should be empty: %+v", res)
	}
}

func TestRunOptionalArtifacts(t *testing.T) {
	dir := t.TempDir()
	fitPath := writeRideFIT(t, dir, "morning_ride.fit", true)

	res, err := Run(Options{
		FitPath:      fitPath,
		OutDir:       filepath.Join(dir, "out"),
		WriteGPX:     true,
		WriteParquet: true,
		CopySource:   true,
		Analytics:    activity.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	gpx, err := os.ReadFile(res.GPXPath)
	if err != nil {
		t.Fatalf("read gpx: %v", err)
	}
	if !bytes.Contains(gpx, []byte("<gpx")) {
		t.Error("gpx output lacks a <gpx> element")
	}
	if !bytes.Contains(gpx, []byte("<name>morning_ride</name>")) {
		t.Error("gpx metadata should carry the file stem as the name")
	}

	pq, err := os.ReadFile(res.ParquetPath)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if !bytes.HasPrefix(pq, []byte("PAR1")) {
		t.Error("parquet output lacks the PAR1 magic")
	}

	copied, err := os.ReadFile(res.SourceCopyPath)
	if err != nil {
		t.Fatalf("read source copy: %v", err)
	}
	src, _ := os.ReadFile(fitPath)
	if !bytes.Equal(copied, src) {
		t.Error("source copy differs from the input recording")
	}
}

func TestRunSkipsGPXWithoutGeodata(t *testing.T) {
	dir := t.TempDir()
	fitPath := writeRideFIT(t, dir, "trainer_session.fit", false)
	outDir := filepath.Join(dir, "out")

	res, err := Run(Options{
		FitPath:   fitPath,
		OutDir:    outDir,
		WriteGPX:  true,
		Analytics: activity.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.GPXPath != "" {
		t.Errorf("GPXPath = %q, want empty for a track without fixes", res.GPXPath)
	}
	if _, err := os.Stat(filepath.Join(outDir, "track.gpx")); !os.IsNotExist(err) {
		t.Error("track.gpx should not exist")
	}
	if res.BlobPath == "" || res.SummaryPath == "" {
		t.Error("core artifacts should still be written")
	}
}

func TestRunRefusesDirtyOutputDir(t *testing.T) {
	dir := t.TempDir()
	fitPath := writeRideFIT(t, dir, "ride.fit", true)
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "stale.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := Options{FitPath: fitPath, OutDir: outDir, Analytics: activity.DefaultConfig()}
	if _, err := Run(opts); err == nil {
		t.Fatal("Run should refuse a non-empty output directory")
	}

	opts.Overwrite = true
	if _, err := Run(opts); err != nil {
		t.Fatalf("Run with Overwrite: %v", err)
	}
}

func TestRunRejectsMissingInputs(t *testing.T) {
	if _, err := Run(Options{OutDir: t.TempDir()}); err == nil {
		t.Error("Run without a fit path should fail")
	}
	if _, err := Run(Options{FitPath: "ride.fit"}); err == nil {
		t.Error("Run without an output directory should fail")
	}
	if _, err := Run(Options{
		FitPath: filepath.Join(t.TempDir(), "absent.fit"),
		OutDir:  t.TempDir(),
	}); err == nil {
		t.Error("Run with a missing recording should fail")
	}
}

func TestRunAllFansOut(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeRideFIT(t, dir, "ride_a.fit", true),
		writeRideFIT(t, dir, "ride_b.fit", true),
		writeRideFIT(t, dir, "ride_c.fit", false),
	}
	outDir := filepath.Join(dir, "out")

	results := RunAll(context.Background(), paths, Options{
		OutDir:    outDir,
		Analytics: activity.DefaultConfig(),
	}, 2)

	if len(results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(results), len(paths))
	}
	for i, r := range results {
		if r.FitPath != paths[i] {
			t.Errorf("result %d out of order: %q", i, r.FitPath)
		}
		if r.Err != nil {
			t.Errorf("result %d: %v", i, r.Err)
			continue
		}
		stem := []string{"ride_a", "ride_b", "ride_c"}[i]
		want := filepath.Join(outDir, stem, "track.blob")
		if r.Result.BlobPath != want {
			t.Errorf("result %d blob path = %q, want %q", i, r.Result.BlobPath, want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("result %d blob missing: %v", i, err)
		}
	}
}

func TestRunAllKeepsGoingAfterBadFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "corrupt.fit")
	if err := os.WriteFile(bad, []byte("not a fit file"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths := []string{
		writeRideFIT(t, dir, "ride_a.fit", true),
		bad,
		writeRideFIT(t, dir, "ride_b.fit", true),
	}

	results := RunAll(context.Background(), paths, Options{
		OutDir:    filepath.Join(dir, "out"),
		Analytics: activity.DefaultConfig(),
	}, 2)

	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("good recordings failed: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, fitdecode.ErrMalformedHeader) {
		t.Errorf("corrupt recording error = %v, want ErrMalformedHeader", results[1].Err)
	}
}

func TestRunAllHonorsCancel(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeRideFIT(t, dir, "ride_a.fit", true),
		writeRideFIT(t, dir, "ride_b.fit", true),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunAll(ctx, paths, Options{
		OutDir:    filepath.Join(dir, "out"),
		Analytics: activity.DefaultConfig(),
	}, 2)

	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result %d err = %v, want context.Canceled", i, r.Err)
		}
	}
}

func TestRunAllEmptyBatch(t *testing.T) {
	results := RunAll(context.Background(), nil, Options{OutDir: t.TempDir()}, 0)
	if len(results) != 0 {
		t.Fatalf("got %d results for an empty batch", len(results))
	}
}
