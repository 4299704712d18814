// Package pipeline orchestrates file-level ingestion: decode a
// recording, derive its summary, and persist the blob plus sidecar
// artifacts. Run handles one recording; RunAll fans a batch out over
// a bounded worker pool.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	activity "github.com/lucasjlepore/activity-engine"
	"github.com/lucasjlepore/activity-engine/blobcodec"
	"github.com/lucasjlepore/activity-engine/export"
	"github.com/lucasjlepore/activity-engine/fitdecode"
)

// Options configures a single ingest run.
type Options struct {
	// FitPath is the recording to ingest.
	FitPath string
	// OutDir receives the artifacts. It is created if missing and must
	// be empty unless Overwrite is set.
	OutDir string

	WriteGPX     bool
	WriteParquet bool
	CopySource   bool
	Overwrite    bool

	Analytics activity.Config
	Decoder   fitdecode.Options

	// Log receives structured progress events. The zero value drops
	// everything.
	Log zerolog.Logger
}

// Result lists the artifacts one run produced. Optional paths are
// empty when the artifact was not requested or not producible.
type Result struct {
	OutputDir      string
	BlobPath       string
	SummaryPath    string
	GPXPath        string
	ParquetPath    string
	SourceCopyPath string

	Summary  activity.Summary
	Warnings []string
}

// summaryFile is the summary.json sidecar.
type summaryFile struct {
	SourceFile         string    `json:"source_file"`
	SourceSHA256       string    `json:"source_sha256"`
	SourceSizeBytes    int64     `json:"source_size_bytes"`
	GeneratedAt        time.Time `json:"generated_at"`
	DecoderSource      string    `json:"decoder_source"`
	SampleCount        int       `json:"sample_count"`
	StartTime          time.Time `json:"start_time"`
	TotalDistanceM     float64   `json:"total_distance_m"`
	DistanceIncomplete bool      `json:"distance_incomplete,omitempty"`
	ElevationGainM     float64   `json:"elevation_gain_m"`
	ActiveTimeS        float64   `json:"active_time_s"`
	Warnings           []string  `json:"warnings,omitempty"`
}

// Run ingests one recording and writes its artifacts.
// Output files:
//   - track.blob
//   - summary.json
//   - track.gpx (optional; skipped when the track has no position data)
//   - samples.parquet (optional)
//   - a copy of the source recording (optional)
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.FitPath) == "" {
		return nil, fmt.Errorf("fit path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	data, err := os.ReadFile(opts.FitPath)
	if err != nil {
		return nil, fmt.Errorf("read fit file: %w", err)
	}
	sum := sha256.Sum256(data)

	name := filepath.Base(opts.FitPath)
	track, err := fitdecode.Decode(data, opts.Decoder)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	summary, err := activity.Summarize(track, opts.Analytics)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", name, err)
	}

	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	blob, err := blobcodec.Encode(track)
	if err != nil {
		return nil, fmt.Errorf("encode track blob: %w", err)
	}
	blobPath := filepath.Join(opts.OutDir, "track.blob")
	if err := os.WriteFile(blobPath, blob, 0o644); err != nil {
		return nil, fmt.Errorf("write track.blob: %w", err)
	}

	summaryPath := filepath.Join(opts.OutDir, "summary.json")
	sidecar := summaryFile{
		SourceFile:         opts.FitPath,
		SourceSHA256:       hex.EncodeToString(sum[:]),
		SourceSizeBytes:    int64(len(data)),
		GeneratedAt:        time.Now().UTC(),
		DecoderSource:      track.Source(),
		SampleCount:        summary.SampleCount,
		StartTime:          summary.StartTime,
		TotalDistanceM:     summary.TotalDistance,
		DistanceIncomplete: summary.DistanceIncomplete,
		ElevationGainM:     summary.ElevationGain,
		ActiveTimeS:        summary.ActiveTime.Seconds(),
		Warnings:           track.Warnings(),
	}
	if err := writeJSON(summaryPath, sidecar); err != nil {
		return nil, fmt.Errorf("write summary.json: %w", err)
	}

	res := &Result{
		OutputDir:   opts.OutDir,
		BlobPath:    blobPath,
		SummaryPath: summaryPath,
		Summary:     summary,
		Warnings:    track.Warnings(),
	}

	if opts.WriteGPX {
		doc, err := export.GPX(track, activityName(opts.FitPath))
		switch {
		case errors.Is(err, activity.ErrNoGeodata):
			opts.Log.Debug().Str("file", name).Msg("no position data, skipping gpx")
		case err != nil:
			return nil, fmt.Errorf("build gpx: %w", err)
		default:
			res.GPXPath = filepath.Join(opts.OutDir, "track.gpx")
			if err := os.WriteFile(res.GPXPath, doc, 0o644); err != nil {
				return nil, fmt.Errorf("write track.gpx: %w", err)
			}
		}
	}

	if opts.WriteParquet {
		res.ParquetPath = filepath.Join(opts.OutDir, "samples.parquet")
		if err := export.WriteParquet(res.ParquetPath, track); err != nil {
			return nil, fmt.Errorf("write samples.parquet: %w", err)
		}
	}

	if opts.CopySource {
		res.SourceCopyPath = filepath.Join(opts.OutDir, name)
		if err := os.WriteFile(res.SourceCopyPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("copy source recording: %w", err)
		}
	}

	if w := track.Warnings(); len(w) > 0 {
		opts.Log.Warn().Str("file", name).Strs("warnings", w).Msg("decoded with warnings")
	}
	opts.Log.Info().
		Str("file", name).
		Int("samples", summary.SampleCount).
		Float64("distance_m", summary.TotalDistance).
		Dur("active_time", summary.ActiveTime).
		Msg("ingested recording")

	return res, nil
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set Overwrite to allow)", path)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// activityName strips the directory and extension from a recording
// path, leaving the name used for GPX metadata and batch directories.
func activityName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
