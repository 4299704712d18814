package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	activity "github.com/lucasjlepore/activity-engine"
	"github.com/lucasjlepore/activity-engine/blobcodec"
	"github.com/lucasjlepore/activity-engine/config"
	"github.com/lucasjlepore/activity-engine/export"
	"github.com/lucasjlepore/activity-engine/logging"
	"github.com/lucasjlepore/activity-engine/staticmap"
)

func main() {
	var (
		format    = flag.String("format", "gpx", "Export format: gpx|parquet|columns")
		outPath   = flag.String("out", "", "Output path (default: stdout; required for parquet)")
		name      = flag.String("name", "", "Activity name for GPX metadata (default: blob file stem)")
		columns   = flag.String("columns", "", "Comma-separated column names (columns format)")
		mapOut    = flag.String("map", "", "Render a map PNG to this path (requires renderer.url in config)")
		mapPoints = flag.Int("map-points", staticmap.DefaultSampleCount, "Point budget for map rendering")
		mapWidth  = flag.Int("map-width", 800, "Rendered map width in pixels")
		mapHeight = flag.Int("map-height", 600, "Rendered map height in pixels")
		cfgPath   = flag.String("config", "", "Config file path (default: search standard locations)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <track.blob>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	blobPath := flag.Arg(0)
	data, err := os.ReadFile(blobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
		os.Exit(1)
	}
	track, err := blobcodec.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LoggerConfig())

	if *name == "" {
		base := filepath.Base(blobPath)
		*name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "gpx":
		doc, err := export.GPX(track, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
			os.Exit(1)
		}
		if err := writeOutput(*outPath, doc); err != nil {
			fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
			os.Exit(1)
		}
	case "parquet":
		if strings.TrimSpace(*outPath) == "" {
			fmt.Fprintln(os.Stderr, "parquet output requires --out")
			os.Exit(2)
		}
		if err := export.WriteParquet(*outPath, track); err != nil {
			fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
			os.Exit(1)
		}
	case "columns":
		cols := export.Columns(track, splitColumns(*columns))
		buf, err := json.MarshalIndent(cols, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
			os.Exit(1)
		}
		if err := writeOutput(*outPath, append(buf, '\n')); err != nil {
			fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unsupported format %q (expected gpx|parquet|columns)\n", *format)
		os.Exit(2)
	}
	if *outPath != "" {
		fmt.Printf("wrote %s\n", *outPath)
	}

	if *mapOut != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := renderMap(ctx, cfg, log, track, *mapOut, *mapPoints, *mapWidth, *mapHeight); err != nil {
			fmt.Fprintf(os.Stderr, "activity_export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *mapOut)
	}
}

func renderMap(ctx context.Context, cfg *config.Config, log zerolog.Logger, track *activity.Track, path string, points, width, height int) error {
	if strings.TrimSpace(cfg.Renderer.URL) == "" {
		return fmt.Errorf("renderer.url is not configured")
	}
	pts, err := staticmap.SampleForMap(track, points)
	if err != nil {
		return err
	}
	renderer := staticmap.NewHTTPRenderer(staticmap.HTTPRendererConfig{
		URL:         cfg.Renderer.URL,
		Timeout:     cfg.Renderer.Timeout,
		MaxFailures: cfg.Renderer.MaxFailures,
		Log:         log,
	})
	img, err := renderer.Render(ctx, pts, staticmap.RenderOptions{Width: width, Height: height})
	if err != nil {
		return err
	}
	return os.WriteFile(path, img, 0o644)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func splitColumns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
