package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lucasjlepore/activity-engine/config"
	"github.com/lucasjlepore/activity-engine/logging"
	"github.com/lucasjlepore/activity-engine/pipeline"
)

func main() {
	var (
		outDir     = flag.String("out", "", "Output directory (one subdirectory per recording)")
		cfgPath    = flag.String("config", "", "Config file path (default: search standard locations)")
		workers    = flag.Int("workers", 0, "Worker pool size")
		writeGPX   = flag.Bool("gpx", false, "Write a GPX track per recording")
		writePq    = flag.Bool("parquet", false, "Write a parquet sample table per recording")
		copySource = flag.Bool("copy-source", false, "Copy the source recording into the output directory")
		overwrite  = flag.Bool("overwrite", false, "Allow writing into non-empty output directories")
		strict     = flag.Bool("strict", false, "Fail on any recoverable decode anomaly")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --out outdir [flags] <recording.fit> [more.fit ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*outDir) == "" || flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "activity_ingest failed: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["workers"] {
		cfg.Pipeline.Workers = *workers
	}
	if set["gpx"] {
		cfg.Pipeline.WriteGPX = *writeGPX
	}
	if set["parquet"] {
		cfg.Pipeline.WriteParquet = *writePq
	}
	if set["copy-source"] {
		cfg.Pipeline.CopySource = *copySource
	}
	if set["overwrite"] {
		cfg.Pipeline.Overwrite = *overwrite
	}
	if set["strict"] {
		cfg.Decoder.Strict = *strict
	}

	log := logging.New(cfg.LoggerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := pipeline.RunAll(ctx, flag.Args(), pipeline.Options{
		OutDir:       *outDir,
		WriteGPX:     cfg.Pipeline.WriteGPX,
		WriteParquet: cfg.Pipeline.WriteParquet,
		CopySource:   cfg.Pipeline.CopySource,
		Overwrite:    cfg.Pipeline.Overwrite,
		Analytics:    cfg.Thresholds(),
		Decoder:      cfg.DecodeOptions(),
		Log:          log,
	}, cfg.Pipeline.Workers)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", r.FitPath, r.Err)
			continue
		}
		s := r.Result.Summary
		distance := fmt.Sprintf("%.1f m", s.TotalDistance)
		if s.DistanceIncomplete {
			distance += " (incomplete)"
		}
		fmt.Printf("ingested %s\n", r.FitPath)
		fmt.Printf("  output:      %s\n", r.Result.OutputDir)
		fmt.Printf("  samples:     %d\n", s.SampleCount)
		fmt.Printf("  distance:    %s\n", distance)
		fmt.Printf("  elevation:   %.1f m\n", s.ElevationGain)
		fmt.Printf("  active time: %s\n", s.ActiveTime)
		for _, w := range r.Result.Warnings {
			fmt.Printf("  warning:     %s\n", w)
		}
	}
	fmt.Printf("%d/%d recordings ingested\n", len(results)-failed, len(results))
	if failed > 0 {
		os.Exit(1)
	}
}
