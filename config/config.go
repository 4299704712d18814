// Package config loads the engine configuration from layered sources:
// built-in defaults, then an optional YAML file, then ACTIVITY_*
// environment variables, each layer overriding the one below.
//
// Environment variables map onto config paths through an explicit
// table, for example:
//
//	ACTIVITY_LOG_LEVEL          -> log.level
//	ACTIVITY_STOP_SPEED_MPS     -> analytics.stop_speed_mps
//	ACTIVITY_RENDERER_URL       -> renderer.url
//	ACTIVITY_PIPELINE_WORKERS   -> pipeline.workers
//
// Unmapped variables are ignored so unrelated environment noise cannot
// leak into the configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	activity "github.com/lucasjlepore/activity-engine"
	"github.com/lucasjlepore/activity-engine/fitdecode"
	"github.com/lucasjlepore/activity-engine/logging"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"activity.yaml",
	"activity.yml",
	"/etc/activity-engine/activity.yaml",
	"/etc/activity-engine/activity.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "ACTIVITY_CONFIG"

const envPrefix = "ACTIVITY_"

// Config is the full engine configuration.
type Config struct {
	Log       LoggingConfig   `koanf:"log"`
	Decoder   DecoderConfig   `koanf:"decoder"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Renderer  RendererConfig  `koanf:"renderer"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DecoderConfig controls decode policy.
type DecoderConfig struct {
	Strict        bool `koanf:"strict"`
	RetainUnknown bool `koanf:"retain_unknown"`
}

// AnalyticsConfig carries the summary thresholds.
type AnalyticsConfig struct {
	StopSpeedMPS    float64       `koanf:"stop_speed_mps"`
	MinStopDuration time.Duration `koanf:"min_stop_duration"`
	ElevationWindow int           `koanf:"elevation_window"`
	ElevationNoiseM float64       `koanf:"elevation_noise_m"`
}

// RendererConfig points at the external map renderer.
type RendererConfig struct {
	URL         string        `koanf:"url"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxFailures uint32        `koanf:"max_failures"`
}

// PipelineConfig controls the batch ingest pipeline.
type PipelineConfig struct {
	Workers      int  `koanf:"workers"`
	WriteGPX     bool `koanf:"write_gpx"`
	WriteParquet bool `koanf:"write_parquet"`
	CopySource   bool `koanf:"copy_source"`
	Overwrite    bool `koanf:"overwrite"`
}

// defaultConfig holds the values used before any file or environment
// layer applies. Analytics defaults come from the engine itself so the
// numbers live in one place.
func defaultConfig() *Config {
	a := activity.DefaultConfig()
	return &Config{
		Log: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Analytics: AnalyticsConfig{
			StopSpeedMPS:    a.StopSpeed,
			MinStopDuration: a.MinStopDuration,
			ElevationWindow: a.ElevationWindow,
			ElevationNoiseM: a.ElevationNoise,
		},
		Renderer: RendererConfig{
			Timeout:     10 * time.Second,
			MaxFailures: 5,
		},
		Pipeline: PipelineConfig{
			Workers: 4,
		},
	}
}

// Load builds the configuration. An empty path means "search
// DefaultConfigPaths and ACTIVITY_CONFIG"; a missing file at an
// explicit path is an error, a missing discovered file is not.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Analytics.StopSpeedMPS < 0 {
		return fmt.Errorf("config: analytics.stop_speed_mps must not be negative")
	}
	if c.Analytics.MinStopDuration < 0 {
		return fmt.Errorf("config: analytics.min_stop_duration must not be negative")
	}
	if c.Analytics.ElevationWindow < 0 {
		return fmt.Errorf("config: analytics.elevation_window must not be negative")
	}
	if c.Analytics.ElevationNoiseM < 0 {
		return fmt.Errorf("config: analytics.elevation_noise_m must not be negative")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("config: pipeline.workers must not be negative")
	}
	if c.Renderer.Timeout < 0 {
		return fmt.Errorf("config: renderer.timeout must not be negative")
	}
	return nil
}

// Thresholds converts the analytics section for activity.Summarize.
func (c *Config) Thresholds() activity.Config {
	return activity.Config{
		StopSpeed:       c.Analytics.StopSpeedMPS,
		MinStopDuration: c.Analytics.MinStopDuration,
		ElevationWindow: c.Analytics.ElevationWindow,
		ElevationNoise:  c.Analytics.ElevationNoiseM,
	}
}

// DecodeOptions converts the decoder section for fitdecode.Decode.
func (c *Config) DecodeOptions() fitdecode.Options {
	return fitdecode.Options{
		Strict:        c.Decoder.Strict,
		RetainUnknown: c.Decoder.RetainUnknown,
	}
}

// LoggerConfig converts the log section for logging.New.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Caller: c.Log.Caller,
	}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps an ACTIVITY_* variable name to its config path.
// Unknown names map to the empty string and are skipped.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	mappings := map[string]string{
		"log_level":  "log.level",
		"log_format": "log.format",
		"log_caller": "log.caller",

		"decoder_strict":         "decoder.strict",
		"decoder_retain_unknown": "decoder.retain_unknown",

		"stop_speed_mps":    "analytics.stop_speed_mps",
		"min_stop_duration": "analytics.min_stop_duration",
		"elevation_window":  "analytics.elevation_window",
		"elevation_noise_m": "analytics.elevation_noise_m",

		"renderer_url":          "renderer.url",
		"renderer_timeout":      "renderer.timeout",
		"renderer_max_failures": "renderer.max_failures",

		"pipeline_workers":       "pipeline.workers",
		"pipeline_write_gpx":     "pipeline.write_gpx",
		"pipeline_write_parquet": "pipeline.write_parquet",
		"pipeline_copy_source":   "pipeline.copy_source",
		"pipeline_overwrite":     "pipeline.overwrite",
	}
	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
