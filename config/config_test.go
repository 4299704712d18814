package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	activity "github.com/lucasjlepore/activity-engine"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %q/%q, want info/json", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Decoder.Strict || cfg.Decoder.RetainUnknown {
		t.Errorf("decoder defaults = %+v, want both false", cfg.Decoder)
	}
	if cfg.Analytics.StopSpeedMPS != 0.7 {
		t.Errorf("StopSpeedMPS = %v, want 0.7", cfg.Analytics.StopSpeedMPS)
	}
	if cfg.Analytics.MinStopDuration != 30*time.Second {
		t.Errorf("MinStopDuration = %v, want 30s", cfg.Analytics.MinStopDuration)
	}
	if cfg.Analytics.ElevationWindow != 5 {
		t.Errorf("ElevationWindow = %d, want 5", cfg.Analytics.ElevationWindow)
	}
	if cfg.Analytics.ElevationNoiseM != 1.0 {
		t.Errorf("ElevationNoiseM = %v, want 1.0", cfg.Analytics.ElevationNoiseM)
	}
	if cfg.Renderer.Timeout != 10*time.Second || cfg.Renderer.MaxFailures != 5 {
		t.Errorf("renderer defaults = %+v, want 10s/5", cfg.Renderer)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Pipeline.Workers)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: debug
  format: console
analytics:
  stop_speed_mps: 1.2
  min_stop_duration: 45s
renderer:
  url: http://tiles.example.com/render
pipeline:
  workers: 8
  write_gpx: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %q/%q, want debug/console", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Analytics.StopSpeedMPS != 1.2 {
		t.Errorf("StopSpeedMPS = %v, want 1.2", cfg.Analytics.StopSpeedMPS)
	}
	if cfg.Analytics.MinStopDuration != 45*time.Second {
		t.Errorf("MinStopDuration = %v, want 45s", cfg.Analytics.MinStopDuration)
	}
	if cfg.Renderer.URL != "http://tiles.example.com/render" {
		t.Errorf("Renderer.URL = %q", cfg.Renderer.URL)
	}
	if cfg.Pipeline.Workers != 8 || !cfg.Pipeline.WriteGPX {
		t.Errorf("pipeline = %+v, want workers 8 and write_gpx true", cfg.Pipeline)
	}

	// Values the file does not mention keep their defaults.
	if cfg.Analytics.ElevationWindow != 5 {
		t.Errorf("ElevationWindow = %d, want default 5", cfg.Analytics.ElevationWindow)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "no-such.yaml")); err == nil {
		t.Fatal("Load with a missing explicit path should fail")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "log: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with malformed YAML should fail")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
log:
  level: debug
analytics:
  stop_speed_mps: 1.2
`)
	t.Setenv("ACTIVITY_LOG_LEVEL", "error")
	t.Setenv("ACTIVITY_STOP_SPEED_MPS", "2.5")
	t.Setenv("ACTIVITY_MIN_STOP_DURATION", "90s")
	t.Setenv("ACTIVITY_PIPELINE_WRITE_PARQUET", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want env value error", cfg.Log.Level)
	}
	if cfg.Analytics.StopSpeedMPS != 2.5 {
		t.Errorf("StopSpeedMPS = %v, want env value 2.5", cfg.Analytics.StopSpeedMPS)
	}
	if cfg.Analytics.MinStopDuration != 90*time.Second {
		t.Errorf("MinStopDuration = %v, want 90s", cfg.Analytics.MinStopDuration)
	}
	if !cfg.Pipeline.WriteParquet {
		t.Error("WriteParquet should be set from the environment")
	}
}

func TestEnvIgnoresUnmappedKeys(t *testing.T) {
	t.Setenv("ACTIVITY_NO_SUCH_KNOB", "surprise")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want untouched default info", cfg.Log.Level)
	}
}

func TestConfigPathEnvVar(t *testing.T) {
	path := writeConfigFile(t, "pipeline:\n  workers: 2\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("Workers = %d, want 2 from %s", cfg.Pipeline.Workers, ConfigPathEnvVar)
	}
}

func TestValidateRejectsNegatives(t *testing.T) {
	cases := map[string]string{
		"stop speed":       "analytics:\n  stop_speed_mps: -0.5\n",
		"stop duration":    "analytics:\n  min_stop_duration: -10s\n",
		"elevation window": "analytics:\n  elevation_window: -1\n",
		"workers":          "pipeline:\n  workers: -4\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfigFile(t, contents)
			if _, err := Load(path); err == nil {
				t.Error("Load should reject the negative value")
			}
		})
	}
}

func TestThresholdsMatchEngineDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.Thresholds(), activity.DefaultConfig(); got != want {
		t.Errorf("Thresholds() = %+v, want %+v", got, want)
	}
}

func TestDecodeOptionsConversion(t *testing.T) {
	path := writeConfigFile(t, "decoder:\n  strict: true\n  retain_unknown: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := cfg.DecodeOptions()
	if !opts.Strict || !opts.RetainUnknown {
		t.Errorf("DecodeOptions() = %+v, want both true", opts)
	}
}

func TestLoggerConfigConversion(t *testing.T) {
	path := writeConfigFile(t, "log:\n  level: warn\n  caller: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lc := cfg.LoggerConfig()
	if lc.Level != "warn" || !lc.Caller {
		t.Errorf("LoggerConfig() = %+v, want warn with caller", lc)
	}
}
