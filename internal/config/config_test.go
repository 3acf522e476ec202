package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.StepInterval <= 0 {
		t.Error("step interval should be positive")
	}
	if cfg.Delay.Enabled {
		t.Error("delay should be disabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `endpoint: "plant:6000"
step_interval: 0.01
max_steps: 500
delay:
  enabled: true
  processing_delay_ms: 8
  response_delay_ms: 7
controller:
  setpoint: 25
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Endpoint != "plant:6000" {
		t.Errorf("endpoint: got %s", cfg.Endpoint)
	}
	if cfg.MaxSteps != 500 {
		t.Errorf("max_steps: got %d", cfg.MaxSteps)
	}
	if !cfg.Delay.Enabled || cfg.Delay.ProcessingMs != 8 {
		t.Errorf("delay section not applied: %+v", cfg.Delay)
	}
	if cfg.Controller.Setpoint != 25 {
		t.Errorf("setpoint: got %f", cfg.Controller.Setpoint)
	}
	// Untouched values keep defaults.
	if cfg.Controller.Kp != DefaultKp {
		t.Errorf("kp: got %f want default", cfg.Controller.Kp)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLANT_ADDR", "10.0.0.2:7000")
	t.Setenv("MAX_STEPS", "123")
	t.Setenv("DELAY_ENABLED", "true")
	t.Setenv("DELAY_VARIATION_MS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Endpoint != "10.0.0.2:7000" {
		t.Errorf("endpoint: got %s", cfg.Endpoint)
	}
	if cfg.MaxSteps != 123 {
		t.Errorf("max_steps: got %d", cfg.MaxSteps)
	}
	if !cfg.Delay.Enabled || cfg.Delay.VariationMs != 2.5 {
		t.Errorf("delay overrides not applied: %+v", cfg.Delay)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }},
		{"zero step interval", func(c *Config) { c.StepInterval = 0 }},
		{"negative max steps", func(c *Config) { c.MaxSteps = -1 }},
		{"zero timeout", func(c *Config) { c.StepTimeout = 0 }},
		{"negative delay", func(c *Config) { c.Delay.ProcessingMs = -1 }},
		{"bad distribution", func(c *Config) { c.Delay.Distribution = "poisson" }},
		{"zero mass", func(c *Config) { c.Plant.Mass = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestDurationConversions(t *testing.T) {
	cfg := Default()
	cfg.StepInterval = 0.02
	cfg.StepTimeout = 0.5
	cfg.Delay.ProcessingMs = 8
	cfg.Delay.ResponseMs = 7

	if cfg.StepIntervalDur() != 20*time.Millisecond {
		t.Errorf("step interval: got %v", cfg.StepIntervalDur())
	}
	if cfg.StepTimeoutDur() != 500*time.Millisecond {
		t.Errorf("step timeout: got %v", cfg.StepTimeoutDur())
	}
	dc := cfg.DelayScheduler()
	if dc.Processing != 8*time.Millisecond || dc.Response != 7*time.Millisecond {
		t.Errorf("delay conversion: %+v", dc)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	cfg.Controller.Setpoint = 42
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Controller.Setpoint != 42 {
		t.Errorf("setpoint lost on round trip: %f", loaded.Controller.Setpoint)
	}
}
