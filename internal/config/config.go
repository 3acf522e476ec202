package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hilsim/internal/delay"
)

const (
	DefaultEndpoint     = "127.0.0.1:5005"
	DefaultStepInterval = 0.02
	DefaultMaxSteps     = 4000
	DefaultStepTimeout  = 1.0
	DefaultSyncTimeout  = 10.0
	DefaultMass         = 1.0
	DefaultGravity      = 9.81
	DefaultKp           = 10.0
	DefaultKi           = 0.1
	DefaultKd           = 5.0
	DefaultSetpoint     = 10.0
)

// Config is the full configuration surface for both sessions. Time values
// are seconds or milliseconds as named; conversion helpers return
// durations.
type Config struct {
	Endpoint     string  `yaml:"endpoint"`
	StepInterval float64 `yaml:"step_interval"` // [s]
	MaxSteps     int     `yaml:"max_steps"`
	StepTimeout  float64 `yaml:"step_timeout"` // [s]
	SyncTimeout  float64 `yaml:"sync_timeout"` // [s]
	Seed         uint64  `yaml:"seed"`

	Delay      DelayConfig      `yaml:"delay"`
	Plant      PlantConfig      `yaml:"plant"`
	Controller ControllerConfig `yaml:"controller"`
	Log        LogConfig        `yaml:"log"`
}

// DelayConfig configures the plant-side delay scheduler.
type DelayConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ProcessingMs float64 `yaml:"processing_delay_ms"`
	ResponseMs   float64 `yaml:"response_delay_ms"`
	VariationMs  float64 `yaml:"variation_ms"`
	Distribution string  `yaml:"distribution"` // uniform | gaussian
}

// PlantConfig configures the altitude model.
type PlantConfig struct {
	Mass            float64 `yaml:"mass"`
	Gravity         float64 `yaml:"gravity"`
	InitialPosition float64 `yaml:"initial_position"`
	InitialVelocity float64 `yaml:"initial_velocity"`
	SensorNoiseStd  float64 `yaml:"sensor_noise_std"`
}

// ControllerConfig configures the numeric-side PID.
type ControllerConfig struct {
	Kp       float64 `yaml:"kp"`
	Ki       float64 `yaml:"ki"`
	Kd       float64 `yaml:"kd"`
	Setpoint float64 `yaml:"setpoint"`
}

// LogConfig configures the per-run CSV output. An empty RunID gets a
// timestamp at session start.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	RunID string `yaml:"run_id"`
}

func Default() *Config {
	return &Config{
		Endpoint:     DefaultEndpoint,
		StepInterval: DefaultStepInterval,
		MaxSteps:     DefaultMaxSteps,
		StepTimeout:  DefaultStepTimeout,
		SyncTimeout:  DefaultSyncTimeout,
		Delay: DelayConfig{
			Distribution: string(delay.Uniform),
		},
		Plant: PlantConfig{
			Mass:    DefaultMass,
			Gravity: DefaultGravity,
		},
		Controller: ControllerConfig{
			Kp:       DefaultKp,
			Ki:       DefaultKi,
			Kd:       DefaultKd,
			Setpoint: DefaultSetpoint,
		},
		Log: LogConfig{Dir: "logs"},
	}
}

// Load layers a yaml file over the defaults, then applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as yaml.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv overrides file values from the environment, keeping the
// variable names the container deployments use.
func (c *Config) applyEnv() {
	if v := os.Getenv("PLANT_ADDR"); v != "" {
		c.Endpoint = v
	}
	if v, ok := envFloat("STEP_DT"); ok {
		c.StepInterval = v
	}
	if v, ok := envInt("MAX_STEPS"); ok {
		c.MaxSteps = v
	}
	if v, ok := envFloat("STEP_TIMEOUT_S"); ok {
		c.StepTimeout = v
	}
	if v, ok := envBool("DELAY_ENABLED"); ok {
		c.Delay.Enabled = v
	}
	if v, ok := envFloat("DELAY_PROCESSING_MS"); ok {
		c.Delay.ProcessingMs = v
	}
	if v, ok := envFloat("DELAY_RESPONSE_MS"); ok {
		c.Delay.ResponseMs = v
	}
	if v, ok := envFloat("DELAY_VARIATION_MS"); ok {
		c.Delay.VariationMs = v
	}
	if v := os.Getenv("RUN_ID"); v != "" {
		c.Log.RunID = v
	}
}

func envFloat(name string) (float64, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	s := os.Getenv(name)
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate rejects configurations the sessions cannot run with.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint must be set")
	}
	if c.StepInterval <= 0 {
		return fmt.Errorf("config: step_interval must be positive, got %f", c.StepInterval)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("config: max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("config: step_timeout must be positive, got %f", c.StepTimeout)
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("config: sync_timeout must be positive, got %f", c.SyncTimeout)
	}
	if c.Delay.ProcessingMs < 0 || c.Delay.ResponseMs < 0 || c.Delay.VariationMs < 0 {
		return fmt.Errorf("config: delay values must be non-negative")
	}
	switch delay.Distribution(c.Delay.Distribution) {
	case delay.Uniform, delay.Gaussian, "":
	default:
		return fmt.Errorf("config: unknown delay distribution %q", c.Delay.Distribution)
	}
	if c.Plant.Mass <= 0 {
		return fmt.Errorf("config: plant mass must be positive, got %f", c.Plant.Mass)
	}
	return nil
}

// StepIntervalDur returns the control cadence as a duration.
func (c *Config) StepIntervalDur() time.Duration {
	return time.Duration(c.StepInterval * float64(time.Second))
}

// StepTimeoutDur returns the per-tick receive deadline as a duration.
func (c *Config) StepTimeoutDur() time.Duration {
	return time.Duration(c.StepTimeout * float64(time.Second))
}

// SyncTimeoutDur returns the handshake window as a duration.
func (c *Config) SyncTimeoutDur() time.Duration {
	return time.Duration(c.SyncTimeout * float64(time.Second))
}

// DelayScheduler converts the delay section for the scheduler package.
func (c *Config) DelayScheduler() delay.Config {
	return delay.Config{
		Enabled:      c.Delay.Enabled,
		Processing:   time.Duration(c.Delay.ProcessingMs * float64(time.Millisecond)),
		Response:     time.Duration(c.Delay.ResponseMs * float64(time.Millisecond)),
		Variation:    time.Duration(c.Delay.VariationMs * float64(time.Millisecond)),
		Distribution: delay.Distribution(c.Delay.Distribution),
	}
}
