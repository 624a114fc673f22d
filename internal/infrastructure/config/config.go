package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Health check strategies.
const (
	StrategyScreenshot = "screenshot"
	StrategyScene      = "scene"
)

// Scene fallback policies for a source that exists but is not in the
// current program scene.
const (
	FallbackAssumeHealthy = "assume-healthy"
	FallbackStrict        = "strict"
)

// Config holds all watchdog configuration.
type Config struct {
	Source      SourceConfig      `yaml:"source" toml:"source"`
	OBS         OBSConfig         `yaml:"obs" toml:"obs"`
	Monitor     MonitorConfig     `yaml:"monitor" toml:"monitor"`
	Remediation RemediationConfig `yaml:"remediation" toml:"remediation"`
	Reconnect   ReconnectConfig   `yaml:"reconnect" toml:"reconnect"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
	Status      StatusConfig      `yaml:"status" toml:"status"`
}

// SourceConfig names the capture source under watch.
type SourceConfig struct {
	Name string `envconfig:"WATCHDOG_SOURCE" yaml:"name" toml:"name"`
}

// OBSConfig holds control server connection settings.
type OBSConfig struct {
	Host             string   `envconfig:"OBS_HOST" yaml:"host" toml:"host"`
	Port             int      `envconfig:"OBS_PORT" yaml:"port" toml:"port"`
	Password         string   `envconfig:"OBS_PASSWORD" yaml:"password" toml:"password"`
	HandshakeTimeout Duration `envconfig:"OBS_HANDSHAKE_TIMEOUT" yaml:"handshake_timeout" toml:"handshake_timeout"`
	RequestTimeout   Duration `envconfig:"OBS_REQUEST_TIMEOUT" yaml:"request_timeout" toml:"request_timeout"`
}

// MonitorConfig holds sampling and freeze detection settings.
type MonitorConfig struct {
	Interval         Duration `envconfig:"CHECK_INTERVAL" yaml:"interval" toml:"interval"`
	Threshold        int      `envconfig:"FREEZE_THRESHOLD" yaml:"threshold" toml:"threshold"`
	Strategy         string   `envconfig:"CHECK_STRATEGY" yaml:"strategy" toml:"strategy"`
	SceneFallback    string   `envconfig:"SCENE_FALLBACK" yaml:"scene_fallback" toml:"scene_fallback"`
	ScreenshotWidth  int      `envconfig:"SCREENSHOT_WIDTH" yaml:"screenshot_width" toml:"screenshot_width"`
	ScreenshotHeight int      `envconfig:"SCREENSHOT_HEIGHT" yaml:"screenshot_height" toml:"screenshot_height"`
}

// RemediationConfig holds restart sequence settings.
type RemediationConfig struct {
	Cooldown    Duration `envconfig:"RESTART_COOLDOWN" yaml:"cooldown" toml:"cooldown"`
	SettleDelay Duration `envconfig:"SETTLE_DELAY" yaml:"settle_delay" toml:"settle_delay"`
	ToggleField string   `envconfig:"TOGGLE_FIELD" yaml:"toggle_field" toml:"toggle_field"`
}

// ReconnectConfig bounds the backoff between reconnect attempts.
type ReconnectConfig struct {
	MaxDelay Duration `envconfig:"RECONNECT_MAX_DELAY" yaml:"max_delay" toml:"max_delay"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
	File        string `envconfig:"LOG_FILE" yaml:"file" toml:"file"`
}

// StatusConfig holds the local status endpoint settings. An empty address
// disables the endpoint.
type StatusConfig struct {
	Addr         string   `envconfig:"STATUS_ADDR" yaml:"addr" toml:"addr"`
	AllowOrigins []string `envconfig:"STATUS_CORS_ORIGINS" yaml:"allow_origins" toml:"allow_origins"`
	RateLimit    int      `envconfig:"STATUS_RATE_LIMIT" yaml:"rate_limit" toml:"rate_limit"`
}

// Duration is a time.Duration that decodes from strings such as "5s" in
// environment variables, YAML and TOML alike.
type Duration time.Duration

// Duration returns the standard library value.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load builds configuration from defaults, then the optional config file,
// then environment variables. Later sources override earlier ones.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load("")
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Name: "Safari",
		},
		OBS: OBSConfig{
			Host:             "localhost",
			Port:             4455,
			HandshakeTimeout: Duration(10 * time.Second),
			RequestTimeout:   Duration(10 * time.Second),
		},
		Monitor: MonitorConfig{
			Interval:         Duration(5 * time.Second),
			Threshold:        3,
			Strategy:         StrategyScreenshot,
			SceneFallback:    FallbackAssumeHealthy,
			ScreenshotWidth:  320,
			ScreenshotHeight: 180,
		},
		Remediation: RemediationConfig{
			Cooldown:    Duration(30 * time.Second),
			SettleDelay: Duration(500 * time.Millisecond),
			ToggleField: "type",
		},
		Reconnect: ReconnectConfig{
			MaxDelay: Duration(60 * time.Second),
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Status: StatusConfig{
			AllowOrigins: []string{"*"},
			RateLimit:    20,
		},
	}
}

// Validate rejects configurations the watchdog cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Source.Name) == "" {
		errs = append(errs, errors.New("source name is required"))
	}
	if c.OBS.Host == "" {
		errs = append(errs, errors.New("obs host is required"))
	}
	if c.OBS.Port <= 0 || c.OBS.Port > 65535 {
		errs = append(errs, fmt.Errorf("obs port %d out of range", c.OBS.Port))
	}
	if c.OBS.HandshakeTimeout <= 0 || c.OBS.RequestTimeout <= 0 {
		errs = append(errs, errors.New("obs timeouts must be positive"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("check interval must be positive"))
	}
	if c.Monitor.Threshold < 1 {
		errs = append(errs, fmt.Errorf("freeze threshold must be >= 1, got %d", c.Monitor.Threshold))
	}
	switch c.Monitor.Strategy {
	case StrategyScreenshot, StrategyScene:
	default:
		errs = append(errs, fmt.Errorf("unknown check strategy %q", c.Monitor.Strategy))
	}
	switch c.Monitor.SceneFallback {
	case FallbackAssumeHealthy, FallbackStrict:
	default:
		errs = append(errs, fmt.Errorf("unknown scene fallback %q", c.Monitor.SceneFallback))
	}
	if c.Monitor.ScreenshotWidth < 8 || c.Monitor.ScreenshotWidth > 320 ||
		c.Monitor.ScreenshotHeight < 8 || c.Monitor.ScreenshotHeight > 180 {
		errs = append(errs, errors.New("screenshot dimensions must be within 8x8 and 320x180"))
	}
	if c.Remediation.Cooldown < 0 || c.Remediation.SettleDelay < 0 {
		errs = append(errs, errors.New("remediation durations must not be negative"))
	}
	if c.Remediation.ToggleField == "" {
		errs = append(errs, errors.New("toggle field is required"))
	}
	if c.Reconnect.MaxDelay <= 0 {
		errs = append(errs, errors.New("reconnect max delay must be positive"))
	}
	if c.Status.Addr != "" {
		if c.Status.RateLimit < 1 {
			errs = append(errs, errors.New("status rate limit must be positive"))
		}
		for _, origin := range c.Status.AllowOrigins {
			if err := validateOrigin(origin); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// validateOrigin accepts "*" patterns with a single wildcard and origins with
// an explicit scheme such as http://localhost:8080 or obsstudio://dock.
func validateOrigin(origin string) error {
	switch n := strings.Count(origin, "*"); {
	case n > 1:
		return fmt.Errorf("status origin %q: only one * is allowed", origin)
	case n == 1:
		return nil
	}
	if i := strings.Index(origin, "://"); i <= 0 {
		return fmt.Errorf("status origin %q must include a scheme such as http://", origin)
	}
	return nil
}

// loadFile decodes a YAML or TOML file over cfg, chosen by extension.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
