// Package config loads engine settings from defaults, an optional YAML file
// and MEIDIAG_* environment variables.
package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"mei-diagnostic/internal/gateway"
	"mei-diagnostic/internal/usecase"
)

const envPrefix = "MEIDIAG"

// Strategy names accepted in upstream.strategies.
const (
	StrategyRelay        = "relay"
	StrategyWrappedRelay = "wrapped-relay"
	StrategyDirect       = "direct"
	StrategyFile         = "file"
)

// Config is the root configuration.
type Config struct {
	Upstream  UpstreamConfig  `mapstructure:"upstream"  yaml:"upstream"`
	Estimator EstimatorConfig `mapstructure:"estimator" yaml:"estimator"`
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"`
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// UpstreamConfig describes the webhook and how to reach it.
type UpstreamConfig struct {
	WebhookURL         string        `mapstructure:"webhook_url"          yaml:"webhook_url"`
	HeaderName         string        `mapstructure:"header_name"          yaml:"header_name"`
	IdentityField      string        `mapstructure:"identity_field"       yaml:"identity_field"`
	Timeout            time.Duration `mapstructure:"timeout"              yaml:"timeout"`
	Strategies         []string      `mapstructure:"strategies"           yaml:"strategies"` // tried in order
	RelayPrefix        string        `mapstructure:"relay_prefix"         yaml:"relay_prefix"`
	WrappedRelayPrefix string        `mapstructure:"wrapped_relay_prefix" yaml:"wrapped_relay_prefix"`
	FixtureDir         string        `mapstructure:"fixture_dir"          yaml:"fixture_dir"`
}

// EstimatorConfig tunes the projection of guides withheld upstream.
type EstimatorConfig struct {
	AveragePeriodAmount string `mapstructure:"average_period_amount" yaml:"average_period_amount"` // BRL, decimal string
	UseTrailingAverage  bool   `mapstructure:"use_trailing_average"  yaml:"use_trailing_average"`
	TrailingWindow      int    `mapstructure:"trailing_window"       yaml:"trailing_window"`
}

// StoreConfig locates the snapshot database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// EngineConfig bounds how many diagnostics run at once.
type EngineConfig struct {
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
}

// ServerConfig is the listen address of the HTTP surface.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "console" or "json"
}

// Load reads configuration from the default search paths. A missing config
// file is not an error.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".meidiag"))
	v.AddConfigPath("/etc/meidiag")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from an explicit file.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Upstream.FixtureDir = expandHome(cfg.Upstream.FixtureDir)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.webhook_url", "")
	v.SetDefault("upstream.header_name", "cnpj")
	v.SetDefault("upstream.identity_field", "cnpj")
	v.SetDefault("upstream.timeout", 90*time.Second)
	v.SetDefault("upstream.strategies", []string{StrategyRelay, StrategyWrappedRelay, StrategyDirect})
	v.SetDefault("upstream.relay_prefix", "https://corsproxy.io/?url=")
	v.SetDefault("upstream.wrapped_relay_prefix", "https://api.allorigins.win/get?url=")
	v.SetDefault("upstream.fixture_dir", "")

	v.SetDefault("estimator.average_period_amount", "75.60")
	v.SetDefault("estimator.use_trailing_average", false)
	v.SetDefault("estimator.trailing_window", 12)

	v.SetDefault("store.path", "~/.meidiag/snapshots.db")

	v.SetDefault("engine.max_concurrent_runs", 4)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	if c.Upstream.WebhookURL == "" && !c.onlyFileStrategy() {
		return fmt.Errorf("upstream.webhook_url is required")
	}
	if len(c.Upstream.Strategies) == 0 {
		return fmt.Errorf("upstream.strategies must list at least one strategy")
	}
	for _, name := range c.Upstream.Strategies {
		switch name {
		case StrategyRelay, StrategyWrappedRelay, StrategyDirect:
		case StrategyFile:
			if c.Upstream.FixtureDir == "" {
				return fmt.Errorf("upstream.fixture_dir is required by the %q strategy", StrategyFile)
			}
		default:
			return fmt.Errorf("unknown upstream strategy %q", name)
		}
	}
	if c.Upstream.HeaderName == "" || c.Upstream.IdentityField == "" {
		return fmt.Errorf("upstream.header_name and upstream.identity_field must not be empty")
	}
	if _, err := c.Estimator.Build(); err != nil {
		return err
	}
	if c.Engine.MaxConcurrentRuns < 1 {
		return fmt.Errorf("engine.max_concurrent_runs must be at least 1, got %d", c.Engine.MaxConcurrentRuns)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

func (c *Config) onlyFileStrategy() bool {
	for _, name := range c.Upstream.Strategies {
		if name != StrategyFile {
			return false
		}
	}
	return len(c.Upstream.Strategies) > 0
}

// Build converts the estimator section into the usecase settings.
func (e EstimatorConfig) Build() (usecase.EstimatorConfig, error) {
	avg, err := decimal.NewFromString(strings.TrimSpace(e.AveragePeriodAmount))
	if err != nil {
		return usecase.EstimatorConfig{}, fmt.Errorf("estimator.average_period_amount %q: %w", e.AveragePeriodAmount, err)
	}
	if !avg.IsPositive() {
		return usecase.EstimatorConfig{}, fmt.Errorf("estimator.average_period_amount must be positive, got %s", avg)
	}
	return usecase.EstimatorConfig{
		AveragePeriodAmount: avg,
		UseTrailingAverage:  e.UseTrailingAverage,
		TrailingWindow:      e.TrailingWindow,
	}, nil
}

// BuildStrategies instantiates the configured transport strategies in order.
func (u UpstreamConfig) BuildStrategies(client *http.Client) ([]usecase.Strategy, error) {
	if client == nil {
		client = gateway.NewHTTPClient(u.Timeout)
	}
	strategies := make([]usecase.Strategy, 0, len(u.Strategies))
	for _, name := range u.Strategies {
		switch name {
		case StrategyRelay:
			strategies = append(strategies, gateway.NewRelayStrategy(client, u.RelayPrefix))
		case StrategyWrappedRelay:
			strategies = append(strategies, gateway.NewWrappedRelayStrategy(client, u.WrappedRelayPrefix))
		case StrategyDirect:
			strategies = append(strategies, gateway.NewDirectStrategy(client))
		case StrategyFile:
			strategies = append(strategies, gateway.NewFileStrategy(u.FixtureDir))
		default:
			return nil, fmt.Errorf("unknown upstream strategy %q", name)
		}
	}
	return strategies, nil
}

// Addr is the listen address of the HTTP surface.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
