package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "VITALSYNC"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "vitalsync.db"
	defaultLogLevel      = "info"
	defaultOwner         = "default"
	defaultServerURL     = "http://localhost:8080"
	defaultLookbackDays  = 30
	defaultHistoricDays  = 730
	defaultRingWindow    = 14
	defaultHTTPTimeoutS  = 30
	defaultExportDirName = "exports"
)

// defaultMetricTypes lists the metric families the agent extracts when the
// deployment does not configure its own set.
var defaultMetricTypes = []string{"heart_rate", "step_count", "resting_heart_rate"}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	APIKey       string
	DefaultOwner string
	LogLevel     string
}

// AgentConfig captures runtime configuration for the sync agent.
type AgentConfig struct {
	ServerURL      string
	APIKey         string
	Owner          string
	ExportDir      string
	MetricTypes    []string
	LookbackDays   int
	HistoricalDays int
	RingWindowDays int
	HTTPTimeout    time.Duration
	LogLevel       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("sync.default_owner", defaultOwner)

	configViper.SetDefault("agent.server_url", defaultServerURL)
	configViper.SetDefault("agent.owner", defaultOwner)
	configViper.SetDefault("agent.export_dir", defaultExportDirName)
	configViper.SetDefault("agent.metric_types", defaultMetricTypes)
	configViper.SetDefault("agent.lookback_days", defaultLookbackDays)
	configViper.SetDefault("agent.historical_days", defaultHistoricDays)
	configViper.SetDefault("agent.ring_window_days", defaultRingWindow)
	configViper.SetDefault("agent.http_timeout_seconds", defaultHTTPTimeoutS)
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		APIKey:       configViper.GetString("sync.api_key"),
		DefaultOwner: configViper.GetString("sync.default_owner"),
		LogLevel:     configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("sync.api_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.DefaultOwner) == "" {
		return fmt.Errorf("sync.default_owner is required")
	}
	return nil
}

// LoadAgent parses agent configuration from viper.
func LoadAgent(configViper *viper.Viper) (AgentConfig, error) {
	cfg := AgentConfig{
		ServerURL:      configViper.GetString("agent.server_url"),
		APIKey:         configViper.GetString("sync.api_key"),
		Owner:          configViper.GetString("agent.owner"),
		ExportDir:      configViper.GetString("agent.export_dir"),
		MetricTypes:    configViper.GetStringSlice("agent.metric_types"),
		LookbackDays:   configViper.GetInt("agent.lookback_days"),
		HistoricalDays: configViper.GetInt("agent.historical_days"),
		RingWindowDays: configViper.GetInt("agent.ring_window_days"),
		HTTPTimeout:    time.Duration(configViper.GetInt("agent.http_timeout_seconds")) * time.Second,
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AgentConfig{}, err
	}

	return cfg, nil
}

func (c AgentConfig) validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("agent.server_url is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("sync.api_key is required")
	}
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("agent.owner is required")
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		return fmt.Errorf("agent.export_dir is required")
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("agent.lookback_days must be positive")
	}
	if c.HistoricalDays <= 0 {
		return fmt.Errorf("agent.historical_days must be positive")
	}
	if c.RingWindowDays <= 0 {
		return fmt.Errorf("agent.ring_window_days must be positive")
	}
	return nil
}
