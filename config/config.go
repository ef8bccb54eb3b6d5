package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when no -config flag is given.
const DefaultPath = "config/config.yml"

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Provider ProviderConfig `yaml:"provider"`
	Bus      BusConfig      `yaml:"bus"`
	Server   ServerConfig   `yaml:"server"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ProviderConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// Venues lists the enabled venues in the order their tickers are merged.
	Venues  []string      `yaml:"venues"`
	Deribit DeribitConfig `yaml:"deribit"`
	Bybit   BybitConfig   `yaml:"bybit"`
}

type DeribitConfig struct {
	URL               string        `yaml:"url"`
	LocalIP           string        `yaml:"local_ip"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
}

type BybitConfig struct {
	URL            string               `yaml:"url"`
	LocalIP        string               `yaml:"local_ip"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type BusConfig struct {
	Brokers                []string      `yaml:"brokers"`
	WriteTimeout           time.Duration `yaml:"write_timeout"`
	AllowAutoTopicCreation bool          `yaml:"allow_auto_topic_creation"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	// History bounds the recent log and metric events served under /api/v1/recent.
	History int `yaml:"history"`
}

type RefreshConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Instruments []string      `yaml:"instruments"`
}

type MetricsConfig struct {
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Venue names accepted in provider.venues.
const (
	VenueDeribit = "deribit"
	VenueBybit   = "bybit"
)

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, map[string]string{
		environmentProduction: "config/config.production.yml",
		environmentStaging:    "config/config.staging.yml",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Timeout: 10 * time.Second,
			Venues:  []string{VenueDeribit},
			Deribit: DeribitConfig{
				URL:               "wss://www.deribit.com/ws/api/v2",
				RequestsPerSecond: 20,
				Burst:             20,
				HandshakeTimeout:  10 * time.Second,
			},
			Bybit: BybitConfig{
				URL: "https://api.bybit.com",
				ConnectionPool: ConnectionPoolConfig{
					MaxIdleConns:    10,
					MaxConnsPerHost: 10,
					IdleConnTimeout: 90 * time.Second,
				},
			},
		},
		Bus: BusConfig{
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Address: ":8080",
			History: 200,
		},
		Refresh: RefreshConfig{
			Interval: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			CloudWatch:     CloudWatchConfig{Namespace: "AggTicker"},
			ReportInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnv(config *Config) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers := make([]string, 0)
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Bus.Brokers = brokers
	}

	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}

	for i, venue := range config.Provider.Venues {
		config.Provider.Venues[i] = strings.ToLower(strings.TrimSpace(venue))
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	if cfg.Service.Version == "" {
		return fmt.Errorf("service.version is required")
	}

	if len(cfg.Provider.Venues) == 0 {
		return fmt.Errorf("provider.venues must list at least one venue")
	}
	seen := make(map[string]struct{}, len(cfg.Provider.Venues))
	for _, venue := range cfg.Provider.Venues {
		switch venue {
		case VenueDeribit, VenueBybit:
		default:
			return fmt.Errorf("provider.venues: unknown venue '%s'", venue)
		}
		if _, dup := seen[venue]; dup {
			return fmt.Errorf("provider.venues: duplicate venue '%s'", venue)
		}
		seen[venue] = struct{}{}
	}

	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be greater than 0")
	}

	if cfg.Provider.Deribit.RequestsPerSecond <= 0 {
		return fmt.Errorf("provider.deribit.requests_per_second must be greater than 0")
	}

	if len(cfg.Bus.Brokers) == 0 {
		return fmt.Errorf("bus.brokers is required")
	}

	if cfg.Bus.WriteTimeout <= 0 {
		return fmt.Errorf("bus.write_timeout must be greater than 0")
	}

	if cfg.Refresh.Enabled {
		if cfg.Refresh.Interval <= 0 {
			return fmt.Errorf("refresh.interval must be greater than 0")
		}
		if len(cfg.Refresh.Instruments) == 0 {
			return fmt.Errorf("refresh.instruments is required when refresh is enabled")
		}
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
	}

	return nil
}
