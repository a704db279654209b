// Package config loads the OMS's process configuration with viper and
// validates it with go-playground/validator before boot proceeds.
package config

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the full set of keys consumed at boot.
type Config struct {
	Partitions          int    `mapstructure:"partitions" validate:"min=1,max=1024"`
	InboundStreamBase   int    `mapstructure:"inbound_stream_base" validate:"min=0"`
	OutboundStreamBase  int    `mapstructure:"outbound_stream_base" validate:"min=0"`
	GatewayPort         int    `mapstructure:"gateway_port" validate:"min=1,max=65535"`
	BackpressureLimit   int    `mapstructure:"gateway_backpressure_queue_limit" validate:"min=1"`
	RunGateway          bool   `mapstructure:"run_gateway"`
	RunEngine           bool   `mapstructure:"run_engine"`
	MetricsIntervalSecs int    `mapstructure:"metrics_interval_secs" validate:"min=1"`
	MetricsPort         int    `mapstructure:"metrics_port" validate:"min=1,max=65535"`
	OrderPoolCapacity   int    `mapstructure:"order_pool_capacity" validate:"min=1"`
	LevelPoolCapacity   int    `mapstructure:"level_pool_capacity" validate:"min=1"`

	Transport TransportConfig `mapstructure:"transport"`

	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`
}

// TransportConfig selects and configures the partition transport
// substrate.
type TransportConfig struct {
	Kind string `mapstructure:"kind" validate:"oneof=channel kafka"`

	// Endpoint is a comma-separated broker list for kafka. The channel
	// substrate does not read it.
	Endpoint      string `mapstructure:"endpoint"`
	Topic         string `mapstructure:"topic"`
	RatePerSecond int64  `mapstructure:"rate_per_second" validate:"min=1"`
}

var (
	once     sync.Once
	loaded   *Config
	loadErr  error
	validate = validator.New()
)

// Load reads configuration from a config.yaml under configPath merged
// with TRADSYS_OMS-prefixed environment variables and defaults, then
// validates the result.
func Load(configPath string) (*Config, error) {
	once.Do(func() {
		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("/etc/tradsys-oms")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("TRADSYS_OMS")

		setDefaults(v)

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				loadErr = fmt.Errorf("config: read config file: %w", err)
				return
			}
		}

		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			loadErr = fmt.Errorf("config: unmarshal: %w", err)
			return
		}

		if err := validate.Struct(cfg); err != nil {
			loadErr = fmt.Errorf("config: validation failed: %w", err)
			return
		}

		loaded = cfg
	})

	return loaded, loadErr
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("partitions", 32)
	v.SetDefault("inbound_stream_base", 1000)
	v.SetDefault("outbound_stream_base", 2000)
	v.SetDefault("gateway_port", 7001)
	v.SetDefault("gateway_backpressure_queue_limit", 4096)
	v.SetDefault("run_gateway", true)
	v.SetDefault("run_engine", true)
	v.SetDefault("metrics_interval_secs", 5)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("order_pool_capacity", 1_000_000)
	v.SetDefault("level_pool_capacity", 65_536)
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")

	v.SetDefault("transport.kind", "channel")
	v.SetDefault("transport.endpoint", "")
	v.SetDefault("transport.topic", "oms-partition-transport")
	v.SetDefault("transport.rate_per_second", 1_000_000)
}

// NewLogger builds the process zap.Logger for the configured
// environment.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
